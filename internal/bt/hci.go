package bt

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/Alia5/btkvm/internal/session"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// DeviceClass advertised by the adapter: peripheral, keyboard + pointing device.
const DeviceClass = "0x0025C0"

// HCI wraps hciconfig and hcitool for one adapter.
type HCI struct {
	Device string
	Runner Runner
	Logger *slog.Logger
}

// NewHCI returns an HCI for device (e.g. "hci0") backed by os/exec.
func NewHCI(device string, logger *slog.Logger) *HCI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HCI{Device: device, Runner: ExecRunner{}, Logger: logger}
}

// SetupAdapter restarts the adapter, sets class and name and makes it
// discoverable. Individual failures are logged; the first one is returned
// after all steps ran.
func (h *HCI) SetupAdapter(ctx context.Context, name string) error {
	h.Logger.Info("Configuring bluetooth adapter", "adapter", h.Device, "name", name)
	steps := [][]string{
		{h.Device, "down"},
		{h.Device, "up"},
		{h.Device, "class", DeviceClass},
		{h.Device, "name", name},
		{h.Device, "piscan"},
	}
	var first error
	for _, args := range steps {
		if _, err := h.Runner.Run(ctx, "hciconfig", args...); err != nil {
			h.Logger.Warn("hciconfig failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// LinkRole reports the local role on the ACL link to addr.
func (h *HCI) LinkRole(ctx context.Context, addr string) (session.Role, error) {
	out, err := h.Runner.Run(ctx, "hcitool", "con")
	if err != nil {
		return session.RoleUnknown, err
	}
	return parseLinkRole(out, addr), nil
}

// SwitchToMaster asks the controller to take the master role towards addr.
func (h *HCI) SwitchToMaster(ctx context.Context, addr string) error {
	_, err := h.Runner.Run(ctx, "hcitool", "sr", addr, "MASTER")
	return err
}

// parseLinkRole scans "hcitool con" output such as
//
//	Connections:
//		< ACL AA:BB:CC:DD:EE:FF handle 11 state 1 lm MASTER AUTH ENCRYPT
//
// Newer BlueZ prints CENTRAL/PERIPHERAL instead of MASTER/SLAVE.
func parseLinkRole(out []byte, addr string) session.Role {
	addr = strings.ToUpper(addr)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.ToUpper(sc.Text())
		if !strings.Contains(line, addr) {
			continue
		}
		switch {
		case strings.Contains(line, "SLAVE"), strings.Contains(line, "PERIPHERAL"):
			return session.RoleSlave
		case strings.Contains(line, "MASTER"), strings.Contains(line, "CENTRAL"):
			return session.RoleMaster
		}
	}
	return session.RoleUnknown
}
