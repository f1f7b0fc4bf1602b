//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	serviceName = "btkvm.service"
	servicePath = "/etc/systemd/system/btkvm.service"
)

func install(logger *slog.Logger, args []string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}

	if err := os.WriteFile(servicePath, []byte(unitFile(exePath, args)), 0o644); err != nil {
		return err
	}
	for _, step := range [][]string{
		{"daemon-reload"},
		{"enable", serviceName},
		{"restart", serviceName},
	} {
		if err := systemctl(step...); err != nil {
			return err
		}
	}
	logger.Info("btkvm systemd service installed", "path", servicePath, "exe", exePath)
	return nil
}

func uninstall(logger *slog.Logger) error {
	var errs []error
	if err := systemctl("stop", serviceName); err != nil {
		errs = append(errs, err)
	}
	if err := systemctl("disable", serviceName); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(servicePath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := systemctl("daemon-reload"); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("btkvm systemd service removed", "path", servicePath)
	return nil
}

// unitFile renders the service unit. The server needs the bluetooth daemon
// and root for raw L2CAP sockets and evdev grabs.
func unitFile(exePath string, args []string) string {
	cmdline := fmt.Sprintf("%q server", exePath)
	for _, a := range args {
		cmdline += " " + fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf(`[Unit]
Description=Bluetooth HID KVM switch
After=bluetooth.service
Requires=bluetooth.service

[Service]
Type=simple
ExecStart=%s
WorkingDirectory=%s
Restart=on-failure
RestartSec=3

[Install]
WantedBy=multi-user.target
`, cmdline, filepath.Dir(exePath))
}

func systemctl(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
