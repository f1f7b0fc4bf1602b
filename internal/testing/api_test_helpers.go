// Package testing provides fixtures shared by the API handler tests.
package testing

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Alia5/btkvm/hotkey"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/registry"
	"github.com/Alia5/btkvm/internal/server/api"
)

// Fixture is a KVM service backed by a real registry of fake clients.
type Fixture struct {
	Registry *registry.Registry
	KVM      *kvm.Service
	Unpairer *FakeUnpairer
	Clients  []*FakeClient
}

// FixtureOptions tunes NewFixture.
type FixtureOptions struct {
	Bindings     []hotkey.Binding
	SettingsPath string
	Password     string
}

// NewFixture registers clients in order and reconciles once, so every
// client starts out connected and the first one is the active host.
func NewFixture(t *testing.T, o FixtureOptions, clients ...*FakeClient) *Fixture {
	t.Helper()
	reg := registry.New(registry.Config{}, nil, nil, slog.Default())
	for _, c := range clients {
		reg.AddOrReplace(c)
	}
	reg.Reconcile()
	u := &FakeUnpairer{}
	svc := kvm.New(kvm.Options{
		Hosts:        reg,
		Detector:     hotkey.NewDetector(o.Bindings),
		SettingsPath: o.SettingsPath,
		Unpairer:     u,
		Logger:       slog.Default(),
	})
	t.Cleanup(svc.Close)
	return &Fixture{Registry: reg, KVM: svc, Unpairer: u, Clients: clients}
}

// StartAPIServer starts an API server on a free port and calls register to allow
// the caller to register the handlers needed for the test. Returns the address
// and a function to call when done.
func StartAPIServer(t *testing.T, f *Fixture, password string, register func(r *api.Router, f *Fixture)) (addr string, done func()) {
	t.Helper()
	apiSrv, err := api.New(api.ServerConfig{Addr: "127.0.0.1:0", Password: password, ReadTimeout: 2 * time.Second}, slog.Default())
	if err != nil {
		t.Fatalf("api new failed: %v", err)
	}
	if register != nil {
		register(apiSrv.Router(), f)
	}
	if err := apiSrv.Start(); err != nil {
		t.Fatalf("api start failed: %v", err)
	}
	return apiSrv.Addr(), apiSrv.Close
}

// ExecCmd dials the API server, sends cmd and reads the full response.
// The command should not include a trailing newline. Returns the response
// without the trailing newline.
func ExecCmd(t *testing.T, addr string, cmd string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	// null terminator matches the API server framing
	_, _ = fmt.Fprintf(c, "%s\x00", cmd)

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(c)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		t.Fatalf("read failed: %v", err)
	}

	result := strings.TrimSuffix(line, "\n")
	result = strings.TrimSuffix(result, "\r")
	return result
}
