package testing

import (
	"context"
	"io"
	"sync"
)

// FakeClient is an in-memory registry.Client recording the reports sent to it.
type FakeClient struct {
	Addr     string
	HostName string

	mu       sync.Mutex
	alive    bool
	sent     [][]byte
	connects int
}

// NewFakeClient returns a client that is already connected.
func NewFakeClient(addr, name string) *FakeClient {
	return &FakeClient{Addr: addr, HostName: name, alive: true}
}

func (c *FakeClient) Address() string { return c.Addr }
func (c *FakeClient) Name() string    { return c.HostName }

func (c *FakeClient) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *FakeClient) IsConnected() bool { return c.IsAlive() }

func (c *FakeClient) Connect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	c.alive = true
	return true
}

func (c *FakeClient) AcceptConnection(ctrl, intr io.WriteCloser) bool {
	_ = ctrl.Close()
	_ = intr.Close()
	return true
}

func (c *FakeClient) Send(report []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), report...))
}

func (c *FakeClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
}

func (c *FakeClient) Join() {}

// Sent returns a copy of every report received so far.
func (c *FakeClient) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// Connects counts Connect calls.
func (c *FakeClient) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// FakeUnpairer records RemoveDevice calls.
type FakeUnpairer struct {
	mu      sync.Mutex
	Err     error
	removed []string
}

func (u *FakeUnpairer) RemoveDevice(_ context.Context, addr string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.removed = append(u.removed, addr)
	return u.Err
}

// Removed returns the addresses passed to RemoveDevice.
func (u *FakeUnpairer) Removed() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.removed...)
}
