package registry_test

import (
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/btkvm/internal/registry"
)

type fakeClient struct {
	mu       sync.Mutex
	addr     string
	name     string
	alive    bool
	stopped  int
	joined   int
	connects int
	accepted int
	sent     [][]byte
}

func newClient(addr, name string) *fakeClient { return &fakeClient{addr: addr, name: name} }

func (c *fakeClient) Address() string { return c.addr }
func (c *fakeClient) Name() string    { return c.name }
func (c *fakeClient) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}
func (c *fakeClient) IsConnected() bool { return c.IsAlive() }
func (c *fakeClient) Connect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	c.alive = true
	return true
}
func (c *fakeClient) AcceptConnection(ctrl, intr io.WriteCloser) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted++
	c.alive = true
	return true
}
func (c *fakeClient) Send(report []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, report)
}
func (c *fakeClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
	c.alive = false
}
func (c *fakeClient) Join() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined++
}
func (c *fakeClient) setAlive(v bool) {
	c.mu.Lock()
	c.alive = v
	c.mu.Unlock()
}
func (c *fakeClient) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

const (
	addrA = "AA:AA:AA:AA:AA:AA"
	addrB = "BB:BB:BB:BB:BB:BB"
	addrC = "CC:CC:CC:CC:CC:CC"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(registry.Config{}, nil, nil, nil)
}

func TestAddOrReplaceKeepsOneEntryPerAddress(t *testing.T) {
	r := newRegistry(t)
	a1 := newClient(addrA, "A1")
	a2 := newClient("aa:aa:aa:aa:aa:aa", "A2")
	b := newClient(addrB, "B")

	r.AddOrReplace(a1)
	r.AddOrReplace(b)
	r.AddOrReplace(a2)

	infos := r.ClientsInfo()
	require.Len(t, infos, 2)
	assert.Equal(t, addrA, infos[0].Address, "replacement keeps its position")
	assert.Equal(t, "A2", infos[0].Name)
	assert.Equal(t, addrB, infos[1].Address)

	got, ok := r.Get(addrA)
	require.True(t, ok)
	assert.Same(t, a2, got)
	assert.Equal(t, 1, a1.stopped, "old session is stopped")
	assert.Equal(t, addrA, r.ActiveHost())
	assert.True(t, infos[0].IsHost)
}

func TestConnectedClientNames(t *testing.T) {
	type testCase struct {
		name     string
		setup    func(r *registry.Registry, a, b, c *fakeClient)
		expected []string
	}

	cases := []testCase{
		{
			name:     "no active host",
			setup:    func(r *registry.Registry, a, b, c *fakeClient) {},
			expected: []string{""},
		},
		{
			name: "active host offline, nothing connected",
			setup: func(r *registry.Registry, a, b, c *fakeClient) {
				r.AddOrReplace(a)
			},
			expected: []string{"off: Alpha"},
		},
		{
			name: "rotation starts at active host",
			setup: func(r *registry.Registry, a, b, c *fakeClient) {
				r.AddOrReplace(a)
				r.AddOrReplace(b)
				r.AddOrReplace(c)
				a.setAlive(true)
				b.setAlive(true)
				c.setAlive(true)
				r.Reconcile()
				r.SwitchActiveHostTo(addrB)
			},
			expected: []string{"Bravo", "Charlie", "Alpha"},
		},
		{
			name: "offline active host is listed first",
			setup: func(r *registry.Registry, a, b, c *fakeClient) {
				r.AddOrReplace(a)
				r.AddOrReplace(b)
				r.AddOrReplace(c)
				b.setAlive(true)
				c.setAlive(true)
				r.Reconcile()
			},
			expected: []string{"off: Alpha", "Bravo", "Charlie"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRegistry(t)
			a, b, c := newClient(addrA, "Alpha"), newClient(addrB, "Bravo"), newClient(addrC, "Charlie")
			tc.setup(r, a, b, c)
			assert.Equal(t, tc.expected, r.ConnectedClientNames())
		})
	}
}

func TestSwitchToNextConnectedHost(t *testing.T) {
	r := newRegistry(t)
	a, b := newClient(addrA, "A"), newClient(addrB, "B")

	assert.Equal(t, "", r.SwitchToNextConnectedHost(), "no-op without clients")

	r.AddOrReplace(a)
	r.AddOrReplace(b)
	a.setAlive(true)
	b.setAlive(true)
	r.Reconcile()
	assert.Equal(t, addrA, r.ActiveHost(), "first added is active")

	assert.Equal(t, addrB, r.SwitchToNextConnectedHost())
	assert.Equal(t, addrA, r.SwitchToNextConnectedHost())
}

func TestSwitchCyclesThroughAllConnected(t *testing.T) {
	r := newRegistry(t)
	clients := []*fakeClient{
		newClient(addrA, "A"), newClient(addrB, "B"), newClient(addrC, "C"),
		newClient("DD:DD:DD:DD:DD:DD", "D"),
	}
	for _, c := range clients {
		r.AddOrReplace(c)
		c.setAlive(true)
	}
	r.Reconcile()

	seen := map[string]int{}
	for range clients {
		seen[r.SwitchToNextConnectedHost()]++
	}
	assert.Len(t, seen, len(clients))
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, addrA, r.ActiveHost(), "back to start after N switches")
}

func TestSwitchWithSingleConnectedIsIdempotent(t *testing.T) {
	r := newRegistry(t)
	a, b := newClient(addrA, "A"), newClient(addrB, "B")
	r.AddOrReplace(a)
	r.AddOrReplace(b)
	b.setAlive(true)
	r.Reconcile()

	assert.Equal(t, addrB, r.SwitchToNextConnectedHost(), "offline active host moves to the only connected one")
	assert.Equal(t, addrB, r.SwitchToNextConnectedHost())
	assert.Equal(t, addrB, r.SwitchToNextConnectedHost())
}

func TestSwitchActiveHostTo(t *testing.T) {
	r := newRegistry(t)
	r.AddOrReplace(newClient(addrA, "A"))
	r.AddOrReplace(newClient(addrB, "B"))

	assert.True(t, r.SwitchActiveHostTo("bb:bb:bb:bb:bb:bb"))
	assert.Equal(t, addrB, r.ActiveHost())
	assert.False(t, r.SwitchActiveHostTo(addrC))
	assert.Equal(t, addrB, r.ActiveHost(), "unknown address is a no-op")
}

func TestSendGoesToActiveHost(t *testing.T) {
	r := newRegistry(t)
	r.Send([]byte{1})

	a, b := newClient(addrA, "A"), newClient(addrB, "B")
	r.AddOrReplace(a)
	r.AddOrReplace(b)
	r.Send([]byte{2})
	r.SwitchActiveHostTo(addrB)
	r.Send([]byte{3})

	assert.Equal(t, [][]byte{{2}}, a.Sent())
	assert.Equal(t, [][]byte{{3}}, b.Sent())
}

func TestReconcileNotifiesOnce(t *testing.T) {
	r := newRegistry(t)
	a, b := newClient(addrA, "A"), newClient(addrB, "B")
	r.AddOrReplace(a)
	r.AddOrReplace(b)
	a.setAlive(true)
	b.setAlive(true)
	r.Reconcile()

	var mu sync.Mutex
	var calls [][]string
	unsubscribe := r.Subscribe(registry.SubscriberFunc(func(names []string) {
		mu.Lock()
		calls = append(calls, names)
		mu.Unlock()
	}))

	b.setAlive(false) // write failure ends b's run loop
	assert.True(t, r.Reconcile())
	assert.False(t, r.Reconcile())
	assert.False(t, r.Reconcile())

	require.Len(t, calls, 1)
	assert.Equal(t, []string{"A"}, calls[0])
	assert.Equal(t, []string{"A"}, r.ConnectedClientNames())

	unsubscribe()
	b.setAlive(true)
	assert.True(t, r.Reconcile())
	assert.Len(t, calls, 1)
}

func TestAddOrReplaceNotifies(t *testing.T) {
	r := newRegistry(t)
	var got [][]string
	r.Subscribe(registry.SubscriberFunc(func(names []string) { got = append(got, names) }))

	r.AddOrReplace(newClient(addrA, "A"))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"off: A"}, got[0])
}

func TestConnectDisconnectClient(t *testing.T) {
	r := newRegistry(t)
	a := newClient(addrA, "A")
	r.AddOrReplace(a)

	assert.True(t, r.ConnectClient(addrA))
	assert.Equal(t, 1, a.connects)
	assert.True(t, r.DisconnectClient(addrA))
	assert.Equal(t, 1, a.stopped)

	assert.False(t, r.ConnectClient(addrB))
	assert.False(t, r.DisconnectClient(addrB))
}

func TestRemove(t *testing.T) {
	r := newRegistry(t)
	a, b := newClient(addrA, "A"), newClient(addrB, "B")
	r.AddOrReplace(a)
	r.AddOrReplace(b)

	assert.True(t, r.Remove(addrA))
	assert.Equal(t, 1, a.stopped)
	assert.Equal(t, 1, a.joined)
	assert.False(t, r.Has(addrA))
	assert.Equal(t, addrB, r.ActiveHost())
	assert.False(t, r.Remove(addrA))
}

func TestReorder(t *testing.T) {
	dir := t.TempDir()
	store, err := registry.LoadOrderStore(filepath.Join(dir, "order.yaml"))
	require.NoError(t, err)

	r := registry.New(registry.Config{}, nil, store, nil)
	a, b, c := newClient(addrA, "A"), newClient(addrB, "B"), newClient(addrC, "C")
	for _, cl := range []*fakeClient{a, b, c} {
		r.AddOrReplace(cl)
		cl.setAlive(true)
	}
	r.Reconcile()

	assert.True(t, r.Reorder(addrC, true))
	assert.False(t, r.Reorder(addrA, true), "first entry cannot move up")
	assert.False(t, r.Reorder(addrB, false), "last entry cannot move down")
	assert.False(t, r.Reorder("00:00:00:00:00:00", false))

	order := func() []string {
		var out []string
		for _, i := range r.ClientsInfo() {
			out = append(out, i.Address)
		}
		return out
	}
	assert.Equal(t, []string{addrA, addrC, addrB}, order())
	assert.Equal(t, []string{"A", "C", "B"}, r.ConnectedClientNames())

	reloaded, err := registry.LoadOrderStore(filepath.Join(dir, "order.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Index(addrA))
	assert.Equal(t, 1, reloaded.Index(addrC))
	assert.Equal(t, 2, reloaded.Index(addrB))
}

func TestStopAll(t *testing.T) {
	r := newRegistry(t)
	clients := []*fakeClient{newClient(addrA, "A"), newClient(addrB, "B"), newClient(addrC, "C")}
	for _, c := range clients {
		r.AddOrReplace(c)
		c.Connect()
	}
	r.StopAll()
	for _, c := range clients {
		assert.Equal(t, 1, c.stopped)
		assert.Equal(t, 1, c.joined)
		assert.False(t, c.IsAlive())
	}
}

func TestConnectKnown(t *testing.T) {
	created := map[string]*fakeClient{}
	r := registry.New(registry.Config{}, func(addr string) registry.Client {
		c := newClient(addr, "client "+addr)
		created[addr] = c
		return c
	}, nil, nil)
	existing := newClient(addrA, "existing")
	r.AddOrReplace(existing)

	n := r.ConnectKnown([]string{"aa:aa:aa:aa:aa:aa", addrB, " ", addrC, addrB})
	assert.Equal(t, 2, n)
	require.Len(t, created, 2)
	assert.Equal(t, 1, created[addrB].connects)
	assert.Equal(t, 1, created[addrC].connects)
	assert.Equal(t, 0, existing.connects)
	assert.Equal(t, addrA, r.ActiveHost(), "first registered client stays active")
}

func TestConnectKnownWithoutFactory(t *testing.T) {
	r := newRegistry(t)
	assert.Zero(t, r.ConnectKnown([]string{addrA}))
	assert.False(t, r.Has(addrA))
}
