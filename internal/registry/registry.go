// Package registry owns the set of client sessions, picks the active host and
// tells subscribers when the set of reachable clients changes.
package registry

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Client is the registry's view of a per-peer session.
type Client interface {
	Address() string
	Name() string
	IsAlive() bool
	IsConnected() bool
	Connect() bool
	AcceptConnection(ctrl, intr io.WriteCloser) bool
	Send(report []byte)
	Stop()
	Join()
}

// Subscriber is notified with the ordered client names whenever the set of
// connected clients changes.
type Subscriber interface {
	OnClientsChange(names []string)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(names []string)

func (f SubscriberFunc) OnClientsChange(names []string) { f(names) }

// ClientInfo is a snapshot of one known client.
type ClientInfo struct {
	Address   string
	Name      string
	Connected bool
	IsHost    bool
}

// OffPrefix marks an active host that is currently unreachable.
const OffPrefix = "off: "

// Config holds the acceptor timing.
type Config struct {
	AcceptTimeout time.Duration `help:"Wait for an incoming control channel before idling" default:"2s" env:"BTKVM_ACCEPT_TIMEOUT"`
	IdleSleep     time.Duration `help:"Pause between accept rounds; also the reconciliation cadence" default:"3s" env:"BTKVM_ACCEPT_IDLE_SLEEP"`
}

func (c Config) withDefaults() Config {
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = 2 * time.Second
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = 3 * time.Second
	}
	return c
}

// Registry is the set of known clients keyed by address.
type Registry struct {
	cfg       Config
	logger    *slog.Logger
	newClient func(addr string) Client
	order     *OrderStore

	mu        sync.Mutex
	clients   map[string]Client
	keys      []string
	active    string
	connected []string

	subsMu sync.Mutex
	subs   map[int]Subscriber
	nextID int
}

// New creates an empty registry. newClient builds sessions for peers that
// connect in; order may be nil, in which case insertion order is kept.
func New(cfg Config, newClient func(addr string) Client, order *OrderStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		newClient: newClient,
		order:     order,
		clients:   make(map[string]Client),
		subs:      make(map[int]Subscriber),
	}
}

func normalize(addr string) string { return strings.ToUpper(strings.TrimSpace(addr)) }

// Subscribe registers s and returns a function that removes it again.
func (r *Registry) Subscribe(s Subscriber) (unsubscribe func()) {
	r.subsMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = s
	r.subsMu.Unlock()
	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *Registry) notify() {
	names := r.ConnectedClientNames()
	r.subsMu.Lock()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, r.subs[id])
	}
	r.subsMu.Unlock()

	for _, s := range subs {
		s.OnClientsChange(slices.Clone(names))
	}
}

// AddOrReplace installs c, stopping any previous session for the same address.
// The first client added becomes the active host, as does a client replacing
// the active host or the one remembered as active from a previous run.
func (r *Registry) AddOrReplace(c Client) {
	addr := normalize(c.Address())

	r.mu.Lock()
	old, existed := r.clients[addr]
	if existed && old != c {
		r.logger.Info("Client was connected before, stopping old instance", "client", old.Name(), "addr", addr)
		old.Stop()
	}
	r.clients[addr] = c
	if !existed {
		r.keys = append(r.keys, addr)
		r.sortLocked()
	}
	preferred := !existed && r.order != nil && r.order.ActiveClient() == addr
	switch {
	case r.active == "":
		r.active = addr
		r.logger.Info("Active host", "client", c.Name(), "addr", addr)
	case r.active == addr:
		r.logger.Info("Reconnection of active host", "client", c.Name(), "addr", addr)
	case preferred:
		r.active = addr
		r.logger.Info("Restored active host", "client", c.Name(), "addr", addr)
	}
	r.mu.Unlock()

	r.notify()
}

func (r *Registry) sortLocked() {
	if r.order == nil {
		return
	}
	r.keys = r.order.Sort(r.keys)
}

// Get returns the client for addr.
func (r *Registry) Get(addr string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[normalize(addr)]
	return c, ok
}

// Has reports whether addr is known.
func (r *Registry) Has(addr string) bool {
	_, ok := r.Get(addr)
	return ok
}

// Remove stops and forgets the client for addr. If it was the active host the
// next client in order takes over.
func (r *Registry) Remove(addr string) bool {
	addr = normalize(addr)
	r.mu.Lock()
	c, ok := r.clients[addr]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, addr)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == addr })
	r.connected = slices.DeleteFunc(r.connected, func(k string) bool { return k == addr })
	if r.active == addr {
		r.active = ""
		if len(r.keys) > 0 {
			r.active = r.keys[0]
		}
	}
	r.mu.Unlock()

	c.Stop()
	c.Join()
	r.notify()
	return true
}

// Reconcile recomputes the connected subset and notifies subscribers when it
// differs from the previous pass. It reports whether a change was seen.
func (r *Registry) Reconcile() bool {
	r.mu.Lock()
	connected := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		if r.clients[k].IsAlive() {
			connected = append(connected, k)
		}
	}
	changed := !slices.Equal(connected, r.connected)
	r.connected = connected
	r.mu.Unlock()

	if changed {
		r.notify()
	}
	return changed
}

// rotationLocked returns the connected addresses starting at the active host.
func (r *Registry) rotationLocked() []string {
	if r.active == "" || len(r.connected) == 0 {
		return nil
	}
	i := slices.Index(r.connected, r.active)
	if i < 0 {
		i = 0
	}
	return append(slices.Clone(r.connected[i:]), r.connected[:i]...)
}

// SwitchToNextConnectedHost advances the active host along the connected
// rotation and returns the new active address. With one connected client it
// re-selects that client; with none it does nothing.
func (r *Registry) SwitchToNextConnectedHost() string {
	r.mu.Lock()
	rot := r.rotationLocked()
	switch {
	case len(rot) > 1:
		r.active = rot[1]
	case len(rot) == 1:
		r.active = rot[0]
	}
	active := r.active
	r.mu.Unlock()

	r.persistActive(active)
	return active
}

// SwitchActiveHostTo selects addr directly. Unknown addresses are ignored.
func (r *Registry) SwitchActiveHostTo(addr string) bool {
	addr = normalize(addr)
	r.mu.Lock()
	_, ok := r.clients[addr]
	if ok {
		r.active = addr
	}
	r.mu.Unlock()

	if ok {
		r.persistActive(addr)
	}
	return ok
}

func (r *Registry) persistActive(addr string) {
	if r.order == nil || addr == "" {
		return
	}
	if err := r.order.SetActiveClient(addr); err != nil {
		r.logger.Warn("Failed to save active client", "error", err)
	}
}

// ActiveHost returns the active host address, or "".
func (r *Registry) ActiveHost() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ConnectedClientNames lists display names starting at the active host and
// wrapping through the connected clients. An unreachable active host is
// listed first with OffPrefix. Without an active host the result is [""].
func (r *Registry) ConnectedClientNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == "" {
		return []string{""}
	}
	rot := r.rotationLocked()
	names := make([]string, 0, len(rot)+1)
	if !slices.Contains(rot, r.active) {
		names = append(names, OffPrefix+r.clients[r.active].Name())
	}
	for _, k := range rot {
		names = append(names, r.clients[k].Name())
	}
	return names
}

// ClientsInfo returns every known client in registry order.
func (r *Registry) ClientsInfo() []ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientInfo, 0, len(r.keys))
	for _, k := range r.keys {
		c := r.clients[k]
		out = append(out, ClientInfo{
			Address:   k,
			Name:      c.Name(),
			Connected: c.IsConnected(),
			IsHost:    k == r.active,
		})
	}
	return out
}

// Send forwards a report to the active host, if any.
func (r *Registry) Send(report []byte) {
	r.mu.Lock()
	c := r.clients[r.active]
	r.mu.Unlock()
	if c != nil {
		c.Send(report)
	}
}

// ConnectClient starts an outbound connection to a known client.
func (r *Registry) ConnectClient(addr string) bool {
	c, ok := r.Get(addr)
	if !ok {
		return false
	}
	r.logger.Info("External trigger: connect", "client", c.Name(), "addr", c.Address())
	c.Connect()
	return true
}

// DisconnectClient stops a known client's session.
func (r *Registry) DisconnectClient(addr string) bool {
	c, ok := r.Get(addr)
	if !ok {
		return false
	}
	r.logger.Info("External trigger: disconnect", "client", c.Name(), "addr", c.Address())
	c.Stop()
	return true
}

// Reorder moves addr one place up or down in the rotation order.
func (r *Registry) Reorder(addr string, up bool) bool {
	addr = normalize(addr)
	r.mu.Lock()
	i := slices.Index(r.keys, addr)
	j := i + 1
	if up {
		j = i - 1
	}
	if i < 0 || j < 0 || j >= len(r.keys) {
		r.mu.Unlock()
		return false
	}
	r.keys[i], r.keys[j] = r.keys[j], r.keys[i]
	keys := slices.Clone(r.keys)
	connected := make([]string, 0, len(r.connected))
	for _, k := range r.keys {
		if slices.Contains(r.connected, k) {
			connected = append(connected, k)
		}
	}
	r.connected = connected
	r.mu.Unlock()

	if r.order != nil {
		if err := r.order.SetOrder(keys); err != nil {
			r.logger.Warn("Failed to save client order", "error", err)
		}
	}
	r.notify()
	return true
}

// ConnectKnown creates a session for every address not yet registered and
// starts connecting it. It returns the number of sessions created.
func (r *Registry) ConnectKnown(addrs []string) int {
	if r.newClient == nil {
		return 0
	}
	n := 0
	for _, addr := range addrs {
		addr = normalize(addr)
		if addr == "" || r.Has(addr) {
			continue
		}
		c := r.newClient(addr)
		r.AddOrReplace(c)
		r.logger.Info("Connecting to known device", "addr", addr)
		c.Connect()
		n++
	}
	return n
}

// StopAll stops every session and waits for all of them concurrently.
func (r *Registry) StopAll() {
	r.mu.Lock()
	clients := make([]Client, 0, len(r.clients))
	for _, k := range r.keys {
		clients = append(clients, r.clients[k])
	}
	r.mu.Unlock()

	r.logger.Info("Stopping all clients", "count", len(clients))
	for _, c := range clients {
		c.Stop()
	}
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Join()
		}()
	}
	wg.Wait()
	r.logger.Info("All clients stopped")
}
