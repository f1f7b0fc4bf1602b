package dbussvc

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/btkvm/hid"
	"github.com/Alia5/btkvm/hotkey"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/registry"
)

type fakeKVM struct {
	mu        sync.Mutex
	names     []string
	infos     []registry.ClientInfo
	keyboard  []hid.Frame
	mouse     [][5]int
	connected []string
	reloadErr error
	events    chan kvm.Event

	subs int
	sub  chan kvm.Event
}

func (k *fakeKVM) ConnectedClientNames() []string     { return k.names }
func (k *fakeKVM) ClientsInfo() []registry.ClientInfo { return k.infos }
func (k *fakeKVM) ConnectClient(addr string) error {
	k.connected = append(k.connected, addr)
	return nil
}
func (k *fakeKVM) DisconnectClient(addr string) error { return kvm.ErrUnknownClient }
func (k *fakeKVM) ReloadSettings() error              { return k.reloadErr }
func (k *fakeKVM) RestartInfoHub()                    {}
func (k *fakeKVM) SwitchActiveHost(addr string) ([]string, error) {
	return nil, kvm.ErrUnknownClient
}
func (k *fakeKVM) SwitchToNextHost() []string { return k.names }
func (k *fakeKVM) SendKeyboard(m [hid.ModifierCount]bool, keys [hid.MaxKeys]uint8) hotkey.Action {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keyboard = append(k.keyboard, hid.KeyboardReport{Modifiers: hid.PackModifiers(m), Keys: keys}.Frame())
	return hotkey.None
}
func (k *fakeKVM) SendMouse(b [hid.ModifierCount]bool, dx, dy, wheel, hwheel int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.mouse = append(k.mouse, [5]int{int(hid.PackModifiers(b)), dx, dy, wheel, hwheel})
}
// Subscribe hands out k.events when set. Otherwise each call opens a new
// buffered subscription that publish drops once it is full.
func (k *fakeKVM) Subscribe(buffer int) (<-chan kvm.Event, func()) {
	if k.events != nil {
		return k.events, func() {}
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.subs++
	k.sub = make(chan kvm.Event, buffer)
	return k.sub, func() {}
}

func (k *fakeKVM) publish(ev kvm.Event) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.sub == nil {
		return
	}
	select {
	case k.sub <- ev:
	default:
		close(k.sub)
		k.sub = nil
	}
}

func (k *fakeKVM) subscriptions() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.subs
}

type emitted struct {
	path   dbus.ObjectPath
	name   string
	values []any
}

type fakeEmitter struct {
	mu  sync.Mutex
	out []emitted
	// gate, when set, stalls every Emit until it is closed
	gate chan struct{}
}

func (e *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...any) error {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out = append(e.out, emitted{path, name, values})
	return nil
}

func (e *fakeEmitter) snapshot() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.out...)
}

func TestObjectMethods(t *testing.T) {
	k := &fakeKVM{
		infos: []registry.ClientInfo{{Address: "AA:AA:AA:AA:AA:AA", Name: "Alpha", Connected: true, IsHost: true}},
	}
	o := &object{svc: New(k, &fakeEmitter{}, nil)}

	got, derr := o.GetConnectedClientNames()
	assert.Nil(t, derr)
	assert.Equal(t, []string{}, got)

	js, derr := o.GetClientsInfo()
	assert.Nil(t, derr)
	assert.JSONEq(t, `{"clients":[{"name":"Alpha","address":"AA:AA:AA:AA:AA:AA","isConnected":true,"isHost":true}]}`, js)

	assert.Nil(t, o.ConnectClient("AA:AA:AA:AA:AA:AA"))
	assert.Equal(t, []string{"AA:AA:AA:AA:AA:AA"}, k.connected)
	assert.Nil(t, o.DisconnectClient("CC:CC:CC:CC:CC:CC"), "unknown addresses are ignored")
	assert.Nil(t, o.SwitchActiveHost("CC:CC:CC:CC:CC:CC"))

	assert.Nil(t, o.ReloadSettings())
	k.reloadErr = errors.New("bad file")
	assert.NotNil(t, o.ReloadSettings())
}

func TestSendTelegrams(t *testing.T) {
	k := &fakeKVM{}
	o := &object{svc: New(k, &fakeEmitter{}, nil)}

	mods := []bool{false, false, false, false, false, false, true, true}
	assert.Nil(t, o.SendKeyboardUsbTelegram(mods, []byte{0x04, 0x05}))
	assert.Nil(t, o.SendKeyboardUsbTelegram(nil, []byte{1, 2, 3, 4, 5, 6, 7}))
	require.Len(t, k.keyboard, 2)
	assert.Equal(t, hid.Frame{0x03, 0x04, 0x05, 0, 0, 0, 0}, k.keyboard[0])
	assert.Equal(t, hid.Frame{0, 1, 2, 3, 4, 5, 6}, k.keyboard[1], "extra keys are cut")

	assert.Nil(t, o.SendMouseUsbTelegram([]bool{false, false, false, false, false, false, false, true}, 3, -4, 1, 0))
	assert.Equal(t, [][5]int{{1, 3, -4, 1, 0}}, k.mouse)
}

func TestRunEmitsSignals(t *testing.T) {
	k := &fakeKVM{events: make(chan kvm.Event, 4)}
	em := &fakeEmitter{}
	s := New(k, em, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	k.events <- kvm.Event{Kind: kvm.EventHostChanged, Names: []string{"Bravo", "Alpha"}}
	k.events <- kvm.Event{Kind: kvm.EventClientsChanged}
	k.events <- kvm.Event{Kind: kvm.EventRestartInfoHub}

	require.Eventually(t, func() bool { return len(em.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	out := em.snapshot()
	assert.Equal(t, emitted{Path, Interface + ".signal_host_change", []any{[]string{"Bravo", "Alpha"}}}, out[0])
	assert.Equal(t, emitted{Path, Interface + ".signal_clients_change", []any{[]string{}}}, out[1])
	assert.Equal(t, emitted{Path, Interface + ".signal_restart_info_hub", nil}, out[2])

	cancel()
	<-done
}

func TestRunResubscribesAfterOverflow(t *testing.T) {
	k := &fakeKVM{names: []string{"Alpha", "Bravo"}}
	em := &fakeEmitter{gate: make(chan struct{})}
	s := New(k, em, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return k.subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	// the bus is stuck while more changes arrive than the buffer holds
	for range eventBuffer + 8 {
		k.publish(kvm.Event{Kind: kvm.EventClientsChanged, Names: []string{"Alpha"}})
	}
	close(em.gate)

	require.Eventually(t, func() bool { return k.subscriptions() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return slices.ContainsFunc(em.snapshot(), func(e emitted) bool {
			return e.name == Interface+".signal_host_change"
		})
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, em.snapshot(), emitted{Path, Interface + ".signal_host_change", []any{[]string{"Alpha", "Bravo"}}})

	k.publish(kvm.Event{Kind: kvm.EventRestartInfoHub})
	require.Eventually(t, func() bool {
		out := em.snapshot()
		return out[len(out)-1].name == Interface+".signal_restart_info_hub"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunStopsWhileResubscribing(t *testing.T) {
	k := &fakeKVM{events: make(chan kvm.Event)}
	close(k.events)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(k, &fakeEmitter{}, nil).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
