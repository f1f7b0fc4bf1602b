// Package input turns local keyboard and mouse events into calls on the KVM
// service.
package input

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Alia5/btkvm/hid"
	"github.com/Alia5/btkvm/hotkey"
	"github.com/Alia5/btkvm/internal/log"
)

// Event type codes from linux/input-event-codes.h.
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvRel uint16 = 0x02

	// keyGesture is reported by some mice (MX Master) for the thumb gesture
	// button; it lands on the otherwise unused button bit 2.
	keyGesture       uint16 = 125
	gestureButtonBit        = 2
)

// Sink receives decoded input; *kvm.Service satisfies it.
type Sink interface {
	SendKeyboard(modifiers [hid.ModifierCount]bool, keys [hid.MaxKeys]uint8) hotkey.Action
	SendMouse(buttons [hid.ModifierCount]bool, dx, dy, wheel, hwheel int)
}

// Event is one raw input event.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Keyboard accumulates key events of one device and forwards the full state
// after every press or release. Auto-repeat events are ignored.
type Keyboard struct {
	path   string
	sink   Sink
	logger *slog.Logger
	state  hid.KeyboardState
}

// NewKeyboard returns a Keyboard forwarding the state of the device at path.
func NewKeyboard(path string, sink Sink, logger *slog.Logger) *Keyboard {
	return &Keyboard{path: path, sink: sink, logger: logger}
}

// Handle processes one event.
func (k *Keyboard) Handle(ev Event) {
	if ev.Type != EvKey || ev.Value > 1 {
		return
	}
	if !k.state.Apply(ev.Code, ev.Value == 1) {
		k.logger.Warn("Unsupported key code", "device", k.path, "code", ev.Code)
		return
	}
	r := k.state.Report()
	k.logger.Log(context.Background(), log.LevelTrace, "Keyboard state", "device", k.path, "modifiers", r.Modifiers, "keys", r.Keys)
	k.sink.SendKeyboard(k.state.Modifiers, k.state.Keys)
}

// Mice combines the button state of every mouse so that holding a button
// on one device is not released by another.
type Mice struct {
	sink Sink

	mu      sync.Mutex
	buttons map[string][hid.ModifierCount]bool
}

// NewMice returns an empty combined button state sending to sink.
func NewMice(sink Sink) *Mice {
	return &Mice{sink: sink, buttons: make(map[string][hid.ModifierCount]bool)}
}

func (m *Mice) send(path string, s *hid.MouseState) {
	m.mu.Lock()
	m.buttons[path] = s.Buttons
	var common [hid.ModifierCount]bool
	for _, b := range m.buttons {
		for i, v := range b {
			common[i] = common[i] || v
		}
	}
	m.mu.Unlock()
	m.sink.SendMouse(common, s.DX, s.DY, s.Wheel, s.HWheel)
}

// Forget drops a removed mouse from the combined button state.
func (m *Mice) Forget(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buttons, path)
}

// Mouse accumulates the events of one mouse and flushes them on EV_SYN,
// at most once per rate unless a button changed.
type Mouse struct {
	path   string
	mice   *Mice
	rate   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	state hid.MouseState
	last  time.Time
}

// NewMouse returns a Mouse reporting through mice at most once per rate.
func NewMouse(path string, mice *Mice, rate time.Duration, logger *slog.Logger) *Mouse {
	return &Mouse{path: path, mice: mice, rate: rate, now: time.Now, logger: logger}
}

// Handle processes one event.
func (m *Mouse) Handle(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case EvSyn:
		now := m.now()
		if now.Sub(m.last) < m.rate && !m.state.ButtonsChanged {
			return
		}
		m.last = now
		m.mice.send(m.path, &m.state)
		m.state.Reset()
	case EvKey:
		if ev.Value > 1 {
			return
		}
		if ev.Code == keyGesture {
			m.state.Buttons[gestureButtonBit] = ev.Value == 1
			m.state.ButtonsChanged = true
			return
		}
		m.state.ApplyButton(ev.Code, ev.Value == 1)
	case EvRel:
		m.state.ApplyRel(ev.Code, ev.Value)
	}
}

// Sync injects a synthetic EV_SYN so pending state reaches the host even
// when the device stays quiet.
func (m *Mouse) Sync() {
	m.Handle(Event{Type: EvSyn})
}
