//go:build linux

package input

import (
	"fmt"
	"path/filepath"

	evdev "github.com/gvalkov/golang-evdev"
)

// EvdevOpener opens /dev/input event nodes.
type EvdevOpener struct {
	Glob string
	Grab bool
}

// NewEvdevOpener returns an opener for the nodes matching cfg.Devices.
func NewEvdevOpener(cfg Config) *EvdevOpener {
	return &EvdevOpener{Glob: cfg.Devices, Grab: cfg.Grab}
}

// Open implements Opener. Unreadable nodes are skipped.
func (o *EvdevOpener) Open(known func(path string) bool) ([]string, []Device, error) {
	paths, err := filepath.Glob(o.Glob)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", o.Glob, err)
	}
	var out []Device
	for _, p := range paths {
		if known(p) || !evdev.IsInputDevice(p) {
			continue
		}
		dev, err := evdev.Open(p)
		if err != nil {
			// permission problems on single nodes are common; skip them
			continue
		}
		kind := classify(dev.Capabilities)
		if kind != Ignored && o.Grab {
			if err := dev.Grab(); err != nil {
				// grabbed by another process
				_ = dev.File.Close()
				continue
			}
		}
		out = append(out, &evdevDevice{dev: dev, kind: kind})
	}
	return paths, out, nil
}

// classify treats anything with a right button as a mouse and any other
// key-capable device as a keyboard.
func classify(caps map[evdev.CapabilityType][]evdev.CapabilityCode) Kind {
	kind := Ignored
	for t, codes := range caps {
		if t.Type != evdev.EV_KEY {
			continue
		}
		kind = KeyboardDevice
		for _, c := range codes {
			if c.Code == evdev.BTN_RIGHT {
				return MouseDevice
			}
		}
	}
	return kind
}

type evdevDevice struct {
	dev  *evdev.InputDevice
	kind Kind
}

func (d *evdevDevice) Path() string { return d.dev.Fn }
func (d *evdevDevice) Name() string { return d.dev.Name }
func (d *evdevDevice) Kind() Kind   { return d.kind }

func (d *evdevDevice) Read() ([]Event, error) {
	raw, err := d.dev.Read()
	if err != nil {
		return nil, err
	}
	out := make([]Event, len(raw))
	for i, ev := range raw {
		out[i] = Event{Type: ev.Type, Code: ev.Code, Value: ev.Value}
	}
	return out, nil
}

func (d *evdevDevice) Close() error {
	return d.dev.File.Close()
}
