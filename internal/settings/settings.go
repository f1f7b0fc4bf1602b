// Package settings loads the runtime settings file. Unlike the CLI
// configuration it can be reloaded while the server runs.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Alia5/btkvm/hid"
	"github.com/Alia5/btkvm/hotkey"
)

// Chord is the set of keys held down at one moment, named like "KEY_LEFTCTRL".
// Regular keys are listed in the order they are pressed.
type Chord []string

// Hotkeys binds actions to chord sequences, oldest chord first.
type Hotkeys struct {
	NextHost     []Chord `yaml:"nextHost"`
	IndicateHost []Chord `yaml:"indicateHost,omitempty"`
}

// Settings is the content of the settings file.
type Settings struct {
	Hotkeys Hotkeys `yaml:"hotkeys"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		Hotkeys: Hotkeys{
			NextHost: []Chord{{"KEY_SCROLLLOCK"}},
		},
	}
}

// Load reads path. A missing file yields Default(); unknown keys and invalid
// hotkeys are errors.
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates YAML settings.
func Parse(raw []byte) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that every chord encodes to a keyboard frame and that the
// required bindings are present.
func (s Settings) Validate() error {
	if len(s.Hotkeys.NextHost) == 0 {
		return errors.New("settings: hotkeys.nextHost is required")
	}
	check := func(name string, seq []Chord) error {
		for i, c := range seq {
			if _, err := c.Frame(); err != nil {
				return fmt.Errorf("settings: hotkeys.%s[%d]: %w", name, i, err)
			}
		}
		return nil
	}
	if err := check(hotkey.NextHost.String(), s.Hotkeys.NextHost); err != nil {
		return err
	}
	return check(hotkey.IndicateHost.String(), s.Hotkeys.IndicateHost)
}

// Frame encodes the chord as the frame a keyboard would produce while holding it.
func (c Chord) Frame() (hid.Frame, error) {
	if len(c) == 0 {
		return hid.Frame{}, errors.New("empty chord")
	}
	var state hid.KeyboardState
	seen := make(map[uint16]bool, len(c))
	regular := 0
	for _, name := range c {
		code, ok := hid.KeyCode(name)
		if !ok {
			return hid.Frame{}, fmt.Errorf("unknown key %q", name)
		}
		if seen[code] {
			return hid.Frame{}, fmt.Errorf("duplicate key %q", name)
		}
		seen[code] = true
		if !hid.IsModifierKey(code) {
			if _, ok := hid.EncodeRegularKey(code); !ok {
				return hid.Frame{}, fmt.Errorf("key %q has no HID usage", name)
			}
			regular++
			if regular > hid.MaxKeys {
				return hid.Frame{}, fmt.Errorf("more than %d non-modifier keys", hid.MaxKeys)
			}
		}
		state.Apply(code, true)
	}
	return state.Report().Frame(), nil
}

// Bindings converts the hotkeys for the detector.
func (s Settings) Bindings() ([]hotkey.Binding, error) {
	var out []hotkey.Binding
	for _, b := range []struct {
		action hotkey.Action
		seq    []Chord
	}{
		{hotkey.NextHost, s.Hotkeys.NextHost},
		{hotkey.IndicateHost, s.Hotkeys.IndicateHost},
	} {
		if len(b.seq) == 0 {
			continue
		}
		frames := make([]hid.Frame, 0, len(b.seq))
		for i, c := range b.seq {
			f, err := c.Frame()
			if err != nil {
				return nil, fmt.Errorf("settings: hotkeys.%s[%d]: %w", b.action, i, err)
			}
			frames = append(frames, f)
		}
		out = append(out, hotkey.Binding{Action: b.action, Sequence: frames})
	}
	return out, nil
}

// Save writes s to path atomically.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
