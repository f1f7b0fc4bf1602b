package hid

// Relative axis codes from linux/input-event-codes.h.
const (
	RelX      uint16 = 0x00
	RelY      uint16 = 0x01
	RelHWheel uint16 = 0x06
	RelWheel  uint16 = 0x08
)

// KeyboardState accumulates key up/down events into modifier flags and six
// key slots, mirroring what a boot keyboard reports.
type KeyboardState struct {
	Modifiers [ModifierCount]bool
	Keys      [MaxKeys]uint8
}

// Apply records a key event. It returns false for codes that cannot be
// encoded, leaving the state untouched.
func (s *KeyboardState) Apply(code uint16, down bool) bool {
	if i := ModifierBitIndex(code); i >= 0 {
		s.Modifiers[i] = down
		return true
	}
	usage, ok := EncodeRegularKey(code)
	if !ok {
		return false
	}
	for i := range s.Keys {
		if !down && s.Keys[i] == usage {
			s.Keys[i] = 0
		} else if down && s.Keys[i] == usage {
			return true
		}
	}
	if down {
		for i := range s.Keys {
			if s.Keys[i] == 0 {
				s.Keys[i] = usage
				break
			}
		}
	}
	return true
}

// Report snapshots the state as a KeyboardReport.
func (s *KeyboardState) Report() KeyboardReport {
	return KeyboardReport{Modifiers: PackModifiers(s.Modifiers), Keys: s.Keys}
}

// MouseState accumulates relative motion between flushes and tracks button
// flags indexed by MouseButtonIndex.
type MouseState struct {
	Buttons        [ModifierCount]bool
	DX, DY         int
	Wheel, HWheel  int
	ButtonsChanged bool
}

// ApplyButton records a button event; unknown buttons are ignored.
func (s *MouseState) ApplyButton(code uint16, down bool) bool {
	i := MouseButtonIndex(code)
	if i < 0 {
		return false
	}
	s.Buttons[i] = down
	s.ButtonsChanged = true
	return true
}

// ApplyRel adds relative motion. Horizontal wheel is negated to match the
// direction remote hosts expect.
func (s *MouseState) ApplyRel(code uint16, value int32) {
	switch code {
	case RelX:
		s.DX += int(value)
	case RelY:
		s.DY += int(value)
	case RelWheel:
		s.Wheel += int(value)
	case RelHWheel:
		s.HWheel -= int(value)
	}
}

// Reset clears accumulated motion and the buttons-changed flag. Button flags persist.
func (s *MouseState) Reset() {
	s.DX, s.DY, s.Wheel, s.HWheel = 0, 0, 0, 0
	s.ButtonsChanged = false
}
