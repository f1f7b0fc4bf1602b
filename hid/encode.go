// Package hid translates Linux input events into the Bluetooth HID input
// reports forwarded to remote hosts.
//
// Report layouts (interrupt channel, DATA|INPUT header 0xA1):
//
//	Keyboard: [0xA1, 0x01, modifiers, 0x00, k1, k2, k3, k4, k5, k6]
//	Mouse:    [0xA1, 0x02, buttons, dx, dy, vWheel, hWheel]
package hid

// ModifierCount is the number of modifier flags packed into the modifier byte.
const ModifierCount = 8

// modifierIndex orders modifier flags MSB first: index 0 is bit 0x80.
var modifierIndex = map[uint16]int{
	KeyRightMeta:  0,
	KeyRightAlt:   1,
	KeyRightShift: 2,
	KeyRightCtrl:  3,
	KeyLeftMeta:   4,
	KeyLeftAlt:    5,
	KeyLeftShift:  6,
	KeyLeftCtrl:   7,
}

// IsModifierKey reports whether code is one of the eight modifier keys.
func IsModifierKey(code uint16) bool {
	_, ok := modifierIndex[code]
	return ok
}

// ModifierBitIndex returns the flag index of a modifier key, or -1.
func ModifierBitIndex(code uint16) int {
	if i, ok := modifierIndex[code]; ok {
		return i
	}
	return -1
}

// EncodeRegularKey returns the HID usage for a non-modifier key code.
// Unknown codes yield 0 and ok=false; callers log and carry on.
func EncodeRegularKey(code uint16) (usage uint8, ok bool) {
	e, found := keyTable[code]
	if !found {
		return 0, false
	}
	return e.usage, true
}

// PackModifiers folds the eight modifier flags into one byte, flag 0 being the MSB.
func PackModifiers(flags [ModifierCount]bool) uint8 {
	var b uint8
	for i, set := range flags {
		if set {
			b |= 0x80 >> i
		}
	}
	return b
}

// ModifierSet reports whether flag index i is set in a packed modifier byte.
func ModifierSet(packed uint8, i int) bool {
	if i < 0 || i >= ModifierCount {
		return false
	}
	return packed&(0x80>>i) != 0
}

// UnpackModifiers is the inverse of PackModifiers.
func UnpackModifiers(packed uint8) [ModifierCount]bool {
	var flags [ModifierCount]bool
	for i := range flags {
		flags[i] = ModifierSet(packed, i)
	}
	return flags
}

// ClampToByte clamps v to [-128, 127] and reinterprets it as an unsigned byte.
func ClampToByte(v int) uint8 {
	if v > 127 {
		v = 127
	} else if v < -128 {
		v = -128
	}
	return uint8(int8(v))
}

// MouseButtonIndex maps BTN_LEFT..BTN_EXTRA to a flag index for PackModifiers
// style packing (BTN_LEFT lands on the LSB). Other codes return -1.
func MouseButtonIndex(code uint16) int {
	if code >= BtnLeft && code <= BtnExtra {
		return 279 - int(code)
	}
	return -1
}
