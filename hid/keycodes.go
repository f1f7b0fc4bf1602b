package hid

// Linux input event codes for the keys the encoder understands.
// Values match linux/input-event-codes.h.
const (
	KeyEsc        uint16 = 1
	KeyBackspace  uint16 = 14
	KeyTab        uint16 = 15
	KeyEnter      uint16 = 28
	KeyLeftCtrl   uint16 = 29
	KeyLeftShift  uint16 = 42
	KeyRightShift uint16 = 54
	KeyLeftAlt    uint16 = 56
	KeySpace      uint16 = 57
	KeyCapsLock   uint16 = 58
	KeyNumLock    uint16 = 69
	KeyScrollLock uint16 = 70
	KeyRightCtrl  uint16 = 97
	KeyRightAlt   uint16 = 100
	KeyPause      uint16 = 119
	KeyLeftMeta   uint16 = 125
	KeyRightMeta  uint16 = 126

	BtnLeft   uint16 = 0x110
	BtnRight  uint16 = 0x111
	BtnMiddle uint16 = 0x112
	BtnSide   uint16 = 0x113
	BtnExtra  uint16 = 0x114
)

type keyEntry struct {
	name  string
	usage uint8
}

// keyTable maps Linux key codes to their symbolic name and the
// Keyboard/Keypad page usage (HUT 1.12, table 12). Modifiers carry their
// 0xE0-0xE7 usages so that name lookups work, but reports encode them as
// bits in the modifier byte instead.
var keyTable = map[uint16]keyEntry{
	1:   {"KEY_ESC", 41},
	2:   {"KEY_1", 30},
	3:   {"KEY_2", 31},
	4:   {"KEY_3", 32},
	5:   {"KEY_4", 33},
	6:   {"KEY_5", 34},
	7:   {"KEY_6", 35},
	8:   {"KEY_7", 36},
	9:   {"KEY_8", 37},
	10:  {"KEY_9", 38},
	11:  {"KEY_0", 39},
	12:  {"KEY_MINUS", 45},
	13:  {"KEY_EQUAL", 46},
	14:  {"KEY_BACKSPACE", 42},
	15:  {"KEY_TAB", 43},
	16:  {"KEY_Q", 20},
	17:  {"KEY_W", 26},
	18:  {"KEY_E", 8},
	19:  {"KEY_R", 21},
	20:  {"KEY_T", 23},
	21:  {"KEY_Y", 28},
	22:  {"KEY_U", 24},
	23:  {"KEY_I", 12},
	24:  {"KEY_O", 18},
	25:  {"KEY_P", 19},
	26:  {"KEY_LEFTBRACE", 47},
	27:  {"KEY_RIGHTBRACE", 48},
	28:  {"KEY_ENTER", 40},
	29:  {"KEY_LEFTCTRL", 224},
	30:  {"KEY_A", 4},
	31:  {"KEY_S", 22},
	32:  {"KEY_D", 7},
	33:  {"KEY_F", 9},
	34:  {"KEY_G", 10},
	35:  {"KEY_H", 11},
	36:  {"KEY_J", 13},
	37:  {"KEY_K", 14},
	38:  {"KEY_L", 15},
	39:  {"KEY_SEMICOLON", 51},
	40:  {"KEY_APOSTROPHE", 52},
	41:  {"KEY_GRAVE", 53},
	42:  {"KEY_LEFTSHIFT", 225},
	43:  {"KEY_BACKSLASH", 49},
	44:  {"KEY_Z", 29},
	45:  {"KEY_X", 27},
	46:  {"KEY_C", 6},
	47:  {"KEY_V", 25},
	48:  {"KEY_B", 5},
	49:  {"KEY_N", 17},
	50:  {"KEY_M", 16},
	51:  {"KEY_COMMA", 54},
	52:  {"KEY_DOT", 55},
	53:  {"KEY_SLASH", 56},
	54:  {"KEY_RIGHTSHIFT", 229},
	55:  {"KEY_KPASTERISK", 85},
	56:  {"KEY_LEFTALT", 226},
	57:  {"KEY_SPACE", 44},
	58:  {"KEY_CAPSLOCK", 57},
	59:  {"KEY_F1", 58},
	60:  {"KEY_F2", 59},
	61:  {"KEY_F3", 60},
	62:  {"KEY_F4", 61},
	63:  {"KEY_F5", 62},
	64:  {"KEY_F6", 63},
	65:  {"KEY_F7", 64},
	66:  {"KEY_F8", 65},
	67:  {"KEY_F9", 66},
	68:  {"KEY_F10", 67},
	69:  {"KEY_NUMLOCK", 83},
	70:  {"KEY_SCROLLLOCK", 71},
	71:  {"KEY_KP7", 95},
	72:  {"KEY_KP8", 96},
	73:  {"KEY_KP9", 97},
	74:  {"KEY_KPMINUS", 86},
	75:  {"KEY_KP4", 92},
	76:  {"KEY_KP5", 93},
	77:  {"KEY_KP6", 94},
	78:  {"KEY_KPPLUS", 87},
	79:  {"KEY_KP1", 89},
	80:  {"KEY_KP2", 90},
	81:  {"KEY_KP3", 91},
	82:  {"KEY_KP0", 98},
	83:  {"KEY_KPDOT", 99},
	85:  {"KEY_ZENKAKUHANKAKU", 148},
	86:  {"KEY_102ND", 100},
	87:  {"KEY_F11", 68},
	88:  {"KEY_F12", 69},
	89:  {"KEY_RO", 135},
	90:  {"KEY_KATAKANA", 146},
	91:  {"KEY_HIRAGANA", 147},
	92:  {"KEY_HENKAN", 138},
	93:  {"KEY_KATAKANAHIRAGANA", 136},
	94:  {"KEY_MUHENKAN", 139},
	95:  {"KEY_KPJPCOMMA", 140},
	96:  {"KEY_KPENTER", 88},
	97:  {"KEY_RIGHTCTRL", 228},
	98:  {"KEY_KPSLASH", 84},
	99:  {"KEY_SYSRQ", 70},
	100: {"KEY_RIGHTALT", 230},
	102: {"KEY_HOME", 74},
	103: {"KEY_UP", 82},
	104: {"KEY_PAGEUP", 75},
	105: {"KEY_LEFT", 80},
	106: {"KEY_RIGHT", 79},
	107: {"KEY_END", 77},
	108: {"KEY_DOWN", 81},
	109: {"KEY_PAGEDOWN", 78},
	110: {"KEY_INSERT", 73},
	111: {"KEY_DELETE", 76},
	113: {"KEY_MUTE", 127},
	114: {"KEY_VOLUMEDOWN", 129},
	115: {"KEY_VOLUMEUP", 128},
	116: {"KEY_POWER", 102},
	117: {"KEY_KPEQUAL", 103},
	119: {"KEY_PAUSE", 72},
	121: {"KEY_KPCOMMA", 133},
	122: {"KEY_HANGEUL", 144},
	123: {"KEY_HANJA", 145},
	124: {"KEY_YEN", 137},
	125: {"KEY_LEFTMETA", 227},
	126: {"KEY_RIGHTMETA", 231},
	127: {"KEY_COMPOSE", 101},
	128: {"KEY_STOP", 120},
	129: {"KEY_AGAIN", 121},
	130: {"KEY_PROPS", 118},
	131: {"KEY_UNDO", 122},
	132: {"KEY_FRONT", 119},
	133: {"KEY_COPY", 124},
	134: {"KEY_OPEN", 116},
	135: {"KEY_PASTE", 125},
	136: {"KEY_FIND", 126},
	137: {"KEY_CUT", 123},
	138: {"KEY_HELP", 117},
	140: {"KEY_CALC", 251},
	142: {"KEY_SLEEP", 248},
	150: {"KEY_WWW", 240},
	152: {"KEY_COFFEE", 249},
	158: {"KEY_BACK", 241},
	159: {"KEY_FORWARD", 242},
	161: {"KEY_EJECTCD", 236},
	163: {"KEY_NEXTSONG", 235},
	164: {"KEY_PLAYPAUSE", 232},
	165: {"KEY_PREVIOUSSONG", 234},
	166: {"KEY_STOPCD", 233},
	173: {"KEY_REFRESH", 250},
	176: {"KEY_EDIT", 247},
	177: {"KEY_SCROLLUP", 245},
	178: {"KEY_SCROLLDOWN", 246},
	179: {"KEY_KPLEFTPAREN", 182},
	180: {"KEY_KPRIGHTPAREN", 183},
	183: {"KEY_F13", 104},
	184: {"KEY_F14", 105},
	185: {"KEY_F15", 106},
	186: {"KEY_F16", 107},
	187: {"KEY_F17", 108},
	188: {"KEY_F18", 109},
	189: {"KEY_F19", 110},
	190: {"KEY_F20", 111},
	191: {"KEY_F21", 112},
	192: {"KEY_F22", 113},
	193: {"KEY_F23", 114},
	194: {"KEY_F24", 115},
}

var nameToCode = func() map[string]uint16 {
	m := make(map[string]uint16, len(keyTable))
	for code, e := range keyTable {
		m[e.name] = code
	}
	return m
}()

// KeyName returns the symbolic name of a Linux key code, e.g. "KEY_A".
func KeyName(code uint16) (string, bool) {
	e, ok := keyTable[code]
	return e.name, ok
}

// KeyCode returns the Linux key code for a symbolic name such as "KEY_SCROLLLOCK".
func KeyCode(name string) (uint16, bool) {
	c, ok := nameToCode[name]
	return c, ok
}
