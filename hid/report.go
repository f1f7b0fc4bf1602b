package hid

const (
	// ReportMarker is the Bluetooth HID transaction header for DATA|INPUT.
	ReportMarker = 0xA1

	KeyboardReportID = 0x01
	MouseReportID    = 0x02

	KeyboardReportSize = 10
	MouseReportSize    = 7

	// MaxKeys is the number of simultaneously reported regular keys.
	MaxKeys = 6
)

// Frame is a packed keyboard state: the modifier byte followed by the six key slots.
// It is the unit the hotkey detector matches on.
type Frame [1 + MaxKeys]uint8

// ReportBuilder produces the wire bytes for one input report.
type ReportBuilder interface {
	BuildReport() []byte
}

// KeyboardReport is a boot-compatible keyboard input report.
type KeyboardReport struct {
	Modifiers uint8
	Keys      [MaxKeys]uint8
}

// Frame returns the report contents in hotkey-frame form.
func (r KeyboardReport) Frame() Frame {
	var f Frame
	f[0] = r.Modifiers
	copy(f[1:], r.Keys[:])
	return f
}

// BuildReport encodes the report.
//
//	Byte 0: 0xA1
//	Byte 1: report ID 1
//	Byte 2: modifiers
//	Byte 3: reserved
//	Bytes 4-9: keys
func (r KeyboardReport) BuildReport() []byte {
	b := make([]byte, KeyboardReportSize)
	b[0] = ReportMarker
	b[1] = KeyboardReportID
	b[2] = r.Modifiers
	b[3] = 0x00
	copy(b[4:], r.Keys[:])
	return b
}

// MouseReport carries relative motion and button state. Deltas are stored
// already clamped, see ClampToByte.
type MouseReport struct {
	Buttons uint8
	DX      uint8
	DY      uint8
	Wheel   uint8
	HWheel  uint8
}

// NewMouseReport builds a MouseReport from button flags and signed deltas.
func NewMouseReport(buttons [ModifierCount]bool, dx, dy, wheel, hwheel int) MouseReport {
	return MouseReport{
		Buttons: PackModifiers(buttons),
		DX:      ClampToByte(dx),
		DY:      ClampToByte(dy),
		Wheel:   ClampToByte(wheel),
		HWheel:  ClampToByte(hwheel),
	}
}

// BuildReport encodes the report as [0xA1, 0x02, buttons, dx, dy, wheel, hwheel].
func (r MouseReport) BuildReport() []byte {
	return []byte{ReportMarker, MouseReportID, r.Buttons, r.DX, r.DY, r.Wheel, r.HWheel}
}

// KeepAliveReport is written periodically to detect dead links.
func KeepAliveReport() []byte {
	return []byte{0, 0, 0, 0}
}
