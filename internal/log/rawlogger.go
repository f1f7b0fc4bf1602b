package log

import (
	"encoding/hex"
	"io"
	"strconv"
	"sync"
	"time"
)

// RawLogger records HID reports exchanged with remote hosts.
type RawLogger interface {
	// Log writes one line per report. in is true for host to keyboard.
	Log(peer string, in bool, data []byte)
}

const rawTimeFormat = "2006/01/02 15:04:05.000"

type rawLogger struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewRaw returns a RawLogger writing to w. A nil writer discards everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

func (r *rawLogger) Log(peer string, in bool, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}
	dir := "K->H"
	if in {
		dir = "H->K"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b := time.Now().AppendFormat(r.buf[:0], rawTimeFormat)
	b = append(b, ' ')
	b = append(b, dir...)
	b = append(b, ' ')
	b = append(b, peer...)
	b = append(b, " report: "...)
	b = strconv.AppendInt(b, int64(len(data)), 10)
	b = append(b, " bytes, hex: "...)
	for i, v := range data {
		if i > 0 {
			b = append(b, ' ')
		}
		b = hex.AppendEncode(b, []byte{v})
	}
	b = append(b, '\n')
	_, _ = r.w.Write(b)
	r.buf = b
}
