package log_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Alia5/btkvm/internal/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   log.LevelTrace,
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, log.ParseLevel(in), "level %q", in)
	}
}

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	r := log.NewRaw(&buf)

	r.Log("AA:BB:CC:DD:EE:FF", false, []byte{0xa1, 0x02, 0x00, 0x0f})
	r.Log("AA:BB:CC:DD:EE:FF", true, []byte{0x01})
	r.Log("AA:BB:CC:DD:EE:FF", false, nil)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "K->H AA:BB:CC:DD:EE:FF report: 4 bytes, hex: a1 02 00 0f")
	assert.Contains(t, lines[1], "H->K AA:BB:CC:DD:EE:FF report: 1 bytes, hex: 01")
}

func TestRawLoggerNilWriter(t *testing.T) {
	assert.NotPanics(t, func() {
		log.NewRaw(nil).Log("x", false, []byte{1, 2, 3})
	})
}
