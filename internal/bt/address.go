// Package bt talks to the local Bluetooth stack: raw L2CAP channels, the
// hci command line tools and BlueZ on the system bus.
package bt

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress parses "AA:BB:CC:DD:EE:FF" into bytes in the written order.
func ParseAddress(s string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid bluetooth address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return out, fmt.Errorf("invalid bluetooth address %q", s)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid bluetooth address %q: %w", s, err)
		}
		out[i] = byte(b)
	}
	return out, nil
}

// FormatAddress is the inverse of ParseAddress; output is upper case.
func FormatAddress(b [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

func reverse(b [6]byte) [6]byte {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// NormalizeAddress upper-cases a valid address and rejects anything else.
func NormalizeAddress(s string) (string, error) {
	b, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return FormatAddress(b), nil
}
