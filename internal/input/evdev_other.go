//go:build !linux

package input

import "errors"

// EvdevOpener is only available on Linux.
type EvdevOpener struct{}

func NewEvdevOpener(Config) *EvdevOpener { return &EvdevOpener{} }

func (o *EvdevOpener) Open(func(string) bool) ([]string, []Device, error) {
	return nil, nil, errors.New("evdev input is only supported on linux")
}
