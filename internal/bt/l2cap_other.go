//go:build !linux

package bt

import (
	"context"
	"errors"
	"io"
	"time"
)

var errUnsupported = errors.New("bluetooth L2CAP sockets are only available on linux")

type L2CAPDialer struct{}

func (L2CAPDialer) Dial(ctx context.Context, addr string, psm uint16) (io.WriteCloser, error) {
	return nil, errUnsupported
}

type Listener struct{}

func Listen(psm uint16) (*Listener, error) { return nil, errUnsupported }

func (l *Listener) Accept(timeout time.Duration) (io.WriteCloser, string, error) {
	return nil, "", errUnsupported
}

func (l *Listener) Close() error { return nil }
