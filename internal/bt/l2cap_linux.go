//go:build linux

package bt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Conn is a connected L2CAP SOCK_SEQPACKET channel. Every Write is one packet.
type Conn struct {
	fd   int
	peer string

	once sync.Once
	err  error
}

func (c *Conn) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(c.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("write", err)
		}
		return n, nil
	}
}

func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("read", err)
		}
		return n, nil
	}
}

// Close shuts the channel down and releases the descriptor. Safe to call more
// than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		_ = unix.Shutdown(c.fd, unix.SHUT_RDWR)
		c.err = unix.Close(c.fd)
	})
	return c.err
}

func newSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	return fd, nil
}

// L2CAPDialer opens outbound HID channels.
type L2CAPDialer struct{}

// Dial connects to addr on psm. Cancelling ctx aborts a pending connect.
func (L2CAPDialer) Dial(ctx context.Context, addr string, psm uint16) (io.WriteCloser, error) {
	bdaddr, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	fd, err := newSocket()
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = unix.Shutdown(fd, unix.SHUT_RDWR) })
	err = unix.Connect(fd, &unix.SockaddrL2{PSM: psm, Addr: bdaddr})
	aborted := !stop()
	if err != nil || aborted {
		_ = unix.Close(fd)
		if aborted {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("connect %s psm %d: %w", addr, psm, os.NewSyscallError("connect", err))
	}
	return &Conn{fd: fd, peer: FormatAddress(bdaddr)}, nil
}

// Listener is a bound, listening L2CAP socket.
type Listener struct {
	fd  int
	psm uint16

	once sync.Once
	err  error
}

// Listen binds to psm on every local adapter.
func Listen(psm uint16) (*Listener, error) {
	fd, err := newSocket()
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrL2{PSM: psm}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind psm %d: %w", psm, os.NewSyscallError("bind", err))
	}
	if err := unix.Listen(fd, 5); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}
	return &Listener{fd: fd, psm: psm}, nil
}

// Accept waits up to timeout for a peer and returns the channel together with
// the peer address. It returns an error matching os.ErrDeadlineExceeded when
// none arrived.
func (l *Listener) Accept(timeout time.Duration) (io.WriteCloser, string, error) {
	c, err := l.accept(timeout)
	if err != nil {
		return nil, "", err
	}
	return c, c.peer, nil
}

func (l *Listener) accept(timeout time.Duration) (*Conn, error) {
	fds := []unix.PollFd{{Fd: int32(l.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if errors.Is(err, unix.EINTR) || (err == nil && n == 0) {
		return nil, os.ErrDeadlineExceeded
	}
	if err != nil {
		return nil, os.NewSyscallError("poll", err)
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return nil, fmt.Errorf("psm %d: listener closed", l.psm)
	}

	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, os.ErrDeadlineExceeded
		}
		return nil, os.NewSyscallError("accept", err)
	}
	peer := ""
	if l2, ok := sa.(*unix.SockaddrL2); ok {
		// the kernel hands back the address in wire (little-endian) order
		peer = FormatAddress(reverse(l2.Addr))
	}
	return &Conn{fd: nfd, peer: peer}, nil
}

// Close stops listening.
func (l *Listener) Close() error {
	l.once.Do(func() {
		_ = unix.Shutdown(l.fd, unix.SHUT_RDWR)
		l.err = unix.Close(l.fd)
	})
	return l.err
}
