package auth

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// maxFrame bounds a single sealed frame, tag included.
const maxFrame = 1 << 20

var errFrameTooLarge = errors.New("sealed frame too large")

// sealedConn carries length-prefixed ChaCha20-Poly1305 frames. Nonces are
// implicit per-direction counters, so a dropped, replayed or reordered frame
// fails to open.
type sealedConn struct {
	net.Conn

	wmu   sync.Mutex
	seal  cipher.AEAD
	wseq  uint64
	rmu   sync.Mutex
	open  cipher.AEAD
	rseq  uint64
	plain []byte
}

func newSealedConn(conn net.Conn, sendKey, recvKey []byte) (*sealedConn, error) {
	seal, err := chacha20poly1305.New(sendKey)
	if err != nil {
		return nil, err
	}
	open, err := chacha20poly1305.New(recvKey)
	if err != nil {
		return nil, err
	}
	return &sealedConn{Conn: conn, seal: seal, open: open}, nil
}

func counterNonce(seq uint64) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(n[chacha20poly1305.NonceSize-8:], seq)
	return n
}

func (c *sealedConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	written := 0
	for len(p) > 0 {
		chunk := p
		if limit := maxFrame - c.seal.Overhead(); len(chunk) > limit {
			chunk = chunk[:limit]
		}
		frame := make([]byte, 4, 4+len(chunk)+c.seal.Overhead())
		frame = c.seal.Seal(frame, counterNonce(c.wseq), chunk, nil)
		binary.BigEndian.PutUint32(frame[:4], uint32(len(frame)-4))
		c.wseq++
		if _, err := c.Conn.Write(frame); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

func (c *sealedConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.plain) == 0 {
		if err := c.readFrame(); err != nil {
			return 0, err
		}
	}
	n := copy(p, c.plain)
	c.plain = c.plain[n:]
	return n, nil
}

func (c *sealedConn) readFrame() error {
	var hdr [4]byte
	if _, err := io.ReadFull(c.Conn, hdr[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrame {
		return errFrameTooLarge
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(c.Conn, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	plain, err := c.open.Open(frame[:0], counterNonce(c.rseq), frame, nil)
	if err != nil {
		return fmt.Errorf("open frame %d: %w", c.rseq, err)
	}
	c.rseq++
	c.plain = plain
	return nil
}
