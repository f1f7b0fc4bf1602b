package auth

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/Alia5/btkvm/apitypes"
	apierror "github.com/Alia5/btkvm/internal/server/api/error"
)

// Wire layout:
//
//	client: magic | client nonce | HMAC-SHA256(key, proofLabel | client nonce)
//	server: accepted | server nonce, or a problem JSON line followed by close
const (
	magic      = "BTKVM\x01"
	accepted   = "OK\x00"
	nonceLen   = 32
	proofLabel = "btkvm/proof/1"
)

// Requested reports whether the peer opened with a handshake. It only peeks,
// so r still holds everything the peer sent.
func Requested(r *bufio.Reader) (bool, error) {
	b, err := r.Peek(len(magic))
	if err != nil {
		return false, err
	}
	return string(b) == magic, nil
}

func proof(key, clientNonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(proofLabel))
	mac.Write(clientNonce)
	return mac.Sum(nil)
}

func newNonce() ([]byte, error) {
	n := make([]byte, nonceLen)
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return n, nil
}

// Client proves knowledge of key to the server on conn and returns the sealed
// connection. A rejected password comes back as *apitypes.ApiError.
func Client(conn net.Conn, key []byte) (net.Conn, error) {
	if len(key) == 0 {
		return nil, errors.New("handshake: missing key")
	}
	clientNonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	hello := make([]byte, 0, len(magic)+nonceLen+sha256.Size)
	hello = append(hello, magic...)
	hello = append(hello, clientNonce...)
	hello = append(hello, proof(key, clientNonce)...)
	if _, err := conn.Write(hello); err != nil {
		return nil, fmt.Errorf("write handshake: %w", err)
	}

	status := make([]byte, len(accepted))
	if _, err := io.ReadFull(conn, status); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, apierror.Unauthorized("server closed the connection during the handshake")
		}
		return nil, fmt.Errorf("read handshake reply: %w", err)
	}
	if string(status) != accepted {
		return nil, rejection(status, conn)
	}
	serverNonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(conn, serverNonce); err != nil {
		return nil, fmt.Errorf("read server nonce: %w", err)
	}

	toServer, toClient := directionKeys(key, clientNonce, serverNonce)
	sealed, err := newSealedConn(conn, toServer, toClient)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// rejection decodes the problem line a server sends instead of accepting.
func rejection(head []byte, r io.Reader) error {
	rest, _ := io.ReadAll(io.LimitReader(r, 4096))
	line := bytes.TrimSpace(append(head, rest...))
	var ae apitypes.ApiError
	if err := json.Unmarshal(line, &ae); err == nil && ae.Status != 0 {
		return &ae
	}
	return fmt.Errorf("unexpected handshake reply %q", line)
}

// Server checks the client hello buffered in r and answers on conn. r must be
// the reader Requested peeked from. The returned connection is sealed; a bad
// proof yields a 401 the caller should send back before closing.
func Server(r *bufio.Reader, conn net.Conn, key []byte) (net.Conn, error) {
	if len(key) == 0 {
		return nil, errors.New("handshake: missing key")
	}
	hello := make([]byte, len(magic)+nonceLen+sha256.Size)
	if _, err := io.ReadFull(r, hello); err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	if string(hello[:len(magic)]) != magic {
		return nil, apierror.Unauthorized("authentication required")
	}
	clientNonce := hello[len(magic) : len(magic)+nonceLen]
	if !hmac.Equal(hello[len(magic)+nonceLen:], proof(key, clientNonce)) {
		return nil, apierror.Unauthorized("invalid password")
	}
	// The client waits for the reply, so anything past the hello is a
	// protocol violation.
	if r.Buffered() > 0 {
		return nil, apierror.BadRequest("unexpected data after handshake")
	}

	serverNonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(append([]byte(accepted), serverNonce...)); err != nil {
		return nil, fmt.Errorf("write handshake reply: %w", err)
	}
	toServer, toClient := directionKeys(key, clientNonce, serverNonce)
	sealed, err := newSealedConn(conn, toClient, toServer)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}
