package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	apitypes "github.com/Alia5/btkvm/apitypes"
)

// EventStream reads service events from a long-lived connection.
type EventStream struct {
	conn net.Conn
	r    *bufio.Reader
	stop func() bool
}

// Events opens the events stream. The first event is a snapshot of the
// current rotation. Cancelling ctx closes the stream.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	if c.transport.respond != nil {
		return nil, errors.New("event streams not supported with mock transport")
	}
	conn, err := c.transport.dial(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte("events\x00")); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write stream path: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	s := &EventStream{conn: conn, r: bufio.NewReader(conn)}
	s.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	return s, nil
}

// Next blocks for the next event. A problem document sent instead of an
// event is returned as *apitypes.ApiError.
func (s *EventStream) Next() (apitypes.Event, error) {
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		return apitypes.Event{}, err
	}
	if err := problem(string(line)); err != nil {
		return apitypes.Event{}, err
	}
	var ev apitypes.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return apitypes.Event{}, fmt.Errorf("decode: %w", err)
	}
	return ev, nil
}

// Close ends the stream.
func (s *EventStream) Close() error {
	s.stop()
	return s.conn.Close()
}
