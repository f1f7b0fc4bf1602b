package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apitypes "github.com/Alia5/btkvm/apitypes"
)

// Client provides a high-level interface to the btkvm control API, handling
// request formatting, response parsing, and error handling.
type Client struct{ transport *Transport }

// New constructs a high-level API client using the internal low-level Transport.
// The addr parameter specifies the TCP address (host:port) of the control API.
func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

// NewWithPassword constructs a client that authenticates with the given password.
func NewWithPassword(addr, password string) *Client {
	return &Client{transport: NewTransportWithPassword(addr, password)}
}

// NewWithConfig constructs a client with custom transport timeouts.
func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport constructs a Client using a custom Transport implementation.
// This is primarily useful for testing or when advanced transport configuration is needed.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Ping returns the version and identity of the server.
func (c *Client) Ping() (*apitypes.PingResponse, error) {
	return c.PingCtx(context.Background())
}

// PingCtx is the context-aware version of Ping.
func (c *Client) PingCtx(ctx context.Context) (*apitypes.PingResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "ping", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.PingResponse](raw)
}

// ClientNames lists connected clients starting at the active host.
func (c *Client) ClientNames(ctx context.Context) (*apitypes.ClientNamesResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "clients/names", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ClientNamesResponse](raw)
}

// ClientsInfo lists every known client in rotation order.
func (c *Client) ClientsInfo(ctx context.Context) (*apitypes.ClientsInfoResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "clients/info", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ClientsInfoResponse](raw)
}

func (c *Client) clientCmd(ctx context.Context, addr, verb string) (*apitypes.ClientResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "clients/{address}/"+verb, nil, map[string]string{"address": addr})
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ClientResponse](raw)
}

// Connect asks the server to dial a known client.
func (c *Client) Connect(ctx context.Context, addr string) (*apitypes.ClientResponse, error) {
	return c.clientCmd(ctx, addr, "connect")
}

// Disconnect stops a client's session. The client stays known.
func (c *Client) Disconnect(ctx context.Context, addr string) (*apitypes.ClientResponse, error) {
	return c.clientCmd(ctx, addr, "disconnect")
}

// Remove forgets a client and drops its pairing.
func (c *Client) Remove(ctx context.Context, addr string) (*apitypes.ClientResponse, error) {
	return c.clientCmd(ctx, addr, "remove")
}

// Reorder moves a client one slot up or down and returns the new order.
func (c *Client) Reorder(ctx context.Context, addr string, up bool) (*apitypes.ClientsInfoResponse, error) {
	dir := "down"
	if up {
		dir = "up"
	}
	raw, err := c.transport.DoCtx(ctx, "clients/{address}/reorder", dir, map[string]string{"address": addr})
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ClientsInfoResponse](raw)
}

// SwitchHost makes addr the active host.
func (c *Client) SwitchHost(ctx context.Context, addr string) (*apitypes.ClientNamesResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "host/switch", addr, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ClientNamesResponse](raw)
}

// NextHost rotates to the next connected client.
func (c *Client) NextHost(ctx context.Context) (*apitypes.ClientNamesResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "host/next", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.ClientNamesResponse](raw)
}

// ReloadSettings makes the server re-read its settings file.
func (c *Client) ReloadSettings(ctx context.Context) error {
	raw, err := c.transport.DoCtx(ctx, "settings/reload", nil, nil)
	if err != nil {
		return err
	}
	return parseEmpty(raw)
}

// SendKeyboard injects one keyboard state.
func (c *Client) SendKeyboard(ctx context.Context, req apitypes.KeyboardRequest) (*apitypes.KeyboardResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "input/keyboard", req, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.KeyboardResponse](raw)
}

// SendMouse injects one mouse report.
func (c *Client) SendMouse(ctx context.Context, req apitypes.MouseRequest) error {
	raw, err := c.transport.DoCtx(ctx, "input/mouse", req, nil)
	if err != nil {
		return err
	}
	return parseEmpty(raw)
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	if err := problem(data); err != nil {
		return nil, err
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}

// parseEmpty accepts the empty success line of commands without a result.
func parseEmpty(data string) error {
	if strings.TrimSpace(data) == "" {
		return nil
	}
	if err := problem(data); err != nil {
		return err
	}
	return fmt.Errorf("unexpected response: %s", data)
}

func problem(data string) error {
	var p apitypes.ApiError
	if err := json.Unmarshal([]byte(data), &p); err == nil && (p.Status != 0 || p.Title != "") {
		return &p
	}
	return nil
}
