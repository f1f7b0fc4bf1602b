// Package apitypes holds the JSON documents exchanged over the control API.
package apitypes

import (
	"fmt"
)

// ApiError represents an RFC 7807 (problem+json) error response.
type ApiError struct {
	// Status is the HTTP-style status code (e.g., 400, 404, 500)
	Status int `json:"status"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Detail is a human-readable explanation specific to this occurrence
	Detail string `json:"detail"`
}

func (e ApiError) Error() string {
	if e.Status == 0 && e.Title == "" {
		return "unknown error"
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
}

// --

type PingResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

// ClientNamesResponse lists connected client names starting at the active
// host. An unreachable active host is prefixed with "off: ".
type ClientNamesResponse struct {
	Clients []string `json:"clients"`
}

type ClientInfo struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	IsConnected bool   `json:"isConnected"`
	IsHost      bool   `json:"isHost"`
}

type ClientsInfoResponse struct {
	Clients []ClientInfo `json:"clients"`
}

type ClientResponse struct {
	Address string `json:"address"`
}

// KeyboardRequest carries one keyboard state. Modifiers are indexed by HID
// modifier bit, most significant first (index 0 = right meta); Keys holds up
// to six usage codes.
type KeyboardRequest struct {
	Modifiers []bool `json:"modifiers"`
	Keys      []int  `json:"keys"`
}

type KeyboardResponse struct {
	Action string `json:"action"`
}

// MouseRequest carries one relative mouse report. Buttons use the same
// indexing as KeyboardRequest.Modifiers (index 7 = left button).
type MouseRequest struct {
	Buttons []bool `json:"buttons"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Wheel   int    `json:"wheel"`
	HWheel  int    `json:"hWheel"`
}

// Event is one line of the events stream.
type Event struct {
	Kind    string   `json:"kind"`
	Clients []string `json:"clients"`
}
