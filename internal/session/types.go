package session

import (
	"context"
	"io"
	"time"
)

// Bluetooth HID L2CAP channels.
const (
	PSMControl   uint16 = 17
	PSMInterrupt uint16 = 19
)

// State is the connection state of a Session.
type State int32

const (
	NotConnected State = iota
	Connecting
	Connected
	Terminating
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "not connected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Role is the local side's Bluetooth link role towards a peer.
// RoleUnknown is also reported when no baseband link exists.
type Role int

const (
	RoleUnknown Role = iota
	RoleMaster
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	default:
		return "not connected"
	}
}

// Dialer opens an outbound L2CAP channel to addr on psm.
type Dialer interface {
	Dial(ctx context.Context, addr string, psm uint16) (io.WriteCloser, error)
}

// LinkController queries and changes the link role of an ACL connection.
type LinkController interface {
	LinkRole(ctx context.Context, addr string) (Role, error)
	SwitchToMaster(ctx context.Context, addr string) error
}

// NameResolver looks up the human readable name of a paired device.
type NameResolver interface {
	ResolveName(ctx context.Context, addr string) (string, error)
}

// Config holds the timing knobs of a session.
type Config struct {
	SendWait      time.Duration `help:"Maximum wait for a queued report before re-checking the link" default:"2s" env:"BTKVM_SESSION_SEND_WAIT"`
	RoleRetry     time.Duration `help:"Interval between master role switch attempts" default:"2s" env:"BTKVM_SESSION_ROLE_RETRY"`
	KeepAlive     time.Duration `help:"Interval of keep-alive reports used to detect dead links" default:"4s" env:"BTKVM_SESSION_KEEP_ALIVE"`
	NameRetry     time.Duration `help:"Interval between device name lookups until one succeeds" default:"5s" env:"BTKVM_SESSION_NAME_RETRY"`
	QueueCapacity int           `help:"Maximum queued reports per client; the oldest are dropped beyond this" default:"256" env:"BTKVM_SESSION_QUEUE_CAPACITY"`
}

// DefaultConfig mirrors the flag defaults.
func DefaultConfig() Config {
	return Config{
		SendWait:      2 * time.Second,
		RoleRetry:     2 * time.Second,
		KeepAlive:     4 * time.Second,
		NameRetry:     5 * time.Second,
		QueueCapacity: 256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendWait <= 0 {
		c.SendWait = d.SendWait
	}
	if c.RoleRetry <= 0 {
		c.RoleRetry = d.RoleRetry
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.NameRetry <= 0 {
		c.NameRetry = d.NameRetry
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	return c
}
