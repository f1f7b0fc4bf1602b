package api

import "time"

// ServerConfig represents the control API configuration.
type ServerConfig struct {
	Addr        string        `help:"Control API listen address" default:"localhost:3243" env:"BTKVM_API_ADDR"`
	Password    string        `help:"Require clients to authenticate with this password; empty disables the handshake" env:"BTKVM_API_PASSWORD"`
	ReadTimeout time.Duration `help:"Maximum time to wait for a complete request" default:"5s" env:"BTKVM_API_READ_TIMEOUT"`
}
