// Package config defines the command line of the btkvm binary.
package config

import (
	"github.com/alecthomas/kong"

	"github.com/Alia5/btkvm/internal/cmd"
)

// Log configures logging for every command.
type Log struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" enum:"trace,debug,info,warn,error" env:"BTKVM_LOG_LEVEL"`
	File    string `help:"Additional log file" env:"BTKVM_LOG_FILE"`
	RawFile string `help:"Hex dump of every report sent to a host" env:"BTKVM_LOG_RAW_FILE"`
}

// CLI is the root command.
type CLI struct {
	Config  string           `help:"Configuration file (JSON, YAML or TOML)" type:"path" env:"BTKVM_CONFIG"`
	Version kong.VersionFlag `help:"Print the version and exit"`
	Log     Log              `embed:"" prefix:"log."`

	Server     cmd.Server        `cmd:"" help:"Run the KVM server"`
	ConfigCmd  cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
	Install    cmd.Install       `cmd:"" help:"Install the server as a systemd service"`
	Uninstall  cmd.Uninstall     `cmd:"" help:"Remove the systemd service"`
	Clients    cmd.Clients       `cmd:"" help:"List clients, active host first"`
	Switch     cmd.Switch        `cmd:"" help:"Make a client the active host"`
	Next       cmd.Next          `cmd:"" help:"Switch to the next connected client"`
	Connect    cmd.Connect       `cmd:"" help:"Connect to a known client"`
	Disconnect cmd.Disconnect    `cmd:"" help:"Disconnect a client"`
	Reorder    cmd.Reorder       `cmd:"" help:"Move a client up or down in the rotation"`
	Remove     cmd.Remove        `cmd:"" help:"Forget and unpair a client"`
	Reload     cmd.Reload        `cmd:"" help:"Reload the hotkey settings"`
	Events     cmd.Events        `cmd:"" help:"Follow host and client changes"`
}
