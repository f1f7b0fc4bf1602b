package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Alia5/btkvm/apiclient"
	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/internal/configpaths"
)

// APIFlags selects the control API a client command talks to.
type APIFlags struct {
	Addr     string        `help:"Control API address" default:"localhost:3243" env:"BTKVM_API_ADDR"`
	Password string        `help:"Control API password; read from the key file or prompted for when empty" env:"BTKVM_API_PASSWORD"`
	NoAuth   bool          `help:"Connect without a password" env:"BTKVM_API_NO_AUTH"`
	Timeout  time.Duration `help:"Request timeout" default:"5s" env:"BTKVM_API_TIMEOUT"`
}

func (f *APIFlags) client() (*apiclient.Client, error) {
	pwd, err := f.password()
	if err != nil {
		return nil, err
	}
	return apiclient.NewWithConfig(f.Addr, &apiclient.Config{
		DialTimeout:  f.Timeout,
		ReadTimeout:  f.Timeout,
		WriteTimeout: f.Timeout,
		Password:     pwd,
	}), nil
}

func (f *APIFlags) password() (string, error) {
	if f.NoAuth {
		return "", nil
	}
	if f.Password != "" {
		return f.Password, nil
	}
	if keyFile, err := configpaths.DefaultFile(keyFileName); err == nil {
		if pwd, err := os.ReadFile(keyFile); err == nil {
			return strings.TrimSpace(string(pwd)), nil
		}
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	_, _ = fmt.Fprint(os.Stderr, "API password: ")
	pwd, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(pwd)), nil
}

// do runs fn against the configured API until it returns or the process
// is interrupted.
func (f *APIFlags) do(fn func(ctx context.Context, c *apiclient.Client) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c, err := f.client()
	if err != nil {
		return err
	}
	return fn(ctx, c)
}

// Clients lists the clients.
type Clients struct {
	APIFlags `embed:""`
	Info     bool `help:"List every known client with its address and state"`
}

func (c *Clients) Run() error {
	return c.do(func(ctx context.Context, api *apiclient.Client) error { return c.exec(ctx, api, os.Stdout) })
}

func (c *Clients) exec(ctx context.Context, api *apiclient.Client, w io.Writer) error {
	if !c.Info {
		res, err := api.ClientNames(ctx)
		if err != nil {
			return err
		}
		printNames(w, res.Clients)
		return nil
	}
	res, err := api.ClientsInfo(ctx)
	if err != nil {
		return err
	}
	printInfo(w, res.Clients)
	return nil
}

// Switch makes a client the active host.
type Switch struct {
	APIFlags `embed:""`
	Address  string `arg:"" help:"Bluetooth address of the client"`
}

func (c *Switch) Run() error {
	return c.do(func(ctx context.Context, api *apiclient.Client) error { return c.exec(ctx, api, os.Stdout) })
}

func (c *Switch) exec(ctx context.Context, api *apiclient.Client, w io.Writer) error {
	res, err := api.SwitchHost(ctx, c.Address)
	if err != nil {
		return err
	}
	printNames(w, res.Clients)
	return nil
}

// Next rotates to the next connected client.
type Next struct {
	APIFlags `embed:""`
}

func (c *Next) Run() error {
	return c.do(func(ctx context.Context, api *apiclient.Client) error { return c.exec(ctx, api, os.Stdout) })
}

func (c *Next) exec(ctx context.Context, api *apiclient.Client, w io.Writer) error {
	res, err := api.NextHost(ctx)
	if err != nil {
		return err
	}
	printNames(w, res.Clients)
	return nil
}

// Connect dials a known client.
type Connect struct {
	APIFlags `embed:""`
	Address  string `arg:"" help:"Bluetooth address of the client"`
}

func (c *Connect) Run() error { return c.do(clientAction("connect", c.Address, os.Stdout)) }

// Disconnect stops a client's session. The client stays known.
type Disconnect struct {
	APIFlags `embed:""`
	Address  string `arg:"" help:"Bluetooth address of the client"`
}

func (c *Disconnect) Run() error { return c.do(clientAction("disconnect", c.Address, os.Stdout)) }

// Remove forgets a client and unpairs it.
type Remove struct {
	APIFlags `embed:""`
	Address  string `arg:"" help:"Bluetooth address of the client"`
}

func (c *Remove) Run() error { return c.do(clientAction("remove", c.Address, os.Stdout)) }

func clientAction(verb, addr string, w io.Writer) func(ctx context.Context, api *apiclient.Client) error {
	return func(ctx context.Context, api *apiclient.Client) error {
		var (
			res *apitypes.ClientResponse
			err error
		)
		switch verb {
		case "connect":
			res, err = api.Connect(ctx, addr)
		case "disconnect":
			res, err = api.Disconnect(ctx, addr)
		case "remove":
			res, err = api.Remove(ctx, addr)
		default:
			return fmt.Errorf("unknown client action %q", verb)
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", verb, res.Address)
		return nil
	}
}

// Reorder moves a client one slot in the rotation.
type Reorder struct {
	APIFlags  `embed:""`
	Address   string `arg:"" help:"Bluetooth address of the client"`
	Direction string `arg:"" enum:"up,down" help:"Direction to move the client (up, down)"`
}

func (c *Reorder) Run() error {
	return c.do(func(ctx context.Context, api *apiclient.Client) error { return c.exec(ctx, api, os.Stdout) })
}

func (c *Reorder) exec(ctx context.Context, api *apiclient.Client, w io.Writer) error {
	res, err := api.Reorder(ctx, c.Address, c.Direction == "up")
	if err != nil {
		return err
	}
	printInfo(w, res.Clients)
	return nil
}

// Reload makes the server re-read its hotkey settings.
type Reload struct {
	APIFlags `embed:""`
}

func (c *Reload) Run() error {
	return c.do(func(ctx context.Context, api *apiclient.Client) error {
		if err := api.ReloadSettings(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, "settings reloaded")
		return nil
	})
}

// Events follows host and client changes until interrupted.
type Events struct {
	APIFlags `embed:""`
}

func (c *Events) Run() error {
	return c.do(func(ctx context.Context, api *apiclient.Client) error {
		stream, err := api.Events(ctx)
		if err != nil {
			return err
		}
		defer stream.Close()
		return follow(ctx, stream, os.Stdout)
	})
}

type eventSource interface {
	Next() (apitypes.Event, error)
}

func follow(ctx context.Context, s eventSource, w io.Writer) error {
	for {
		ev, err := s.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", ev.Kind, strings.Join(ev.Clients, ", "))
	}
}

func printNames(w io.Writer, names []string) {
	for i, n := range names {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", marker, n)
	}
}

func printInfo(w io.Writer, clients []apitypes.ClientInfo) {
	for _, c := range clients {
		state := "offline"
		if c.IsConnected {
			state = "connected"
		}
		marker := " "
		if c.IsHost {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s %-17s  %-9s  %s\n", marker, c.Address, state, c.Name)
	}
}
