package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Alia5/btkvm/hotkey"
	"github.com/Alia5/btkvm/internal/bt"
	"github.com/Alia5/btkvm/internal/configpaths"
	"github.com/Alia5/btkvm/internal/dbussvc"
	"github.com/Alia5/btkvm/internal/input"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/log"
	"github.com/Alia5/btkvm/internal/registry"
	"github.com/Alia5/btkvm/internal/server/api"
	"github.com/Alia5/btkvm/internal/server/api/auth"
	"github.com/Alia5/btkvm/internal/server/api/handler"
	"github.com/Alia5/btkvm/internal/session"
	"github.com/Alia5/btkvm/internal/settings"
	"github.com/Alia5/btkvm/internal/version"
)

const (
	keyFileName      = "btkvm.key.txt"
	settingsFileName = "settings.yaml"
	orderFileName    = "clients.yaml"
)

// Bluetooth configures the local adapter.
type Bluetooth struct {
	Adapter       string        `help:"HCI device and BlueZ adapter name" default:"hci0" env:"BTKVM_BT_ADAPTER"`
	Name          string        `help:"Advertised device name" default:"BT KVM" env:"BTKVM_BT_NAME"`
	ServiceRecord string        `help:"SDP service record (XML) registered for the HID profile" default:"/etc/btkvm/sdp_record.xml" env:"BTKVM_BT_SERVICE_RECORD"`
	SkipSetup     bool          `help:"Leave the adapter configuration alone" env:"BTKVM_BT_SKIP_SETUP"`
	BusRetry      time.Duration `help:"Retry interval while the system bus is unavailable" default:"5s" env:"BTKVM_BT_BUS_RETRY"`
}

type Server struct {
	ApiServerConfig api.ServerConfig `embed:"" prefix:"api."`
	Bluetooth       Bluetooth        `embed:"" prefix:"bt."`
	Session         session.Config   `embed:"" prefix:"session."`
	Accept          registry.Config  `embed:"" prefix:"accept."`
	Input           input.Config     `embed:"" prefix:"input."`
	SettingsFile    string           `help:"Hotkey settings file (defaults to settings.yaml in the config dir)" env:"BTKVM_SETTINGS_FILE"`
	OrderFile       string           `help:"Client order file (defaults to clients.yaml in the config dir)" env:"BTKVM_ORDER_FILE"`
	NoAuth          bool             `help:"Serve the control API without a password" env:"BTKVM_API_NO_AUTH"`
}

// Run is called by Kong when the server command is executed.
func (s *Server) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, logger, rawLogger)
}

func (s *Server) StartServer(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	ver, err := version.Get()
	if err != nil {
		return err
	}
	logger.Info("Starting btkvm", "version", ver, "adapter", s.Bluetooth.Adapter)

	if s.ApiServerConfig.Password == "" && !s.NoAuth {
		keyFile, err := configpaths.DefaultFile(keyFileName)
		if err != nil {
			return fmt.Errorf("failed to resolve key file path: %w", err)
		}
		if s.ApiServerConfig.Password, err = loadOrCreateKey(keyFile, logger); err != nil {
			return err
		}
	}

	settingsPath, err := defaultPath(s.SettingsFile, settingsFileName)
	if err != nil {
		return err
	}
	st, err := settings.Load(settingsPath)
	if err != nil {
		return err
	}
	bindings, err := st.Bindings()
	if err != nil {
		return err
	}
	orderPath, err := defaultPath(s.OrderFile, orderFileName)
	if err != nil {
		return err
	}
	order, err := registry.LoadOrderStore(orderPath)
	if err != nil {
		return err
	}

	hci := bt.NewHCI(s.Bluetooth.Adapter, logger)
	if !s.Bluetooth.SkipSetup {
		if err := hci.SetupAdapter(ctx, s.Bluetooth.Name); err != nil {
			logger.Warn("Adapter setup incomplete", "error", err)
		}
	}

	dir, err := bt.ConnectDirectory(ctx, s.Bluetooth.Adapter, s.Bluetooth.BusRetry, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer func() { _ = dir.Close() }()

	record, err := os.ReadFile(s.Bluetooth.ServiceRecord)
	if err != nil {
		return fmt.Errorf("read service record: %w", err)
	}
	if err := dir.RegisterProfile(ctx, string(record)); err != nil {
		return err
	}

	newSession := func(addr string) registry.Client {
		sess := session.New(addr, s.Session, session.Options{
			Dialer:    bt.L2CAPDialer{},
			Link:      hci,
			Resolver:  dir,
			Logger:    logger,
			RawLogger: rawLogger,
		})
		go sess.ResolveName(ctx)
		return sess
	}
	reg := registry.New(s.Accept, newSession, order, logger)

	svc := kvm.New(kvm.Options{
		Hosts:        reg,
		Detector:     hotkey.NewDetector(bindings),
		SettingsPath: settingsPath,
		Unpairer:     dir,
		Logger:       logger,
	})
	defer svc.Close()

	var wg sync.WaitGroup
	defer wg.Wait()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := dbussvc.New(svc, dir.Conn(), logger)
	if err := bus.Export(dir.Conn()); err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.Run(runCtx)
	}()

	apiSrv, err := api.New(s.ApiServerConfig, logger)
	if err != nil {
		return err
	}
	handler.Register(apiSrv.Router(), svc, ver)
	if err := apiSrv.Start(); err != nil {
		logger.Error("failed to start API server", "error", err)
		return err
	}
	defer apiSrv.Close()

	if s.Input.Disabled {
		logger.Info("Local input devices disabled")
	} else {
		src := input.NewSource(s.Input, input.NewEvdevOpener(s.Input), svc, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = src.Run(runCtx)
		}()
	}

	if devices, err := dir.KnownDevices(ctx); err != nil {
		logger.Warn("Could not list known devices", "error", err)
	} else {
		reg.ConnectKnown(bt.PairedAddresses(devices))
	}

	ctrlLn, err := bt.Listen(session.PSMControl)
	if err != nil {
		reg.StopAll()
		return err
	}
	intrLn, err := bt.Listen(session.PSMInterrupt)
	if err != nil {
		_ = ctrlLn.Close()
		reg.StopAll()
		return err
	}
	err = reg.Serve(runCtx, ctrlLn, intrLn)
	logger.Info("Shutting down")
	return err
}

// loadOrCreateKey returns the API password stored in path, generating and
// storing a new one when the file does not exist yet.
func loadOrCreateKey(path string, logger *slog.Logger) (string, error) {
	if pwd, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(pwd)), nil
	}
	pwd, err := auth.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate new API password: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create config dir for key file: %w", err)
	}
	if err := os.WriteFile(path, []byte(pwd), 0o600); err != nil {
		return "", fmt.Errorf("failed to write new API password to file: %w", err)
	}
	logger.Info("Generated API server password", "path", path)
	logger.Info("-------------------------------------")
	logger.Info("Your btkvm API password is:")
	logger.Info(pwd)
	logger.Info("-------------------------------------")
	logger.Info("You can change this password at any time by editing the file")
	return pwd, nil
}

func defaultPath(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	p, err := configpaths.DefaultFile(name)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	return p, nil
}
