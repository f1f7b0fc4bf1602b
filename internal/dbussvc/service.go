// Package dbussvc exposes the KVM service on the system bus as
// org.rpi.kvmservice so existing display and web front ends keep working.
package dbussvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/Alia5/btkvm/hid"
	"github.com/Alia5/btkvm/hotkey"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/registry"
)

const (
	BusName   = "org.rpi.kvmservice"
	Interface = "org.rpi.kvmservice"
	Path      = dbus.ObjectPath("/org/rpi/kvmservice")

	SignalHostChange     = "signal_host_change"
	SignalClientsChange  = "signal_clients_change"
	SignalRestartInfoHub = "signal_restart_info_hub"
)

// KVM is the subset of kvm.Service the bus object calls into.
type KVM interface {
	ConnectedClientNames() []string
	ClientsInfo() []registry.ClientInfo
	ConnectClient(addr string) error
	DisconnectClient(addr string) error
	ReloadSettings() error
	RestartInfoHub()
	SwitchActiveHost(addr string) ([]string, error)
	SwitchToNextHost() []string
	SendKeyboard(modifiers [hid.ModifierCount]bool, keys [hid.MaxKeys]uint8) hotkey.Action
	SendMouse(buttons [hid.ModifierCount]bool, dx, dy, wheel, hwheel int)
	Subscribe(buffer int) (<-chan kvm.Event, func())
}

// Emitter sends signals; *dbus.Conn satisfies it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

// Service owns the exported object and forwards service events as signals.
type Service struct {
	kvm    KVM
	emit   Emitter
	logger *slog.Logger
}

// New creates a Service that emits through e.
func New(k KVM, e Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{kvm: k, emit: e, logger: logger}
}

// Export publishes the object on conn and claims BusName.
func (s *Service) Export(conn *dbus.Conn) error {
	obj := &object{svc: s}
	if err := conn.Export(obj, Path, Interface); err != nil {
		return fmt.Errorf("export %s: %w", Path, err)
	}
	node := &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: introspect.Methods(obj),
				Signals: []introspect.Signal{
					{Name: SignalHostChange, Args: []introspect.Arg{{Name: "client_names", Type: "as"}}},
					{Name: SignalClientsChange, Args: []introspect.Arg{{Name: "client_names", Type: "as"}}},
					{Name: SignalRestartInfoHub},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), Path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("request name %s: already taken", BusName)
	}
	s.logger.Info("D-Bus service registered", "name", BusName, "path", Path)
	return nil
}

const (
	eventBuffer      = 32
	resubscribeDelay = 100 * time.Millisecond
)

// Run forwards service events as signals until ctx is done. The service
// drops subscribers that fall behind; Run then subscribes again and
// announces the current rotation so listeners resync.
func (s *Service) Run(ctx context.Context) {
	resync := false
	for {
		events, cancel := s.kvm.Subscribe(eventBuffer)
		if resync {
			s.signal(kvm.Event{Kind: kvm.EventHostChanged, Names: s.kvm.ConnectedClientNames()})
		}
		stopped := s.forward(ctx, events)
		cancel()
		if stopped {
			return
		}
		s.logger.Warn("D-Bus event subscription dropped, resubscribing")
		resync = true
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// forward emits events until ctx is done (true) or the channel closes (false).
func (s *Service) forward(ctx context.Context, events <-chan kvm.Event) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() != nil
			}
			s.signal(ev)
		}
	}
}

func (s *Service) signal(ev kvm.Event) {
	var err error
	switch ev.Kind {
	case kvm.EventHostChanged:
		err = s.emit.Emit(Path, Interface+"."+SignalHostChange, names(ev.Names))
	case kvm.EventClientsChanged:
		err = s.emit.Emit(Path, Interface+"."+SignalClientsChange, names(ev.Names))
	case kvm.EventRestartInfoHub:
		err = s.emit.Emit(Path, Interface+"."+SignalRestartInfoHub)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("Failed to emit signal", "event", ev.Kind, "error", err)
	}
}

// as must not be nil on the wire
func names(n []string) []string {
	if n == nil {
		return []string{}
	}
	return n
}

// ClientsJSON renders clients as {"clients":[...]}, the same document the
// control API returns for clients/info.
func ClientsJSON(infos []registry.ClientInfo) (string, error) {
	b, err := json.Marshal(kvm.ClientsDocument(infos))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
