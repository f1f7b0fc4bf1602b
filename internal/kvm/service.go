// Package kvm is the control surface shared by the input readers, the D-Bus
// service and the TCP API: it gates keyboard input through the hotkey
// detector, forwards reports to the active host and announces host changes.
package kvm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/hid"
	"github.com/Alia5/btkvm/hotkey"
	"github.com/Alia5/btkvm/internal/registry"
	"github.com/Alia5/btkvm/internal/settings"
)

// Hosts is the registry as seen by the service.
type Hosts interface {
	Send(report []byte)
	SwitchToNextConnectedHost() string
	SwitchActiveHostTo(addr string) bool
	ConnectedClientNames() []string
	ClientsInfo() []registry.ClientInfo
	ConnectClient(addr string) bool
	DisconnectClient(addr string) bool
	Reorder(addr string, up bool) bool
	Remove(addr string) bool
	Subscribe(s registry.Subscriber) (unsubscribe func())
}

// Unpairer removes a device from the local pairing database.
type Unpairer interface {
	RemoveDevice(ctx context.Context, addr string) error
}

// ErrUnknownClient is returned for addresses the registry does not know.
var ErrUnknownClient = errors.New("unknown client")

// Options configures a Service.
type Options struct {
	Hosts        Hosts
	Detector     *hotkey.Detector
	SettingsPath string
	Unpairer     Unpairer
	Logger       *slog.Logger
}

// Service implements the KVM operations.
type Service struct {
	hosts        Hosts
	detector     *hotkey.Detector
	settingsPath string
	unpairer     Unpairer
	logger       *slog.Logger

	events *broadcaster

	mu          sync.Mutex
	unsubscribe func()
}

// New wires a service to o.Hosts and starts listening for client changes.
// A nil detector disables hotkeys.
func New(o Options) *Service {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	detector := o.Detector
	if detector == nil {
		detector = hotkey.NewDetector(nil)
	}
	s := &Service{
		hosts:        o.Hosts,
		detector:     detector,
		settingsPath: o.SettingsPath,
		unpairer:     o.Unpairer,
		logger:       logger,
		events:       newBroadcaster(),
	}
	s.unsubscribe = o.Hosts.Subscribe(s)
	return s
}

// Close detaches from the registry and closes all event subscriptions.
func (s *Service) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	s.events.close()
}

// Subscribe returns a channel of events. The channel is closed when the
// returned cancel func is called, when the service closes, or when the
// subscriber falls more than buffer events behind.
func (s *Service) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

func (s *Service) publish(kind EventKind, names []string) {
	if dropped := s.events.publish(Event{Kind: kind, Names: names}); len(dropped) > 0 {
		s.logger.Warn("Dropped slow event subscribers", "count", len(dropped))
	}
}

// OnClientsChange implements registry.Subscriber.
func (s *Service) OnClientsChange(names []string) {
	s.logger.Debug("Clients changed", "clients", names)
	s.publish(EventClientsChanged, names)
}

// SendKeyboard evaluates the frame against the hotkeys and either runs the
// matched action or forwards the report to the active host. The frame that
// completes a hotkey is not forwarded.
func (s *Service) SendKeyboard(modifiers [hid.ModifierCount]bool, keys [hid.MaxKeys]uint8) hotkey.Action {
	report := hid.KeyboardReport{Modifiers: hid.PackModifiers(modifiers), Keys: keys}
	action := s.detector.Evaluate(report.Frame())
	switch action {
	case hotkey.NextHost:
		names := s.SwitchToNextHost()
		s.logger.Info("Hotkey", "action", action, "host", first(names))
	case hotkey.IndicateHost:
		names := s.hosts.ConnectedClientNames()
		s.logger.Info("Hotkey", "action", action, "host", first(names))
		s.publish(EventHostChanged, names)
	default:
		s.hosts.Send(report.BuildReport())
	}
	return action
}

// SendMouse forwards a mouse report to the active host.
func (s *Service) SendMouse(buttons [hid.ModifierCount]bool, dx, dy, wheel, hwheel int) {
	s.hosts.Send(hid.NewMouseReport(buttons, dx, dy, wheel, hwheel).BuildReport())
}

// SwitchToNextHost advances the active host and announces the new rotation.
func (s *Service) SwitchToNextHost() []string {
	s.hosts.SwitchToNextConnectedHost()
	names := s.hosts.ConnectedClientNames()
	s.publish(EventHostChanged, names)
	return names
}

// SwitchActiveHost selects addr as the active host.
func (s *Service) SwitchActiveHost(addr string) ([]string, error) {
	if !s.hosts.SwitchActiveHostTo(addr) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, addr)
	}
	names := s.hosts.ConnectedClientNames()
	s.logger.Info("Switched active host", "host", first(names))
	s.publish(EventHostChanged, names)
	return names, nil
}

// ConnectedClientNames returns the rotation starting at the active host.
func (s *Service) ConnectedClientNames() []string { return s.hosts.ConnectedClientNames() }

// ClientsInfo returns all known clients in rotation order.
func (s *Service) ClientsInfo() []registry.ClientInfo { return s.hosts.ClientsInfo() }

// ConnectClient dials a known client.
func (s *Service) ConnectClient(addr string) error {
	if !s.hosts.ConnectClient(addr) {
		return fmt.Errorf("%w: %s", ErrUnknownClient, addr)
	}
	return nil
}

// DisconnectClient stops a known client's session.
func (s *Service) DisconnectClient(addr string) error {
	if !s.hosts.DisconnectClient(addr) {
		return fmt.Errorf("%w: %s", ErrUnknownClient, addr)
	}
	return nil
}

// ReorderClient moves a client one position up or down. Moving past either
// end is a no-op.
func (s *Service) ReorderClient(addr string, up bool) {
	s.hosts.Reorder(addr, up)
}

// RemoveClient stops and forgets a client and removes its pairing.
func (s *Service) RemoveClient(ctx context.Context, addr string) error {
	if !s.hosts.Remove(addr) {
		return fmt.Errorf("%w: %s", ErrUnknownClient, addr)
	}
	if s.unpairer == nil {
		return nil
	}
	if err := s.unpairer.RemoveDevice(ctx, addr); err != nil {
		return fmt.Errorf("unpair %s: %w", addr, err)
	}
	return nil
}

// ReloadSettings re-reads the settings file and replaces the hotkeys. On
// error the previous hotkeys stay active.
func (s *Service) ReloadSettings() error {
	st, err := settings.Load(s.settingsPath)
	if err != nil {
		return err
	}
	bindings, err := st.Bindings()
	if err != nil {
		return err
	}
	s.detector.Reload(bindings)
	s.logger.Info("Reloaded settings", "path", s.settingsPath, "hotkeys", len(bindings))
	return nil
}

// RestartInfoHub asks display front ends to restart.
func (s *Service) RestartInfoHub() {
	s.logger.Info("Restart info hub")
	s.publish(EventRestartInfoHub, nil)
}

// ClientsDocument converts registry snapshots to the wire document shared
// by the D-Bus service and the control API.
func ClientsDocument(infos []registry.ClientInfo) apitypes.ClientsInfoResponse {
	out := apitypes.ClientsInfoResponse{Clients: make([]apitypes.ClientInfo, 0, len(infos))}
	for _, i := range infos {
		out.Clients = append(out.Clients, apitypes.ClientInfo{
			Name:        i.Name,
			Address:     i.Address,
			IsConnected: i.Connected,
			IsHost:      i.IsHost,
		})
	}
	return out
}

func first(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
