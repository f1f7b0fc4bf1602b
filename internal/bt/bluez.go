package bt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"
)

const (
	bluezService        = "org.bluez"
	profileManagerIface = "org.bluez.ProfileManager1"
	profileIface        = "org.bluez.Profile1"
	deviceIface         = "org.bluez.Device1"
	adapterIface        = "org.bluez.Adapter1"
	objManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propsIface          = "org.freedesktop.DBus.Properties"

	// HIDUUID is the Human Interface Device service class.
	HIDUUID = "00001124-0000-1000-8000-00805f9b34fb"

	profilePath = dbus.ObjectPath("/org/btkvm/profile")
)

// Device is a device known to BlueZ.
type Device struct {
	Path    dbus.ObjectPath
	Address string
	Name    string
	Paired  bool
}

// Directory is the BlueZ device directory of one adapter.
type Directory struct {
	conn    *dbus.Conn
	adapter string
	logger  *slog.Logger

	mu      sync.Mutex
	cleanup []func()
}

// NewDirectory uses an existing system bus connection.
func NewDirectory(conn *dbus.Conn, adapter string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{conn: conn, adapter: adapter, logger: logger}
}

// ConnectDirectory connects to the system bus, retrying every retry until it
// succeeds or ctx is done.
func ConnectDirectory(ctx context.Context, adapter string, retry time.Duration, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err == nil {
			d := NewDirectory(conn, adapter, logger)
			d.cleanup = append(d.cleanup, func() { _ = conn.Close() })
			return d, nil
		}
		logger.Warn("System bus not available, retrying", "error", err, "retry", retry)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Conn exposes the bus connection for other services on the same bus.
func (d *Directory) Conn() *dbus.Conn { return d.conn }

// AdapterPath is the BlueZ object path of the adapter.
func (d *Directory) AdapterPath() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + d.adapter)
}

// DevicePath maps an address to its BlueZ object path below adapterPath.
func DevicePath(adapterPath dbus.ObjectPath, addr string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapterPath) + "/dev_" + strings.ReplaceAll(strings.ToUpper(addr), ":", "_"))
}

// AddressFromPath extracts the address from a .../dev_XX_XX_XX_XX_XX_XX path.
// It returns "" for paths that are not device paths.
func AddressFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	addr, err := NormalizeAddress(strings.ReplaceAll(s[idx+5:], "_", ":"))
	if err != nil {
		return ""
	}
	return addr
}

// ResolveName returns the remote name BlueZ stored for addr, or its alias
// when no name is known.
func (d *Directory) ResolveName(ctx context.Context, addr string) (string, error) {
	obj := d.conn.Object(bluezService, DevicePath(d.AdapterPath(), addr))
	var firstErr error
	for _, prop := range []string{"Name", "Alias"} {
		var v dbus.Variant
		err := obj.CallWithContext(ctx, propsIface+".Get", 0, deviceIface, prop).Store(&v)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if name, ok := v.Value().(string); ok && name != "" {
			return name, nil
		}
	}
	if firstErr == nil {
		firstErr = errors.New("device has no name")
	}
	return "", fmt.Errorf("resolve name of %s: %w", addr, firstErr)
}

// KnownDevices lists the Device1 objects below the adapter.
func (d *Directory) KnownDevices(ctx context.Context) ([]Device, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := d.conn.Object(bluezService, "/").CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode GetManagedObjects: %w", err)
	}
	return devicesFromObjects(d.AdapterPath(), objs), nil
}

// PairedAddresses returns the addresses of the paired devices in devs.
func PairedAddresses(devs []Device) []string {
	var out []string
	for _, d := range devs {
		if d.Paired {
			out = append(out, d.Address)
		}
	}
	return out
}

func devicesFromObjects(adapterPath dbus.ObjectPath, objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []Device {
	prefix := string(adapterPath) + "/"
	var out []Device
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		dev := Device{Path: path}
		if v, ok := props["Address"]; ok {
			dev.Address, _ = v.Value().(string)
		}
		if dev.Address == "" {
			dev.Address = AddressFromPath(path)
		}
		dev.Address = strings.ToUpper(dev.Address)
		if v, ok := props["Name"]; ok {
			dev.Name, _ = v.Value().(string)
		}
		if v, ok := props["Paired"]; ok {
			dev.Paired, _ = v.Value().(bool)
		}
		if dev.Address != "" {
			out = append(out, dev)
		}
	}
	return out
}

// hidProfile is the Profile1 object handed to BlueZ. The HID channels are
// served on raw L2CAP sockets, so stray connections are closed.
type hidProfile struct {
	logger *slog.Logger
}

func (p *hidProfile) Release() *dbus.Error { return nil }

func (p *hidProfile) Cancel() *dbus.Error { return nil }

func (p *hidProfile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

func (p *hidProfile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.logger.Debug("Ignoring profile connection", "addr", AddressFromPath(dev))
	_ = os.NewFile(uintptr(fd), "profile").Close()
	return nil
}

// RegisterProfile registers the HID service record with BlueZ. The profile is
// unregistered on Close.
func (d *Directory) RegisterProfile(ctx context.Context, serviceRecord string) error {
	if err := d.conn.Export(&hidProfile{logger: d.logger}, profilePath, profileIface); err != nil {
		return fmt.Errorf("export profile: %w", err)
	}
	opts := map[string]dbus.Variant{
		"AutoConnect":   dbus.MakeVariant(true),
		"ServiceRecord": dbus.MakeVariant(serviceRecord),
	}
	pm := d.conn.Object(bluezService, "/org/bluez")
	if call := pm.CallWithContext(ctx, profileManagerIface+".RegisterProfile", 0, profilePath, HIDUUID, opts); call.Err != nil {
		_ = d.conn.Export(nil, profilePath, profileIface)
		return fmt.Errorf("RegisterProfile: %w", call.Err)
	}
	d.logger.Info("Registered HID profile", "uuid", HIDUUID)

	d.mu.Lock()
	d.cleanup = append(d.cleanup, func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, profilePath).Err
		_ = d.conn.Export(nil, profilePath, profileIface)
	})
	d.mu.Unlock()
	return nil
}

// RemoveDevice unpairs addr and drops it from BlueZ.
func (d *Directory) RemoveDevice(ctx context.Context, addr string) error {
	adapter := d.conn.Object(bluezService, d.AdapterPath())
	if call := adapter.CallWithContext(ctx, adapterIface+".RemoveDevice", 0, DevicePath(d.AdapterPath(), addr)); call.Err != nil {
		return fmt.Errorf("RemoveDevice %s: %w", addr, call.Err)
	}
	return nil
}

// Close runs the registered cleanups in reverse order. Safe to call more
// than once.
func (d *Directory) Close() error {
	d.mu.Lock()
	cleanup := d.cleanup
	d.cleanup = nil
	d.mu.Unlock()
	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	return nil
}
