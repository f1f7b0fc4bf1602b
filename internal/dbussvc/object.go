package dbussvc

import (
	dbus "github.com/godbus/dbus/v5"

	"github.com/Alia5/btkvm/hid"
)

// object carries the exported bus methods. Method names and argument types
// are the public D-Bus interface.
type object struct {
	svc *Service
}

func failed(err error) *dbus.Error {
	return dbus.MakeFailedError(err)
}

func (o *object) GetConnectedClientNames() ([]string, *dbus.Error) {
	return names(o.svc.kvm.ConnectedClientNames()), nil
}

func (o *object) GetClientsInfo() (string, *dbus.Error) {
	s, err := ClientsJSON(o.svc.kvm.ClientsInfo())
	if err != nil {
		return "", failed(err)
	}
	return s, nil
}

func (o *object) ConnectClient(addr string) *dbus.Error {
	if err := o.svc.kvm.ConnectClient(addr); err != nil {
		o.svc.logger.Info("D-Bus: connect ignored", "addr", addr, "error", err)
	}
	return nil
}

func (o *object) DisconnectClient(addr string) *dbus.Error {
	if err := o.svc.kvm.DisconnectClient(addr); err != nil {
		o.svc.logger.Info("D-Bus: disconnect ignored", "addr", addr, "error", err)
	}
	return nil
}

func (o *object) ReloadSettings() *dbus.Error {
	o.svc.logger.Info("D-Bus: reload settings")
	if err := o.svc.kvm.ReloadSettings(); err != nil {
		o.svc.logger.Error("Reloading settings failed", "error", err)
		return failed(err)
	}
	return nil
}

func (o *object) RestartInfoHub() *dbus.Error {
	o.svc.kvm.RestartInfoHub()
	return nil
}

func (o *object) SwitchActiveHost(addr string) *dbus.Error {
	if _, err := o.svc.kvm.SwitchActiveHost(addr); err != nil {
		o.svc.logger.Info("D-Bus: switch ignored", "addr", addr, "error", err)
	}
	return nil
}

func (o *object) SwitchToNextHost() *dbus.Error {
	o.svc.kvm.SwitchToNextHost()
	return nil
}

func (o *object) SendKeyboardUsbTelegram(modifiers []bool, keys []byte) *dbus.Error {
	var k [hid.MaxKeys]uint8
	copy(k[:], keys)
	o.svc.kvm.SendKeyboard(flags(modifiers), k)
	return nil
}

func (o *object) SendMouseUsbTelegram(buttons []bool, x, y, vWheel, hWheel int32) *dbus.Error {
	o.svc.kvm.SendMouse(flags(buttons), int(x), int(y), int(vWheel), int(hWheel))
	return nil
}

func flags(in []bool) [hid.ModifierCount]bool {
	var out [hid.ModifierCount]bool
	copy(out[:], in)
	return out
}
