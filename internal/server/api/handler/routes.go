package handler

import (
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
)

// Register installs every control route on r.
func Register(r *api.Router, k *kvm.Service, version string) {
	r.Register("ping", Ping(version))
	r.Register("clients/names", ClientsNames(k))
	r.Register("clients/info", ClientsInfo(k))
	r.Register("clients/{address}/connect", ClientConnect(k))
	r.Register("clients/{address}/disconnect", ClientDisconnect(k))
	r.Register("clients/{address}/reorder", ClientReorder(k))
	r.Register("clients/{address}/remove", ClientRemove(k))
	r.Register("host/switch", HostSwitch(k))
	r.Register("host/next", HostNext(k))
	r.Register("settings/reload", SettingsReload(k))
	r.Register("input/keyboard", InputKeyboard(k))
	r.Register("input/mouse", InputMouse(k))
	r.RegisterStream("events", Events(k))
}
