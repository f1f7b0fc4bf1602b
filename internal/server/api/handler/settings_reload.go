package handler

import (
	"log/slog"

	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
	apierror "github.com/Alia5/btkvm/internal/server/api/error"
)

// SettingsReload re-reads the settings file. An invalid file is reported as
// a bad request and the previous hotkeys stay active.
func SettingsReload(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		if err := k.ReloadSettings(); err != nil {
			return apierror.BadRequest(err.Error())
		}
		return nil
	}
}
