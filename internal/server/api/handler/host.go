package handler

import (
	"log/slog"

	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
	apierror "github.com/Alia5/btkvm/internal/server/api/error"
)

// HostSwitch makes the client given as payload the active host.
func HostSwitch(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		if req.Payload == "" {
			return apierror.BadRequest("missing address")
		}
		addr, err := address(req.Payload)
		if err != nil {
			return err
		}
		names, err := k.SwitchActiveHost(addr)
		if err != nil {
			return clientError(err)
		}
		return writeJSON(res, namesResponse(names))
	}
}

// HostNext rotates to the next connected client.
func HostNext(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		return writeJSON(res, namesResponse(k.SwitchToNextHost()))
	}
}
