package handler

import (
	"log/slog"

	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
)

// ClientsNames returns the connected clients starting at the active host.
func ClientsNames(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		return writeJSON(res, namesResponse(k.ConnectedClientNames()))
	}
}

func namesResponse(names []string) apitypes.ClientNamesResponse {
	if names == nil {
		names = []string{}
	}
	return apitypes.ClientNamesResponse{Clients: names}
}
