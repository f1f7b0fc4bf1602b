package handler

import (
	"log/slog"

	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
)

// ClientConnect dials a known client. The call returns once the session is
// started, not when the link is up.
func ClientConnect(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		addr, err := address(req.Params["address"])
		if err != nil {
			return err
		}
		if err := k.ConnectClient(addr); err != nil {
			return clientError(err)
		}
		return writeJSON(res, apitypes.ClientResponse{Address: addr})
	}
}

// ClientDisconnect stops a known client's session.
func ClientDisconnect(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		addr, err := address(req.Params["address"])
		if err != nil {
			return err
		}
		if err := k.DisconnectClient(addr); err != nil {
			return clientError(err)
		}
		return writeJSON(res, apitypes.ClientResponse{Address: addr})
	}
}
