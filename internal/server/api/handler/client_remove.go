package handler

import (
	"log/slog"

	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
)

// ClientRemove stops and forgets a client and drops its pairing.
func ClientRemove(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		addr, err := address(req.Params["address"])
		if err != nil {
			return err
		}
		if err := k.RemoveClient(req.Ctx, addr); err != nil {
			return clientError(err)
		}
		logger.Info("Removed client", "addr", addr)
		return writeJSON(res, apitypes.ClientResponse{Address: addr})
	}
}
