package handler

import (
	"log/slog"

	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
)

// ClientsInfo lists every known client in rotation order.
func ClientsInfo(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		return writeJSON(res, kvm.ClientsDocument(k.ClientsInfo()))
	}
}
