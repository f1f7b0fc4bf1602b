package handler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
	apierror "github.com/Alia5/btkvm/internal/server/api/error"
)

// ClientReorder moves a client one slot up or down (payload "up" / "down")
// and returns the new client list.
func ClientReorder(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		addr, err := address(req.Params["address"])
		if err != nil {
			return err
		}
		var up bool
		switch strings.ToLower(strings.TrimSpace(req.Payload)) {
		case "up":
			up = true
		case "down":
		default:
			return apierror.BadRequest(fmt.Sprintf("direction must be up or down, got %q", req.Payload))
		}
		if !known(k, addr) {
			return apierror.NotFound(fmt.Sprintf("%v: %s", kvm.ErrUnknownClient, addr))
		}
		k.ReorderClient(addr, up)
		return writeJSON(res, kvm.ClientsDocument(k.ClientsInfo()))
	}
}

func known(k *kvm.Service, addr string) bool {
	for _, c := range k.ClientsInfo() {
		if c.Address == addr {
			return true
		}
	}
	return false
}
