package handler

import (
	"log/slog"

	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/internal/server/api"
)

// Ping identifies the server.
func Ping(version string) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		return writeJSON(res, apitypes.PingResponse{Server: "btkvm", Version: version})
	}
}
