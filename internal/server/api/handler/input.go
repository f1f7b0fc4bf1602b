package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/hid"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
	apierror "github.com/Alia5/btkvm/internal/server/api/error"
)

// InputKeyboard injects one keyboard state as if it came from a local
// keyboard, hotkeys included. The response names the triggered action.
func InputKeyboard(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		var in apitypes.KeyboardRequest
		if err := json.Unmarshal([]byte(req.Payload), &in); err != nil {
			return apierror.BadRequest(fmt.Sprintf("invalid JSON payload: %v", err))
		}
		mods, err := flags(in.Modifiers, "modifiers")
		if err != nil {
			return err
		}
		if len(in.Keys) > hid.MaxKeys {
			return apierror.BadRequest(fmt.Sprintf("at most %d keys, got %d", hid.MaxKeys, len(in.Keys)))
		}
		var keys [hid.MaxKeys]uint8
		for i, v := range in.Keys {
			if v < 0 || v > 0xFF {
				return apierror.BadRequest(fmt.Sprintf("key %d out of range: %d", i, v))
			}
			keys[i] = uint8(v)
		}
		action := k.SendKeyboard(mods, keys)
		return writeJSON(res, apitypes.KeyboardResponse{Action: action.String()})
	}
}

// InputMouse injects one relative mouse report.
func InputMouse(k *kvm.Service) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		var in apitypes.MouseRequest
		if err := json.Unmarshal([]byte(req.Payload), &in); err != nil {
			return apierror.BadRequest(fmt.Sprintf("invalid JSON payload: %v", err))
		}
		buttons, err := flags(in.Buttons, "buttons")
		if err != nil {
			return err
		}
		k.SendMouse(buttons, in.X, in.Y, in.Wheel, in.HWheel)
		return nil
	}
}

func flags(in []bool, field string) ([hid.ModifierCount]bool, error) {
	var out [hid.ModifierCount]bool
	if len(in) > hid.ModifierCount {
		return out, apierror.BadRequest(fmt.Sprintf("at most %d %s, got %d", hid.ModifierCount, field, len(in)))
	}
	copy(out[:], in)
	return out, nil
}
