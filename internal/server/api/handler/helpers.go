package handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Alia5/btkvm/internal/bt"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
	apierror "github.com/Alia5/btkvm/internal/server/api/error"
)

func writeJSON(res *api.Response, v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return apierror.Internal(fmt.Sprintf("failed to marshal response: %v", err))
	}
	res.JSON = string(out)
	return nil
}

// address validates a Bluetooth address taken from a path parameter or payload.
func address(raw string) (string, error) {
	addr, err := bt.NormalizeAddress(raw)
	if err != nil {
		return "", apierror.BadRequest(err.Error())
	}
	return addr, nil
}

// clientError maps service errors to problem responses.
func clientError(err error) error {
	if errors.Is(err, kvm.ErrUnknownClient) {
		return apierror.NotFound(err.Error())
	}
	return apierror.Internal(err.Error())
}
