// Package apierror builds the problem documents the control API answers with.
package apierror

import (
	"errors"
	"net/http"

	"github.com/Alia5/btkvm/apitypes"
)

// New returns a problem with the standard title for status.
func New(status int, detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: status, Title: http.StatusText(status), Detail: detail}
}

func BadRequest(detail string) *apitypes.ApiError   { return New(http.StatusBadRequest, detail) }
func Unauthorized(detail string) *apitypes.ApiError { return New(http.StatusUnauthorized, detail) }
func NotFound(detail string) *apitypes.ApiError     { return New(http.StatusNotFound, detail) }
func Conflict(detail string) *apitypes.ApiError     { return New(http.StatusConflict, detail) }
func Internal(detail string) *apitypes.ApiError     { return New(http.StatusInternalServerError, detail) }

// Wrap returns the problem carried by err, or a 500 holding its message.
func Wrap(err error) *apitypes.ApiError {
	if err == nil {
		return nil
	}
	var p *apitypes.ApiError
	if errors.As(err, &p) {
		return p
	}
	var v apitypes.ApiError
	if errors.As(err, &v) {
		return &v
	}
	return Internal(err.Error())
}
