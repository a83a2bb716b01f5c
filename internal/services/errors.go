package services

import (
	"errors"
	"fmt"
	"net/http"

	"labreserve-client/internal/api"
)

type ServiceError struct {
	Status  int
	Message string
}

func (e ServiceError) Error() string {
	return e.Message
}

func ErrNotFound(msg string) error {
	return ServiceError{Status: http.StatusNotFound, Message: msg}
}

func ErrBadRequest(msg string) error {
	return ServiceError{Status: http.StatusBadRequest, Message: msg}
}

func ErrConflict(msg string) error {
	return ServiceError{Status: http.StatusConflict, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Status: http.StatusUnauthorized, Message: msg}
}

var (
	ErrViewClosed   = errors.New("view closed")
	ErrNoSelection  = ErrBadRequest("Select a free hour first")
	ErrStaleGrid    = ErrConflict("Availability changed, load the day again before booking")
	ErrSlotDisabled = ErrBadRequest("That hour is not available")
)

func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// UserMessage is the inline text a screen shows for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var svcErr ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return "Unexpected error"
	}
	switch apiErr.Kind {
	case api.KindTransport:
		return "Could not reach the server, try again"
	case api.KindUnauthorized:
		return "Your session expired, log in again"
	case api.KindForbidden:
		return "You are not allowed to do that"
	case api.KindNotFound:
		return "It no longer exists"
	case api.KindConflict, api.KindValidation:
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "The server rejected the request"
	}
	return "The server failed, try again later"
}

// StatusOf maps err to the HTTP status the local view server answers with.
func StatusOf(err error) int {
	var svcErr ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Status
	}
	switch api.KindOf(err) {
	case api.KindTransport:
		return http.StatusBadGateway
	case api.KindUnauthorized:
		return http.StatusUnauthorized
	case api.KindForbidden:
		return http.StatusForbidden
	case api.KindValidation:
		return http.StatusBadRequest
	case api.KindConflict:
		return http.StatusConflict
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindServer:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
