package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigError reports a required credential or connection setting that is
// missing. It is never retried automatically.
type ConfigError struct {
	Setting string
	Msg     string
}

func (e *ConfigError) Error() string {
	if e.Setting == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Msg)
}

// AuthError reports a missing or wrong sync secret.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	if e.Msg == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Msg
}

// UpstreamError reports a non-success response from the CMS API.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s failed", e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(" with status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	var (
		cfgErr      *ConfigError
		authErr     *AuthError
		upstreamErr *UpstreamError
		validErr    *ValidationError
		notFoundErr *NotFoundError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &validErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &cfgErr), errors.As(err, &upstreamErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
