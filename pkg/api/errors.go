package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/adapters"
	"github.com/codeready-toolchain/relay/pkg/engine"
	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/store"
	"github.com/codeready-toolchain/relay/pkg/webhook"
)

// ErrorBody is the uniform error response shape.
type ErrorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Path      string `json:"path,omitempty"`
}

// renderError maps component errors onto HTTP statuses and the uniform
// error body. Unrecognized errors become opaque 500s.
func renderError(c *echo.Context, err error) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, &ErrorBody{
			ErrorKind: "validation",
			Message:   verr.Message,
			Path:      verr.Path,
		})
	}
	if errors.Is(err, security.ErrUnsafeInput) {
		return c.JSON(http.StatusBadRequest, &ErrorBody{
			ErrorKind: "unsafe_input",
			Message:   err.Error(),
		})
	}
	if errors.Is(err, security.ErrPermissionDenied) {
		return c.JSON(http.StatusForbidden, &ErrorBody{
			ErrorKind: "permission_denied",
			Message:   err.Error(),
		})
	}
	if errors.Is(err, security.ErrApprovalRequired) {
		return c.JSON(http.StatusForbidden, &ErrorBody{
			ErrorKind: "approval_required",
			Message:   err.Error(),
		})
	}
	if errors.Is(err, security.ErrRateLimited) {
		return c.JSON(http.StatusTooManyRequests, &ErrorBody{
			ErrorKind: "rate_limited",
			Message:   err.Error(),
		})
	}
	if errors.Is(err, webhook.ErrBackpressure) {
		c.Response().Header().Set("Retry-After", strconv.Itoa(5))
		return c.JSON(http.StatusServiceUnavailable, &ErrorBody{
			ErrorKind: "backpressure",
			Message:   err.Error(),
		})
	}
	if errors.Is(err, adapters.ErrAdapterUnavailable) {
		return c.JSON(http.StatusBadGateway, &ErrorBody{
			ErrorKind: "adapter_unavailable",
			Message:   err.Error(),
		})
	}
	if errors.Is(err, store.ErrConflict) {
		return c.JSON(http.StatusConflict, &ErrorBody{
			ErrorKind: "conflict",
			Message:   err.Error(),
		})
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, engine.ErrNotFound) ||
		errors.Is(err, engine.ErrUnknownAction) {
		return c.JSON(http.StatusNotFound, &ErrorBody{
			ErrorKind: "not_found",
			Message:   err.Error(),
		})
	}

	slog.Error("Unexpected handler error", "error", err)
	return c.JSON(http.StatusInternalServerError, &ErrorBody{
		ErrorKind: "internal",
		Message:   "internal server error",
	})
}

// notFound is a shorthand for handler-level 404s that carry no wrapped error.
func notFound(c *echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, &ErrorBody{
		ErrorKind: "not_found",
		Message:   message,
	})
}

// badRequest is a shorthand for malformed request bodies.
func badRequest(c *echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, &ErrorBody{
		ErrorKind: "validation",
		Message:   message,
	})
}

// unavailable reports a component that is not wired in this deployment.
func unavailable(c *echo.Context, component string) error {
	return c.JSON(http.StatusServiceUnavailable, &ErrorBody{
		ErrorKind: "unavailable",
		Message:   component + " is not available",
	})
}
