package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Detailer is implemented by domain errors that expose structured data,
// e.g. the current and requested quantities of a stock shortage.
type Detailer interface {
	Details() map[string]any
}

// ErrorHandler renders errors returned by handlers. Domain errors carry their
// own status through apperr.StatusCoder; *echo.HTTPError is passed through.
// Internal errors are logged and their text hidden from the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		body := ErrorBody{RequestID: rid}
		status := http.StatusInternalServerError

		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body.Error = kindForStatus(status)
			if msg, ok := httpErr.Message.(string); ok {
				body.Message = msg
			} else {
				body.Message = http.StatusText(status)
			}
		default:
			status = apperr.Status(err)
			body.Error = apperr.Kind(err)
			body.Message = err.Error()
			var d Detailer
			if errors.As(err, &d) {
				body.Details = d.Details()
			}
			var ve *apperr.ValidationError
			if errors.As(err, &ve) && ve.Field != "" {
				body.Details = map[string]any{"field": ve.Field}
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("request_id", rid).Msg("unhandled error")
			body.Message = "internal server error"
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

// errorStatus is the status ErrorHandler would answer err with.
func errorStatus(err error) int {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return apperr.Status(err)
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		if status >= 500 {
			return "internal_error"
		}
		return http.StatusText(status)
	}
}
