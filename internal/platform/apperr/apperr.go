// Package apperr defines the error kinds shared by every handler and the echo
// error handler that turns them into the JSON error envelope
// {"success": false, "error": "...", "message": "..."}.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Kind classifies an error as client-fault or server-fault.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindNotFound
	KindUpstream
	KindPayloadTooLarge
	KindDuplicate
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindDuplicate:
		return "duplicate"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error carries a kind, a client-safe message and, for upstream failures, the
// status code reported by the downstream service.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the response status for the error.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindDuplicate:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Duplicate(msg string) *Error {
	return &Error{Kind: KindDuplicate, Message: msg}
}

func TooLarge(msg string) *Error {
	return &Error{Kind: KindPayloadTooLarge, Message: msg}
}

func Unavailable(msg string) *Error {
	return &Error{Kind: KindUnavailable, Message: msg}
}

// Upstream reports a downstream failure. status is the downstream HTTP status,
// or 0 when no response was received.
func Upstream(status int, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Status: status, Err: err}
}

// Internal wraps an unexpected failure. msg is what the client sees.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindUnknown, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// FromBody classifies a failure while reading a request body. An *Error
// raised by the body limiter is kept, also when echo's binder has wrapped it
// in an *echo.HTTPError; anything else becomes a validation error with msg.
func FromBody(err error, msg string) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Internal != nil {
		err = he.Internal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Validation("%s", msg)
}

// Bind decodes the request into v. Failures are classified by FromBody.
func Bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return FromBody(err, "invalid request body")
	}
	return nil
}

// Response is the JSON error envelope.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler returns an echo.HTTPErrorHandler that renders every error through
// the envelope. Server-fault errors are logged with full detail; unknown
// errors expose their text only when exposeInternal is set.
func Handler(logger zerolog.Logger, exposeInternal bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := resolve(err, exposeInternal)
		rid, _ := c.Get("request_id").(string)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, Response{Success: false, Error: msg, Message: msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
		}
	}
}

func resolve(err error, exposeInternal bool) (int, string) {
	var ae *Error
	if errors.As(err, &ae) {
		status := ae.HTTPStatus()
		if ae.Kind == KindUnknown && exposeInternal && ae.Err != nil {
			return status, ae.Error()
		}
		return status, ae.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		if he.Code == http.StatusNotFound && msg == http.StatusText(http.StatusNotFound) {
			msg = "endpoint not found"
		}
		return he.Code, msg
	}

	if exposeInternal {
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
