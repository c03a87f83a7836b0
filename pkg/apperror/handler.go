package apperror

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler returns an Echo error handler that renders every error as
// a failure envelope. This is the canonical error handler used by both
// production and test servers.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := Envelope{
			Success: false,
			Message: ErrInternal.Message,
			Code:    ErrInternal.Code,
		}

		var appErr *Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
			code, body = ToHTTPError(appErr)
			if appErr.Code == ErrRateLimited.Code {
				if secs, ok := appErr.Details["retryAfter"].(int); ok && secs > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				}
			}
		case errors.As(err, &he):
			code = he.Code
			switch msg := he.Message.(type) {
			case Envelope:
				body = msg
			case string:
				body.Message = msg
				body.Code = codeForStatus(code)
			}
		}

		// 5xx errors get logged at error level
		if code >= 500 {
			log.Error("request error",
				slog.Int("status", code),
				slog.String("error", err.Error()),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
		} else {
			_ = c.JSON(code, body)
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized.Code
	case http.StatusForbidden:
		return ErrForbidden.Code
	case http.StatusNotFound:
		return ErrNotFound.Code
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return ErrBadRequest.Code
	case http.StatusConflict:
		return ErrIntegrity.Code
	case http.StatusUnprocessableEntity:
		return ErrValidation.Code
	case http.StatusTooManyRequests:
		return ErrRateLimited.Code
	default:
		return ErrInternal.Code
	}
}
