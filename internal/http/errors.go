package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind ragerr.Kind) int {
	switch kind {
	case ragerr.KindInvalidInput:
		return http.StatusBadRequest
	case ragerr.KindNotFound:
		return http.StatusNotFound
	case ragerr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes every error returned by a handler as an ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	ctx := c.Request().Context()
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	body := ErrorResponse{RequestID: requestID}
	var status int

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		} else {
			body.Error = http.StatusText(status)
		}
	} else {
		kind := ragerr.KindOf(err)
		status = statusFor(kind)
		body.Kind = kind.String()
		body.Error = err.Error()
		if status == http.StatusInternalServerError {
			// Internal detail stays in the log.
			s.logger.Error(ctx, "request failed", zap.String("kind", kind.String()), zap.Error(err))
			body.Error = http.StatusText(status)
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Warn(ctx, "failed to write error response", zap.Error(err))
	}
}
