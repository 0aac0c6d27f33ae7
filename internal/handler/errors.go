package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"binance-proxy-go/internal/model"
)

// NewErrorHandler returns an echo.HTTPErrorHandler that renders every error
// (unknown routes, wrong methods, limits, recovered panics) as an
// ErrorResponse JSON body.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := model.ErrorResponse{Error: errInternal, Message: err.Error()}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			body.Error = strings.ToLower(http.StatusText(code))
			body.Message = fmt.Sprint(he.Message)
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"err", err,
				"path", c.Request().URL.Path,
				"status", code,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, body)
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}
