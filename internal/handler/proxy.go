package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"binance-proxy-go/internal/client"
	"binance-proxy-go/internal/model"
	"binance-proxy-go/internal/service"
)

const (
	errProxyFailed = "proxy request failed"
	errInternal    = "internal server error"
	errInvalidPath = "invalid upstream path"
)

// ProxyHandler forwards API requests to the upstream and streams the response back.
type ProxyHandler struct {
	forwarder *service.Forwarder
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(fwd *service.Forwarder, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: fwd,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the upstream and streams the response back.
// The upstream status is relayed verbatim; the content type is always JSON.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp, err := h.forwarder.Forward(&model.ForwardRequest{
		Ctx:      req.Context(),
		Path:     req.URL.EscapedPath(),
		RawQuery: req.URL.RawQuery,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
	res.WriteHeader(resp.StatusCode)

	// The status line is already out, so a failure mid-stream leaves the
	// client with a truncated body under the upstream status.
	n, err := io.Copy(flushWriter{w: res}, resp.Body)
	if err != nil {
		h.logger.Error("streaming response body",
			"err", service.Redact(err.Error()),
			"path", req.URL.Path,
		)
		return nil
	}

	h.logger.Debug("relayed response",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"size", humanize.Bytes(uint64(n)),
	)
	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", service.Redact(err.Error()),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrUnsafePath) {
		return c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   errInvalidPath,
			Message: err.Error(),
		})
	}

	var te *client.TransportError
	if errors.As(err, &te) {
		return c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   errProxyFailed,
			Message: te.Error(),
		})
	}

	return c.JSON(http.StatusInternalServerError, model.ErrorResponse{
		Error:   errInternal,
		Message: err.Error(),
	})
}

// flushWriter pushes every chunk to the client as soon as it is written.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := http.NewResponseController(f.w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}
