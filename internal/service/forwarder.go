// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"binance-proxy-go/internal/config"
	"binance-proxy-go/internal/model"
)

var (
	// ErrPrefixMismatch is returned when a request reaches the forwarder
	// without the configured prefix.
	ErrPrefixMismatch = errors.New("request path does not start with the proxy prefix")

	// ErrUnsafePath is returned when the rewritten path contains a dot-segment.
	ErrUnsafePath = errors.New("rewritten path contains a dot-segment")
)

// Upstream performs the outbound call. *client.UpstreamClient satisfies it.
type Upstream interface {
	Get(ctx context.Context, target string, header http.Header) (*model.ForwardResponse, error)
}

// Forwarder rewrites inbound paths onto the upstream base URL and relays the call.
type Forwarder struct {
	upstream         Upstream
	baseURL          string
	prefix           string
	allowDotSegments bool
	header           http.Header
	logger           *slog.Logger
}

// NewForwarder creates a Forwarder from the loaded configuration.
func NewForwarder(up Upstream, cfg *config.Config, logger *slog.Logger) *Forwarder {
	header := make(http.Header)
	header.Set("User-Agent", cfg.Upstream.UserAgent)
	header.Set("Accept", "application/json")

	return &Forwarder{
		upstream:         up,
		baseURL:          strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		prefix:           cfg.Proxy.Prefix,
		allowDotSegments: cfg.Proxy.AllowDotSegments,
		header:           header,
		logger:           logger.With("component", "forwarder"),
	}
}

// Forward sends one GET upstream for fr and returns the response.
// The caller is responsible for closing the response body.
func (f *Forwarder) Forward(fr *model.ForwardRequest) (*model.ForwardResponse, error) {
	target, err := f.UpstreamURL(fr.Path, fr.RawQuery)
	if err != nil {
		return nil, err
	}

	f.logger.Info("forwarding request", "target", Redact(target))

	// Each request gets its own header map; the transport may add to it.
	resp, err := f.upstream.Get(fr.Ctx, target, f.header.Clone())
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	return resp, nil
}

// UpstreamURL derives the outbound URL: the base URL followed by the escaped
// inbound path with the prefix removed, plus the raw query when present.
func (f *Forwarder) UpstreamURL(escapedPath, rawQuery string) (string, error) {
	rest, ok := strings.CutPrefix(escapedPath, f.prefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPrefixMismatch, escapedPath)
	}
	if rest != "" && rest[0] != '/' {
		// "/apifoo" shares the prefix text but not the path segment.
		return "", fmt.Errorf("%w: %q", ErrPrefixMismatch, escapedPath)
	}
	if !f.allowDotSegments && hasDotSegment(rest) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rest)
	}

	target := f.baseURL + rest
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target, nil
}

// hasDotSegment reports whether any segment of an escaped path is "..",
// also matching percent-encoded dots and backslash separators.
func hasDotSegment(escapedPath string) bool {
	p := strings.ToLower(escapedPath)
	p = strings.ReplaceAll(p, "%2e", ".")
	p = strings.ReplaceAll(p, "%2f", "/")
	p = strings.ReplaceAll(p, "%5c", "/")
	p = strings.ReplaceAll(p, `\`, "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
