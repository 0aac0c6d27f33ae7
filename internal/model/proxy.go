// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ForwardRequest is an inbound request to be relayed upstream.
// Path is the escaped request path, prefix included.
type ForwardRequest struct {
	Ctx      context.Context
	Path     string
	RawQuery string
}

// ForwardResponse represents the upstream response to be streamed back.
type ForwardResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
