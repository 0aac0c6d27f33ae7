// Package server builds the inbound network listener.
package server

import (
	"fmt"
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"

	"binance-proxy-go/internal/config"
)

// proxyHeaderTimeout bounds how long a connection may take to send its PROXY header.
const proxyHeaderTimeout = 10 * time.Second

// Listen opens a TCP listener on the configured address. With proxy_protocol
// enabled, connections are expected to start with a PROXY header (v1 or v2)
// from a load balancer and report the original client as their remote address;
// connections without a header are accepted as-is.
func Listen(cfg *config.ServerConfig) (net.Listener, error) {
	addr := cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	if !cfg.ProxyProtocol {
		return ln, nil
	}
	return &proxyproto.Listener{
		Listener:          ln,
		ReadHeaderTimeout: proxyHeaderTimeout,
	}, nil
}
