// internal/network/dialer.go
package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialerConfig holds the TCP-level settings shared by outbound API
// connections.
type DialerConfig struct {
	Timeout      time.Duration
	KeepAlive    time.Duration
	ForceNoDelay bool // sets TCP_NODELAY for small, frequent requests
}

// NewDialerConfig returns the default dialer settings.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:      5 * time.Second,
		KeepAlive:    15 * time.Second,
		ForceNoDelay: true,
	}
}

// DialTCPContext establishes a TCP connection with keep-alive probing so
// dead peers are detected instead of stalling a worker. TLS is layered on by
// the HTTP transport, not here.
func DialTCPContext(ctx context.Context, netw, address string, config *DialerConfig) (net.Conn, error) {
	if config == nil {
		config = NewDialerConfig()
	}

	dialer := &net.Dialer{
		Timeout:   config.Timeout,
		KeepAlive: config.KeepAlive,
		// Happy Eyeballs (RFC 8305).
		FallbackDelay: 300 * time.Millisecond,
	}

	conn, err := dialer.DialContext(ctx, netw, address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := configureTCP(tcpConn, config); err != nil {
			tcpConn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func configureTCP(conn *net.TCPConn, config *DialerConfig) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return fmt.Errorf("failed to enable TCP keep-alive: %w", err)
	}
	if config.KeepAlive > 0 {
		if err := conn.SetKeepAlivePeriod(config.KeepAlive); err != nil {
			return fmt.Errorf("failed to set keep-alive period: %w", err)
		}
	}
	if config.ForceNoDelay {
		if err := conn.SetNoDelay(true); err != nil {
			return fmt.Errorf("failed to set TCP NoDelay: %w", err)
		}
	}
	return nil
}
