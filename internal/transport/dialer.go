package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// Options configures a Dialer
type Options struct {
	ConnectTimeout time.Duration
	// RequestsPerSecond paces Dial. Zero or less disables pacing.
	RequestsPerSecond float64
	TLS               bool
	TLSProfile        string
	// SOCKSProxy is a host:port of a SOCKS5 proxy. Empty dials directly.
	SOCKSProxy string
}

// Dialer opens one-shot connections to gopher servers
type Dialer struct {
	timeout time.Duration
	forward proxy.ContextDialer
	limiter *rate.Limiter
	tls     *TLSFingerprinter
}

// NewDialer creates a dialer from options
func NewDialer(opts Options) (*Dialer, error) {
	if opts.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("connect timeout must be positive, got %v", opts.ConnectTimeout)
	}

	base := &net.Dialer{Timeout: opts.ConnectTimeout}
	d := &Dialer{
		timeout: opts.ConnectTimeout,
		forward: base,
	}

	if opts.SOCKSProxy != "" {
		socks, err := proxy.SOCKS5("tcp", opts.SOCKSProxy, nil, base)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		d.forward = cd
	}

	if opts.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	if opts.TLS {
		fp, err := NewTLSFingerprinter(opts.TLSProfile)
		if err != nil {
			return nil, err
		}
		d.tls = fp
	}

	return d, nil
}

// Dial opens a paced connection for a request, wrapped in TLS when
// enabled. Failures are returned as *ConnectError.
func (d *Dialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, &ConnectError{Addr: address(host, port), Err: err}
		}
	}

	conn, err := d.DialProbe(ctx, host, port)
	if err != nil {
		return nil, err
	}

	if d.tls != nil {
		hsCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		tlsConn, err := d.tls.Client(hsCtx, conn, host)
		if err != nil {
			conn.Close()
			return nil, &ConnectError{Addr: address(host, port), Err: err}
		}
		return tlsConn, nil
	}

	return conn, nil
}

// DialProbe opens a plain TCP connection without pacing. It is used for
// liveness checks against servers other than the crawl target.
func (d *Dialer) DialProbe(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := address(host, port)
	if host == "" || port <= 0 || port > 65535 {
		return nil, &ConnectError{Addr: addr, Err: errors.New("invalid address")}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, err := d.forward.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	return conn, nil
}

func address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
