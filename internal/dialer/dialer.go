// Package dialer opens the outbound connection for a negotiated CONNECT target.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver turns a domain name into IP addresses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type Config struct {
	DialTimeout time.Duration
	// Resolver is used for domain targets; nil means the system resolver.
	Resolver Resolver
}

type directDialer struct {
	cfg Config
}

func New(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DialTimeout)
		defer cancel()
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	addrs := []string{address}
	if d.cfg.Resolver != nil && net.ParseIP(host) == nil {
		ips, err := d.cfg.Resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
		addrs = addrs[:0]
		for _, ip := range ips {
			addrs = append(addrs, net.JoinHostPort(ip, port))
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("resolve %s: %w", host, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true})
		}
	}

	var nd net.Dialer
	var errs []error
	for _, addr := range addrs {
		conn, err := nd.DialContext(ctx, network, addr)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return conn, nil
	}
	return nil, fmt.Errorf("dial %s %s: %w", network, address, errors.Join(errs...))
}
