// Package resolver looks up CONNECT domain targets against an explicit DNS
// server instead of the system resolver.
package resolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver sends A and AAAA queries to a single DNS server.
type Resolver struct {
	server string
	client *dns.Client
}

// New returns a Resolver for server ("host" or "host:port", port 53 if
// omitted). timeout bounds each query; zero uses the dns package default.
func New(server string, timeout time.Duration) *Resolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (r *Resolver) Server() string { return r.server }

// LookupHost returns the IPv4 addresses of host followed by its IPv6 ones.
// IP literals are returned unchanged.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	var (
		addrs   []string
		lastErr error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		in, _, err := r.client.ExchangeContext(ctx, m, r.server)
		if err != nil {
			lastErr = fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], host, err)
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("query %s %s: %s", dns.TypeToString[qtype], host, dns.RcodeToString[in.Rcode])
			continue
		}
		for _, ans := range in.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				addrs = append(addrs, rr.A.String())
			case *dns.AAAA:
				addrs = append(addrs, rr.AAAA.String())
			}
		}
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &net.DNSError{Err: "no such host", Name: host, Server: r.server, IsNotFound: true}
	}
	return addrs, nil
}
