// Package forwarder sends allowed queries to the single configured upstream
// resolver.
package forwarder

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"advoid/pkg/logging"

	"github.com/miekg/dns"
)

// Forwarder wraps a stub DNS client pointed at one upstream address. Clients
// are pooled rather than locked: a miekg/dns client carries no per-query
// state, so the shared-handle mutex of the usual stub-resolver design is
// unnecessary.
type Forwarder struct {
	upstream string
	timeout  time.Duration
	logger   *logging.Logger

	clientPool sync.Pool
}

// New creates a Forwarder for the given upstream address (":53" is appended
// when no port is present).
func New(upstream string, logger *logging.Logger) *Forwarder {
	if _, _, err := net.SplitHostPort(upstream); err != nil {
		upstream = net.JoinHostPort(upstream, "53")
	}

	f := &Forwarder{
		upstream: upstream,
		timeout:  2 * time.Second,
		logger:   logger,
	}

	f.clientPool.New = func() any {
		return &dns.Client{
			Net:     "udp",
			Timeout: f.timeout,
		}
	}

	logger.Info("Forwarder initialized",
		"upstream", upstream,
		"timeout", f.timeout,
	)

	return f
}

// Forward sends a copy of req to the upstream and returns its response. The
// copy keeps the client's RD bit and EDNS OPT (including the DO bit) intact
// while using a fresh message ID on the upstream leg. Truncated UDP replies
// are retried once over TCP.
func (f *Forwarder) Forward(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	m := req.Copy()
	m.Id = dns.Id()

	client := f.clientPool.Get().(*dns.Client)
	defer f.clientPool.Put(client)

	resp, rtt, err := client.ExchangeContext(ctx, m, f.upstream)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", f.upstream, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("upstream %s: nil response", f.upstream)
	}

	if resp.Truncated {
		f.logger.Debug("Upstream response truncated, retrying over TCP",
			"domain", m.Question[0].Name,
			"upstream", f.upstream,
		)
		tcpClient := &dns.Client{
			Net:     "tcp",
			Timeout: f.timeout,
		}
		resp, rtt, err = tcpClient.ExchangeContext(ctx, m, f.upstream)
		if err != nil {
			return nil, fmt.Errorf("upstream %s (tcp): %w", f.upstream, err)
		}
		if resp == nil {
			return nil, fmt.Errorf("upstream %s (tcp): nil response", f.upstream)
		}
	}

	f.logger.Debug("Upstream query succeeded",
		"domain", m.Question[0].Name,
		"upstream", f.upstream,
		"rtt", rtt,
		"answers", len(resp.Answer),
	)

	return resp, nil
}

// Upstream returns the configured upstream address.
func (f *Forwarder) Upstream() string {
	return f.upstream
}
