package rpc

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
)

const dnsRefreshInterval = 5 * time.Minute

// newCachedTransport builds an HTTP transport that resolves hostnames
// through the shared caching resolver. Endpoints are probed on every
// tick, so re-resolving on each dial would hammer the resolver.
func newCachedTransport(resolver *dnscache.Resolver) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var dialErr error
			for _, ip := range ips {
				var conn net.Conn
				conn, dialErr = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if dialErr == nil {
					return conn, nil
				}
			}
			return nil, dialErr
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// refreshResolver periodically refreshes cached DNS entries until the
// stop channel closes. Stale entries would otherwise pin probes to dead
// addresses after an endpoint moves.
func refreshResolver(resolver *dnscache.Resolver, stop <-chan struct{}) {
	ticker := time.NewTicker(dnsRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			resolver.Refresh(true)
			log.Debug().Msg("DNS cache refreshed")
		}
	}
}
