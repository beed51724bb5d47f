package resolver

import (
	"time"

	"github.com/andreashaberstroh/godns/internal/cache"
	"github.com/andreashaberstroh/godns/internal/query"
)

type config struct {
	cacheSize int
	queryOpts []query.Option
}

// Option configures a Resolver at construction time, per the
// functional options pattern in querier/options.go.
type Option func(*config)

// WithCacheSize overrides the default record cache capacity.
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithResendInterval overrides the default 2-second retransmit tick
// the underlying query engine uses.
func WithResendInterval(d time.Duration) Option {
	return func(c *config) { c.queryOpts = append(c.queryOpts, query.WithResendInterval(d)) }
}

// WithQueryDeadline overrides the default 30-second overall deadline
// an in-flight query is allowed to live for.
func WithQueryDeadline(d time.Duration) Option {
	return func(c *config) { c.queryOpts = append(c.queryOpts, query.WithQueryDeadline(d)) }
}

// WithOutboundTTL overrides the IP TTL (default 64) the resolver's
// shared socket sets on every outgoing datagram.
func WithOutboundTTL(ttl int) Option {
	return func(c *config) { c.queryOpts = append(c.queryOpts, query.WithOutboundTTL(ttl)) }
}

func newConfig(opts []Option) config {
	cfg := config{cacheSize: cache.DefaultMaxEntries}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
