package resolver

import (
	"context"
	"net"
	"sync"

	"github.com/andreashaberstroh/godns/internal/cache"
	"github.com/andreashaberstroh/godns/internal/query"
	"github.com/andreashaberstroh/godns/internal/rrerrors"
	"github.com/andreashaberstroh/godns/internal/wire"
)

// Resolver resolves DNS questions against a cache backed by a set of
// configured recursive nameservers, per spec.md §4.4.
type Resolver struct {
	engine *query.Engine
	cache  *cache.Cache

	mu        sync.Mutex
	endpoints []*net.UDPAddr
}

// New constructs a Resolver with no nameservers configured. Call
// AddNameserver before issuing any query.
func New(opts ...Option) (*Resolver, error) {
	cfg := newConfig(opts)

	engine, err := query.New(cfg.queryOpts...)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		engine: engine,
		cache:  cache.New(cfg.cacheSize),
	}, nil
}

// AddNameserver registers ip as a recursive nameserver every future
// query fans out to, in addition to any already configured, on the
// standard DNS port (53).
func (r *Resolver) AddNameserver(ip net.IP) {
	r.addEndpoint(query.Endpoint(ip))
}

// addEndpoint registers a full nameserver endpoint (including port),
// for callers that need a non-standard port.
func (r *Resolver) addEndpoint(addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, addr)
}

// Close releases the resolver's network resources. Any in-flight
// queries are aborted.
func (r *Resolver) Close() error {
	return r.engine.Close()
}

func (r *Resolver) currentEndpoints() []*net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*net.UDPAddr, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

func toInternal(q Question) (wire.Question, cache.Question) {
	domain := wire.Canonicalize(q.Domain)
	wq := wire.Question{Domain: domain, Type: q.Type, Class: q.Class}
	cq := cache.Question{Domain: domain, Type: q.Type, Class: q.Class}
	return wq, cq
}

// AsyncResolve resolves q and invokes handler once per record found: a
// cache hit delivers synchronously from the cache, a cache miss fans
// the question out over the network and delivers each record as its
// reply arrives. handler receives (nil, nil) once after the last
// record of a successful network reply, marking completion with no
// further records. It receives (nil, err) once for each configured
// nameserver whose query fails, times out, or is cancelled; with
// several nameservers, one nameserver's error can precede records from
// another. With no cached answer and no nameserver configured, handler
// receives (nil, ErrNoNameservers) once and the same error is returned.
func (r *Resolver) AsyncResolve(ctx context.Context, q Question, handler func(ResourceRecord, error)) error {
	wq, cq := toInternal(q)

	if r.cache.Exists(cq) {
		for _, rr := range r.cache.Get(cq) {
			handler(rr, nil)
		}
		handler(nil, nil)
		return nil
	}

	endpoints := r.currentEndpoints()
	if len(endpoints) == 0 {
		handler(nil, rrerrors.ErrNoNameservers)
		return rrerrors.ErrNoNameservers
	}

	return r.engine.Issue(ctx, wq, endpoints, func(rr wire.ResourceRecord, section query.Section, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		if rr == nil {
			handler(nil, nil)
			return
		}
		// Every section of a successful reply is cached, per spec.md §2,
		// but only the answer section is ever surfaced to the caller.
		r.cache.Reserve(1, cq)
		r.cache.Add(rr, false)
		if section == query.SectionAnswer {
			handler(rr, nil)
		}
	})
}

// Resolve resolves q synchronously, blocking until every record has
// been collected, the query fails, the query times out, or ctx is
// cancelled. A timeout or network failure returns whatever records had
// already arrived alongside the terminal error.
func (r *Resolver) Resolve(ctx context.Context, q Question) ([]ResourceRecord, error) {
	return r.ResolveWithError(ctx, q)
}

// ResolveWithError is the symmetric, fully-implemented counterpart to
// the Boost.DNS dns_resolver_impl::resolve(question, error_code&)
// overload, which the original left unfinished (always returning an
// empty list and discarding the error). Here the terminal error is
// always returned alongside whatever records were collected before it.
func (r *Resolver) ResolveWithError(ctx context.Context, q Question) ([]ResourceRecord, error) {
	var (
		mu      sync.Mutex
		records []ResourceRecord
	)
	done := make(chan error, 1)

	err := r.AsyncResolve(ctx, q, func(rr ResourceRecord, err error) {
		if err != nil {
			select {
			case done <- err:
			default:
			}
			return
		}
		if rr == nil {
			select {
			case done <- nil:
			default:
			}
			return
		}
		mu.Lock()
		records = append(records, rr)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	select {
	case terminal := <-done:
		mu.Lock()
		defer mu.Unlock()
		return records, terminal
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		return records, ctx.Err()
	}
}
