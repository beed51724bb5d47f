// Package cache implements the TTL- and popularity-aware resource
// record cache from spec.md §4.2: a bounded store keyed by query
// identity, evicted first by expiration and then by least-hits,
// never trampling the question currently being served.
//
// Grounded on the multi-index container in
// original_source/boost/net/dns_cache.hpp: one owning slice plus
// secondary hash maps (by query, by domain, by record identity). The
// hit-count and expiry orders are not kept as separate structures: the
// eviction sweeps scan the owning slice.
package cache

import (
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/andreashaberstroh/godns/internal/protocol"
	"github.com/andreashaberstroh/godns/internal/wire"
)

// DefaultMaxEntries is the cache's default capacity, per spec.md §6.
const DefaultMaxEntries = 16

// Question identifies a query the cache can answer: a domain, record
// type, and class tuple, per spec.md §3.
type Question struct {
	Domain string
	Type   protocol.RecordType
	Class  protocol.RecordClass
}

// entry is a cached resource record plus the bookkeeping the eviction
// protocol needs: its three hashes, hit count, retrieval time, and
// permanence, per spec.md §3's CacheEntry.
type entry struct {
	record    wire.ResourceRecord
	rHash     uint64
	qHash     uint64
	dHash     uint64
	hits      uint64
	retrieved time.Time
	expiresAt time.Time
	permanent bool
}

func (e *entry) expired(now time.Time) bool {
	if e.permanent {
		return false
	}
	return now.After(e.expiresAt)
}

// hitRank returns e's position on the least-hits eviction order: an
// actual hit count, or an unreachable sentinel for permanent entries,
// per spec.md §4.2: "permanent entries (hits reported as infinity, so
// never reached by this sweep)".
func (e *entry) hitRank() uint64 {
	if e.permanent {
		return ^uint64(0)
	}
	return e.hits
}

// Snapshot is a read-only view of a cache entry for inspection, per
// spec.md §9's show_cache() hook.
type Snapshot struct {
	Record    wire.ResourceRecord
	Domain    string
	Hits      uint64
	Permanent bool
	ExpiresAt time.Time
}

// Cache is the bounded, multi-indexed resource record store. All
// mutating and read-modify operations hold a single mutex, per
// spec.md §4.2's concurrency note.
type Cache struct {
	mu         sync.Mutex
	entries    []*entry
	byQHash    map[uint64][]int
	byDHash    map[uint64][]int
	byRHash    map[uint64]int
	maxEntries int
	now        func() time.Time
}

// New creates an empty cache with the given capacity. A maxEntries of
// 0 uses DefaultMaxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		byQHash:    make(map[uint64][]int),
		byDHash:    make(map[uint64][]int),
		byRHash:    make(map[uint64]int),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func questionHash(domain string, rtype protocol.RecordType, rclass protocol.RecordClass) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(domain))
	_, _ = h.Write([]byte{byte(rtype >> 8), byte(rtype)})
	_, _ = h.Write([]byte{byte(rclass >> 8), byte(rclass)})
	return h.Sum64()
}

func domainHash(domain string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(domain))
	return h.Sum64()
}

// recordHash extends the question hash with a payload-specific
// component, so distinct records that answer the same question (e.g.
// two different A addresses) are not treated as duplicates, while the
// exact same record inserted twice collides and is rejected, per
// spec.md §3.
func recordHash(rr wire.ResourceRecord) uint64 {
	h := rr.RRHeader()
	qh := questionHash(h.Domain, h.Type, h.Class)

	fh := fnv.New64a()
	_, _ = fh.Write([]byte(strconv.FormatUint(qh, 16)))

	switch r := rr.(type) {
	case *wire.ARecord:
		_, _ = fh.Write(r.Address.To4())
	case *wire.AAAARecord:
		_, _ = fh.Write(r.Address.To16())
	case *wire.NSRecord:
		_, _ = fh.Write([]byte(r.Nameserver))
	case *wire.CNAMERecord:
		_, _ = fh.Write([]byte(r.Canonical))
	case *wire.PTRRecord:
		_, _ = fh.Write([]byte(r.Target))
	case *wire.MXRecord:
		_, _ = fh.Write([]byte(strconv.Itoa(int(r.Preference)) + r.Exchange))
	case *wire.SOARecord:
		_, _ = fh.Write([]byte(strconv.FormatUint(uint64(r.Serial), 10)))
	case *wire.TXTRecord:
		_, _ = fh.Write([]byte(r.Text))
	case *wire.HINFORecord:
		_, _ = fh.Write([]byte(r.CPU + r.OS))
	case *wire.SRVRecord:
		_, _ = fh.Write([]byte(strconv.Itoa(int(r.Port)) + r.Target))
	case *wire.RawRecord:
		_, _ = fh.Write(r.RDATA)
	}
	return fh.Sum64()
}

// Exists reports whether any record answers q.
func (c *Cache) Exists(q Question) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idxs := c.byQHash[questionHash(q.Domain, q.Type, q.Class)]
	return len(idxs) > 0
}

// Get returns all records answering q. Each returned entry's hit
// counter is incremented and its retrieval time refreshed, per
// spec.md §4.2.
func (c *Cache) Get(q Question) []wire.ResourceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	idxs := c.byQHash[questionHash(q.Domain, q.Type, q.Class)]
	out := make([]wire.ResourceRecord, 0, len(idxs))
	now := c.now()
	for _, i := range idxs {
		e := c.entries[i]
		e.hits++
		e.retrieved = now
		out = append(out, e.record)
	}
	return out
}

// Add inserts rr into the cache. If the cache is over its soft
// threshold, the reserve protocol runs first, protecting rr's own
// domain. A duplicate rHash insertion is silently skipped, per spec.md
// §4.2/§3. If the reserve protocol could not free a slot, rr is not
// inserted, so the size never exceeds the maximum.
func (c *Cache) Add(rr wire.ResourceRecord, permanent bool) {
	h := rr.RRHeader()
	c.reserveLocked(1, Question{Domain: h.Domain, Type: h.Type, Class: h.Class})

	c.mu.Lock()
	defer c.mu.Unlock()

	rHash := recordHash(rr)
	if _, dup := c.byRHash[rHash]; dup {
		return
	}
	if len(c.entries) >= c.maxEntries {
		return
	}

	now := c.now()
	e := &entry{
		record:    rr,
		rHash:     rHash,
		qHash:     questionHash(h.Domain, h.Type, h.Class),
		dHash:     domainHash(h.Domain),
		retrieved: now,
		expiresAt: now.Add(time.Duration(h.TTL) * time.Second),
		permanent: permanent,
	}

	idx := len(c.entries)
	c.entries = append(c.entries, e)
	c.byQHash[e.qHash] = append(c.byQHash[e.qHash], idx)
	c.byDHash[e.dHash] = append(c.byDHash[e.dHash], idx)
	c.byRHash[e.rHash] = idx
}

// Reserve evicts entries until at least n slots are free, never
// evicting a record whose domain equals current.Domain or a permanent
// record, per spec.md §4.2. When only such records remain, fewer than
// n slots may be free on return.
func (c *Cache) Reserve(n int, current Question) {
	c.reserveLocked(n, current)
}

// reserveLocked implements the eviction protocol of spec.md §4.2: an
// expired sweep first, then a least-hits sweep, both skipping the
// current question's domain.
func (c *Cache) reserveLocked(n int, current Question) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries)+n <= c.maxEntries {
		return
	}

	now := c.now()
	c.evictExpired(n, current.Domain, now)
	if len(c.entries)+n <= c.maxEntries {
		return
	}

	maxHit := c.maxHitRankLocked(current.Domain)
	for lowMark := uint64(0); lowMark <= maxHit && len(c.entries)+n > c.maxEntries; lowMark++ {
		c.evictAtHitRank(lowMark, current.Domain)
	}
	// Protected and permanent entries stay even if that leaves fewer
	// than n free slots; Add then declines its insert.
}

// maxHitRankLocked returns the highest hitRank among entries this
// sweep is allowed to touch, so the low-hit sweep has a defined upper
// bound ("until the mark exceeds all non-protected entries").
func (c *Cache) maxHitRankLocked(protectDomain string) uint64 {
	var max uint64
	for _, e := range c.entries {
		if e.record.RRHeader().Domain == protectDomain {
			continue
		}
		if r := e.hitRank(); r != ^uint64(0) && r > max {
			max = r
		}
	}
	return max
}

func (c *Cache) evictExpired(n int, protectDomain string, now time.Time) {
	removed := 0
	for i := 0; i < len(c.entries) && removed < n; {
		e := c.entries[i]
		if e.expired(now) && e.record.RRHeader().Domain != protectDomain {
			c.removeAt(i)
			removed++
			continue
		}
		i++
	}
}

// evictAtHitRank removes every non-protected entry whose hitRank
// equals mark. Returns whether anything was removed.
func (c *Cache) evictAtHitRank(mark uint64, protectDomain string) bool {
	removed := false
	for i := 0; i < len(c.entries); {
		e := c.entries[i]
		if e.hitRank() == mark && e.record.RRHeader().Domain != protectDomain {
			c.removeAt(i)
			removed = true
			continue
		}
		i++
	}
	return removed
}

// removeAt deletes the entry at slice index i and repairs every
// secondary index, maintaining invariant I2 of spec.md §3.
func (c *Cache) removeAt(i int) {
	e := c.entries[i]
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	delete(c.byRHash, e.rHash)
	c.byQHash[e.qHash] = removeIdx(c.byQHash[e.qHash], i)
	c.byDHash[e.dHash] = removeIdx(c.byDHash[e.dHash], i)

	// Every index greater than i shifted down by one in c.entries.
	for h, idxs := range c.byQHash {
		c.byQHash[h] = shiftDown(idxs, i)
	}
	for h, idxs := range c.byDHash {
		c.byDHash[h] = shiftDown(idxs, i)
	}
	for h, idx := range c.byRHash {
		if idx > i {
			c.byRHash[h] = idx - 1
		}
	}
}

func removeIdx(idxs []int, target int) []int {
	out := idxs[:0]
	for _, idx := range idxs {
		if idx != target {
			out = append(out, idx)
		}
	}
	return out
}

func shiftDown(idxs []int, removed int) []int {
	for i, idx := range idxs {
		if idx > removed {
			idxs[i] = idx - 1
		}
	}
	return idxs
}

// Size returns the number of entries currently stored.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns every cache entry ordered by domain, for
// inspection, per spec.md §9's show_cache().
func (c *Cache) Snapshot() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Snapshot, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, Snapshot{
			Record:    e.record,
			Domain:    e.record.RRHeader().Domain,
			Hits:      e.hits,
			Permanent: e.permanent,
			ExpiresAt: e.expiresAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}
