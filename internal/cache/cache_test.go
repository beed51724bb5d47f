package cache

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreashaberstroh/godns/internal/protocol"
	"github.com/andreashaberstroh/godns/internal/wire"
)

func aRecord(domain string, ttl uint32, ip net.IP) *wire.ARecord {
	return &wire.ARecord{
		Header:  wire.Header{Domain: domain, Type: protocol.TypeA, Class: protocol.ClassIN, TTL: ttl},
		Address: ip,
	}
}

func question(domain string) Question {
	return Question{Domain: domain, Type: protocol.TypeA, Class: protocol.ClassIN}
}

// P2: cache hit idempotence.
func TestGet_IncrementsHitsAndReturnsRecord(t *testing.T) {
	c := New(16)
	rr := aRecord("example.com.", 3600, net.IPv4(1, 2, 3, 4))
	c.Add(rr, false)

	got := c.Get(question("example.com."))
	require.Len(t, got, 1)
	require.Equal(t, rr, got[0])

	snap := c.Snapshot()
	require.Equal(t, uint64(1), snap[0].Hits)

	c.Get(question("example.com."))
	snap = c.Snapshot()
	require.Equal(t, uint64(2), snap[0].Hits)
}

// P3: cache bound.
func TestAdd_NeverExceedsMaximum(t *testing.T) {
	c := New(4)
	for i := 0; i < 20; i++ {
		c.Add(aRecord("host.example.com.", 3600, net.IPv4(1, 1, 1, byte(i))), false)
		require.LessOrEqual(t, c.Size(), 4)
	}
}

// Duplicate rHash insertions are silently skipped.
func TestAdd_DuplicateRejected(t *testing.T) {
	c := New(16)
	rr := aRecord("example.com.", 3600, net.IPv4(1, 2, 3, 4))
	c.Add(rr, false)
	c.Add(rr, false)
	require.Equal(t, 1, c.Size())
}

// P4: eviction safety -- reserve never evicts the current question's domain.
func TestReserve_ProtectsCurrentDomain(t *testing.T) {
	c := New(2)
	c.Add(aRecord("a.example.com.", 3600, net.IPv4(1, 1, 1, 1)), false)
	c.Add(aRecord("a.example.com.", 3600, net.IPv4(1, 1, 1, 2)), false)

	c.Reserve(2, question("a.example.com."))

	snap := c.Snapshot()
	for _, s := range snap {
		require.Equal(t, "a.example.com.", s.Domain)
	}
}

// P5: permanent entries never expire and are immune to the hit sweep.
func TestPermanentEntries_NeverEvicted(t *testing.T) {
	c := New(2)
	c.Add(aRecord("perm.example.com.", 1, net.IPv4(9, 9, 9, 9)), true)

	fixedNow := time.Now().Add(48 * time.Hour)
	c.now = func() time.Time { return fixedNow }

	// Force eviction pressure from an unrelated domain; the permanent
	// entry must survive both the expired sweep and the low-hit sweep.
	c.Add(aRecord("b.example.com.", 3600, net.IPv4(2, 2, 2, 2)), false)
	c.Add(aRecord("c.example.com.", 3600, net.IPv4(3, 3, 3, 3)), false)

	found := false
	for _, s := range c.Snapshot() {
		if s.Domain == "perm.example.com." {
			found = true
			require.True(t, s.Permanent)
		}
	}
	require.True(t, found)
}

// Scenario 6: eviction preserves the domain currently being served while
// evicting records for an unrelated domain that filled the cache.
func TestEviction_PreservesCurrentQuestionDomain(t *testing.T) {
	c := New(4)
	for i := 0; i < 4; i++ {
		c.Add(aRecord("a.example.com.", 3600, net.IPv4(1, 1, 1, byte(i))), false)
	}
	require.Equal(t, 4, c.Size())

	for i := 0; i < 3; i++ {
		c.Add(aRecord("b.example.com.", 3600, net.IPv4(2, 2, 2, byte(i))), false)
	}

	require.LessOrEqual(t, c.Size(), 4)

	bRecords := c.Get(question("b.example.com."))
	require.NotEmpty(t, bRecords)

	sawEvictedA := false
	snap := c.Snapshot()
	aCount := 0
	for _, s := range snap {
		if s.Domain == "a.example.com." {
			aCount++
		}
	}
	if aCount < 4 {
		sawEvictedA = true
	}
	require.True(t, sawEvictedA, "expected some a.example.com. records to be evicted")
}

func TestExists(t *testing.T) {
	c := New(16)
	require.False(t, c.Exists(question("nowhere.example.com.")))
	c.Add(aRecord("nowhere.example.com.", 60, net.IPv4(1, 1, 1, 1)), false)
	require.True(t, c.Exists(question("nowhere.example.com.")))
}
