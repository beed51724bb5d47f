package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreashaberstroh/godns/internal/protocol"
	"github.com/andreashaberstroh/godns/internal/wire"
)

func TestAddNameserver_BuildsDefaultPort53Endpoints(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	r.AddNameserver(net.IPv4(8, 8, 8, 8))
	r.AddNameserver(net.IPv4(1, 1, 1, 1))

	endpoints := r.currentEndpoints()
	require.Len(t, endpoints, 2)
	for _, ep := range endpoints {
		require.Equal(t, 53, ep.Port)
	}
}

// fakeNameserver answers every query it receives with a single A
// record, so Resolve can be exercised end to end without binding the
// test process to the privileged port 53.
func fakeNameserver(t *testing.T, ip net.IP) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		buf := make([]byte, protocol.ReceiveBufferSize)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			query, err := wire.Decode(buf[:n])
			if err != nil || len(query.Questions) == 0 {
				continue
			}
			resp := &wire.Message{
				ID:        query.ID,
				Action:    protocol.ActionResponse,
				Rcode:     protocol.RcodeNoError,
				Questions: query.Questions,
				Answers: []wire.ResourceRecord{
					&wire.ARecord{
						Header: wire.Header{
							Domain: query.Questions[0].Domain, Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 3600,
						},
						Address: ip,
					},
				},
			}
			out, err := wire.Encode(resp)
			if err != nil {
				continue
			}
			_, _ = conn.WriteTo(out, addr)
		}
	}()

	t.Cleanup(func() { _ = conn.Close() })
	return conn.LocalAddr().(*net.UDPAddr)
}

func TestResolve_NetworkRoundTripPopulatesCache(t *testing.T) {
	addr := fakeNameserver(t, net.IPv4(203, 0, 113, 9))

	r, err := New(WithQueryDeadline(2 * time.Second))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	r.addEndpoint(addr)

	q := Question{Domain: "live.example.com.", Type: TypeA, Class: ClassIN}

	records, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	a, ok := records[0].(*wire.ARecord)
	require.True(t, ok)
	require.True(t, a.Address.Equal(net.IPv4(203, 0, 113, 9)))

	_, cq := toInternal(q)
	require.True(t, r.cache.Exists(cq), "successful network reply should populate the cache")
}

func TestAsyncResolve_CacheHitServesWithoutNetwork(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	// No nameserver configured at all: a cache hit must still succeed,
	// proving the cache is consulted before the endpoint list.
	q := Question{Domain: "cached.example.com.", Type: TypeA, Class: ClassIN}
	r.cache.Add(&wire.ARecord{
		Header:  wire.Header{Domain: "cached.example.com.", Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 60},
		Address: net.IPv4(9, 9, 9, 9),
	}, false)

	var got []ResourceRecord
	err = r.AsyncResolve(context.Background(), q, func(rr ResourceRecord, err error) {
		require.NoError(t, err)
		if rr != nil {
			got = append(got, rr)
		}
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	a, ok := got[0].(*wire.ARecord)
	require.True(t, ok)
	require.True(t, a.Address.Equal(net.IPv4(9, 9, 9, 9)))
}

func TestAsyncResolve_NoNameservers(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	err = r.AsyncResolve(context.Background(), Question{Domain: "example.com.", Type: TypeA, Class: ClassIN}, func(ResourceRecord, error) {})
	require.Error(t, err)
}

func TestResolveWithError_NoNameservers(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.ResolveWithError(context.Background(), Question{Domain: "example.com.", Type: TypeA, Class: ClassIN})
	require.Error(t, err)
}

func TestQuestionCanonicalization(t *testing.T) {
	wq, cq := toInternal(Question{Domain: "example.com", Type: TypeA, Class: ClassIN})
	require.Equal(t, "example.com.", wq.Domain)
	require.Equal(t, "example.com.", cq.Domain)
}
