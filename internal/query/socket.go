package query

import (
	"context"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/andreashaberstroh/godns/internal/rrerrors"
)

// openSocket binds the shared outbound UDP socket the engine fans every
// query out through. The socket is unicast (no multicast join, unlike
// the teacher's mDNS transport) and bound to an ephemeral local port.
func openSocket() (net.PacketConn, error) {
	lc := net.ListenConfig{Control: platformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, &rrerrors.NetworkError{Operation: "open socket", Err: err}
	}
	return conn, nil
}

// setOutboundTTL sets the IP TTL every datagram the engine sends
// carries, via golang.org/x/net/ipv4 (grounded on the teacher's
// internal/network socket-options handling style, generalized from
// multicast hop-limit tuning to a unicast client's outbound TTL).
// Callers that need a non-default TTL (e.g. a TTL-limited diagnostic
// probe) reach it through WithOutboundTTL rather than this package
// hardcoding one value.
func setOutboundTTL(conn net.PacketConn, ttl int) error {
	p := ipv4.NewPacketConn(conn)
	if err := p.SetTTL(ttl); err != nil {
		return &rrerrors.NetworkError{Operation: "set ttl", Err: err}
	}
	return nil
}
