package wire

import (
	"net"

	"github.com/andreashaberstroh/godns/internal/protocol"
)

// Header is the data common to every resource record per RFC 1035
// §4.1.3: the owner domain, type, class, and TTL in seconds.
type Header struct {
	Domain string
	Type   protocol.RecordType
	Class  protocol.RecordClass
	TTL    uint32
}

// ResourceRecord is the sum type spec.md §3 describes: the common
// header plus a payload that varies per RecordType. Each payload
// variant below implements it.
type ResourceRecord interface {
	RRHeader() Header
	encodeRDATA(e *encoder) error
}

func (h Header) RRHeader() Header { return h }

// ARecord carries an IPv4 address (type A).
type ARecord struct {
	Header
	Address net.IP
}

// AAAARecord carries an IPv6 address (type AAAA).
type AAAARecord struct {
	Header
	Address net.IP
}

// NSRecord names an authoritative nameserver for the owner domain (type NS).
type NSRecord struct {
	Header
	Nameserver string
}

// CNAMERecord names the canonical name for the owner domain (type CNAME).
type CNAMERecord struct {
	Header
	Canonical string
}

// PTRRecord names the target of a pointer record (type PTR).
type PTRRecord struct {
	Header
	Target string
}

// MXRecord names a mail exchange host and its preference (type MX).
type MXRecord struct {
	Header
	Preference uint16
	Exchange   string
}

// SOARecord carries start-of-authority fields (type SOA).
type SOARecord struct {
	Header
	Master      string
	Responsible string
	Serial      uint32
	Refresh     uint32
	Retry       uint32
	Expire      uint32
	Minttl      uint32
}

// TXTRecord carries opaque text (type TXT). Multi-segment RDATA is
// joined into a single string on decode and re-chunked into
// 255-byte character-strings on encode.
type TXTRecord struct {
	Header
	Text string
}

// HINFORecord carries host information (type HINFO).
type HINFORecord struct {
	Header
	CPU string
	OS  string
}

// SRVRecord carries a service location (type SRV, RFC 2782).
type SRVRecord struct {
	Header
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// RawRecord preserves the undecoded RDATA of a record whose type this
// resolver has no payload variant for, per spec.md §4.1: "unknown or
// unsupported types on read preserve the raw RDATA length (skipped) so
// the rest of the message remains parseable."
type RawRecord struct {
	Header
	RDATA []byte
}

func (r *RawRecord) encodeRDATA(e *encoder) error {
	e.bytes(r.RDATA)
	return nil
}
