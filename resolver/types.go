// Package resolver is the public facade wiring the wire codec, the
// cache, and the query engine into the stub resolver described by
// spec.md §4.4: check the cache first, fall back to the network, and
// populate the cache with whatever the network returns.
//
// Grounded on the shape of querier.Querier/querier.Option/Response in
// the teacher repo, generalized from mDNS multicast discovery to
// unicast recursive resolution against configured nameservers.
package resolver

import (
	"github.com/andreashaberstroh/godns/internal/protocol"
	"github.com/andreashaberstroh/godns/internal/wire"
)

// RecordType is the DNS resource record type a Question asks for.
type RecordType = protocol.RecordType

// RecordClass is the DNS class a Question asks in (almost always IN).
type RecordClass = protocol.RecordClass

// Record type mnemonics re-exported for callers outside this module.
const (
	TypeA     = protocol.TypeA
	TypeNS    = protocol.TypeNS
	TypeCNAME = protocol.TypeCNAME
	TypeSOA   = protocol.TypeSOA
	TypePTR   = protocol.TypePTR
	TypeHINFO = protocol.TypeHINFO
	TypeMX    = protocol.TypeMX
	TypeTXT   = protocol.TypeTXT
	TypeAAAA  = protocol.TypeAAAA
	TypeSRV   = protocol.TypeSRV
)

// Class mnemonics re-exported for callers outside this module.
const (
	ClassIN     = protocol.ClassIN
	ClassCSNET  = protocol.ClassCSNET
	ClassCHAOS  = protocol.ClassCHAOS
	ClassHesiod = protocol.ClassHesiod
)

// Question identifies a single record to resolve: a domain name, the
// record type, and the class, per spec.md §3.
type Question struct {
	Domain string
	Type   RecordType
	Class  RecordClass
}

// ResourceRecord is the closed tagged variant every decoded or cached
// record satisfies. Concrete payload types are re-exported below so
// callers outside this module can type-switch on them without
// importing this module's internal packages.
type ResourceRecord = wire.ResourceRecord

// Per-type payload records, re-exported from the internal wire codec.
type (
	ARecord     = wire.ARecord
	AAAARecord  = wire.AAAARecord
	NSRecord    = wire.NSRecord
	CNAMERecord = wire.CNAMERecord
	PTRRecord   = wire.PTRRecord
	MXRecord    = wire.MXRecord
	SOARecord   = wire.SOARecord
	TXTRecord   = wire.TXTRecord
	HINFORecord = wire.HINFORecord
	SRVRecord   = wire.SRVRecord
	RawRecord   = wire.RawRecord
)
