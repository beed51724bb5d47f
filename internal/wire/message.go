// Package wire implements byte-exact encode/decode of RFC 1035 DNS
// messages: the header, question section, and the record-type payload
// variants a stub resolver needs to project resource records into.
//
// PRIMARY TECHNICAL AUTHORITY: RFC 1035 (Domain Names - Implementation
// and Specification), §4 "MESSAGES".
package wire

import "github.com/andreashaberstroh/godns/internal/protocol"

// Message is a full DNS message: header flags, the question asked, and
// the three record sections a response carries, per RFC 1035 §4.1.
type Message struct {
	ID                 uint16
	Opcode             protocol.Opcode
	Action             protocol.Action
	Rcode              protocol.Rcode
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool

	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

// Question is a single question section entry per RFC 1035 §4.1.2.
// Domain is canonicalized with a trailing dot.
type Question struct {
	Domain string
	Type   protocol.RecordType
	Class  protocol.RecordClass
}

// NewQuery builds the flags a freshly issued recursive query should
// carry: RD=1, opcode=SQUERY, action=QUERY, per spec.md §6's default
// parameters table.
func NewQuery(id uint16, q Question) *Message {
	return &Message{
		ID:               id,
		Opcode:           protocol.OpcodeSQuery,
		Action:           protocol.ActionQuery,
		RecursionDesired: true,
		Questions:        []Question{q},
	}
}

// flags packs the 16-bit header flags word: QR(1)|opcode(4)|AA(1)|TC(1)|
// RD(1)|RA(1)|Z(3)|RCODE(4), per RFC 1035 §4.1.1.
func (m *Message) flags() uint16 {
	var f uint16
	if m.Action == protocol.ActionResponse {
		f |= 1 << 15
	}
	f |= uint16(m.Opcode&0x0F) << 11
	if m.Authoritative {
		f |= 1 << 10
	}
	if m.Truncated {
		f |= 1 << 9
	}
	if m.RecursionDesired {
		f |= 1 << 8
	}
	if m.RecursionAvailable {
		f |= 1 << 7
	}
	f |= uint16(m.Rcode & 0x0F)
	return f
}

// setFlags unpacks a 16-bit header flags word into m.
func (m *Message) setFlags(f uint16) {
	if f&(1<<15) != 0 {
		m.Action = protocol.ActionResponse
	} else {
		m.Action = protocol.ActionQuery
	}
	m.Opcode = protocol.Opcode((f >> 11) & 0x0F)
	m.Authoritative = f&(1<<10) != 0
	m.Truncated = f&(1<<9) != 0
	m.RecursionDesired = f&(1<<8) != 0
	m.RecursionAvailable = f&(1<<7) != 0
	m.Rcode = protocol.Rcode(f & 0x0F)
}
