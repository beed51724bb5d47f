package wire

import (
	"net"

	"github.com/andreashaberstroh/godns/internal/protocol"
	"github.com/andreashaberstroh/godns/internal/rrerrors"
)

// decoder reads sequentially through a full message buffer, so name
// decompression (which jumps backward and returns) can share the same
// underlying bytes as the rest of the parse.
type decoder struct {
	msg []byte
	pos int
}

func (d *decoder) u16() (uint16, error) {
	if d.pos+2 > len(d.msg) {
		return 0, &rrerrors.WireFormatError{Operation: "read uint16", Offset: d.pos, Message: "truncated"}
	}
	v := uint16(d.msg[d.pos])<<8 | uint16(d.msg[d.pos+1])
	d.pos += 2
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.pos+4 > len(d.msg) {
		return 0, &rrerrors.WireFormatError{Operation: "read uint32", Offset: d.pos, Message: "truncated"}
	}
	v := uint32(d.msg[d.pos])<<24 | uint32(d.msg[d.pos+1])<<16 | uint32(d.msg[d.pos+2])<<8 | uint32(d.msg[d.pos+3])
	d.pos += 4
	return v, nil
}

func (d *decoder) name() (string, error) {
	name, newOffset, err := decodeName(d.msg, d.pos)
	if err != nil {
		return "", err
	}
	d.pos = newOffset
	return name, nil
}

func (d *decoder) characterString() (string, error) {
	if d.pos >= len(d.msg) {
		return "", &rrerrors.WireFormatError{Operation: "read character-string", Offset: d.pos, Message: "truncated"}
	}
	length := int(d.msg[d.pos])
	d.pos++
	if d.pos+length > len(d.msg) {
		return "", &rrerrors.WireFormatError{Operation: "read character-string", Offset: d.pos, Message: "truncated"}
	}
	s := string(d.msg[d.pos : d.pos+length])
	d.pos += length
	return s, nil
}

// Decode parses a full DNS message per RFC 1035 §4, decompressing names
// and dispatching each record's RDATA on its RecordType (spec.md §4.1).
func Decode(buf []byte) (*Message, error) {
	if len(buf) < 12 {
		return nil, &rrerrors.WireFormatError{Operation: "decode header", Offset: 0, Message: "message shorter than 12-byte header"}
	}

	d := &decoder{msg: buf}
	m := &Message{}

	id, _ := d.u16()
	m.ID = id
	flags, _ := d.u16()
	m.setFlags(flags)

	qdcount, _ := d.u16()
	ancount, _ := d.u16()
	nscount, _ := d.u16()
	arcount, _ := d.u16()

	for i := 0; i < int(qdcount); i++ {
		q, err := d.question()
		if err != nil {
			return nil, err
		}
		m.Questions = append(m.Questions, q)
	}

	var err error
	if m.Answers, err = d.records(int(ancount)); err != nil {
		return nil, err
	}
	if m.Authorities, err = d.records(int(nscount)); err != nil {
		return nil, err
	}
	if m.Additionals, err = d.records(int(arcount)); err != nil {
		return nil, err
	}

	return m, nil
}

func (d *decoder) question() (Question, error) {
	domain, err := d.name()
	if err != nil {
		return Question{}, err
	}
	qtype, err := d.u16()
	if err != nil {
		return Question{}, err
	}
	qclass, err := d.u16()
	if err != nil {
		return Question{}, err
	}
	return Question{Domain: domain, Type: protocol.RecordType(qtype), Class: protocol.RecordClass(qclass)}, nil
}

func (d *decoder) records(n int) ([]ResourceRecord, error) {
	out := make([]ResourceRecord, 0, n)
	for i := 0; i < n; i++ {
		rr, err := d.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}

func (d *decoder) record() (ResourceRecord, error) {
	domain, err := d.name()
	if err != nil {
		return nil, err
	}
	rtype, err := d.u16()
	if err != nil {
		return nil, err
	}
	rclass, err := d.u16()
	if err != nil {
		return nil, err
	}
	ttl, err := d.u32()
	if err != nil {
		return nil, err
	}
	rdlength, err := d.u16()
	if err != nil {
		return nil, err
	}
	if d.pos+int(rdlength) > len(d.msg) {
		return nil, &rrerrors.WireFormatError{Operation: "decode rdata", Offset: d.pos, Message: "rdlength overruns message"}
	}
	rdataEnd := d.pos + int(rdlength)

	h := Header{Domain: domain, Type: protocol.RecordType(rtype), Class: protocol.RecordClass(rclass), TTL: ttl}
	rr, err := d.decodeRDATA(h, rdataEnd)
	if err != nil {
		return nil, err
	}

	// The codec must tolerate a type-specific decoder that consumed
	// fewer bytes than RDLENGTH declared (trailing padding some
	// servers emit); always resynchronize to the declared boundary so
	// the rest of the message stays parseable.
	d.pos = rdataEnd
	return rr, nil
}

func (d *decoder) decodeRDATA(h Header, rdataEnd int) (ResourceRecord, error) {
	switch h.Type {
	case protocol.TypeA:
		if d.pos+4 > rdataEnd {
			return nil, &rrerrors.WireFormatError{Operation: "decode A", Offset: d.pos, Message: "short rdata"}
		}
		ip := net.IPv4(d.msg[d.pos], d.msg[d.pos+1], d.msg[d.pos+2], d.msg[d.pos+3])
		d.pos += 4
		return &ARecord{Header: h, Address: ip}, nil

	case protocol.TypeAAAA:
		if d.pos+16 > rdataEnd {
			return nil, &rrerrors.WireFormatError{Operation: "decode AAAA", Offset: d.pos, Message: "short rdata"}
		}
		ip := make(net.IP, 16)
		copy(ip, d.msg[d.pos:d.pos+16])
		d.pos += 16
		return &AAAARecord{Header: h, Address: ip}, nil

	case protocol.TypeNS:
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		return &NSRecord{Header: h, Nameserver: name}, nil

	case protocol.TypeCNAME:
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		return &CNAMERecord{Header: h, Canonical: name}, nil

	case protocol.TypePTR:
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		return &PTRRecord{Header: h, Target: name}, nil

	case protocol.TypeMX:
		pref, err := d.u16()
		if err != nil {
			return nil, err
		}
		exchange, err := d.name()
		if err != nil {
			return nil, err
		}
		return &MXRecord{Header: h, Preference: pref, Exchange: exchange}, nil

	case protocol.TypeSOA:
		master, err := d.name()
		if err != nil {
			return nil, err
		}
		responsible, err := d.name()
		if err != nil {
			return nil, err
		}
		serial, err := d.u32()
		if err != nil {
			return nil, err
		}
		refresh, err := d.u32()
		if err != nil {
			return nil, err
		}
		retry, err := d.u32()
		if err != nil {
			return nil, err
		}
		expire, err := d.u32()
		if err != nil {
			return nil, err
		}
		minttl, err := d.u32()
		if err != nil {
			return nil, err
		}
		return &SOARecord{Header: h, Master: master, Responsible: responsible, Serial: serial, Refresh: refresh, Retry: retry, Expire: expire, Minttl: minttl}, nil

	case protocol.TypeTXT:
		var text string
		for d.pos < rdataEnd {
			s, err := d.characterString()
			if err != nil {
				return nil, err
			}
			text += s
		}
		return &TXTRecord{Header: h, Text: text}, nil

	case protocol.TypeHINFO:
		cpu, err := d.characterString()
		if err != nil {
			return nil, err
		}
		os, err := d.characterString()
		if err != nil {
			return nil, err
		}
		return &HINFORecord{Header: h, CPU: cpu, OS: os}, nil

	case protocol.TypeSRV:
		priority, err := d.u16()
		if err != nil {
			return nil, err
		}
		weight, err := d.u16()
		if err != nil {
			return nil, err
		}
		port, err := d.u16()
		if err != nil {
			return nil, err
		}
		target, err := d.name()
		if err != nil {
			return nil, err
		}
		return &SRVRecord{Header: h, Priority: priority, Weight: weight, Port: port, Target: target}, nil

	default:
		raw := make([]byte, rdataEnd-d.pos)
		copy(raw, d.msg[d.pos:rdataEnd])
		d.pos = rdataEnd
		return &RawRecord{Header: h, RDATA: raw}, nil
	}
}
