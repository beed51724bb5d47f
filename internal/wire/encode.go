package wire

import (
	"github.com/andreashaberstroh/godns/internal/rrerrors"
)

// encoder accumulates a message's wire bytes and the suffix-compression
// table built along the way, so names repeated later in the same
// message can be replaced by a pointer per RFC 1035 §4.1.4.
type encoder struct {
	buf      []byte
	compress map[string]int
}

func (e *encoder) u16(v uint16) { e.buf = append(e.buf, byte(v>>8), byte(v)) }
func (e *encoder) u32(v uint32) {
	e.buf = append(e.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (e *encoder) bytes(b []byte) { e.buf = append(e.buf, b...) }

// reserveU16 writes a placeholder and returns its offset, for fields
// (RDLENGTH) whose value is only known after the payload is written.
func (e *encoder) reserveU16() int {
	idx := len(e.buf)
	e.u16(0)
	return idx
}

func (e *encoder) patchU16(idx int, v uint16) {
	e.buf[idx] = byte(v >> 8)
	e.buf[idx+1] = byte(v)
}

// characterString writes a single RFC 1035 §3.3 <character-string>:
// a length byte followed by up to 255 bytes of text.
func (e *encoder) characterString(s string) error {
	if len(s) > 255 {
		return &rrerrors.ValidationError{Field: "text", Value: s, Message: "character-string exceeds 255 bytes"}
	}
	e.buf = append(e.buf, byte(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

// Encode writes m in RFC 1035 wire format, applying label compression
// across the whole message (spec.md §4.1).
func Encode(m *Message) ([]byte, error) {
	e := &encoder{compress: make(map[string]int)}

	e.u16(m.ID)
	e.u16(m.flags())
	e.u16(uint16(len(m.Questions)))
	e.u16(uint16(len(m.Answers)))
	e.u16(uint16(len(m.Authorities)))
	e.u16(uint16(len(m.Additionals)))

	for _, q := range m.Questions {
		if err := e.name(q.Domain); err != nil {
			return nil, err
		}
		e.u16(uint16(q.Type))
		e.u16(uint16(q.Class))
	}

	for _, section := range [][]ResourceRecord{m.Answers, m.Authorities, m.Additionals} {
		for _, rr := range section {
			if err := e.record(rr); err != nil {
				return nil, err
			}
		}
	}

	return e.buf, nil
}

func (e *encoder) record(rr ResourceRecord) error {
	h := rr.RRHeader()
	if err := e.name(h.Domain); err != nil {
		return err
	}
	e.u16(uint16(h.Type))
	e.u16(uint16(h.Class))
	e.u32(h.TTL)

	lenIdx := e.reserveU16()
	before := len(e.buf)
	if err := rr.encodeRDATA(e); err != nil {
		return err
	}
	e.patchU16(lenIdx, uint16(len(e.buf)-before))
	return nil
}

func (r *ARecord) encodeRDATA(e *encoder) error {
	ip := r.Address.To4()
	if ip == nil {
		return &rrerrors.ValidationError{Field: "Address", Value: r.Address, Message: "not an IPv4 address"}
	}
	e.bytes(ip)
	return nil
}

func (r *AAAARecord) encodeRDATA(e *encoder) error {
	ip := r.Address.To16()
	if ip == nil {
		return &rrerrors.ValidationError{Field: "Address", Value: r.Address, Message: "not an IPv6 address"}
	}
	e.bytes(ip)
	return nil
}

func (r *NSRecord) encodeRDATA(e *encoder) error   { return e.name(r.Nameserver) }
func (r *CNAMERecord) encodeRDATA(e *encoder) error { return e.name(r.Canonical) }
func (r *PTRRecord) encodeRDATA(e *encoder) error  { return e.name(r.Target) }

func (r *MXRecord) encodeRDATA(e *encoder) error {
	e.u16(r.Preference)
	return e.name(r.Exchange)
}

func (r *SOARecord) encodeRDATA(e *encoder) error {
	if err := e.name(r.Master); err != nil {
		return err
	}
	if err := e.name(r.Responsible); err != nil {
		return err
	}
	e.u32(r.Serial)
	e.u32(r.Refresh)
	e.u32(r.Retry)
	e.u32(r.Expire)
	e.u32(r.Minttl)
	return nil
}

func (r *TXTRecord) encodeRDATA(e *encoder) error {
	text := r.Text
	if text == "" {
		return e.characterString("")
	}
	for len(text) > 0 {
		chunk := text
		if len(chunk) > 255 {
			chunk = chunk[:255]
		}
		if err := e.characterString(chunk); err != nil {
			return err
		}
		text = text[len(chunk):]
	}
	return nil
}

func (r *HINFORecord) encodeRDATA(e *encoder) error {
	if err := e.characterString(r.CPU); err != nil {
		return err
	}
	return e.characterString(r.OS)
}

func (r *SRVRecord) encodeRDATA(e *encoder) error {
	e.u16(r.Priority)
	e.u16(r.Weight)
	e.u16(r.Port)
	return e.name(r.Target)
}
