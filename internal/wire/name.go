package wire

import (
	"strings"

	"github.com/andreashaberstroh/godns/internal/protocol"
	"github.com/andreashaberstroh/godns/internal/rrerrors"
)

// splitLabels splits a canonicalized FQDN ("example.com.") into its
// labels, validating each against RFC 1035 §3.1's length limits. The
// root name ("." or "") splits into zero labels.
func splitLabels(name string) ([]string, error) {
	trimmed := strings.TrimSuffix(name, ".")
	if trimmed == "" {
		return nil, nil
	}
	labels := strings.Split(trimmed, ".")
	for _, l := range labels {
		if len(l) == 0 {
			return nil, &rrerrors.ValidationError{Field: "domain", Value: name, Message: "empty label (consecutive dots)"}
		}
		if len(l) > protocol.MaxLabelLength {
			return nil, &rrerrors.ValidationError{Field: "domain", Value: name, Message: "label exceeds 63 bytes"}
		}
	}
	return labels, nil
}

// name writes name in wire format, reusing a previously written
// suffix via a compression pointer when one is available, per RFC 1035
// §4.1.4. The compression table maps a dotted lower-case suffix to the
// buffer offset its labels were first written at.
func (e *encoder) name(name string) error {
	labels, err := splitLabels(name)
	if err != nil {
		return err
	}

	for i := 0; i < len(labels); i++ {
		suffix := strings.ToLower(strings.Join(labels[i:], "."))
		if off, ok := e.compress[suffix]; ok {
			e.u16(uint16(protocol.CompressionMask)<<8 | uint16(off))
			return nil
		}
		if off := len(e.buf); off <= 0x3FFF {
			e.compress[suffix] = off
		}
		e.buf = append(e.buf, byte(len(labels[i])))
		e.buf = append(e.buf, labels[i]...)
	}
	e.buf = append(e.buf, 0)
	return nil
}

// decodeName parses a possibly-compressed name starting at offset,
// following pointers per RFC 1035 §4.1.4. Pointers must reference an
// earlier offset; forward or self-referential pointers are rejected, as
// is a name whose decompressed length exceeds 255 octets (spec.md §4.1).
func decodeName(msg []byte, offset int) (name string, newOffset int, err error) {
	if offset < 0 || offset >= len(msg) {
		return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: offset, Message: "offset out of bounds"}
	}

	var labels []string
	pos := offset
	jumped := false
	jumps := 0
	const maxJumps = 128

	for {
		if pos >= len(msg) {
			return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "truncated name"}
		}
		length := msg[pos]

		if length&protocol.CompressionMask == protocol.CompressionMask {
			if pos+1 >= len(msg) {
				return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "truncated compression pointer"}
			}
			pointer := int(msg[pos]&0x3F)<<8 | int(msg[pos+1])
			if pointer >= pos {
				return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "forward or self-referential compression pointer"}
			}
			if !jumped {
				newOffset = pos + 2
				jumped = true
			}
			jumps++
			if jumps > maxJumps {
				return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "too many compression pointer jumps"}
			}
			pos = pointer
			continue
		}

		if length == 0 {
			if !jumped {
				newOffset = pos + 1
			}
			break
		}

		if int(length) > protocol.MaxLabelLength {
			return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "label exceeds 63 bytes"}
		}
		if pos+1+int(length) > len(msg) {
			return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "truncated label"}
		}
		labels = append(labels, string(msg[pos+1:pos+1+int(length)]))
		pos += 1 + int(length)
	}

	if len(labels) == 0 {
		return ".", newOffset, nil
	}

	name = strings.Join(labels, ".") + "."
	if len(name) > protocol.MaxNameLength {
		return "", 0, &rrerrors.WireFormatError{Operation: "decode name", Offset: offset, Message: "decompressed name exceeds 255 octets"}
	}
	return name, newOffset, nil
}

// Canonicalize appends a trailing dot to domain if it is not already
// present, per spec.md §3's Question canonicalization rule.
func Canonicalize(domain string) string {
	if domain == "" || strings.HasSuffix(domain, ".") {
		return domain
	}
	return domain + "."
}
