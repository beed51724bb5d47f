package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andreashaberstroh/godns/internal/protocol"
)

// Scenario 1 from spec.md §8: encode an A question and check the wire prefix.
func TestEncode_AQuestion(t *testing.T) {
	m := &Message{
		ID:               0xAFFE,
		Opcode:           protocol.OpcodeSQuery,
		Action:           protocol.ActionQuery,
		RecursionDesired: true,
		Questions: []Question{
			{Domain: "example.com.", Type: protocol.TypeA, Class: protocol.ClassIN},
		},
	}

	got, err := Encode(m)
	require.NoError(t, err)

	want := []byte{
		0xaf, 0xfe, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0x03, 'c', 'o', 'm', 0x00,
		0x00, 0x01, 0x00, 0x01,
	}
	require.Equal(t, want, got)
}

// Scenario 2 from spec.md §8: decode a well-formed A answer.
func TestDecode_AAnswer(t *testing.T) {
	q := &Message{
		ID:     1,
		Action: protocol.ActionResponse,
		Questions: []Question{
			{Domain: "example.com.", Type: protocol.TypeA, Class: protocol.ClassIN},
		},
		Answers: []ResourceRecord{
			&ARecord{
				Header:  Header{Domain: "example.com.", Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 3600},
				Address: net.IPv4(93, 184, 216, 34),
			},
		},
	}

	buf, err := Encode(q)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, protocol.RcodeNoError, got.Rcode)
	require.Len(t, got.Answers, 1)

	a, ok := got.Answers[0].(*ARecord)
	require.True(t, ok)
	require.Equal(t, "example.com.", a.Domain)
	require.Equal(t, uint32(3600), a.TTL)
	require.True(t, a.Address.Equal(net.IPv4(93, 184, 216, 34)))
}

// P1: round-trip for every supported record type.
func TestRoundTrip_AllSupportedTypes(t *testing.T) {
	hdr := func(t2 protocol.RecordType) Header {
		return Header{Domain: "host.example.com.", Type: t2, Class: protocol.ClassIN, TTL: 300}
	}

	records := []ResourceRecord{
		&ARecord{Header: hdr(protocol.TypeA), Address: net.IPv4(1, 2, 3, 4)},
		&AAAARecord{Header: hdr(protocol.TypeAAAA), Address: net.ParseIP("2001:db8::1")},
		&NSRecord{Header: hdr(protocol.TypeNS), Nameserver: "ns1.example.com."},
		&CNAMERecord{Header: hdr(protocol.TypeCNAME), Canonical: "alias.example.com."},
		&PTRRecord{Header: hdr(protocol.TypePTR), Target: "host.example.com."},
		&MXRecord{Header: hdr(protocol.TypeMX), Preference: 10, Exchange: "mail.example.com."},
		&SOARecord{
			Header: hdr(protocol.TypeSOA), Master: "ns1.example.com.", Responsible: "hostmaster.example.com.",
			Serial: 2024010100, Refresh: 3600, Retry: 600, Expire: 604800, Minttl: 300,
		},
		&TXTRecord{Header: hdr(protocol.TypeTXT), Text: "v=spf1 -all"},
		&HINFORecord{Header: hdr(protocol.TypeHINFO), CPU: "x86_64", OS: "linux"},
		&SRVRecord{Header: hdr(protocol.TypeSRV), Priority: 1, Weight: 2, Port: 443, Target: "svc.example.com."},
	}

	for _, rr := range records {
		m := &Message{ID: 42, Action: protocol.ActionResponse, Answers: []ResourceRecord{rr}}
		buf, err := Encode(m)
		require.NoError(t, err)

		decoded, err := Decode(buf)
		require.NoError(t, err)
		require.Len(t, decoded.Answers, 1)
		require.Equal(t, rr, decoded.Answers[0])
	}
}

func TestDecode_CompressionPointerLoopRejected(t *testing.T) {
	// The question name is a single pointer to its own offset (12).
	buf := []byte{
		0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, // header, 1 question
		0xC0, 12, // name: pointer to offset 12 (itself -- not earlier)
		0x00, 0x01, 0x00, 0x01,
	}
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecode_TruncatedMessageFails(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecode_UnknownTypePreservesRawRDATA(t *testing.T) {
	m := &Message{
		ID:     7,
		Action: protocol.ActionResponse,
		Answers: []ResourceRecord{
			&RawRecord{
				Header: Header{Domain: "x.example.com.", Type: protocol.RecordType(999), Class: protocol.ClassIN, TTL: 5},
				RDATA:  []byte{1, 2, 3, 4},
			},
			&ARecord{Header: Header{Domain: "y.example.com.", Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 5}, Address: net.IPv4(1, 1, 1, 1)},
		},
	}
	buf, err := Encode(m)
	require.NoError(t, err)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, decoded.Answers, 2)

	raw, ok := decoded.Answers[0].(*RawRecord)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, raw.RDATA)

	a, ok := decoded.Answers[1].(*ARecord)
	require.True(t, ok)
	require.True(t, a.Address.Equal(net.IPv4(1, 1, 1, 1)))
}
