// Package query implements the in-flight query state machine: fan-out
// of a question to every configured nameserver, periodic retransmit,
// demultiplexing replies by transaction ID, and a per-query deadline.
//
// Grounded on the fan-out/retransmit/timeout loop in
// original_source/boost/net/impl/dns_resolver_impl.hpp, rebuilt around
// goroutines, channels, and a single shared socket the way the
// teacher's querier.go builds its receive loop around a Transport.
package query

import (
	"context"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/andreashaberstroh/godns/internal/protocol"
	"github.com/andreashaberstroh/godns/internal/rrerrors"
	"github.com/andreashaberstroh/godns/internal/wire"
)

const (
	defaultResendInterval = 2 * time.Second
	defaultQueryDeadline  = 30 * time.Second
	defaultOutboundTTL    = 64
	sweepInterval         = 500 * time.Millisecond
)

// Endpoint builds the default nameserver endpoint for ip: UDP port 53,
// per spec.md §6's default parameters table.
func Endpoint(ip net.IP) *net.UDPAddr {
	return &net.UDPAddr{IP: ip, Port: protocol.DefaultNameserverPort}
}

// Section identifies which part of a decoded reply produced a record,
// per spec.md §2's requirement that all three sections are cached but
// only the answer section is ever surfaced to the caller.
type Section int

const (
	SectionAnswer Section = iota
	SectionAuthority
	SectionAdditional
)

// Handler receives each record an in-flight query's reply produces,
// tagged with the section it came from, or a single terminal error if
// that endpoint's query fails or times out (section is SectionAnswer
// and ignored in the error case). The records of one successful reply
// are delivered in sequence from the receive goroutine; error calls for
// different endpoints of the same Issue call come from the receive,
// timeout, or cancellation paths and may overlap with each other.
type Handler func(rr wire.ResourceRecord, section Section, err error)

// inFlightQuery is one outstanding datagram to one nameserver endpoint
// for one user call, per spec.md §3's InFlightQuery: "a (question_id,
// endpoint, handler, deadline) tuple representing one outstanding
// datagram to one nameserver for one user call." One Issue call
// produces one inFlightQuery per configured endpoint, all sharing the
// same question_id (I1).
type inFlightQuery struct {
	id         uint16
	question   wire.Question
	handler    Handler
	endpoint   *net.UDPAddr
	payload    []byte
	deadline   time.Time
	nextResend time.Time
}

// Engine owns the shared outbound UDP socket and the set of in-flight
// queries currently fanned out through it, per spec.md §4.3.
type Engine struct {
	conn           net.PacketConn
	resendInterval time.Duration
	queryDeadline  time.Duration
	outboundTTL    int

	mu       sync.Mutex
	inFlight map[uint16][]*inFlightQuery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the engine's shared socket and starts its receive and
// timeout loops, which run for the engine's lifetime (simpler than the
// original's per-query socket lifecycle; an idle UDP socket costs
// nothing worth guarding against in Go).
func New(opts ...Option) (*Engine, error) {
	conn, err := openSocket()
	if err != nil {
		return nil, err
	}
	return newEngine(conn, opts...)
}

func newEngine(conn net.PacketConn, opts ...Option) (*Engine, error) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		conn:           conn,
		resendInterval: defaultResendInterval,
		queryDeadline:  defaultQueryDeadline,
		outboundTTL:    defaultOutboundTTL,
		inFlight:       make(map[uint16][]*inFlightQuery),
		ctx:            ctx,
		cancel:         cancel,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			cancel()
			_ = conn.Close()
			return nil, err
		}
	}

	if err := setOutboundTTL(conn, e.outboundTTL); err != nil {
		cancel()
		_ = conn.Close()
		return nil, err
	}

	e.wg.Add(2)
	go e.receiveLoop()
	go e.timeoutLoop()

	return e, nil
}

// Issue fans q out to every address in endpoints and registers one
// inFlightQuery per endpoint, all sharing one question_id, per spec.md
// §4.3 step 1. handler is invoked once per record a successful reply
// carries (tagged by Section), once with (nil, SectionAnswer, nil) to
// mark the end of a successful reply, or once with a non-nil error if
// an endpoint's reply has a non-NOERROR rcode, its deadline elapses,
// or ctx is cancelled — without disturbing the other endpoints still
// in flight for this same call (spec.md §7).
func (e *Engine) Issue(ctx context.Context, q wire.Question, endpoints []*net.UDPAddr, handler Handler) error {
	if len(endpoints) == 0 {
		return rrerrors.ErrNoNameservers
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	id := uint16(rand.IntN(65536))
	now := time.Now()
	deadline := now.Add(e.queryDeadline)
	nextResend := now.Add(e.resendInterval)

	entries := make([]*inFlightQuery, 0, len(endpoints))
	for _, addr := range endpoints {
		// Encoded once per endpoint so each entry's retransmit buffer is
		// independent, per spec.md §4.3 step 1.
		payload, err := wire.Encode(wire.NewQuery(id, q))
		if err != nil {
			return err
		}
		entries = append(entries, &inFlightQuery{
			id:         id,
			question:   q,
			handler:    handler,
			endpoint:   addr,
			payload:    payload,
			deadline:   deadline,
			nextResend: nextResend,
		})
	}

	e.mu.Lock()
	e.inFlight[id] = append(e.inFlight[id], entries...)
	e.mu.Unlock()

	for _, ent := range entries {
		e.sendOne(ent)
	}

	if ctx != context.Background() {
		go e.watchCancellation(ctx, id, q)
	}

	return nil
}

// Cancel aborts every live in-flight query, delivering
// rrerrors.ErrOperationAborted once per still-live endpoint entry, per
// spec.md §4.3 step 5 ("each still-live InFlightQuery's handler is
// invoked once with the aborted error").
func (e *Engine) Cancel() {
	e.mu.Lock()
	all := e.inFlight
	e.inFlight = make(map[uint16][]*inFlightQuery)
	e.mu.Unlock()

	for _, entries := range all {
		for _, ent := range entries {
			ent.handler(nil, SectionAnswer, rrerrors.ErrOperationAborted)
		}
	}
}

// Close stops the engine's background loops and closes its socket.
// Any queries still in flight are aborted first, per Cancel.
func (e *Engine) Close() error {
	e.Cancel()
	e.cancel()
	err := e.conn.Close()
	e.wg.Wait()
	return err
}

// watchCancellation aborts every endpoint entry belonging to this
// particular Issue call (its question_id and question) when ctx is
// done, delivering the cancellation error once per entry removed.
func (e *Engine) watchCancellation(ctx context.Context, id uint16, q wire.Question) {
	select {
	case <-ctx.Done():
		for _, ent := range e.removeGroup(id, q) {
			ent.handler(nil, SectionAnswer, ctx.Err())
		}
	case <-e.ctx.Done():
	}
}

func (e *Engine) sendOne(entry *inFlightQuery) {
	_, _ = e.conn.WriteTo(entry.payload, entry.endpoint)
}

// removeEntry deletes entry from the in-flight set if it is still
// present, reporting whether it removed anything (so a reply and a
// timeout racing for the same entry cannot both deliver to handler).
func (e *Engine) removeEntry(entry *inFlightQuery) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeEntryLocked(entry)
}

func (e *Engine) removeEntryLocked(entry *inFlightQuery) bool {
	entries := e.inFlight[entry.id]
	for i, ent := range entries {
		if ent == entry {
			e.inFlight[entry.id] = append(entries[:i], entries[i+1:]...)
			if len(e.inFlight[entry.id]) == 0 {
				delete(e.inFlight, entry.id)
			}
			return true
		}
	}
	return false
}

// removeGroup removes and returns every entry sharing id and q: the
// full set of endpoint entries for one user call. Used when a
// successful reply or a cancellation ends the call for every endpoint
// at once, rather than just the one that triggered it.
func (e *Engine) removeGroup(id uint16, q wire.Question) []*inFlightQuery {
	e.mu.Lock()
	defer e.mu.Unlock()

	var removed []*inFlightQuery
	kept := e.inFlight[id][:0]
	for _, ent := range e.inFlight[id] {
		if sameQuestion(ent.question, q) {
			removed = append(removed, ent)
		} else {
			kept = append(kept, ent)
		}
	}
	if len(kept) == 0 {
		delete(e.inFlight, id)
	} else {
		e.inFlight[id] = kept
	}
	return removed
}

// receiveLoop demultiplexes incoming replies by transaction ID, with
// the question tuple as a secondary key so an ID collision between two
// unrelated in-flight queries cannot cross-deliver a reply (spec.md
// §4.3's demux correctness requirement), and with the reply's source
// address pinpointing the exact endpoint entry it answers.
func (e *Engine) receiveLoop() {
	defer e.wg.Done()

	buf := make([]byte, protocol.ReceiveBufferSize)
	for {
		if err := e.conn.SetReadDeadline(time.Now().Add(sweepInterval)); err != nil {
			return
		}
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-e.ctx.Done():
				return
			default:
				continue
			}
		}

		msg, err := wire.Decode(buf[:n])
		if err != nil || msg.Action != protocol.ActionResponse {
			continue
		}
		e.handleReply(msg, addr)
	}
}

// handleReply matches msg against the in-flight entries sharing its
// transaction ID and question. A non-NOERROR rcode completes only the
// specific endpoint entry that sent this reply with ErrNotFound,
// leaving the other configured endpoints in flight for the same
// question_id (spec.md §7). A successful reply completes the whole
// user call: every endpoint entry for this question_id and question is
// removed, and every record the reply carries is delivered to handler
// tagged by section, followed by one (nil, SectionAnswer, nil)
// completion marker.
func (e *Engine) handleReply(msg *wire.Message, addr net.Addr) {
	if len(msg.Questions) == 0 {
		return
	}
	asked := msg.Questions[0]

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}

	e.mu.Lock()
	var fromSender *inFlightQuery
	for _, ent := range e.inFlight[msg.ID] {
		if sameQuestion(ent.question, asked) && sameEndpoint(ent.endpoint, udpAddr) {
			fromSender = ent
			break
		}
	}
	e.mu.Unlock()

	if fromSender == nil {
		// No entry matches this (question_id, question, endpoint) triple:
		// either a duplicate/unsolicited reply, or one that already
		// completed the call.
		return
	}

	if msg.Rcode != protocol.RcodeNoError {
		if e.removeEntry(fromSender) {
			fromSender.handler(nil, SectionAnswer, rrerrors.ErrNotFound)
		}
		return
	}

	removed := e.removeGroup(msg.ID, asked)
	if len(removed) == 0 {
		return
	}
	handler := removed[0].handler

	for _, rr := range msg.Answers {
		handler(rr, SectionAnswer, nil)
	}
	for _, rr := range msg.Authorities {
		handler(rr, SectionAuthority, nil)
	}
	for _, rr := range msg.Additionals {
		handler(rr, SectionAdditional, nil)
	}
	// A nil record with a nil error marks the end of this reply: every
	// record it carried has already been delivered above.
	handler(nil, SectionAnswer, nil)
}

func sameQuestion(a wire.Question, b wire.Question) bool {
	return a.Type == b.Type && a.Class == b.Class && strings.EqualFold(a.Domain, b.Domain)
}

func sameEndpoint(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// timeoutLoop sweeps in-flight queries on a fixed tick, resending any
// entry whose nextResend deadline has passed and failing any entry
// whose overall deadline has elapsed, per spec.md §4.3.
func (e *Engine) timeoutLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			e.sweep(now)
		}
	}
}

func (e *Engine) sweep(now time.Time) {
	var expired []*inFlightQuery
	var resend []*inFlightQuery

	e.mu.Lock()
	for id, entries := range e.inFlight {
		kept := entries[:0]
		for _, ent := range entries {
			switch {
			case now.After(ent.deadline):
				expired = append(expired, ent)
			case !now.Before(ent.nextResend):
				ent.nextResend = now.Add(e.resendInterval)
				resend = append(resend, ent)
				kept = append(kept, ent)
			default:
				kept = append(kept, ent)
			}
		}
		if len(kept) == 0 {
			delete(e.inFlight, id)
		} else {
			e.inFlight[id] = kept
		}
	}
	e.mu.Unlock()

	for _, ent := range resend {
		e.sendOne(ent)
	}
	// expired entries were already dropped from e.inFlight above, under
	// the same lock, so no concurrent reply or cancellation can still be
	// racing to deliver to them.
	for _, ent := range expired {
		ent.handler(nil, SectionAnswer, rrerrors.ErrTimedOut)
	}
}
