package coap

import (
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/lobaro/coap-client/coapmsg"
	"github.com/sirupsen/logrus"
)

// dedupWindow bounds how long a (peer, mid) pair is remembered for
// duplicate-CON suppression (spec.md §4.B dispatch rule 3). It mirrors
// the exchange lifetime, since that is the RFC 7252 definition of how
// long a MID stays relevant for deduplication.
const dedupWindow = DefaultExchangeTimeout

// Endpoint manages outbound datagrams, inbound demultiplexing by
// Message-ID and Token, and duplicate suppression (spec.md §4.B). It
// exclusively owns the Socket and every live Transaction.
type Endpoint struct {
	socket   Socket
	clock    Clock
	tokenGen TokenGenerator

	nextMid uint16

	transactions map[string]*Transaction // key: peerMidKey
	exchanges    map[string]*Exchange    // key: peerTokenKey

	dedup map[string]dedupEntry // key: peerMidKey

	log *logrus.Entry
}

type dedupEntry struct {
	seenAt time.Time
	ack    []byte // cached ACK bytes, replayed on duplicate
}

// NewEndpoint constructs an Endpoint bound to socket, with the given
// Clock and TokenGenerator. If gen is nil, a RandomTokenGenerator is
// used. The message-ID counter starts at a random value, per spec.md
// §4.B.
func NewEndpoint(socket Socket, clock Clock, gen TokenGenerator) *Endpoint {
	if gen == nil {
		gen = NewRandomTokenGenerator()
	}
	ep := &Endpoint{
		socket:       socket,
		clock:        clock,
		tokenGen:     gen,
		nextMid:      uint16(rand.Intn(1 << 16)),
		transactions: make(map[string]*Transaction),
		exchanges:    make(map[string]*Exchange),
		dedup:        make(map[string]dedupEntry),
		log:          logrus.WithField("component", "endpoint"),
	}
	socket.SetReceiver(ep.receive)
	return ep
}

func (e *Endpoint) nextMessageID() uint16 {
	mid := e.nextMid
	e.nextMid++
	return mid
}

// Do submits req to peer. If req carries a blockSize smaller than the
// payload, the request is segmented by the Block1 driver; otherwise it
// is a single Exchange. The returned Emitter fires the request's
// lifecycle events (spec.md §4.F); Cancel tears the request down with
// no further events.
func (e *Endpoint) Do(req *Request, peer net.Addr) (*Emitter, func()) {
	cfg := req.config
	if cfg.blockSize > 0 && len(req.Payload) > cfg.blockSize {
		bw := newBlockwiseRequest(e, req, peer, cfg)
		bw.start()
		return bw.events, bw.cancel
	}

	token := uniqueToken(e.tokenGen, e.tokenCollides)
	ex := newExchange(e, token, peer, cfg)
	msg := req.toMessage(token, e.nextMessageID())
	if err := ex.send(msg); err != nil {
		ex.Events.Emit(Event{Name: EventError, Err: err})
	}
	return ex.Events, ex.cancel
}

// sendAck transmits a bare empty ACK for mid to peer, and caches it so a
// duplicate CON for the same mid gets the exact same bytes replayed
// (spec.md §4.B dispatch rule 3).
func (e *Endpoint) sendAck(mid uint16, peer net.Addr) {
	ack := coapmsg.NewAck(mid)
	b := ack.MustMarshalBinary()
	if err := e.socket.Send(b, peer); err != nil {
		e.log.WithError(err).Warn("failed to send ACK")
		return
	}
	e.dedup[peerMidKey(peer, mid)] = dedupEntry{seenAt: e.clock.Now(), ack: b}
}

// receive decodes an inbound datagram and applies the dispatch rules in
// spec.md §4.B. Malformed datagrams and stale/unmatched control
// messages are silently dropped.
func (e *Endpoint) receive(b []byte, peer net.Addr) {
	msg, err := coapmsg.ParseMessage(b)
	if err != nil {
		e.log.WithError(err).Debug("dropping malformed datagram")
		return
	}

	switch msg.Type {
	case coapmsg.Acknowledgement, coapmsg.Reset:
		e.dispatchControl(&msg, peer)
	case coapmsg.Confirmable, coapmsg.NonConfirmable:
		e.dispatchRequestOrResponse(&msg, peer)
	}
}

func (e *Endpoint) dispatchControl(msg *coapmsg.Message, peer net.Addr) {
	key := peerMidKey(peer, msg.MessageID)
	tx, ok := e.transactions[key]
	if !ok {
		e.log.WithField("mid", msg.MessageID).Debug("dropping stale ACK/RST")
		return
	}
	if msg.Type == coapmsg.Reset {
		tx.handleReset(msg)
	} else {
		tx.handleAck(msg)
	}
}

// tokenCollides reports whether token is already in use by a live
// exchange on this Endpoint, regardless of peer.
func (e *Endpoint) tokenCollides(token []byte) bool {
	for _, ex := range e.exchanges {
		if Token(ex.Token).Equals(token) {
			return true
		}
	}
	return false
}

func (e *Endpoint) dispatchRequestOrResponse(msg *coapmsg.Message, peer net.Addr) {
	midKey := peerMidKey(peer, msg.MessageID)
	if entry, seen := e.dedup[midKey]; seen && e.clock.Now().Sub(entry.seenAt) < dedupWindow {
		if entry.ack != nil {
			if err := e.socket.Send(entry.ack, peer); err != nil {
				e.log.WithError(err).Warn("failed to replay cached ACK")
			}
		}
		return
	}
	e.dedup[midKey] = dedupEntry{seenAt: e.clock.Now()}

	tokKey := peerTokenKey(peer, msg.Token)
	ex, ok := e.exchanges[tokKey]
	if !ok {
		e.log.WithField("token", msg.Token).Debug("dropping response for unknown exchange")
		return
	}
	ex.deliverResponse(msg)
}

func (e *Endpoint) registerTransaction(tx *Transaction) {
	e.transactions[peerMidKey(tx.Peer, tx.Mid)] = tx
}

func (e *Endpoint) unregisterTransaction(tx *Transaction) {
	if tx == nil {
		return
	}
	delete(e.transactions, peerMidKey(tx.Peer, tx.Mid))
}

func (e *Endpoint) registerExchange(ex *Exchange) {
	e.exchanges[peerTokenKey(ex.Peer, ex.Token)] = ex
}

// unregisterExchange only removes the map entry if it still points at ex.
// A blockwise request reuses the same token across every per-block
// Exchange, so by the time an earlier block's Exchange completes, the
// token key may already have been overwritten by the next block's
// Exchange; unregistering by key alone would clobber that registration.
func (e *Endpoint) unregisterExchange(ex *Exchange) {
	key := peerTokenKey(ex.Peer, ex.Token)
	if cur, ok := e.exchanges[key]; ok && cur == ex {
		delete(e.exchanges, key)
	}
}

func peerMidKey(peer net.Addr, mid uint16) string {
	return peer.String() + "#" + strconv.Itoa(int(mid))
}

func peerTokenKey(peer net.Addr, token []byte) string {
	return peer.String() + "#" + string(token)
}
