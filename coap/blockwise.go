package coap

import (
	"net"

	"github.com/lobaro/coap-client/coapmsg"
	"github.com/sirupsen/logrus"
)

// blockwiseRequest segments an oversized request payload across
// sequential Block1 exchanges (spec.md §4.E). At most one Exchange is
// in flight at a time; the Token is fixed for the whole request's
// lifetime, reused across every block.
type blockwiseRequest struct {
	endpoint *Endpoint
	req      *Request
	peer     net.Addr
	cfg      *config
	token    []byte
	events   *Emitter

	currentSZX uint8
	acked      int // bytes the server has confirmed receiving so far

	curExchange *Exchange
	curNum      uint32
	curMore     bool
	curChunkLen int

	done bool
}

func newBlockwiseRequest(ep *Endpoint, req *Request, peer net.Addr, cfg *config) *blockwiseRequest {
	szx, _ := coapmsg.BytesToSZX(cfg.blockSize)
	return &blockwiseRequest{
		endpoint:   ep,
		req:        req,
		peer:       peer,
		cfg:        cfg,
		token:      uniqueToken(ep.tokenGen, ep.tokenCollides),
		events:     NewEmitter(),
		currentSZX: szx,
	}
}

func (bw *blockwiseRequest) start() {
	bw.sendNextBlock()
}

func (bw *blockwiseRequest) remaining() []byte {
	s := coapmsg.SZXToBytes(bw.currentSZX)
	end := bw.acked + s
	if end > len(bw.req.Payload) {
		end = len(bw.req.Payload)
	}
	return bw.req.Payload[bw.acked:end]
}

func (bw *blockwiseRequest) sendNextBlock() {
	s := coapmsg.SZXToBytes(bw.currentSZX)
	chunk := bw.remaining()
	num := uint32(bw.acked / s)
	more := bw.acked+len(chunk) < len(bw.req.Payload)

	msg := bw.req.toMessage(bw.token, bw.endpoint.nextMessageID())
	msg.Payload = chunk
	if err := msg.SetBlock1(coapmsg.BlockValue{Num: num, More: more, SZX: bw.currentSZX}); err != nil {
		bw.events.Emit(Event{Name: EventError, Err: err})
		return
	}

	ex := newExchange(bw.endpoint, bw.token, bw.peer, bw.cfg)
	ex.blockwise = true
	ex.Events.On(EventAcknowledged, func(ev Event) { bw.events.Emit(ev) })
	ex.Events.On(EventReset, func(ev Event) { bw.events.Emit(ev); bw.destroy() })
	ex.Events.On(EventTransactionTimeout, func(ev Event) { bw.events.Emit(Event{Name: EventTimeout, Err: ev.Err}); bw.destroy() })
	ex.Events.On(EventTimeout, func(ev Event) { bw.events.Emit(Event{Name: EventTimeout, Err: ev.Err}); bw.destroy() })
	ex.onAcknowledged = bw.handleAcknowledged

	bw.curExchange = ex
	bw.curNum = num
	bw.curMore = more
	bw.curChunkLen = len(chunk)

	if err := ex.send(msg); err != nil {
		bw.events.Emit(Event{Name: EventError, Err: err})
	}
}

// handleAcknowledged implements spec.md §4.E step 4. It always returns
// true: the Block1 driver fully owns completion/advancement logic and
// never lets the Exchange fall through to its default piggyback
// handling, since every ACK here is block-scoped, not the final
// response, until proven otherwise.
func (bw *blockwiseRequest) handleAcknowledged(ack *coapmsg.Message) bool {
	bv, present, err := ack.GetBlock1()
	if !present || err != nil {
		// No Block1 option at all, or an undecodable one: protocol
		// error. Don't advance; exchangeTimeout will close this out.
		logrus.WithField("token", bw.token).Debug("coap: ack missing usable Block1 option, waiting for exchange timeout")
		return true
	}

	if bv.Num != bw.curNum {
		// Stale duplicate for a different block: discard.
		return true
	}

	switch {
	case bv.SZX > bw.currentSZX && !bw.cfg.allowSZXGrowth:
		// Server asked to grow beyond the client's cap. Ignored by
		// default policy (spec.md §9 Open Question); exchangeTimeout
		// will close the request.
		return true
	case bv.SZX > bw.currentSZX:
		bw.currentSZX = bv.SZX
		bw.advance(ack, bw.curChunkLen)
	case bv.SZX < bw.currentSZX:
		newSize := coapmsg.SZXToBytes(bv.SZX)
		accepted := bw.curChunkLen
		if accepted > newSize {
			accepted = newSize
		}
		bw.currentSZX = bv.SZX
		bw.advance(ack, accepted)
	default:
		bw.advance(ack, bw.curChunkLen)
	}
	return true
}

// advance records that acceptedBytes of the in-flight chunk are now
// confirmed, emits block sent, and either completes the request or
// sends the next block. Either way the just-acked block's Exchange has
// served its purpose: it owns no response we still need, so it is
// completed here rather than left to expire on its own exchange-lifetime
// timer 247s later.
func (bw *blockwiseRequest) advance(ack *coapmsg.Message, acceptedBytes int) {
	bw.acked += acceptedBytes
	bw.events.Emit(Event{Name: EventBlockSent, Message: ack})

	ackedExchange := bw.curExchange

	if bw.acked >= len(bw.req.Payload) && !bw.curMore {
		bw.events.Emit(Event{Name: EventResponse, Message: ack})
		bw.destroy()
		ackedExchange.complete()
		return
	}
	bw.sendNextBlock()
	ackedExchange.complete()
}

func (bw *blockwiseRequest) destroy() {
	bw.done = true
}

func (bw *blockwiseRequest) cancel() {
	if bw.done {
		return
	}
	bw.done = true
	if bw.curExchange != nil {
		bw.curExchange.cancel()
	}
}
