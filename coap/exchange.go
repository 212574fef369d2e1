package coap

import (
	"net"

	"github.com/lobaro/coap-client/coapmsg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Exchange is one logical request/response on an Endpoint: it owns a
// single active Transaction at a time and the exchange-lifetime timer
// that bounds how long a separate (non-piggybacked) response may still
// arrive (spec.md §4.D).
type Exchange struct {
	Token []byte
	Peer  net.Addr

	endpoint *Endpoint
	tx       *Transaction
	Events   *Emitter
	cfg      *config

	deadlineCancel CancelFunc
	done           bool

	// blockwise marks an Exchange created for one segment of a
	// BlockwiseRequest. A plain (non-blockwise) Exchange receiving a
	// response carrying a Block1 option is an UnexpectedOption
	// per spec.md §4.D: acknowledged still fires, but the exchange is
	// not completed.
	blockwise bool

	// onAcknowledged, when set (by the Block1 driver), intercepts every
	// ACK before the default piggyback/separate-response handling runs.
	// Returning true means the driver has fully handled the ACK and the
	// Exchange should take no further default action.
	onAcknowledged func(ack *coapmsg.Message) (handled bool)
}

func newExchange(ep *Endpoint, token []byte, peer net.Addr, cfg *config) *Exchange {
	return &Exchange{
		Token:    token,
		Peer:     peer,
		endpoint: ep,
		Events:   NewEmitter(),
		cfg:      cfg,
	}
}

// send encodes and transmits msg as this exchange's active transaction.
func (ex *Exchange) send(msg coapmsg.Message) error {
	encoded, err := msg.Encode(0)
	if err != nil {
		return err
	}
	ex.endpoint.registerExchange(ex)
	ex.armDeadline()

	if msg.Type == coapmsg.NonConfirmable {
		if err := ex.endpoint.socket.Send(encoded, ex.Peer); err != nil {
			return errors.Wrap(ErrSocketError, err.Error())
		}
		return nil
	}

	mid := msg.MessageID
	tx := newTransaction(mid, ex.Token, ex.Peer, encoded, ex.endpoint.clock, ex.endpoint.socket, ex.cfg)
	tx.onAck = ex.handleTransactionAck
	tx.onTimeout = ex.handleTransactionTimeout
	ex.tx = tx
	ex.endpoint.registerTransaction(tx)
	tx.start()
	return nil
}

func (ex *Exchange) armDeadline() {
	if ex.deadlineCancel != nil {
		ex.deadlineCancel()
	}
	ex.deadlineCancel = ex.endpoint.clock.Schedule(ex.cfg.exchangeTimeout, ex.handleExchangeTimeout)
}

func (ex *Exchange) handleTransactionAck(msg *coapmsg.Message, reset bool) {
	if ex.done {
		return
	}
	ex.endpoint.unregisterTransaction(ex.tx)

	if reset {
		ex.Events.Emit(Event{Name: EventReset, Message: msg, Err: ErrReset})
		ex.complete()
		return
	}

	ex.Events.Emit(Event{Name: EventAcknowledged, Message: msg})

	if ex.onAcknowledged != nil {
		if ex.onAcknowledged(msg) {
			// The driver (e.g. the Block1 segmenter) owns this Exchange's
			// fate from here: it may already have completed it (advanced
			// to a new block, or finished the request) or may be leaving
			// it open on purpose, waiting out exchangeTimeout.
			return
		}
	}

	if !ex.blockwise {
		if _, present, _ := msg.GetBlock1(); present {
			// Unexpected Block1 on a request that never asked for one:
			// the transport-level ack is legitimate, but the response
			// is not trusted as final. Leave the exchange open for
			// exchangeTimeout to close it.
			return
		}
	}

	if msg.Code != coapmsg.Empty {
		// Piggybacked response.
		ex.Events.Emit(Event{Name: EventResponse, Message: msg})
		ex.complete()
		return
	}
	// Empty ACK: separate response expected later, matched by token.
	// The exchange-lifetime timer (already armed in send) bounds it.
}

func (ex *Exchange) handleTransactionTimeout() {
	if ex.done {
		return
	}
	logrus.WithField("token", ex.Token).Debug("coap: transaction timeout")
	ex.Events.Emit(Event{Name: EventTransactionTimeout, Err: ErrTransactionTimeout})
	ex.complete()
}

func (ex *Exchange) handleExchangeTimeout() {
	if ex.done {
		return
	}
	logrus.WithField("token", ex.Token).Debug("coap: exchange lifetime expired")
	ex.Events.Emit(Event{Name: EventTimeout, Err: ErrExchangeTimeout})
	ex.complete()
}

// deliverResponse is called by the Endpoint dispatch rule 2 (CON/NON
// carrying a response code, matched by token) for a separate response.
func (ex *Exchange) deliverResponse(msg *coapmsg.Message) {
	if ex.done {
		return
	}
	if msg.Type == coapmsg.Confirmable {
		ex.endpoint.sendAck(msg.MessageID, ex.Peer)
	}
	ex.Events.Emit(Event{Name: EventResponse, Message: msg})
	ex.complete()
}

// cancel tears down the exchange with no further events, per spec.md §5.
func (ex *Exchange) cancel() {
	if ex.done {
		return
	}
	ex.done = true
	if ex.tx != nil {
		ex.tx.cancel()
		ex.endpoint.unregisterTransaction(ex.tx)
	}
	if ex.deadlineCancel != nil {
		ex.deadlineCancel()
	}
	ex.endpoint.unregisterExchange(ex)
}

func (ex *Exchange) complete() {
	if ex.done {
		return
	}
	ex.done = true
	if ex.deadlineCancel != nil {
		ex.deadlineCancel()
	}
	ex.endpoint.unregisterExchange(ex)
}
