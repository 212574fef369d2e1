package coap

import (
	"math/rand"
	"net"
	"time"

	"github.com/lobaro/coap-client/coapmsg"
	"github.com/sirupsen/logrus"
)

// TransactionState is the state of a single CON datagram on the wire
// (spec.md §4.C).
type TransactionState int

const (
	Pending TransactionState = iota
	Acked
	Reset
	TimedOut
)

func (s TransactionState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Acked:
		return "Acked"
	case Reset:
		return "Reset"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Transaction is the retransmission state machine for a single CON
// message. It owns nothing but its own retransmit timer; the Endpoint
// owns the (peer, mid) lookup entry and the socket.
type Transaction struct {
	Mid   uint16
	Token []byte
	Peer  net.Addr

	encoded         []byte
	State           TransactionState
	retransmitCount int
	cancelTimer     CancelFunc

	clock  Clock
	socket Socket
	cfg    *config

	// onAck fires once, with the ACK or RST message, when the
	// transaction leaves Pending for any reason other than TimedOut.
	// reset is true when the message was a RST rather than an ACK.
	onAck func(msg *coapmsg.Message, reset bool)
	// onTimeout fires once the retransmit budget is exhausted without
	// an ACK or RST.
	onTimeout func()
}

func newTransaction(mid uint16, token []byte, peer net.Addr, encoded []byte, clock Clock, socket Socket, cfg *config) *Transaction {
	return &Transaction{
		Mid:     mid,
		Token:   token,
		Peer:    peer,
		encoded: encoded,
		State:   Pending,
		clock:   clock,
		socket:  socket,
		cfg:     cfg,
	}
}

// start transmits the datagram for the first time and arms the initial
// retransmit timer. Non-confirmable sends never retransmit: the caller
// should not call start for a NON message, only send() once directly.
func (t *Transaction) start() {
	t.send()
	t.arm(t.initialDelay())
}

func (t *Transaction) send() {
	logrus.WithFields(logrus.Fields{
		"mid":     t.Mid,
		"attempt": t.retransmitCount,
		"peer":    t.Peer,
	}).Debug("coap: sending confirmable datagram")
	if err := t.socket.Send(t.encoded, t.Peer); err != nil {
		logrus.WithError(err).Warn("coap: socket send failed")
	}
}

// initialDelay returns T0, the timeout before the first retransmit:
// either the fixed test schedule's first entry, or a uniform random
// value in [ackTimeout, ackTimeout*ackRandomFactor] (spec.md §4.C).
func (t *Transaction) initialDelay() time.Duration {
	if sched := t.cfg.retransmitSchedule; len(sched) > 0 {
		return sched[0]
	}
	lo := float64(t.cfg.ackTimeout)
	hi := lo * t.cfg.ackRandomFactor
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

func (t *Transaction) arm(delay time.Duration) {
	t.cancelTimer = t.clock.Schedule(delay, func() { t.fire(delay) })
}

// fire is invoked when a retransmit timer elapses. prevDelay is the
// delay that just elapsed, needed to double it for the next attempt.
func (t *Transaction) fire(prevDelay time.Duration) {
	if t.State != Pending {
		return
	}
	t.retransmitCount++
	if t.retransmitCount > t.cfg.maxRetransmit {
		t.State = TimedOut
		logrus.WithField("mid", t.Mid).Debug("coap: transaction retransmit budget exhausted")
		if t.onTimeout != nil {
			t.onTimeout()
		}
		return
	}
	t.send()
	next := prevDelay * 2
	if sched := t.cfg.retransmitSchedule; len(sched) > 0 {
		if t.retransmitCount < len(sched) {
			next = sched[t.retransmitCount]
		} else {
			next = sched[len(sched)-1]
		}
	}
	t.arm(next)
}

// handleAck transitions the transaction out of Pending on receipt of a
// matching ACK. Safe to call multiple times: once the transaction has
// left Pending, later calls are no-ops. In practice duplicates rarely
// reach here, since the owning Exchange unregisters the (peer, mid)
// entry on the first ACK and the Endpoint drops unmatched ACKs.
func (t *Transaction) handleAck(msg *coapmsg.Message) {
	if t.State != Pending {
		return
	}
	t.State = Acked
	if t.cancelTimer != nil {
		t.cancelTimer()
	}
	if t.onAck != nil {
		t.onAck(msg, false)
	}
}

// handleReset transitions the transaction to Reset on receipt of a
// matching RST.
func (t *Transaction) handleReset(msg *coapmsg.Message) {
	if t.State != Pending {
		return
	}
	t.State = Reset
	if t.cancelTimer != nil {
		t.cancelTimer()
	}
	if t.onAck != nil {
		t.onAck(msg, true)
	}
}

// cancel aborts the transaction with no further events: no retransmit,
// no timeout, no callback (spec.md §5 cancellation semantics).
func (t *Transaction) cancel() {
	if t.cancelTimer != nil {
		t.cancelTimer()
	}
	t.onAck = nil
	t.onTimeout = nil
	t.State = TimedOut
}
