package coap

import (
	"net"
	"testing"
	"time"

	"github.com/lobaro/coap-client/coapmsg"
)

func testPeer() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5683}
}

// TestTransactionFixedRetransmitSchedule reproduces spec.md §8 Scenario 3's
// exact retransmit timeline: sends at t=0, then t=2000, 6000, 14000, 30000
// (relative to the transaction's own start), five datagrams total, then
// TimedOut.
func TestTransactionFixedRetransmitSchedule(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	socket := NewMockSocket()
	cfg := newConfig(WithRetransmitSchedule(
		2000*time.Millisecond, 4000*time.Millisecond, 8000*time.Millisecond,
		16000*time.Millisecond, 32000*time.Millisecond,
	))

	var timedOut bool
	tx := newTransaction(1, []byte{0x01}, testPeer(), []byte("datagram"), clock, socket, cfg)
	tx.onTimeout = func() { timedOut = true }
	tx.start()

	if len(socket.Sent) != 1 {
		t.Fatalf("after start: %d datagrams sent, want 1", len(socket.Sent))
	}

	wantSendsAfter := []struct {
		advance   time.Duration
		wantCount int
	}{
		{2000 * time.Millisecond, 2},
		{4000 * time.Millisecond, 3},
		{8000 * time.Millisecond, 4},
		{16000 * time.Millisecond, 5},
	}
	for _, step := range wantSendsAfter {
		clock.Advance(step.advance)
		if len(socket.Sent) != step.wantCount {
			t.Fatalf("after advancing %v: %d datagrams sent, want %d", step.advance, len(socket.Sent), step.wantCount)
		}
	}

	if timedOut {
		t.Fatal("transaction timed out before the budget was exhausted")
	}

	clock.Advance(32000 * time.Millisecond)
	if len(socket.Sent) != 5 {
		t.Fatalf("final datagram count = %d, want 5 (no 6th retransmit)", len(socket.Sent))
	}
	if !timedOut {
		t.Fatal("expected transaction to report TimedOut after budget exhaustion")
	}
	if tx.State != TimedOut {
		t.Errorf("tx.State = %v, want TimedOut", tx.State)
	}
}

func TestTransactionAckCancelsRetransmit(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	socket := NewMockSocket()
	cfg := newConfig(WithRetransmitSchedule(2000 * time.Millisecond))

	var acked bool
	tx := newTransaction(1, []byte{0x01}, testPeer(), []byte("datagram"), clock, socket, cfg)
	tx.onAck = func(msg *coapmsg.Message, reset bool) { acked = true }
	tx.start()

	ack := coapmsg.NewAck(1)
	tx.handleAck(&ack)
	if !acked {
		t.Fatal("onAck callback was not invoked")
	}
	if tx.State != Acked {
		t.Errorf("tx.State = %v, want Acked", tx.State)
	}

	clock.Advance(10 * time.Second)
	if len(socket.Sent) != 1 {
		t.Errorf("datagrams sent after ack = %d, want 1 (no retransmit)", len(socket.Sent))
	}
}
