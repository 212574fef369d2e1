package coap

import (
	"testing"
	"time"

	"github.com/lobaro/coap-client/coapmsg"
)

// recorder captures the EventName sequence fired on an Emitter, in
// order, for assertions against spec.md §8's scenario event sequences.
type recorder struct {
	names []EventName
}

func (r *recorder) attach(e *Emitter) {
	for _, name := range []EventName{
		EventAcknowledged, EventBlockSent, EventResponse, EventTimeout,
		EventTransactionTimeout, EventReset, EventError,
	} {
		e.On(name, func(ev Event) { r.names = append(r.names, ev.Name) })
	}
}

func lastSent(s *MockSocket) *coapmsg.Message {
	msg, _ := coapmsg.ParseMessage(s.Sent[len(s.Sent)-1].Bytes)
	return &msg
}

// TestBlockwiseSZXGrowthIgnored reproduces spec.md §8 Scenario 1: a
// server trying to renegotiate to a larger block size than the client
// requested is ignored, and the exchange is left to time out.
func TestBlockwiseSZXGrowthIgnored(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	socket := NewMockSocket()
	ep := NewEndpoint(socket, clock, NewCountingTokenGenerator())
	peer := testPeer()

	payload := make([]byte, 200) // 2 blocks at blockSize=128: 128 + 72
	req, err := NewRequest("PUT", "coap://localhost/blocks/put", payload, WithBlockSize(128))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	events, _ := ep.Do(req, peer)
	rec := &recorder{}
	rec.attach(events)

	if len(socket.Sent) != 1 {
		t.Fatalf("sent %d datagrams, want 1", len(socket.Sent))
	}
	block0, _, _ := lastSent(socket).GetBlock1()
	if block0.Num != 0 || !block0.More || block0.SZX != 3 {
		t.Fatalf("block0 = %+v, want {0 true 3}", block0)
	}

	// ACK block 0 at the expected size.
	ack0 := coapmsg.NewMessage()
	ack0.Type = coapmsg.Acknowledgement
	ack0.Code = coapmsg.Changed
	ack0.MessageID = lastSent(socket).MessageID
	ack0.Token = lastSent(socket).Token
	ack0.SetBlock1(coapmsg.BlockValue{Num: 0, More: true, SZX: 3})
	b, _ := ack0.Encode(0)
	socket.Deliver(b, peer)

	if len(socket.Sent) != 2 {
		t.Fatalf("sent %d datagrams after ack0, want 2", len(socket.Sent))
	}
	block1, _, _ := lastSent(socket).GetBlock1()
	if block1.Num != 1 || block1.More || block1.SZX != 3 {
		t.Fatalf("block1 = %+v, want {1 false 3}", block1)
	}

	// Server tries to grow the size on block 1's ACK.
	ack1 := coapmsg.NewMessage()
	ack1.Type = coapmsg.Acknowledgement
	ack1.Code = coapmsg.Changed
	ack1.MessageID = lastSent(socket).MessageID
	ack1.Token = lastSent(socket).Token
	ack1.SetBlock1(coapmsg.BlockValue{Num: 1, More: false, SZX: 4})
	b, _ = ack1.Encode(0)
	socket.Deliver(b, peer)

	if len(socket.Sent) != 2 {
		t.Fatalf("sent %d datagrams after growth ack, want 2 (no further send)", len(socket.Sent))
	}

	clock.Advance(DefaultExchangeTimeout + time.Second)

	want := []EventName{EventAcknowledged, EventBlockSent, EventAcknowledged, EventTimeout}
	if !eventsEqual(rec.names, want) {
		t.Fatalf("events = %v, want %v", rec.names, want)
	}
}

// TestBlockwiseUnexpectedBlock1OnNonBlockwiseRequest reproduces
// spec.md §8 Scenario 2.
func TestBlockwiseUnexpectedBlock1OnNonBlockwiseRequest(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	socket := NewMockSocket()
	ep := NewEndpoint(socket, clock, NewCountingTokenGenerator())
	peer := testPeer()

	req, err := NewRequest("POST", "coap://localhost/unexpected-block1", []byte("Lorem ipsum..."))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	events, _ := ep.Do(req, peer)
	rec := &recorder{}
	rec.attach(events)

	if len(socket.Sent) != 1 {
		t.Fatalf("sent %d datagrams, want 1", len(socket.Sent))
	}

	ack := coapmsg.NewMessage()
	ack.Type = coapmsg.Acknowledgement
	ack.Code = coapmsg.Created
	ack.MessageID = lastSent(socket).MessageID
	ack.Token = lastSent(socket).Token
	ack.SetBlock1(coapmsg.BlockValue{Num: 0, More: false, SZX: 5})
	b, _ := ack.Encode(0)
	socket.Deliver(b, peer)

	clock.Advance(DefaultExchangeTimeout + time.Second)

	want := []EventName{EventAcknowledged, EventTimeout}
	if !eventsEqual(rec.names, want) {
		t.Fatalf("events = %v, want %v", rec.names, want)
	}
}

// TestFullRetransmissionTimeoutDuringBlock reproduces spec.md §8
// Scenario 3: block 0 is acknowledged, block 1 never is, and the
// transaction's retransmit budget is eventually exhausted.
func TestFullRetransmissionTimeoutDuringBlock(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	socket := NewMockSocket()
	ep := NewEndpoint(socket, clock, NewCountingTokenGenerator())
	peer := testPeer()

	payload := make([]byte, 200)
	req, err := NewRequest("PUT", "coap://localhost/blocks/put", payload,
		WithBlockSize(128),
		WithRetransmitSchedule(2000*time.Millisecond, 4000*time.Millisecond, 8000*time.Millisecond, 16000*time.Millisecond, 32000*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	events, _ := ep.Do(req, peer)
	rec := &recorder{}
	rec.attach(events)

	ack0 := coapmsg.NewMessage()
	ack0.Type = coapmsg.Acknowledgement
	ack0.Code = coapmsg.Changed
	ack0.MessageID = lastSent(socket).MessageID
	ack0.Token = lastSent(socket).Token
	ack0.SetBlock1(coapmsg.BlockValue{Num: 0, More: true, SZX: 3})
	b, _ := ack0.Encode(0)
	socket.Deliver(b, peer)

	if len(socket.Sent) != 2 {
		t.Fatalf("sent %d datagrams after ack0, want 2", len(socket.Sent))
	}

	// No ACK ever arrives for block 1: drive the clock through the full
	// retransmit budget (5 sends total for block 1, then TimedOut).
	clock.Advance(2000 * time.Millisecond)
	clock.Advance(4000 * time.Millisecond)
	clock.Advance(8000 * time.Millisecond)
	clock.Advance(16000 * time.Millisecond)
	if len(socket.Sent) != 6 { // 1 (block0) + 5 (block1: initial + 4 retransmits)
		t.Fatalf("sent %d datagrams before budget exhausted, want 6", len(socket.Sent))
	}
	clock.Advance(32000 * time.Millisecond)

	want := []EventName{EventAcknowledged, EventBlockSent, EventTimeout}
	if !eventsEqual(rec.names, want) {
		t.Fatalf("events = %v, want %v", rec.names, want)
	}
}

// TestDuplicateConResponseIgnored reproduces spec.md §8 Scenario 5.
func TestDuplicateConResponseIgnored(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	socket := NewMockSocket()
	ep := NewEndpoint(socket, clock, NewCountingTokenGenerator())
	peer := testPeer()

	req, err := NewRequest("GET", "coap://localhost/temperature", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	events, _ := ep.Do(req, peer)
	rec := &recorder{}
	rec.attach(events)

	ack := coapmsg.NewMessage()
	ack.Type = coapmsg.Acknowledgement
	ack.Code = coapmsg.Content
	ack.MessageID = lastSent(socket).MessageID
	ack.Token = lastSent(socket).Token
	ack.Payload = []byte("22.5 C")
	b, _ := ack.Encode(0)

	socket.Deliver(b, peer)
	socket.Deliver(b, peer) // duplicate

	want := []EventName{EventAcknowledged, EventResponse}
	if !eventsEqual(rec.names, want) {
		t.Fatalf("events = %v, want %v (duplicate must not re-fire)", rec.names, want)
	}
}

func eventsEqual(got, want []EventName) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
