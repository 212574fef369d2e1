package coap

import (
	"net"

	"golang.org/x/sync/errgroup"
)

// Socket is the abstract transport capability the protocol core talks
// to. It collapses the teacher's PacketReader/PacketWriter pair and
// sckt.Socket interface into the single send/receive capability
// spec.md §9 calls for; real deployments back it with a UDP
// net.PacketConn, tests back it with an in-memory scripted mock.
type Socket interface {
	Send(b []byte, peer net.Addr) error
	// SetReceiver installs the callback invoked for every inbound
	// datagram. It is called once, by the Endpoint, at construction
	// time.
	SetReceiver(func(b []byte, peer net.Addr))
}

// UDPSocket adapts a net.PacketConn to Socket. Reading is inherently
// blocking, so it runs on its own goroutine managed by an
// errgroup.Group; each received datagram is copied and handed, still
// undecoded, to the receiver callback from that goroutine. Everything downstream of the receiver
// (Endpoint.receive and beyond) assumes it is invoked from whatever
// goroutine calls it, consistent with the single dispatch-loop model:
// callers embedding UDPSocket in a concurrent host must marshal the
// receiver callback back onto their own loop themselves.
type UDPSocket struct {
	conn     net.PacketConn
	receiver func(b []byte, peer net.Addr)
	group    *errgroup.Group
}

func NewUDPSocket(conn net.PacketConn) *UDPSocket {
	return &UDPSocket{conn: conn}
}

func (s *UDPSocket) Send(b []byte, peer net.Addr) error {
	_, err := s.conn.WriteTo(b, peer)
	return err
}

func (s *UDPSocket) SetReceiver(fn func(b []byte, peer net.Addr)) {
	s.receiver = fn
}

// Listen starts the blocking read loop on a managed goroutine. Calling
// Wait on the returned *errgroup.Group blocks until the socket is
// closed, returning the first error observed.
func (s *UDPSocket) Listen() *errgroup.Group {
	g := &errgroup.Group{}
	g.Go(func() error {
		buf := make([]byte, 64*1024)
		for {
			n, peer, err := s.conn.ReadFrom(buf)
			if err != nil {
				return err
			}
			if s.receiver != nil {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				s.receiver(cp, peer)
			}
		}
	})
	s.group = g
	return g
}

func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

// MockSocket is an in-memory, single-threaded Socket used by tests to
// script a session: expected outbound datagrams are recorded in Sent,
// and tests inject inbound datagrams by calling Deliver directly (no
// goroutine, no timing beyond what the test drives through a
// VirtualClock).
type MockSocket struct {
	Sent     []SentDatagram
	receiver func(b []byte, peer net.Addr)
}

type SentDatagram struct {
	Bytes []byte
	Peer  net.Addr
}

func NewMockSocket() *MockSocket {
	return &MockSocket{}
}

func (s *MockSocket) Send(b []byte, peer net.Addr) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	s.Sent = append(s.Sent, SentDatagram{Bytes: cp, Peer: peer})
	return nil
}

func (s *MockSocket) SetReceiver(fn func(b []byte, peer net.Addr)) {
	s.receiver = fn
}

// Deliver feeds an inbound datagram to the installed receiver,
// synchronously, as if it had just arrived on the wire.
func (s *MockSocket) Deliver(b []byte, peer net.Addr) {
	if s.receiver != nil {
		s.receiver(b, peer)
	}
}
