package coap

import "github.com/lobaro/coap-client/coapmsg"

// EventName identifies one of the event kinds a Request's observer set
// can fire. There is no wildcard listener (spec.md §4.F / §9).
type EventName string

const (
	EventAcknowledged       EventName = "acknowledged"
	EventBlockSent          EventName = "block sent"
	EventResponse           EventName = "response"
	EventTimeout            EventName = "timeout"
	EventTransactionTimeout EventName = "transaction timeout"
	EventReset              EventName = "reset"
	EventError              EventName = "error"
	// EventCancelled is never Emitted: Exchange.cancel tears everything
	// down with no further events (spec.md §5). The constant exists so
	// a caller matching on EventName exhaustively still has a name for
	// "this will not fire after cancel" rather than an undocumented gap.
	EventCancelled EventName = "cancelled"
)

// Event is the payload delivered to a listener. Only the fields
// relevant to Name are populated; the rest are zero.
type Event struct {
	Name    EventName
	Message *coapmsg.Message // acknowledged, block sent, response, reset
	Err     error             // error, timeout, transaction timeout, reset
}

// Listener is a single observer callback.
type Listener func(Event)

// Emitter is an explicit, named observer set: a mapping from event name
// to an ordered list of listeners, invoked synchronously, in
// registration order, on whatever goroutine calls Emit. Nothing is
// buffered; a listener registered after an event fired never sees it.
type Emitter struct {
	listeners map[EventName][]Listener
}

func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[EventName][]Listener)}
}

// On registers fn to be called for every future Event named name.
func (e *Emitter) On(name EventName, fn Listener) {
	e.listeners[name] = append(e.listeners[name], fn)
}

// Emit invokes every listener registered for ev.Name, in registration
// order, to completion, before returning.
func (e *Emitter) Emit(ev Event) {
	for _, l := range e.listeners[ev.Name] {
		l(ev)
	}
}
