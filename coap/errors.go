package coap

import "github.com/pkg/errors"

// Error taxonomy for the EventError/Err field of terminal events. Each
// sentinel is attached to the Event that reports it, so callers can
// distinguish the reason with errors.Is.
var (
	ErrTransactionTimeout = errors.New("coap: transaction retransmit budget exhausted")
	ErrExchangeTimeout    = errors.New("coap: exchange lifetime exceeded")
	ErrReset              = errors.New("coap: peer sent RST")
	ErrSocketError        = errors.New("coap: socket error")
)
