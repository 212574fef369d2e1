package coap

import "time"

// Default timing constants from RFC 7252 §4.8 and spec's §6 configuration
// table.
const (
	DefaultAckTimeout      = 2000 * time.Millisecond
	DefaultAckRandomFactor = 1.5
	DefaultMaxRetransmit   = 4

	// DefaultExchangeTimeout follows RFC 7252 §4.8.2:
	// ACK_TIMEOUT * ((2**MAX_RETRANSMIT) - 1) * ACK_RANDOM_FACTOR
	//   + (2 * MAX_LATENCY) + PROCESSING_DELAY
	// with MAX_LATENCY=100s, PROCESSING_DELAY=2s, rounded to the RFC's
	// quoted value.
	DefaultExchangeTimeout = 247 * time.Second
)

// config holds the per-request tunables a caller can override with
// Option values. Unset fields fall back to the package defaults.
type config struct {
	blockSize       int // 0 means "no blockwise segmentation"
	exchangeTimeout time.Duration
	ackTimeout      time.Duration
	ackRandomFactor float64
	maxRetransmit   int
	contentFormat   uint16
	hasContentFormat bool
	allowSZXGrowth  bool
	// retransmitSchedule, if non-nil, replaces the random backoff with a
	// fixed sequence of per-attempt timeouts, for deterministic tests
	// (spec.md §4.C).
	retransmitSchedule []time.Duration
}

func newConfig(opts ...Option) *config {
	c := &config{
		exchangeTimeout: DefaultExchangeTimeout,
		ackTimeout:      DefaultAckTimeout,
		ackRandomFactor: DefaultAckRandomFactor,
		maxRetransmit:   DefaultMaxRetransmit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a single request submitted to an Endpoint.
type Option func(*config)

// WithBlockSize segments the request payload at the given granularity
// (must be a power of two in 16..1024) and caps any server-negotiated
// growth at this size unless WithAllowSZXGrowth is also set.
func WithBlockSize(bytes int) Option {
	return func(c *config) { c.blockSize = bytes }
}

// WithExchangeTimeout overrides the exchange lifetime timer.
func WithExchangeTimeout(d time.Duration) Option {
	return func(c *config) { c.exchangeTimeout = d }
}

// WithAckTimeout overrides the initial confirmable retransmit timer.
func WithAckTimeout(d time.Duration) Option {
	return func(c *config) { c.ackTimeout = d }
}

// WithAckRandomFactor overrides the jitter multiplier applied to
// AckTimeout when choosing the first retransmit deadline.
func WithAckRandomFactor(f float64) Option {
	return func(c *config) { c.ackRandomFactor = f }
}

// WithMaxRetransmit overrides the retransmission budget.
func WithMaxRetransmit(n int) Option {
	return func(c *config) { c.maxRetransmit = n }
}

// WithContentFormat sets the Content-Format option on the request.
func WithContentFormat(format uint16) Option {
	return func(c *config) {
		c.contentFormat = format
		c.hasContentFormat = true
	}
}

// WithAllowSZXGrowth opts into RFC 7959 §2.5's literal recommendation
// that the client follow a server's larger negotiated block size.
// Default is false: a server-requested increase is ignored and the
// exchange is left to time out (see spec.md §9 Open Question).
func WithAllowSZXGrowth(allow bool) Option {
	return func(c *config) { c.allowSZXGrowth = allow }
}

// WithRetransmitSchedule replaces the random exponential backoff with a
// fixed sequence of per-attempt timeouts. Intended for tests asserting
// an exact retransmit timeline (spec.md §8 Scenario 3).
func WithRetransmitSchedule(schedule ...time.Duration) Option {
	return func(c *config) { c.retransmitSchedule = schedule }
}
