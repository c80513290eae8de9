package domain

import "errors"

// Failure classes of a bridge run.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTransport is returned when the serial exchange fails, including timeouts.
	ErrTransport = errors.New("transport error")

	// ErrEncoding is returned when the response is not 7-bit ASCII.
	// It usually means line noise rather than a protocol problem.
	ErrEncoding = errors.New("encoding error")

	// ErrProtocol is returned when the response text does not match the Q1 frame grammar.
	ErrProtocol = errors.New("protocol error")

	// ErrPublish is returned when a message could not be handed to the bus.
	ErrPublish = errors.New("publish error")
)
