package pubsub

import (
	"context"
	"sync"

	"github.com/resident-x/go-aims/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogPublisher logs every message instead of sending it. Used for dry runs.
type LogPublisher struct {
	logger zerolog.Logger

	mu       sync.Mutex
	messages []domain.Message
}

// NewLogPublisher creates a new dry-run publisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{
		logger: log.With().Str("component", "dry-run").Logger(),
	}
}

// Connect is a no-op for the LogPublisher.
func (p *LogPublisher) Connect(_ context.Context) error {
	p.logger.Info().Msg("Dry run: messages are logged, not published")
	return nil
}

// Publish logs the message and records it.
func (p *LogPublisher) Publish(_ context.Context, topic string, payload []byte, retained bool) error {
	p.mu.Lock()
	p.messages = append(p.messages, domain.Message{Topic: topic, Payload: payload, Retained: retained})
	p.mu.Unlock()

	p.logger.Info().
		Str("topic", topic).
		Bool("retained", retained).
		Bytes("payload", payload).
		Msg("Would publish")
	return nil
}

// Messages returns the messages logged so far.
func (p *LogPublisher) Messages() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close is a no-op for the LogPublisher.
func (p *LogPublisher) Close() error {
	return nil
}
