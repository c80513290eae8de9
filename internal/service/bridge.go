// Package service runs the inverter to MQTT bridge.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/resident-x/go-aims/internal/domain"
	"github.com/resident-x/go-aims/internal/homeassistant"
	"github.com/resident-x/go-aims/internal/parser"
	"github.com/resident-x/go-aims/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures a Bridge.
type Options struct {
	Topics      homeassistant.Topics
	DeviceJSON  string
	ExpireAfter int
	ReadTimeout time.Duration

	// Tracker suppresses discovery documents that were already delivered.
	// Nil sends every document on every run.
	Tracker *homeassistant.DiscoveryTracker
}

// Bridge reads one frame from the inverter per run and publishes it.
type Bridge struct {
	opts    Options
	open    domain.TransportOpener
	bus     domain.MessagePublisher
	catalog *homeassistant.Catalog
	parser  *parser.Parser
	logger  zerolog.Logger

	mu   sync.RWMutex
	last *RunResult
	runs int
}

// NewBridge creates a bridge.
func NewBridge(opts Options, open domain.TransportOpener, bus domain.MessagePublisher, catalog *homeassistant.Catalog) *Bridge {
	logger := log.With().Str("component", "bridge").Logger()
	return &Bridge{
		opts:    opts,
		open:    open,
		bus:     bus,
		catalog: catalog,
		parser:  parser.NewParser(logger),
		logger:  logger,
	}
}

// RunOnce performs one query, decode and publish cycle. It never retries.
func (b *Bridge) RunOnce(ctx context.Context) *RunResult {
	result := &RunResult{
		RunID:     uuid.NewString(),
		State:     StateIdle,
		StartedAt: time.Now(),
	}
	logger := b.logger.With().Str("run_id", result.RunID).Logger()

	b.run(ctx, logger, result)

	result.Duration = time.Since(result.StartedAt)
	switch {
	case result.State == StateFailed:
		result.Outcome = OutcomeAborted
		result.Error = result.Err.Error()
		logger.Error().Err(result.Err).Str("raw", result.Raw).Msg("Run aborted")
	case result.Failures() > 0:
		result.Outcome = OutcomePartial
		logger.Warn().
			Int("published", result.Published()).
			Int("failures", result.Failures()).
			Dur("duration", result.Duration).
			Msg("Run completed with publish failures")
	default:
		result.Outcome = OutcomeSuccess
		logger.Info().
			Int("published", result.Published()).
			Int("discovery_skipped", result.DiscoverySkipped).
			Dur("duration", result.Duration).
			Msg("Run completed")
	}

	b.mu.Lock()
	b.last = result
	b.runs++
	b.mu.Unlock()

	return result
}

func (b *Bridge) run(ctx context.Context, logger zerolog.Logger, result *RunResult) {
	if err := ctx.Err(); err != nil {
		b.fail(result, fmt.Errorf("%w: %w", domain.ErrTransport, err))
		return
	}

	raw, err := b.acquire(logger)
	if err != nil {
		b.fail(result, err)
		return
	}
	result.Raw = string(raw)
	result.State = StateFrameAcquired
	logger.Debug().Str("raw", result.Raw).Msg("Frame acquired")

	frame, err := b.parser.Parse(raw)
	if err != nil {
		b.fail(result, err)
		return
	}
	result.Frame = &frame
	result.State = StateParsed

	flags := parser.DecodeStatus(frame.StatusBits)
	result.Flags = &flags
	result.State = StateDecoded

	result.State = StatePublishing
	b.publish(ctx, logger, result, frame, flags)
	result.State = StateDone
}

// acquire opens the transport, sends the query and reads one line.
func (b *Bridge) acquire(logger zerolog.Logger) ([]byte, error) {
	t, err := b.open()
	if err != nil {
		return nil, transportErr(err)
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close transport")
		}
	}()

	raw, err := transport.Query(t, b.opts.ReadTimeout)
	if err != nil {
		return nil, transportErr(err)
	}
	return raw, nil
}

// publish sends discovery then state for each metric in catalog order.
// Failures are counted and skipped.
func (b *Bridge) publish(ctx context.Context, logger zerolog.Logger, result *RunResult, frame domain.InverterFrame, flags domain.StatusFlags) {
	if b.opts.Tracker != nil {
		b.opts.Tracker.BeginPass()
	}

	for _, m := range b.catalog.Metrics() {
		value := m.ValueOf(frame, flags)
		result.Readings = append(result.Readings, Reading{
			Name:       m.Name,
			Component:  m.Component,
			StateTopic: b.opts.Topics.StateTopic(m),
			Value:      value,
			Payload:    value.Render(),
		})

		b.publishDiscovery(ctx, logger, result, m)

		if err := homeassistant.PublishState(ctx, b.bus, b.opts.Topics, m, value); err != nil {
			result.StateFailed++
			logger.Warn().Err(err).Str("topic", b.opts.Topics.StateTopic(m)).Msg("State publish failed")
			continue
		}
		result.StateSent++
		logger.Debug().
			Str("topic", b.opts.Topics.StateTopic(m)).
			Str("payload", value.Render()).
			Msg("State published")
	}
}

func (b *Bridge) publishDiscovery(ctx context.Context, logger zerolog.Logger, result *RunResult, m homeassistant.Metric) {
	topic := b.opts.Topics.DiscoveryTopic(m)
	tracker := b.opts.Tracker

	if tracker != nil && !tracker.Due(topic) {
		result.DiscoverySkipped++
		return
	}

	if err := homeassistant.PublishDiscovery(ctx, b.bus, b.opts.Topics, b.opts.ExpireAfter, b.opts.DeviceJSON, m); err != nil {
		result.DiscoveryFailed++
		logger.Warn().Err(err).Str("topic", topic).Msg("Discovery publish failed")
		return
	}

	result.DiscoverySent++
	if tracker != nil {
		tracker.MarkSent(topic)
	}
	logger.Debug().Str("topic", topic).Msg("Discovery published")
}

func (b *Bridge) fail(result *RunResult, err error) {
	result.State = StateFailed
	result.Err = err
}

// transportErr makes sure err matches domain.ErrTransport.
func transportErr(err error) error {
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}

// LastResult returns the most recent run, or nil before the first run.
func (b *Bridge) LastResult() *RunResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// Runs returns the number of completed runs.
func (b *Bridge) Runs() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.runs
}

// Catalog returns the metric catalog the bridge publishes.
func (b *Bridge) Catalog() *homeassistant.Catalog {
	return b.catalog
}

// ValidationStatistics returns frame validation counters.
func (b *Bridge) ValidationStatistics() map[string]interface{} {
	return b.parser.GetValidationStatistics()
}
