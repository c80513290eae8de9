package homeassistant

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DiscoveryTracker remembers which discovery documents have been sent so a
// long-running bridge only republishes them when Home Assistant may have lost
// them. It is safe for concurrent use; Reset is called from MQTT callbacks.
type DiscoveryTracker struct {
	mu       sync.Mutex
	sent     map[string]bool
	interval time.Duration
	lastFull time.Time
	now      func() time.Time
	logger   zerolog.Logger
}

// NewDiscoveryTracker creates a tracker. A zero interval disables periodic rediscovery.
func NewDiscoveryTracker(interval time.Duration) *DiscoveryTracker {
	return &DiscoveryTracker{
		sent:     make(map[string]bool),
		interval: interval,
		now:      time.Now,
		logger:   log.With().Str("component", "discovery").Logger(),
	}
}

// BeginPass starts a publishing pass. When the rediscovery interval has
// elapsed the cache is cleared so every document is sent again.
func (t *DiscoveryTracker) BeginPass() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interval <= 0 || t.lastFull.IsZero() {
		return
	}
	if t.now().Sub(t.lastFull) >= t.interval {
		t.logger.Info().Dur("interval", t.interval).Msg("Rediscovery interval elapsed, resending discovery")
		t.clear()
	}
}

// Due reports whether the discovery document on topic must be published.
func (t *DiscoveryTracker) Due(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.sent[topic]
}

// MarkSent records a successful discovery publish.
func (t *DiscoveryTracker) MarkSent(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sent) == 0 {
		t.lastFull = t.now()
	}
	t.sent[topic] = true
}

// Reset forgets every sent document.
func (t *DiscoveryTracker) Reset(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.Info().Str("reason", reason).Msg("Cleared discovery cache")
	t.clear()
}

// Sent returns the number of documents currently considered delivered.
func (t *DiscoveryTracker) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *DiscoveryTracker) clear() {
	t.sent = make(map[string]bool)
	t.lastFull = time.Time{}
}
