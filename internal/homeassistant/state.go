package homeassistant

import (
	"context"
	"fmt"

	"github.com/resident-x/go-aims/internal/domain"
)

// StatePayload renders a metric value as its state message body.
func StatePayload(v domain.Value) []byte {
	return []byte(v.Render())
}

// PublishState publishes the current, non-retained value of a metric.
func PublishState(ctx context.Context, bus domain.MessagePublisher, t Topics, m Metric, v domain.Value) error {
	topic := t.StateTopic(m)
	if err := bus.Publish(ctx, topic, StatePayload(v), false); err != nil {
		return fmt.Errorf("%w: state %s: %w", domain.ErrPublish, topic, err)
	}
	return nil
}
