package pubsub

import (
	"context"
	"testing"

	"github.com/resident-x/go-aims/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPublisher(t *testing.T) {
	publisher := NewLogPublisher()
	ctx := context.Background()

	require.NoError(t, publisher.Connect(ctx))
	require.NoError(t, publisher.Publish(ctx, "homeassistant/sensor/aims/batteryvoltage/config", []byte("{}"), true))
	require.NoError(t, publisher.Publish(ctx, "inverter/aims/batteryvoltage", []byte("13.6"), false))
	require.NoError(t, publisher.Close())

	assert.Equal(t, []domain.Message{
		{Topic: "homeassistant/sensor/aims/batteryvoltage/config", Payload: []byte("{}"), Retained: true},
		{Topic: "inverter/aims/batteryvoltage", Payload: []byte("13.6"), Retained: false},
	}, publisher.Messages())
}

func TestPublishersImplementMessagePublisher(t *testing.T) {
	var _ domain.MessagePublisher = (*MQTTPublisher)(nil)
	var _ domain.MessagePublisher = (*LogPublisher)(nil)
}
