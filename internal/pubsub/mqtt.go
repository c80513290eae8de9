// Package pubsub provides implementations of message publishers.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/resident-x/go-aims/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Publish before Connect succeeds or after the
// broker connection is lost.
var ErrNotConnected = errors.New("mqtt client not connected")

// birthPayload is what Home Assistant publishes on its status topic when it starts.
const birthPayload = "online"

// MQTTPublisher implements the MessagePublisher interface for MQTT.
// Every message is sent with QoS 0.
type MQTTPublisher struct {
	config        *config.Config
	client        mqtt.Client
	clientFactory func(*mqtt.ClientOptions) mqtt.Client
	birthTopic    string
	logger        zerolog.Logger

	mu              sync.RWMutex
	connected       bool
	connects        int
	birthSubscribed bool
	onBirth         func()
	onReconnect     func()
}

// NewMQTTPublisher creates a new MQTT publisher. birthTopic is the Home
// Assistant status topic; it is only subscribed when birth messages are enabled.
func NewMQTTPublisher(cfg *config.Config, birthTopic string) *MQTTPublisher {
	return &MQTTPublisher{
		config:        cfg,
		clientFactory: mqtt.NewClient,
		birthTopic:    birthTopic,
		logger:        log.With().Str("component", "mqtt").Logger(),
	}
}

// NewMQTTPublisherWithClient creates a new MQTT publisher with a custom client (for testing).
func NewMQTTPublisherWithClient(cfg *config.Config, birthTopic string, client mqtt.Client) *MQTTPublisher {
	p := NewMQTTPublisher(cfg, birthTopic)
	p.client = client
	return p
}

// OnBirth registers fn to run when Home Assistant announces it is online.
func (p *MQTTPublisher) OnBirth(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onBirth = fn
}

// OnReconnect registers fn to run when the broker connection is re-established.
func (p *MQTTPublisher) OnReconnect(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReconnect = fn
}

// clientOptions builds the paho options for the configured broker.
func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	cfg := p.config
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)).
		SetClientID(clientID(cfg.MQTT.ClientID)).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.MQTT.ConnectTimeout).
		SetWriteTimeout(cfg.MQTT.PublishTimeout).
		SetKeepAlive(30 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	// Set credentials if provided
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	return opts
}

// clientID appends a random suffix so two bridges never steal each other's session.
func clientID(prefix string) string {
	if prefix == "" {
		prefix = "go-aims"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// Connect establishes a connection to the MQTT broker.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if p.client == nil {
		p.client = p.clientFactory(p.clientOptions())
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.config.MQTT.ConnectTimeout)
	defer cancel()

	connToken := p.client.Connect()

	select {
	case <-connectCtx.Done():
		return fmt.Errorf("failed to connect to MQTT broker: timeout after %s", p.config.MQTT.ConnectTimeout)
	case <-connToken.Done():
		if connToken.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", connToken.Error())
		}
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	p.logger.Info().
		Str("host", p.config.MQTT.Host).
		Int("port", p.config.MQTT.Port).
		Msg("Connected to MQTT broker")

	p.subscribeToBirthMessage()
	return nil
}

// handleConnect runs on every successful (re)connection.
func (p *MQTTPublisher) handleConnect(_ mqtt.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnected := p.connects > 1
	if reconnected {
		// A clean session drops subscriptions.
		p.birthSubscribed = false
	}
	onReconnect := p.onReconnect
	p.mu.Unlock()

	if !reconnected {
		return
	}

	p.logger.Info().Msg("MQTT connection re-established")
	if onReconnect != nil {
		onReconnect()
	}
	p.subscribeToBirthMessage()
}

// handleConnectionLost runs when paho detects a dropped connection.
func (p *MQTTPublisher) handleConnectionLost(_ mqtt.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.birthSubscribed = false
	p.mu.Unlock()

	p.logger.Warn().Err(err).Msg("MQTT connection lost")
}

// subscribeToBirthMessage subscribes to Home Assistant birth messages.
func (p *MQTTPublisher) subscribeToBirthMessage() {
	if !p.config.HomeAssistant.ListenToBirthMessage || p.birthTopic == "" {
		return
	}

	p.mu.RLock()
	skip := p.birthSubscribed || !p.connected
	p.mu.RUnlock()
	if skip {
		return
	}

	token := p.client.Subscribe(p.birthTopic, 0, p.handleBirthMessage)
	if !token.WaitTimeout(p.config.MQTT.ConnectTimeout) {
		p.logger.Warn().Str("topic", p.birthTopic).Msg("Timed out subscribing to birth message")
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn().Err(err).Str("topic", p.birthTopic).Msg("Failed to subscribe to birth message")
		return
	}

	p.mu.Lock()
	p.birthSubscribed = true
	p.mu.Unlock()

	p.logger.Info().Str("topic", p.birthTopic).Msg("Subscribed to Home Assistant birth messages")
}

// handleBirthMessage handles Home Assistant birth messages.
func (p *MQTTPublisher) handleBirthMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := string(msg.Payload())

	p.logger.Debug().
		Str("topic", msg.Topic()).
		Str("payload", payload).
		Msg("Received Home Assistant birth message")

	if payload != birthPayload {
		return
	}

	p.mu.RLock()
	onBirth := p.onBirth
	p.mu.RUnlock()

	p.logger.Info().Msg("Home Assistant came online, triggering auto-discovery refresh")
	if onBirth != nil {
		onBirth()
	}
}

// IsConnected reports whether the broker connection is up.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Publish sends payload to topic with QoS 0, bounded by ctx and mqtt.publish_timeout.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.config.MQTT.PublishTimeout)
	defer cancel()

	token := p.client.Publish(topic, 0, retained, payload)

	select {
	case <-publishCtx.Done():
		return fmt.Errorf("publish timeout: %w", publishCtx.Err())
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to publish message: %w", token.Error())
		}
	}

	p.logger.Debug().
		Str("topic", topic).
		Bool("retained", retained).
		Bytes("payload", payload).
		Msg("Published")
	return nil
}

// Close terminates the connection to the MQTT broker.
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.connected {
		p.client.Disconnect(250)
		p.connected = false
	}
	return nil
}
