package pubsub

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// mockClient is a testify mock of mqtt.Client.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) IsConnected() bool      { return m.Called().Bool(0) }
func (m *mockClient) IsConnectionOpen() bool { return m.Called().Bool(0) }

func (m *mockClient) Connect() mqtt.Token {
	return m.Called().Get(0).(mqtt.Token)
}

func (m *mockClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(mqtt.Token)
}

func (m *mockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.Called(topic, qos, callback).Get(0).(mqtt.Token)
}

func (m *mockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.Called(filters, callback).Get(0).(mqtt.Token)
}

func (m *mockClient) Unsubscribe(topics ...string) mqtt.Token {
	return m.Called(topics).Get(0).(mqtt.Token)
}

func (m *mockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	m.Called(topic, callback)
}

func (m *mockClient) OptionsReader() mqtt.ClientOptionsReader {
	return m.Called().Get(0).(mqtt.ClientOptionsReader)
}

// mockToken is a testify mock of mqtt.Token.
type mockToken struct {
	mock.Mock
}

func (m *mockToken) Wait() bool { return m.Called().Bool(0) }

func (m *mockToken) WaitTimeout(d time.Duration) bool { return m.Called(d).Bool(0) }

func (m *mockToken) Done() <-chan struct{} {
	return m.Called().Get(0).(chan struct{})
}

func (m *mockToken) Error() error { return m.Called().Error(0) }

// doneToken returns a token that has already completed with err.
func doneToken(err error) *mockToken {
	done := make(chan struct{})
	close(done)

	tok := &mockToken{}
	tok.On("Done").Return(done)
	tok.On("Error").Return(err)
	return tok
}

// mockMessage is a simple test implementation of MQTT Message interface
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
