// Package emitter owns the MQTT connection shared by the gesture sink, the
// health publisher and the control plane.
package emitter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/internal/logging"
)

// Config configures the MQTT connection.
type Config struct {
	Broker   string // host:port or a full URL
	ClientID string

	ConnectTimeout time.Duration // default 5s
	PublishTimeout time.Duration // default 2s
	Logger         *zap.Logger
}

// MQTTEmitter publishes messages to an MQTT broker with automatic
// reconnection.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	logger *zap.Logger

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter. Call Connect before publishing.
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &MQTTEmitter{
		cfg:       cfg,
		logger:    logging.OrNop(cfg.Logger).Named("mqtt"),
		published: make(map[string]uint64),
	}
}

// BrokerURL normalizes host:port to tcp://host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the connection, waiting up to ConnectTimeout.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established",
			zap.String("broker", e.cfg.Broker),
			zap.String("client_id", e.cfg.ClientID),
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect",
			zap.Error(err),
			zap.String("broker", e.cfg.Broker),
		)
	}

	e.client = mqtt.NewClient(opts)
	e.logger.Info("connecting to mqtt broker", zap.String("broker", e.cfg.Broker))

	token := e.client.Connect()
	if err := waitToken(ctx, token, e.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Publish sends payload to topic, waiting up to PublishTimeout.
func (e *MQTTEmitter) Publish(topic string, qos byte, payload []byte) error {
	if !e.IsConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	token := e.client.Publish(topic, qos, false, payload)
	if err := waitToken(context.Background(), token, e.cfg.PublishTimeout); err != nil {
		e.countError()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("mqtt message published",
		zap.String("topic", topic),
		zap.Uint8("qos", qos),
		zap.Int("size", len(payload)),
	)
	return nil
}

// Subscribe registers handler for topic.
func (e *MQTTEmitter) Subscribe(topic string, qos byte, handler func(payload []byte)) error {
	if e.client == nil {
		return fmt.Errorf("mqtt not connected")
	}
	token := e.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if err := waitToken(context.Background(), token, e.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes the subscription to topic.
func (e *MQTTEmitter) Unsubscribe(topic string) error {
	if e.client == nil || !e.client.IsConnected() {
		return nil
	}
	return waitToken(context.Background(), e.client.Unsubscribe(topic), e.cfg.PublishTimeout)
}

// Disconnect closes the connection with a 250ms grace period.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// IsConnected reports the last known connection state.
func (e *MQTTEmitter) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns a snapshot of the counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// waitToken waits for token completion, the timeout or ctx.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
