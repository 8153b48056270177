package sink

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/gesture"
	"github.com/e7canasta/senyas-gesture/internal/logging"
)

// Publisher sends a payload to a topic. Implemented by emitter.MQTTEmitter.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// GestureMessage is the JSON payload published per observation.
type GestureMessage struct {
	InstanceID  string  `json:"instance_id"`
	Label       string  `json:"label"`
	Score       float32 `json:"score"`
	Text        string  `json:"text"`
	TimestampMs int64   `json:"timestamp_ms"`
	Hand        int     `json:"hand"`
	PublishedAt string  `json:"published_at"`
}

// MQTTConfig configures an MQTT sink.
type MQTTConfig struct {
	InstanceID string
	Topic      string
	QoS        byte
	QueueSize  int // default 16
	Logger     *zap.Logger
}

// MQTT publishes observations as JSON.
type MQTT struct {
	pub       Publisher
	cfg       MQTTConfig
	logger    *zap.Logger
	q         *queue[gesture.Observation]
	published atomic.Uint64
	errors    atomic.Uint64
	now       func() time.Time
}

// NewMQTT starts the publishing goroutine. Call Close to stop it.
func NewMQTT(pub Publisher, cfg MQTTConfig) *MQTT {
	m := &MQTT{
		pub:    pub,
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).Named("mqtt-sink"),
		now:    time.Now,
	}
	m.q = newQueue(cfg.QueueSize, m.publish)
	return m
}

func (m *MQTT) OnGesture(label string, score float32) {
	m.OnObservation(gesture.Observation{Label: label, Score: score})
}

func (m *MQTT) OnObservation(obs gesture.Observation) {
	if !m.q.push(obs) {
		m.logger.Debug("mqtt-sink: queue full, dropping observation", zap.String("label", obs.Label))
	}
}

func (m *MQTT) publish(obs gesture.Observation) {
	payload, err := json.Marshal(GestureMessage{
		InstanceID:  m.cfg.InstanceID,
		Label:       obs.Label,
		Score:       obs.Score,
		Text:        FormatGesture(obs.Label, obs.Score),
		TimestampMs: obs.TimestampMs,
		Hand:        obs.Hand,
		PublishedAt: m.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		m.errors.Add(1)
		m.logger.Error("mqtt-sink: marshal failed", zap.Error(err))
		return
	}
	if err := m.pub.Publish(m.cfg.Topic, m.cfg.QoS, payload); err != nil {
		m.errors.Add(1)
		m.logger.Warn("mqtt-sink: publish failed",
			zap.String("topic", m.cfg.Topic),
			zap.String("label", obs.Label),
			zap.Error(err),
		)
		return
	}
	m.published.Add(1)
}

// Close publishes what is queued and stops. Observations arriving after
// Close are dropped.
func (m *MQTT) Close() {
	m.q.close()
	st := m.Stats()
	m.logger.Info("mqtt-sink: stopped",
		zap.Uint64("published", st.Published),
		zap.Uint64("dropped", st.Dropped),
		zap.Uint64("errors", st.Errors),
	)
}

// QueueStats are the counters of a queued sink.
type QueueStats struct {
	Published uint64
	Dropped   uint64
	Errors    uint64
}

// Stats returns a counter snapshot.
func (m *MQTT) Stats() QueueStats {
	return QueueStats{
		Published: m.published.Load(),
		Dropped:   m.q.dropped.Load(),
		Errors:    m.errors.Load(),
	}
}
