package sink

import (
	"fmt"
	"sync"
	"time"

	"github.com/e7canasta/senyas-gesture/gesture"
)

// WaitingText is shown before the first gesture arrives.
const WaitingText = "Waiting for gesture…"

// Latest holds the most recent observation for display.
type Latest struct {
	mu    sync.RWMutex
	obs   gesture.Observation
	at    time.Time
	seen  bool
	count uint64
	now   func() time.Time
}

// NewLatest creates an empty holder.
func NewLatest() *Latest {
	return &Latest{now: time.Now}
}

func (l *Latest) OnGesture(label string, score float32) {
	l.OnObservation(gesture.Observation{Label: label, Score: score})
}

func (l *Latest) OnObservation(obs gesture.Observation) {
	l.mu.Lock()
	l.obs = obs
	l.at = l.now()
	l.seen = true
	l.count++
	l.mu.Unlock()
}

// Snapshot is the state of a Latest.
type Snapshot struct {
	Label       string    `json:"label"`
	Score       float32   `json:"score"`
	TimestampMs int64     `json:"timestamp_ms"`
	ReceivedAt  time.Time `json:"received_at"`
	Count       uint64    `json:"count"`
	Text        string    `json:"text"`
}

// Get returns the latest observation and whether one arrived yet.
func (l *Latest) Get() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Label:       l.obs.Label,
		Score:       l.obs.Score,
		TimestampMs: l.obs.TimestampMs,
		ReceivedAt:  l.at,
		Count:       l.count,
		Text:        l.textLocked(),
	}, l.seen
}

// Text renders the current gesture as "open_palm  (92.0%)".
func (l *Latest) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.textLocked()
}

func (l *Latest) textLocked() string {
	if !l.seen {
		return WaitingText
	}
	return FormatGesture(l.obs.Label, l.obs.Score)
}

// FormatGesture renders a label with its score as a percentage. A blank
// label renders as "—".
func FormatGesture(label string, score float32) string {
	if label == "" {
		return "—"
	}
	return fmt.Sprintf("%s  (%.1f%%)", label, score*100)
}

// Reset forgets the last observation.
func (l *Latest) Reset() {
	l.mu.Lock()
	l.obs = gesture.Observation{}
	l.seen = false
	l.mu.Unlock()
}
