package sink

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/gesture"
	"github.com/e7canasta/senyas-gesture/history"
	"github.com/e7canasta/senyas-gesture/internal/logging"
)

// HistoryConfig configures a History sink.
type HistoryConfig struct {
	// MinScore is the confidence every observation of a run must reach.
	MinScore float32
	// StableFrames is how many consecutive observations make a run. Default 5.
	StableFrames int
	// Ignore lists labels never recorded. Default {"None"}.
	Ignore []string
	// WriteTimeout bounds one store write. Default 2s.
	WriteTimeout time.Duration
	QueueSize    int
	Logger       *zap.Logger
}

// History records a translation when the same label is observed
// StableFrames times in a row at MinScore or above. A label is recorded
// once per run; it is recorded again only after the run breaks.
type History struct {
	store  history.Store
	cfg    HistoryConfig
	logger *zap.Logger
	ignore map[string]bool
	q      *queue[history.Entry]
	now    func() time.Time

	// Run tracking, owned by the coordinator's result goroutine.
	label    string
	run      int
	recorded bool

	saved  atomic.Uint64
	errors atomic.Uint64
}

// NewHistory starts the store writer. Call Close to stop it.
func NewHistory(store history.Store, cfg HistoryConfig) *History {
	if cfg.StableFrames <= 0 {
		cfg.StableFrames = 5
	}
	if cfg.Ignore == nil {
		cfg.Ignore = []string{"None"}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	h := &History{
		store:  store,
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).Named("history-sink"),
		ignore: make(map[string]bool, len(cfg.Ignore)),
		now:    time.Now,
	}
	for _, l := range cfg.Ignore {
		h.ignore[l] = true
	}
	h.q = newQueue(cfg.QueueSize, h.write)
	return h
}

func (h *History) OnGesture(label string, score float32) {
	h.OnObservation(gesture.Observation{Label: label, Score: score})
}

func (h *History) OnObservation(obs gesture.Observation) {
	if obs.Label == "" || h.ignore[obs.Label] || obs.Score < h.cfg.MinScore {
		h.label, h.run, h.recorded = "", 0, false
		return
	}
	if obs.Label != h.label {
		h.label, h.run, h.recorded = obs.Label, 0, false
	}
	h.run++
	if h.recorded || h.run < h.cfg.StableFrames {
		return
	}
	h.recorded = true
	entry := history.Entry{Text: obs.Label, TimestampMs: h.now().UnixMilli()}
	if !h.q.push(entry) {
		h.logger.Warn("history-sink: queue full, dropping entry", zap.String("text", obs.Label))
	}
}

func (h *History) write(e history.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
	defer cancel()
	if err := h.store.Add(ctx, e); err != nil {
		h.errors.Add(1)
		h.logger.Error("history-sink: store failed", zap.String("text", e.Text), zap.Error(err))
		return
	}
	h.saved.Add(1)
	h.logger.Debug("history-sink: translation recorded", zap.String("text", e.Text))
}

// Close writes pending entries and stops.
func (h *History) Close() {
	h.q.close()
	st := h.Stats()
	h.logger.Info("history-sink: stopped",
		zap.Uint64("saved", st.Published),
		zap.Uint64("dropped", st.Dropped),
		zap.Uint64("errors", st.Errors),
	)
}

// Stats returns a counter snapshot. Published counts stored entries.
func (h *History) Stats() QueueStats {
	return QueueStats{
		Published: h.saved.Load(),
		Dropped:   h.q.dropped.Load(),
		Errors:    h.errors.Load(),
	}
}
