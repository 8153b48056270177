package service

import (
	"context"
	"time"

	"github.com/e7canasta/senyas-gesture/gesture"
	"github.com/e7canasta/senyas-gesture/internal/control"
	"github.com/e7canasta/senyas-gesture/internal/health"
)

// HealthCheck reports the daemon health.
//
// unhealthy: recognition is not running. degraded: running, but the
// capture source is down or MQTT is configured and disconnected.
func (s *Service) HealthCheck() health.Status {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	st := s.coordinator.Stats()
	src := s.source.Stats()

	status := health.Status{
		Status:        "healthy",
		State:         st.State.String(),
		SourceRunning: src.IsRunning,
		MQTTEnabled:   s.emitter != nil,
		Counters: map[string]uint64{
			"frames_captured":  src.FrameCount,
			"frames_dropped":   st.Gate.Dropped,
			"frames_submitted": st.Submitted,
			"observations":     st.Observations,
			"empty_results":    st.EmptyResults,
			"engine_faults":    st.EngineFaults,
			"capture_faults":   st.CaptureFaults,
			"regressions":      st.Regressions,
			"sessions":         st.Sessions,
		},
	}
	if !started.IsZero() {
		status.UptimeSeconds = int64(time.Since(started).Seconds())
	}
	if s.emitter != nil {
		status.MQTTConnected = s.emitter.IsConnected()
	}

	switch {
	case st.State != gesture.Running:
		status.Status = "unhealthy"
	case !status.SourceRunning || (status.MQTTEnabled && !status.MQTTConnected):
		status.Status = "degraded"
	}
	return status
}

// Status summarizes the service for the get_status command.
func (s *Service) Status() map[string]any {
	s.mu.RLock()
	warmup := s.warmup
	started := s.started
	s.mu.RUnlock()

	src := s.source.Stats()
	out := map[string]any{
		"instance_id":      s.cfg.InstanceID,
		"state":            s.coordinator.State().String(),
		"backend":          s.cfg.Recognizer.Backend,
		"model":            s.cfg.Recognizer.ModelAssetPath,
		"gesture":          s.latest.Text(),
		"resolution":       src.Resolution,
		"fps_real":         src.FPSReal,
		"rotation_degrees": src.RotationDegrees,
		"reconnects":       src.Reconnects,
	}
	if !started.IsZero() {
		out["uptime_s"] = time.Since(started).Seconds()
	}
	if warmup != nil {
		out["warmup_fps_mean"] = warmup.FPSMean
		out["warmup_stable"] = warmup.IsStable
	}
	return out
}

// Callbacks binds control-plane commands to the service.
func (s *Service) Callbacks() control.Callbacks {
	return control.Callbacks{
		OnGetStatus: s.Status,
		OnStart: func() error {
			return s.coordinator.Start(context.Background(), RecognizerOptions(s.cfg.Recognizer))
		},
		OnStop:        s.coordinator.Stop,
		OnSetRotation: s.coordinator.SetRotation,
		OnGetGesture: func() map[string]any {
			snap, ok := s.latest.Get()
			return map[string]any{
				"label":    snap.Label,
				"score":    snap.Score,
				"text":     snap.Text,
				"observed": ok,
			}
		},
		OnGetHistory: func(ctx context.Context) (map[string]any, error) {
			entries, err := s.store.List(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"count": len(entries), "entries": entries}, nil
		},
		OnDeleteHistory: s.store.DeleteByText,
		OnClearHistory:  s.store.Clear,
	}
}
