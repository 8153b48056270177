// Package service wires the gesture pipeline into the senyasd daemon:
// capture, recognition, sinks, history, MQTT control and health.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/config"
	"github.com/e7canasta/senyas-gesture/framesource"
	"github.com/e7canasta/senyas-gesture/gesture"
	"github.com/e7canasta/senyas-gesture/history"
	"github.com/e7canasta/senyas-gesture/internal/control"
	"github.com/e7canasta/senyas-gesture/internal/emitter"
	"github.com/e7canasta/senyas-gesture/internal/health"
	"github.com/e7canasta/senyas-gesture/internal/logging"
	"github.com/e7canasta/senyas-gesture/recognizer"
	"github.com/e7canasta/senyas-gesture/recognizer/onnx"
	"github.com/e7canasta/senyas-gesture/recognizer/subprocess"
	"github.com/e7canasta/senyas-gesture/sink"
)

// StatsInterval is how often pipeline stats are logged and published.
const StatsInterval = 10 * time.Second

// Overrides replace components built from the configuration. Used by tests
// and embedders.
type Overrides struct {
	Source  framesource.Provider
	Factory recognizer.Factory
	History history.Store
}

// Service is the daemon orchestrator.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	source      framesource.Provider
	factory     recognizer.Factory
	coordinator *gesture.Coordinator

	latest      *sink.Latest
	store       history.Store
	historySink *sink.History
	redis       *redis.Client

	emitter   *emitter.MQTTEmitter
	mqttSink  *sink.MQTT
	control   *control.Handler
	healthSrv *health.Server

	mu      sync.RWMutex
	started time.Time
	running bool
	warmup  *framesource.WarmupStats
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New builds every component from cfg. Nothing runs until Run.
func New(cfg *config.Config, logger *zap.Logger, ov Overrides) (*Service, error) {
	logger = logging.OrNop(logger)
	s := &Service{cfg: cfg, logger: logger, latest: sink.NewLatest()}

	var err error
	if s.source = ov.Source; s.source == nil {
		if s.source, err = newSource(cfg.Camera, logger); err != nil {
			return nil, err
		}
	}
	if s.factory = ov.Factory; s.factory == nil {
		s.factory = newFactory(cfg.Recognizer, logger)
	}
	if s.store = ov.History; s.store == nil {
		if s.store, err = s.newHistoryStore(); err != nil {
			return nil, err
		}
	}
	s.historySink = sink.NewHistory(s.store, sink.HistoryConfig{
		MinScore:     cfg.History.MinScore,
		StableFrames: cfg.History.StableFrames,
		Logger:       logger,
	})

	sinks := sink.Fanout{s.latest, s.historySink}
	if cfg.MQTT.Enabled() {
		s.emitter = emitter.NewMQTTEmitter(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.InstanceID,
			Logger:   logger,
		})
		s.mqttSink = sink.NewMQTT(s.emitter, sink.MQTTConfig{
			InstanceID: cfg.InstanceID,
			Topic:      cfg.MQTT.Topics.Gestures,
			QoS:        cfg.MQTT.QoS["gestures"],
			Logger:     logger,
		})
		sinks = append(sinks, s.mqttSink)
	}

	s.coordinator, err = gesture.New(gesture.Deps{
		Factory: s.factory,
		Source:  s.source,
		Sink:    sinks,
		OnError: s.onPipelineError,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Health.Addr != "" {
		s.healthSrv = health.NewServer(health.Config{
			Addr:       cfg.Health.Addr,
			InstanceID: cfg.InstanceID,
			Logger:     logger,
		}, s, s.latest, s.store)
	}
	return s, nil
}

func newSource(cam config.CameraConfig, logger *zap.Logger) (framesource.Provider, error) {
	if cam.Synthetic {
		return framesource.NewSynthetic(framesource.SyntheticConfig{
			Width:           cam.Width,
			Height:          cam.Height,
			TargetFPS:       float64(cam.FPS),
			RotationDegrees: cam.RotationDegrees,
		}, framesource.WithLogger(logger))
	}
	camCfg := framesource.DefaultCameraConfig()
	camCfg.Device = cam.Device
	camCfg.Width = cam.Width
	camCfg.Height = cam.Height
	camCfg.TargetFPS = float64(cam.FPS)
	camCfg.RotationDegrees = cam.RotationDegrees
	return framesource.NewCamera(camCfg, framesource.WithLogger(logger))
}

func newFactory(rc config.RecognizerConfig, logger *zap.Logger) recognizer.Factory {
	if rc.Backend == config.BackendONNX {
		return onnx.Factory(onnx.Config{
			LibraryPath: rc.ONNXLibraryPath,
			InputSize:   rc.ONNXInputSize,
			Logger:      logger,
		})
	}
	return subprocess.Factory(subprocess.Config{
		ReadyTimeout: time.Duration(rc.ReadyTimeoutS) * time.Second,
		Logger:       logger,
	})
}

func (s *Service) newHistoryStore() (history.Store, error) {
	hc := s.cfg.History
	if hc.Backend != config.HistoryRedis {
		return history.NewMemoryStore(hc.MaxItems), nil
	}
	s.redis = redis.NewClient(&redis.Options{Addr: hc.RedisAddr})
	return history.NewRedisStore(history.NewRedisList(s.redis), history.RedisConfig{
		Key:      hc.Key,
		MaxItems: hc.MaxItems,
		Logger:   s.logger,
	})
}

// RecognizerOptions maps the configuration to engine options.
func RecognizerOptions(rc config.RecognizerConfig) recognizer.Options {
	opts := recognizer.DefaultOptions()
	opts.ModelAssetPath = rc.ModelAssetPath
	opts.NumHands = rc.NumHands
	opts.MinScore = rc.MinScore
	opts.Labels = rc.Labels
	opts.WorkerCommand = rc.WorkerCommand
	return opts
}

// Run starts every component and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.running = true
	s.started = time.Now()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("senyas service starting",
		zap.String("instance_id", s.cfg.InstanceID),
		zap.String("backend", s.cfg.Recognizer.Backend),
		zap.String("model", s.cfg.Recognizer.ModelAssetPath),
	)

	if s.healthSrv != nil {
		if err := s.healthSrv.Start(); err != nil {
			return err
		}
	}

	if s.redis != nil {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.redis.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
	}

	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}
		s.control = control.NewHandler(s.emitter, control.Config{
			CommandTopic:  s.cfg.MQTT.Topics.Control,
			ResponseTopic: s.cfg.MQTT.Topics.Health,
			QoS:           s.cfg.MQTT.QoS["control"],
			Logger:        s.logger,
		}, s.Callbacks())
		if err := s.control.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
	}

	if s.cfg.Camera.WarmupS > 0 {
		stats, err := framesource.Warmup(ctx, s.source, time.Duration(s.cfg.Camera.WarmupS)*time.Second, s.logger)
		if err != nil {
			s.logger.Warn("capture warm-up failed, continuing without FPS stats", zap.Error(err))
		} else {
			s.mu.Lock()
			s.warmup = stats
			s.mu.Unlock()
		}
	}

	if err := s.coordinator.Start(ctx, RecognizerOptions(s.cfg.Recognizer)); err != nil {
		return fmt.Errorf("failed to start recognition: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.statsLoop(ctx, StatsInterval)
	}()

	s.logger.Info("senyas service running")
	<-ctx.Done()
	s.logger.Info("senyas service run loop exiting")
	return nil
}

// Shutdown stops every component in dependency order.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("shutting down senyas service")
	if cancel != nil {
		cancel()
	}

	var errs error
	// 1. Control plane first: no commands may restart the pipeline.
	if s.control != nil {
		errs = multierr.Append(errs, s.control.Stop())
	}
	// 2. Pipeline: source, engine, gate. No sink calls after this.
	errs = multierr.Append(errs, s.coordinator.Stop())
	s.wg.Wait()

	// 3. Flush sinks, then their transports.
	s.historySink.Close()
	if s.mqttSink != nil {
		s.mqttSink.Close()
	}
	if s.emitter != nil {
		s.emitter.Disconnect()
	}
	if s.redis != nil {
		errs = multierr.Append(errs, s.redis.Close())
	}
	if s.healthSrv != nil {
		errs = multierr.Append(errs, s.healthSrv.Shutdown(ctx))
	}

	s.mu.RLock()
	uptime := time.Since(s.started)
	s.mu.RUnlock()
	s.logger.Info("senyas service shutdown complete", zap.Duration("uptime", uptime), zap.Error(errs))
	return errs
}

// ShutdownTimeout returns the configured graceful shutdown budget.
func (s *Service) ShutdownTimeout() time.Duration {
	return s.cfg.ShutdownTimeout()
}

// Coordinator exposes the pipeline for embedders.
func (s *Service) Coordinator() *gesture.Coordinator { return s.coordinator }

// Latest exposes the current gesture holder.
func (s *Service) Latest() *sink.Latest { return s.latest }

// History exposes the translation store.
func (s *Service) History() history.Store { return s.store }

func (s *Service) onPipelineError(err error) {
	s.logger.Warn("pipeline fault", zap.Error(err))
}

// statsLoop logs pipeline counters and publishes them on the health topic.
func (s *Service) statsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.coordinator.Stats()
			s.logger.Info("pipeline stats",
				zap.Stringer("state", st.State),
				zap.Uint64("submitted", st.Submitted),
				zap.Uint64("observations", st.Observations),
				zap.Uint64("empty_results", st.EmptyResults),
				zap.Uint64("frames_dropped", st.Gate.Dropped),
				zap.Uint64("engine_faults", st.EngineFaults),
				zap.Uint64("capture_faults", st.CaptureFaults),
				zap.String("gesture", s.latest.Text()),
			)
			s.publishHealth()
		}
	}
}

func (s *Service) publishHealth() {
	if s.emitter == nil || !s.emitter.IsConnected() {
		return
	}
	payload, err := json.Marshal(s.HealthCheck())
	if err != nil {
		return
	}
	if err := s.emitter.Publish(s.cfg.MQTT.Topics.Health, s.cfg.MQTT.QoS["health"], payload); err != nil {
		s.logger.Debug("health publish failed", zap.Error(err))
	}
}
