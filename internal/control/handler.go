// Package control handles MQTT control-plane commands.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/internal/logging"
)

// Command is a control-plane request.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response acknowledges a command.
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Transport is the MQTT surface the handler needs. Implemented by
// emitter.MQTTEmitter.
type Transport interface {
	Subscribe(topic string, qos byte, handler func(payload []byte)) error
	Unsubscribe(topic string) error
	Publish(topic string, qos byte, payload []byte) error
}

// Callbacks execute commands. A nil callback answers "not implemented".
type Callbacks struct {
	OnGetStatus     func() map[string]any
	OnStart         func() error
	OnStop          func() error
	OnSetRotation   func(degrees int) error
	OnGetGesture    func() map[string]any
	OnGetHistory    func(ctx context.Context) (map[string]any, error)
	OnDeleteHistory func(ctx context.Context, text string) (int, error)
	OnClearHistory  func(ctx context.Context) error
}

// Config configures the handler.
type Config struct {
	CommandTopic  string
	ResponseTopic string
	QoS           byte
	Logger        *zap.Logger
}

// Handler subscribes to the command topic and answers on the response topic.
type Handler struct {
	cfg       Config
	transport Transport
	callbacks Callbacks
	logger    *zap.Logger
	commands  chan Command
	now       func() time.Time

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewHandler creates a handler. Call Start to subscribe.
func NewHandler(transport Transport, cfg Config, callbacks Callbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		transport: transport,
		callbacks: callbacks,
		logger:    logging.OrNop(cfg.Logger).Named("control"),
		now:       time.Now,
	}
}

// Start subscribes and processes commands until ctx is done or Stop.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("control plane handler already started")
	}
	h.started = true
	h.commands = make(chan Command, 10)
	h.done = make(chan struct{})
	go h.processCommands(ctx, h.commands, h.done)
	h.mu.Unlock()

	h.logger.Info("subscribing to control plane",
		zap.String("topic", h.cfg.CommandTopic),
		zap.Uint8("qos", h.cfg.QoS),
	)
	if err := h.transport.Subscribe(h.cfg.CommandTopic, h.cfg.QoS, h.onMessage); err != nil {
		_ = h.Stop()
		return fmt.Errorf("control plane subscription failed: %w", err)
	}
	h.logger.Info("control plane handler started")
	return nil
}

// Stop unsubscribes and waits for the command goroutine.
func (h *Handler) Stop() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	close(h.commands)
	done := h.done
	h.mu.Unlock()

	err := h.transport.Unsubscribe(h.cfg.CommandTopic)
	<-done
	h.logger.Info("control plane handler stopped")
	return err
}

func (h *Handler) onMessage(payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.logger.Error("failed to parse control command", zap.Error(err))
		h.sendResponse(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	h.logger.Info("control command received", zap.String("command", cmd.Command))

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}
	select {
	case h.commands <- cmd:
	default:
		h.logger.Warn("command queue full, dropping command", zap.String("command", cmd.Command))
	}
}

func (h *Handler) processCommands(ctx context.Context, commands <-chan Command, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			// Discard until Stop closes the queue.
			for range commands {
			}
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			h.sendResponse(h.Handle(ctx, cmd))
		}
	}
}

// Handle executes cmd and returns its response.
func (h *Handler) Handle(ctx context.Context, cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}
	cb := h.callbacks

	switch cmd.Command {
	case "get_status":
		if cb.OnGetStatus == nil {
			return notImplemented(resp)
		}
		return success(resp, cb.OnGetStatus())

	case "start":
		if cb.OnStart == nil {
			return notImplemented(resp)
		}
		return result(resp, cb.OnStart(), map[string]any{"recognition_active": true})

	case "stop":
		if cb.OnStop == nil {
			return notImplemented(resp)
		}
		return result(resp, cb.OnStop(), map[string]any{"recognition_active": false})

	case "set_rotation":
		if cb.OnSetRotation == nil {
			return notImplemented(resp)
		}
		deg, ok := cmd.Params["degrees"].(float64)
		if !ok || deg != math.Trunc(deg) {
			return failure(resp, "missing or invalid 'degrees' parameter (expected 0, 90, 180 or 270)")
		}
		return result(resp, cb.OnSetRotation(int(deg)), map[string]any{"rotation_degrees": int(deg)})

	case "get_gesture":
		if cb.OnGetGesture == nil {
			return notImplemented(resp)
		}
		return success(resp, cb.OnGetGesture())

	case "get_history":
		if cb.OnGetHistory == nil {
			return notImplemented(resp)
		}
		data, err := cb.OnGetHistory(ctx)
		return result(resp, err, data)

	case "delete_history":
		if cb.OnDeleteHistory == nil {
			return notImplemented(resp)
		}
		text, ok := cmd.Params["text"].(string)
		if !ok || text == "" {
			return failure(resp, "missing or invalid 'text' parameter (expected string)")
		}
		n, err := cb.OnDeleteHistory(ctx, text)
		return result(resp, err, map[string]any{"text": text, "removed": n})

	case "clear_history":
		if cb.OnClearHistory == nil {
			return notImplemented(resp)
		}
		return result(resp, cb.OnClearHistory(ctx), map[string]any{"cleared": true})

	default:
		return failure(resp, fmt.Sprintf("unknown command: %s", cmd.Command))
	}
}

func success(resp Response, data map[string]any) Response {
	resp.Status = "success"
	resp.Data = data
	return resp
}

func failure(resp Response, msg string) Response {
	resp.Status = "error"
	resp.Error = msg
	return resp
}

func result(resp Response, err error, data map[string]any) Response {
	if err != nil {
		return failure(resp, err.Error())
	}
	return success(resp, data)
}

func notImplemented(resp Response) Response {
	return failure(resp, resp.CommandAck+" not implemented")
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = h.now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	if err := h.transport.Publish(h.cfg.ResponseTopic, h.cfg.QoS, payload); err != nil {
		h.logger.Error("failed to publish response", zap.Error(err))
		return
	}
	h.logger.Debug("response sent",
		zap.String("command_ack", resp.CommandAck),
		zap.String("status", resp.Status),
	)
}
