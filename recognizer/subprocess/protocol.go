package subprocess

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/senyas-gesture/recognizer"
)

// Message types exchanged with the worker.
const (
	typeReady     = "ready"
	typeRecognize = "recognize"
	typeResult    = "result"
	typeError     = "error"
)

// maxMessageSize bounds a single frame on the wire (a 1080p RGB frame is ~6MB).
const maxMessageSize = 32 << 20

// request is sent to the worker for every frame.
type request struct {
	Type            string `msgpack:"type"`
	Seq             uint64 `msgpack:"seq"`
	TimestampMs     int64  `msgpack:"timestamp_ms"`
	Width           int    `msgpack:"width"`
	Height          int    `msgpack:"height"`
	Format          string `msgpack:"format"`
	RotationDegrees int    `msgpack:"rotation_degrees"`
	FrameData       []byte `msgpack:"frame_data"`
}

type wireCategory struct {
	Name  string  `msgpack:"name"`
	Score float32 `msgpack:"score"`
	Index int     `msgpack:"index"`
}

// response is any message read from the worker.
type response struct {
	Type        string           `msgpack:"type"`
	Seq         uint64           `msgpack:"seq"`
	TimestampMs int64            `msgpack:"timestamp_ms"`
	Gestures    [][]wireCategory `msgpack:"gestures"`
	Handedness  [][]wireCategory `msgpack:"handedness"`
	Error       string           `msgpack:"error"`
	Model       string           `msgpack:"model"`
	InferenceMs float64          `msgpack:"inference_ms"`
}

// encodeMessage marshals v with a 4-byte big-endian length prefix.
func encodeMessage(v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal msgpack: %w", err)
	}
	if len(payload) > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes", len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf, nil
}

// readMessage reads one length-prefixed msgpack message into v.
//
// Returns io.EOF only on a clean end of stream before a new message.
func readMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return fmt.Errorf("message length %d exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// decodeError marks a well-framed but undecodable message. The stream is
// still in sync after it.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return "unmarshal msgpack: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func toCategories(in [][]wireCategory) [][]recognizer.Category {
	if len(in) == 0 {
		return nil
	}
	out := make([][]recognizer.Category, len(in))
	for i, hand := range in {
		out[i] = make([]recognizer.Category, len(hand))
		for j, c := range hand {
			out[i][j] = recognizer.Category{Name: c.Name, Score: c.Score, Index: c.Index}
		}
	}
	return out
}
