// Package subprocess runs gesture recognition in an external worker process.
//
// The worker speaks length-prefixed msgpack over stdio:
//
//	worker → {type:"ready", model}
//	engine → {type:"recognize", seq, timestamp_ms, width, height, format, rotation_degrees, frame_data}
//	worker → {type:"result", seq, timestamp_ms, gestures, handedness, inference_ms}
//	worker → {type:"error", seq, timestamp_ms, error}
//
// Each message is a 4-byte big-endian length followed by the msgpack payload.
// The worker logs to stderr with [ERROR]/[WARNING]/[INFO] prefixes. It exits
// when stdin is closed.
package subprocess
