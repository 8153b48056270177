// Package framesource captures frames and pushes them into the pipeline.
//
// # Architecture
//
//	Camera:    v4l2src → videoconvert → videoscale → videorate → capsfilter(RGB) → appsink
//	                                                                               ↓ OnNewSample
//	                                                                     pooled copy → frame.Frame
//	                                                                               ↓
//	                                                                     Publisher.Publish (gate)
//
//	Synthetic: ticker → test pattern → frame.Frame → Publisher.Publish
//
// Every frame carries a monotonic acquisition timestamp (internal/clock), its
// rotation metadata and a release hook. Sources never block on the consumer:
// Publish is expected to be the framegate's non-blocking swap.
//
// # Faults
//
// A failed capture is reported through the FaultFunc given to Start as a
// *CaptureError with a category (device, format, permission, unknown). The
// camera restarts its pipeline with exponential backoff (1s, 2s, 4s ... capped
// at 30s, 5 attempts by default) and reports a final device fault when it
// gives up.
//
// # Rotation
//
// SetRotation changes the metadata stamped on later frames without touching
// the pipeline, so an orientation change never resets the recognizer.
package framesource
