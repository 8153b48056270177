// Package sink provides gesture.ResultSink implementations.
//
// Sinks are called from the coordinator's result goroutine. Sinks that do
// I/O (MQTT, history) hand observations to their own goroutine through a
// bounded queue and drop when it is full, so a slow broker never delays
// the next result.
package sink
