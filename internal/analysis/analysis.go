// SPDX-License-Identifier: MIT
/*
Package analysis implements the consumers at the end of the pipeline:
per-quantum volume metering and window-based pitch detection. Both read
from the ingest side only: volume directly per quantum for minimum
latency, pitch via non-destructive sliding-window reads of the ring
buffer. Neither can disturb capture timing.
*/
package analysis

// QuantumConsumer processes one 128-sample quantum at a time.
// Implementations should be cheap; the ingest coordinator calls this
// once per quantum in delivery order.
type QuantumConsumer interface {
	Process(quantum []float32) VolumeMeasurement
}

// WindowConsumer analyzes a full sliding window of recent samples,
// typically triggered by a buffer-filled event rather than polling.
type WindowConsumer interface {
	Detect(window []float32, volumeConfidence float64) PitchResult
}
