// SPDX-License-Identifier: MIT
package analysis

import "math"

// Decay factors applied once per quantum (~2.9 ms at 48 kHz). The fast
// peak falls ~half in 40 ms, the slow peak in ~400 ms.
const (
	fastPeakDecay = 0.95
	slowPeakDecay = 0.995

	// Confidence maps RMS level in dBFS linearly from the silence floor
	// to full confidence.
	confidenceFloorDB = -60.0
	confidenceFullDB  = -20.0
)

// VolumeMeasurement is the per-quantum metering output.
type VolumeMeasurement struct {
	RMS        float64 `json:"rms"`
	Peak       float64 `json:"peak"`
	FastPeak   float64 `json:"fastPeak"`
	SlowPeak   float64 `json:"slowPeak"`
	Confidence float64 `json:"confidence"` // [0,1], rises with level
}

// VolumeDetector meters quanta. RMS, peak and confidence are functions
// of the current quantum alone; the decaying peaks carry state across
// quanta by definition.
type VolumeDetector struct {
	fastPeak float64
	slowPeak float64
}

var _ QuantumConsumer = (*VolumeDetector)(nil)

// NewVolumeDetector creates a detector with settled (zero) peaks.
func NewVolumeDetector() *VolumeDetector {
	return &VolumeDetector{}
}

// Process meters one quantum.
func (d *VolumeDetector) Process(quantum []float32) VolumeMeasurement {
	var sumSquare, peak float64
	for _, s := range quantum {
		f := float64(s)
		sumSquare += f * f
		if f < 0 {
			f = -f
		}
		if f > peak {
			peak = f
		}
	}

	var rms float64
	if len(quantum) > 0 {
		rms = math.Sqrt(sumSquare / float64(len(quantum)))
	}

	d.fastPeak *= fastPeakDecay
	if peak > d.fastPeak {
		d.fastPeak = peak
	}
	d.slowPeak *= slowPeakDecay
	if peak > d.slowPeak {
		d.slowPeak = peak
	}

	return VolumeMeasurement{
		RMS:        rms,
		Peak:       peak,
		FastPeak:   d.fastPeak,
		SlowPeak:   d.slowPeak,
		Confidence: levelConfidence(rms),
	}
}

// levelConfidence maps an RMS level to [0,1], monotonically increasing
// with signal level.
func levelConfidence(rms float64) float64 {
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	conf := (db - confidenceFloorDB) / (confidenceFullDB - confidenceFloorDB)
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}
