// Package training runs the experiment control loop: the stabilization
// phase that waits for the spatial encoder to converge, and the per-video
// sequence-learning phase with its accuracy tracking and early stop.
//
// The memory engine, the classifier, the stability signal and the result
// outputs are consumed through the interfaces in this file.
package training

import (
	"fmt"
	"time"
)

// CycleResult is what the memory engine reports for one computed frame.
type CycleResult struct {
	ActiveColumns   []int
	ActiveCells     []int
	WinnerCells     []int
	PredictiveCells []int
}

// MemoryEngine is the pattern memory being trained.
type MemoryEngine interface {
	// Compute feeds one encoded frame through the engine.
	Compute(bits []int, learn bool) (CycleResult, error)
	// AttachTemporal adds the temporal-association stage. Before it is
	// called only the spatial stage runs.
	AttachTemporal()
	// ResetSequence clears the temporal context between cycles.
	ResetSequence()
}

// Prediction is one ranked classifier answer.
type Prediction struct {
	Key        string
	Similarity float64
	SharedBits int
}

// Classifier associates composite keys with cell SDRs.
type Classifier interface {
	Learn(key string, cells []int)
	// Predict returns up to topK keys ranked by similarity, ties broken by
	// the order in which keys were first learned.
	Predict(cells []int, topK int) []Prediction
}

// StabilityVerdict is the latest judgement of the stability monitor.
type StabilityVerdict struct {
	Stable     bool
	Patterns   int
	InputsSeen int
}

// StabilityMonitor exposes the engine's plasticity signal.
type StabilityMonitor interface {
	Poll() StabilityVerdict
}

// Mode selects how classifier keys are built.
type Mode int

const (
	// FrameKeyMode learns every frame under its own key.
	FrameKeyMode Mode = iota
	// SequenceMode learns a sliding window of frame keys.
	SequenceMode
)

// Default cycle budgets per mode.
const (
	DefaultFrameKeyCycles = 10
	DefaultSequenceCycles = 1000
)

// ParseMode accepts "framekey" or "sequence".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "framekey", "frame-key", "FrameKey":
		return FrameKeyMode, nil
	case "sequence", "framekeys", "FrameKeys":
		return SequenceMode, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want framekey or sequence)", s)
}

// DefaultMaxCycles returns the cycle budget used when none is configured.
func (m Mode) DefaultMaxCycles() int {
	if m == SequenceMode {
		return DefaultSequenceCycles
	}
	return DefaultFrameKeyCycles
}

func (m Mode) String() string {
	switch m {
	case FrameKeyMode:
		return "FrameKey"
	case SequenceMode:
		return "FrameKeys"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// SaturationResult describes a video that reached saturated accuracy.
type SaturationResult struct {
	Label         string
	VideoName     string
	Accuracy      float64
	Cycles        int
	Elapsed       time.Duration
	NewbornCycles int
}

// VideoOutcome summarises the sequence-learning phase of one video.
type VideoOutcome struct {
	Label         string
	VideoName     string
	Frames        int
	Cycles        int
	FinalAccuracy float64
	Completed     bool
	Elapsed       time.Duration
}

// ResultSink receives the records produced while training.
type ResultSink interface {
	RecordAccuracy(rec AccuracyRecord) error
	RecordSaturation(res SaturationResult) error
	RecordOutcome(out VideoOutcome) error
}
