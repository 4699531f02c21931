package training

import "time"

// Saturation policy defaults.
const (
	DefaultSaturationCycles    = 24
	DefaultSaturationThreshold = 85.0
)

// AccuracyRecord is the prediction accuracy of one cycle of one video.
type AccuracyRecord struct {
	Label       string
	VideoName   string
	Cycle       int
	Matches     int
	Comparisons int
	Accuracy    float64
	RecordedAt  time.Time

	// Note is an optional annotation written before the accuracy line.
	Note string
}

// NewAccuracyRecord computes matches / (frames - 1) * 100. A video with
// fewer than two frames has no comparisons and an accuracy of 0.
func NewAccuracyRecord(label, videoName string, cycle, matches, frames int) AccuracyRecord {
	rec := AccuracyRecord{
		Label:     label,
		VideoName: videoName,
		Cycle:     cycle,
		Matches:   matches,
	}
	if frames < 2 {
		return rec
	}
	rec.Comparisons = frames - 1
	rec.Accuracy = float64(matches) / float64(rec.Comparisons) * 100
	return rec
}

// Termination tracks the early-stop state of one video.
type Termination struct {
	Cycle        int
	LastAccuracy float64
	Saturation   int
	Completed    bool

	saturationCycles int
	threshold        float64
}

// NewTermination returns a policy that completes once the same accuracy has
// repeated saturationCycles times and is at least threshold.
func NewTermination(saturationCycles int, threshold float64) *Termination {
	return &Termination{saturationCycles: saturationCycles, threshold: threshold}
}

// Observe records the accuracy of the cycle that just ended and reports
// whether the video is complete.
func (t *Termination) Observe(accuracy float64) bool {
	t.Cycle++
	if accuracy == t.LastAccuracy {
		t.Saturation++
		if t.Saturation >= t.saturationCycles && accuracy >= t.threshold {
			t.Completed = true
		}
	} else {
		t.Saturation = 0
	}
	t.LastAccuracy = accuracy
	return t.Completed
}
