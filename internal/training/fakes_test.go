package training

import (
	"fmt"
	"time"

	"github.com/fpang/video-sequence-learning/internal/video"
)

type computeCall struct {
	learn    bool
	attached bool
}

type fakeEngine struct {
	attached bool
	attaches int
	resets   int
	calls    []computeCall
	result   CycleResult
	err      error
}

func (e *fakeEngine) Compute(bits []int, learn bool) (CycleResult, error) {
	e.calls = append(e.calls, computeCall{learn: learn, attached: e.attached})
	if e.err != nil {
		return CycleResult{}, e.err
	}
	return e.result, nil
}

func (e *fakeEngine) AttachTemporal() {
	e.attached = true
	e.attaches++
}

func (e *fakeEngine) ResetSequence() { e.resets++ }

// fakeMonitor reports stable from the stableAt-th poll on. stableAt 0 never
// stabilizes.
type fakeMonitor struct {
	polls    int
	stableAt int
}

func (m *fakeMonitor) Poll() StabilityVerdict {
	m.polls++
	return StabilityVerdict{
		Stable:     m.stableAt > 0 && m.polls >= m.stableAt,
		Patterns:   3,
		InputsSeen: m.polls,
	}
}

// scriptedMonitor returns one verdict per poll from stable, then repeats the
// last one.
type scriptedMonitor struct {
	polls  int
	stable []bool
}

func (m *scriptedMonitor) Poll() StabilityVerdict {
	i := min(m.polls, len(m.stable)-1)
	m.polls++
	return StabilityVerdict{Stable: m.stable[i], Patterns: 3, InputsSeen: m.polls}
}

type learnCall struct {
	key   string
	cells []int
}

// fakeClassifier predicts next[lastLearnedKey].
type fakeClassifier struct {
	learned []learnCall
	next    map[string]string
}

func (c *fakeClassifier) Learn(key string, cells []int) {
	c.learned = append(c.learned, learnCall{key: key, cells: cells})
}

func (c *fakeClassifier) Predict(cells []int, topK int) []Prediction {
	if len(c.learned) == 0 {
		return nil
	}
	last := c.learned[len(c.learned)-1].key
	if k, ok := c.next[last]; ok {
		return []Prediction{{Key: k, Similarity: 100, SharedBits: len(cells)}}
	}
	return nil
}

type recordingSink struct {
	accuracy    []AccuracyRecord
	saturations []SaturationResult
	outcomes    []VideoOutcome
	err         error
}

func (s *recordingSink) RecordAccuracy(rec AccuracyRecord) error {
	s.accuracy = append(s.accuracy, rec)
	return s.err
}

func (s *recordingSink) RecordSaturation(res SaturationResult) error {
	s.saturations = append(s.saturations, res)
	return s.err
}

func (s *recordingSink) RecordOutcome(out VideoOutcome) error {
	s.outcomes = append(s.outcomes, out)
	return s.err
}

func makeVideo(label, name string, frames int) *video.Video {
	v := &video.Video{Name: name, Label: label}
	for i := 0; i < frames; i++ {
		v.Frames = append(v.Frames, video.NewFrame(label, name, i, []int{i % 2}, 1, 1, video.BlackWhite))
	}
	return v
}

func makeSets(label string, frameCounts ...int) []*video.VideoSet {
	set := &video.VideoSet{Label: label}
	for i, n := range frameCounts {
		set.Videos = append(set.Videos, makeVideo(label, fmt.Sprintf("vd%d", i+1), n))
	}
	return []*video.VideoSet{set}
}

// chain maps every key to the one that follows it.
func chain(keys []string) map[string]string {
	next := make(map[string]string)
	for i := 0; i+1 < len(keys); i++ {
		next[keys[i]] = keys[i+1]
	}
	return next
}

// fixedClock advances one second per call.
func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func stableOrchestrator(engine *fakeEngine, cls Classifier, sink ResultSink, opts Options) *Orchestrator {
	opts.Now = fixedClock()
	o := New(engine, cls, &fakeMonitor{stableAt: 1}, sink, opts)
	o.session.Stable = true
	engine.attached = true
	return o
}
