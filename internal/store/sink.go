package store

import (
	"context"
	"time"

	"github.com/fpang/video-sequence-learning/internal/training"
)

// DefaultWriteTimeout bounds each record write made through a Sink.
const DefaultWriteTimeout = 10 * time.Second

// Sink records training results of one run in a ResultStore.
type Sink struct {
	ctx     context.Context
	store   ResultStore
	runID   string
	timeout time.Duration
}

var _ training.ResultSink = (*Sink)(nil)

// NewSink returns a Sink writing under runID. Every write is bounded by
// DefaultWriteTimeout and stops when ctx is done.
func NewSink(ctx context.Context, store ResultStore, runID string) *Sink {
	return &Sink{ctx: ctx, store: store, runID: runID, timeout: DefaultWriteTimeout}
}

func (s *Sink) RecordAccuracy(rec training.AccuracyRecord) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	item := &AccuracyItem{
		Label:       rec.Label,
		VideoName:   rec.VideoName,
		Cycle:       rec.Cycle,
		Matches:     rec.Matches,
		Comparisons: rec.Comparisons,
		Accuracy:    rec.Accuracy,
		Note:        rec.Note,
	}
	if !rec.RecordedAt.IsZero() {
		item.RecordedAt = rec.RecordedAt.Unix()
	}
	return s.store.PutAccuracy(ctx, s.runID, item)
}

func (s *Sink) RecordSaturation(res training.SaturationResult) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	return s.store.PutSaturation(ctx, s.runID, &SaturationItem{
		Label:          res.Label,
		VideoName:      res.VideoName,
		Accuracy:       res.Accuracy,
		Cycles:         res.Cycles,
		ElapsedSeconds: res.Elapsed.Seconds(),
		NewbornCycles:  res.NewbornCycles,
	})
}

func (s *Sink) RecordOutcome(out training.VideoOutcome) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	return s.store.PutOutcome(ctx, s.runID, &OutcomeItem{
		Label:          out.Label,
		VideoName:      out.VideoName,
		Frames:         out.Frames,
		Cycles:         out.Cycles,
		FinalAccuracy:  out.FinalAccuracy,
		Completed:      out.Completed,
		ElapsedSeconds: out.Elapsed.Seconds(),
	})
}
