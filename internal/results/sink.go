package results

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fpang/video-sequence-learning/internal/metrics"
	"github.com/fpang/video-sequence-learning/internal/training"
)

// FileSink writes training records into a run Layout through a Writer.
type FileSink struct {
	layout  Layout
	writer  *Writer
	mode    string
	metrics *os.File
}

var _ training.ResultSink = (*FileSink)(nil)

// NewFileSink creates the layout folders and opens the metrics file. The
// Writer must be closed before the sink.
func NewFileSink(layout Layout, writer *Writer, mode string) (*FileSink, error) {
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(layout.MetricsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics file: %w", err)
	}
	return &FileSink{layout: layout, writer: writer, mode: mode, metrics: f}, nil
}

// Layout returns the run layout the sink writes into.
func (s *FileSink) Layout() Layout {
	return s.layout
}

// RecordAccuracy appends rec to its video's accuracy log under TEST/ and
// emits the cycle metrics.
func (s *FileSink) RecordAccuracy(rec training.AccuracyRecord) error {
	if err := s.AppendAccuracy(s.layout.Test, rec); err != nil {
		return err
	}

	at := rec.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	emf := metrics.New(metrics.Namespace).At(at).
		Dimension("Mode", s.mode).
		Dimension("Label", rec.Label).
		Metric("Accuracy", rec.Accuracy, metrics.UnitPercent).
		Metric("Matches", float64(rec.Matches), metrics.UnitCount).
		Property("video", rec.VideoName).
		Property("cycle", rec.Cycle)
	return s.emit(emf)
}

// AppendAccuracy appends rec to <root>/AccuracyLog/<label>/<video>_accuracy.txt:
// the note, when present, then the accuracy value.
func (s *FileSink) AppendAccuracy(root string, rec training.AccuracyRecord) error {
	path := AccuracyLogPath(root, rec.Label, rec.VideoName)
	lines := AccuracyLines(rec)
	return s.writer.Submit(func() error {
		return AppendLines(path, lines...)
	})
}

// RecordSaturation writes the saturation report of one video.
func (s *FileSink) RecordSaturation(res training.SaturationResult) error {
	path := SaturationLogPath(s.layout.Test, res.Label, res.VideoName)
	lines := SaturationLines(res)
	if err := s.writer.Submit(func() error {
		return WriteLines(path, lines...)
	}); err != nil {
		return err
	}

	emf := metrics.New(metrics.Namespace).
		Dimension("Mode", s.mode).
		Dimension("Label", res.Label).
		Count("Saturated").
		Metric("SaturationCycles", float64(res.Cycles), metrics.UnitCount).
		Property("video", res.VideoName).
		Property("newbornCycles", res.NewbornCycles)
	return s.emit(emf)
}

// RecordOutcome emits the summary metrics of one video.
func (s *FileSink) RecordOutcome(out training.VideoOutcome) error {
	completed := 0.0
	if out.Completed {
		completed = 1
	}
	emf := metrics.New(metrics.Namespace).
		Dimension("Mode", s.mode).
		Dimension("Label", out.Label).
		Metric("Completed", completed, metrics.UnitCount).
		Metric("Cycles", float64(out.Cycles), metrics.UnitCount).
		Metric("FinalAccuracy", out.FinalAccuracy, metrics.UnitPercent).
		Metric("Elapsed", out.Elapsed.Seconds(), metrics.UnitSeconds).
		Property("video", out.VideoName).
		Property("frames", out.Frames)
	return s.emit(emf)
}

func (s *FileSink) emit(rec *metrics.Recorder) error {
	return s.writer.Submit(func() error {
		return rec.Flush(s.metrics)
	})
}

// Close closes the metrics file.
func (s *FileSink) Close() error {
	return s.metrics.Close()
}

// AccuracyLines renders an accuracy record as log lines.
func AccuracyLines(rec training.AccuracyRecord) []string {
	var lines []string
	if rec.Note != "" {
		lines = append(lines, rec.Note)
	}
	return append(lines, FormatAccuracy(rec.Accuracy))
}

// SaturationLines renders the saturation report of one video.
func SaturationLines(res training.SaturationResult) []string {
	return []string{
		"Result Log for reaching saturated accuracy at " + FormatAccuracy(res.Accuracy),
		"Label: " + res.Label,
		"Video Name: " + res.VideoName,
		fmt.Sprintf("Stop after %d cycles", res.Cycles),
		fmt.Sprintf("Elapsed time: %d min.", int(res.Elapsed/time.Minute)),
		fmt.Sprintf("reaching stable after enter newborn cycle %d.", res.NewbornCycles),
	}
}

// FormatAccuracy prints an accuracy with the shortest exact representation.
func FormatAccuracy(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MultiSink fans every record out to all sinks. Every sink is called even
// when an earlier one fails.
type MultiSink []training.ResultSink

var _ training.ResultSink = MultiSink(nil)

func (m MultiSink) RecordAccuracy(rec training.AccuracyRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordAccuracy(rec))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordSaturation(res training.SaturationResult) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordSaturation(res))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordOutcome(out training.VideoOutcome) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordOutcome(out))
	}
	return errors.Join(errs...)
}
