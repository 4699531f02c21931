package results

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/fpang/video-sequence-learning/internal/training"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestWriterPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordered.txt")
	w := NewWriter(1)

	var want []string
	for i := 0; i < 50; i++ {
		line := FormatAccuracy(float64(i))
		want = append(want, line)
		if err := w.Submit(func() error { return AppendLines(path, line) }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := readLines(t, path); !slices.Equal(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestWriterCloseReportsErrors(t *testing.T) {
	w := NewWriter(0)
	boom := errors.New("disk full")
	if err := w.Submit(func() error { return boom }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := w.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v, want %v", err, boom)
	}
	if err := w.Submit(func() error { return nil }); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrWriterClosed", err)
	}
	if err := w.Close(); !errors.Is(err, boom) {
		t.Errorf("second Close() error = %v, want %v", err, boom)
	}
}

func TestNewLayout(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	l := NewLayout("out", "FrameKeys", now)

	if want := filepath.Join("out", "FrameKeys_20260304-050607"); l.Root != want {
		t.Errorf("Root = %q, want %q", l.Root, want)
	}
	if want := filepath.Join(l.Root, "Converted"); l.Converted != want {
		t.Errorf("Converted = %q, want %q", l.Converted, want)
	}
	if want := filepath.Join(l.Root, "TEST", "Predicted from cat"); l.PredictedDir("/in/cat.png") != want {
		t.Errorf("PredictedDir() = %q, want %q", l.PredictedDir("/in/cat.png"), want)
	}
}

func TestLayoutEnsureIdempotent(t *testing.T) {
	l := NewLayout(t.TempDir(), "FrameKey", time.Now())
	for i := 0; i < 2; i++ {
		if err := l.Ensure(); err != nil {
			t.Fatalf("Ensure() call %d error = %v", i+1, err)
		}
	}
	for _, dir := range []string{l.Root, l.Converted, l.Test} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s is not a directory: %v", dir, err)
		}
	}
}

func TestAccuracyLines(t *testing.T) {
	tests := []struct {
		name     string
		rec      training.AccuracyRecord
		expected []string
	}{
		{"plain", training.AccuracyRecord{Accuracy: 87.5}, []string{"87.5"}},
		{"whole", training.AccuracyRecord{Accuracy: 100}, []string{"100"}},
		{
			"annotated",
			training.AccuracyRecord{Accuracy: 50, Note: "50% match found with Circle\na-b"},
			[]string{"50% match found with Circle\na-b", "50"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AccuracyLines(tt.rec); !slices.Equal(got, tt.expected) {
				t.Errorf("AccuracyLines() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSaturationLines(t *testing.T) {
	got := SaturationLines(training.SaturationResult{
		Label:         "Circle",
		VideoName:     "vd1",
		Accuracy:      90,
		Cycles:        25,
		Elapsed:       150 * time.Second,
		NewbornCycles: 12,
	})
	want := []string{
		"Result Log for reaching saturated accuracy at 90",
		"Label: Circle",
		"Video Name: vd1",
		"Stop after 25 cycles",
		"Elapsed time: 2 min.",
		"reaching stable after enter newborn cycle 12.",
	}
	if !slices.Equal(got, want) {
		t.Errorf("SaturationLines() = %q, want %q", got, want)
	}
}

func TestFileSink(t *testing.T) {
	layout := NewLayout(t.TempDir(), "FrameKey", time.Now())
	w := NewWriter(4)
	sink, err := NewFileSink(layout, w, "FrameKey")
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	for _, acc := range []float64{50, 75} {
		if err := sink.RecordAccuracy(training.AccuracyRecord{Label: "Circle", VideoName: "vd1", Accuracy: acc}); err != nil {
			t.Fatalf("RecordAccuracy() error = %v", err)
		}
	}
	if err := sink.RecordSaturation(training.SaturationResult{Label: "Circle", VideoName: "vd1", Accuracy: 75, Cycles: 25}); err != nil {
		t.Fatalf("RecordSaturation() error = %v", err)
	}
	if err := sink.RecordOutcome(training.VideoOutcome{Label: "Circle", VideoName: "vd1", Completed: true}); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Writer.Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("FileSink.Close() error = %v", err)
	}

	acc := readLines(t, AccuracyLogPath(layout.Test, "Circle", "vd1"))
	if !slices.Equal(acc, []string{"50", "75"}) {
		t.Errorf("accuracy log = %q, want [50 75]", acc)
	}

	sat := readLines(t, SaturationLogPath(layout.Test, "Circle", "vd1"))
	if len(sat) != 6 || sat[0] != "Result Log for reaching saturated accuracy at 75" {
		t.Errorf("saturation log = %q", sat)
	}

	f, err := os.Open(layout.MetricsPath())
	if err != nil {
		t.Fatalf("Open(metrics) error = %v", err)
	}
	defer f.Close()
	var docs []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var doc map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			t.Fatalf("metrics line is not JSON: %v", err)
		}
		docs = append(docs, doc)
	}
	if len(docs) != 4 {
		t.Fatalf("metrics lines = %d, want 4", len(docs))
	}
	if docs[0]["Accuracy"] != float64(50) || docs[1]["Accuracy"] != float64(75) {
		t.Errorf("accuracy metrics = %v, %v", docs[0]["Accuracy"], docs[1]["Accuracy"])
	}
	if docs[2]["Saturated"] != float64(1) {
		t.Errorf("saturation metric = %v", docs[2])
	}
	if docs[3]["Completed"] != float64(1) {
		t.Errorf("outcome metric = %v", docs[3])
	}
}

type countingSink struct {
	calls int
	err   error
}

func (c *countingSink) RecordAccuracy(training.AccuracyRecord) error {
	c.calls++
	return c.err
}

func (c *countingSink) RecordSaturation(training.SaturationResult) error {
	c.calls++
	return c.err
}

func (c *countingSink) RecordOutcome(training.VideoOutcome) error {
	c.calls++
	return c.err
}

func TestMultiSinkCallsEverySink(t *testing.T) {
	boom := errors.New("table unavailable")
	failing := &countingSink{err: boom}
	ok := &countingSink{}
	m := MultiSink{failing, ok}

	if err := m.RecordAccuracy(training.AccuracyRecord{}); !errors.Is(err, boom) {
		t.Errorf("RecordAccuracy() error = %v, want %v", err, boom)
	}
	if err := m.RecordSaturation(training.SaturationResult{}); !errors.Is(err, boom) {
		t.Errorf("RecordSaturation() error = %v, want %v", err, boom)
	}
	if err := m.RecordOutcome(training.VideoOutcome{}); !errors.Is(err, boom) {
		t.Errorf("RecordOutcome() error = %v, want %v", err, boom)
	}
	if ok.calls != 3 {
		t.Errorf("second sink calls = %d, want 3", ok.calls)
	}
}
