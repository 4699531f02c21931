package reconstruct

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/video-sequence-learning/internal/classifier"
	"github.com/fpang/video-sequence-learning/internal/results"
	"github.com/fpang/video-sequence-learning/internal/training"
	"github.com/fpang/video-sequence-learning/internal/video"
)

type fakeEngine struct {
	predictive []int
	learnFlags []bool
}

func (e *fakeEngine) Compute(_ []int, learn bool) (training.CycleResult, error) {
	e.learnFlags = append(e.learnFlags, learn)
	return training.CycleResult{PredictiveCells: e.predictive}, nil
}

func (e *fakeEngine) AttachTemporal() {}
func (e *fakeEngine) ResetSequence()  {}

type fakeEncoder struct {
	rendered []string
}

func (f *fakeEncoder) EncodeStill(path string) ([]int, error) {
	if strings.Contains(path, "missing") {
		return nil, errors.New("no such file")
	}
	return []int{1, 0, 1, 0}, nil
}

func (f *fakeEncoder) RenderBits(_ []int, path string) error {
	f.rendered = append(f.rendered, path)
	return nil
}

type assembly struct {
	keys   []string
	output string
	fps    float64
}

type fakeAssembler struct {
	calls []assembly
}

func (f *fakeAssembler) AssembleVideo(_ context.Context, frames []*video.Frame, outputPath string, fps float64) error {
	var keys []string
	for _, fr := range frames {
		keys = append(keys, fr.Key)
	}
	f.calls = append(f.calls, assembly{keys: keys, output: outputPath, fps: fps})
	return nil
}

type logEntry struct {
	root string
	rec  training.AccuracyRecord
}

type fakeLog struct {
	entries []logEntry
}

func (f *fakeLog) AppendAccuracy(root string, rec training.AccuracyRecord) error {
	f.entries = append(f.entries, logEntry{root: root, rec: rec})
	return nil
}

type sliceSource struct {
	inputs []string
	calls  int
}

func (s *sliceSource) Next(context.Context) (string, error) {
	s.calls++
	if len(s.inputs) == 0 {
		return "", io.EOF
	}
	next := s.inputs[0]
	s.inputs = s.inputs[1:]
	return next, nil
}

type harness struct {
	engine    *fakeEngine
	encoder   *fakeEncoder
	assembler *fakeAssembler
	log       *fakeLog
	layout    results.Layout
	r         *Reconstructor
}

// newHarness trains a classifier with two sequences of label "Circle"
// sharing their first two frames.
func newHarness(t *testing.T) *harness {
	t.Helper()
	v := &video.Video{Name: "vd1", Label: "Circle"}
	for i := 0; i < 4; i++ {
		v.Frames = append(v.Frames, video.NewFrame("Circle", "vd1", i, []int{1}, 1, 1, video.BlackWhite))
	}
	sets := []*video.VideoSet{{Label: "Circle", Videos: []*video.Video{v}}}

	cls := classifier.New()
	cls.Learn("Circle_vd1_0-Circle_vd1_1-Circle_vd1_2", []int{1, 2, 3, 4})
	cls.Learn("Circle_vd1_0-Circle_vd1_1-Circle_vd1_3", []int{1, 2, 5, 6})

	h := &harness{
		engine:    &fakeEngine{predictive: []int{1, 2, 3, 4}},
		encoder:   &fakeEncoder{},
		assembler: &fakeAssembler{},
		log:       &fakeLog{},
		layout:    results.NewLayout(t.TempDir(), "FrameKeys", time.Unix(0, 0)),
	}
	h.r = New(Deps{
		Engine:     h.engine,
		Classifier: cls,
		Index:      video.BuildIndex(sets),
		Encoder:    h.encoder,
		Assembler:  h.assembler,
		Log:        h.log,
		Layout:     h.layout,
	}, Options{TopK: 2, FrameRate: 10})
	return h
}

func TestPredictRanksCandidates(t *testing.T) {
	h := newHarness(t)

	rec, err := h.r.Predict(context.Background(), "/stills/circle.png")
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if rec.TestNo != 1 {
		t.Errorf("TestNo = %d, want 1", rec.TestNo)
	}
	if want := h.layout.PredictedDir("/stills/circle.png"); rec.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", rec.OutputDir, want)
	}
	if info, err := os.Stat(rec.OutputDir); err != nil || !info.IsDir() {
		t.Errorf("output dir not created: %v", err)
	}
	if len(h.engine.learnFlags) != 1 || h.engine.learnFlags[0] {
		t.Errorf("learn flags = %v, want [false]", h.engine.learnFlags)
	}
	if len(h.encoder.rendered) != 1 || filepath.Base(h.encoder.rendered[0]) != "Converted_circle.png" {
		t.Errorf("rendered = %v, want Converted_circle.png", h.encoder.rendered)
	}

	if len(rec.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(rec.Candidates))
	}
	tests := []struct {
		key        string
		similarity float64
		shared     int
		last       string
		output     string
	}{
		{"Circle_vd1_0-Circle_vd1_1-Circle_vd1_2", 100, 4, "Circle_vd1_2", "testNo_1_LabelCircle_similarity100_No of same bit4.mp4"},
		{"Circle_vd1_0-Circle_vd1_1-Circle_vd1_3", 50, 2, "Circle_vd1_3", "testNo_1_LabelCircle_similarity50_No of same bit2.mp4"},
	}
	for i, tt := range tests {
		c := rec.Candidates[i]
		if c.Key != tt.key || c.Similarity != tt.similarity || c.SharedBits != tt.shared || c.Label != "Circle" {
			t.Errorf("candidate %d = %+v, want key %s similarity %v shared %d", i, c, tt.key, tt.similarity, tt.shared)
		}
		if len(c.Frames) != 3 || c.Frames[2].Key != tt.last {
			t.Errorf("candidate %d frames resolved wrongly", i)
		}
		if filepath.Base(c.OutputPath) != tt.output {
			t.Errorf("candidate %d output = %q, want %q", i, filepath.Base(c.OutputPath), tt.output)
		}
		if h.assembler.calls[i].fps != 10 || len(h.assembler.calls[i].keys) != 3 {
			t.Errorf("assembly %d = %+v", i, h.assembler.calls[i])
		}
	}

	if len(h.log.entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(h.log.entries))
	}
	first := h.log.entries[0]
	if first.root != rec.OutputDir || first.rec.Label != "circle" || first.rec.VideoName != "circle" {
		t.Errorf("log entry = %+v", first)
	}
	if want := "100% match found with Circle\nCircle_vd1_0-Circle_vd1_1-Circle_vd1_2"; first.rec.Note != want {
		t.Errorf("note = %q, want %q", first.rec.Note, want)
	}

	again, err := h.r.Predict(context.Background(), "/stills/circle.png")
	if err != nil {
		t.Fatalf("second Predict() error = %v", err)
	}
	if again.TestNo != 2 {
		t.Errorf("second TestNo = %d, want 2", again.TestNo)
	}
}

func TestPredictNoPredictiveCells(t *testing.T) {
	h := newHarness(t)
	h.engine.predictive = nil

	rec, err := h.r.Predict(context.Background(), "/stills/blank.png")
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(rec.Candidates) != 0 || len(h.assembler.calls) != 0 || len(h.log.entries) != 0 {
		t.Errorf("expected no reconstruction, got %d candidates", len(rec.Candidates))
	}
}

func TestPredictUnresolvedKey(t *testing.T) {
	h := newHarness(t)
	cls := classifier.New()
	cls.Learn("Circle_vd1_0-Square_vd9_4", []int{1, 2, 3, 4})
	h.r.deps.Classifier = cls

	_, err := h.r.Predict(context.Background(), "/stills/circle.png")
	if !errors.Is(err, ErrUnresolvedFrameKey) {
		t.Fatalf("Predict() error = %v, want ErrUnresolvedFrameKey", err)
	}
	if !strings.Contains(err.Error(), "Square_vd9_4") {
		t.Errorf("error %q does not name the key", err)
	}
}

func TestRunStopsAtQuit(t *testing.T) {
	h := newHarness(t)
	src := &sliceSource{inputs: []string{`"/stills/a.png"`, "", "  q ", "/stills/never.png"}}

	n, err := h.r.Run(context.Background(), []string{"/stills/config.png"}, src, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Run() processed = %d, want 2", n)
	}
	if len(src.inputs) != 1 {
		t.Errorf("remaining inputs = %v, want the one after Q", src.inputs)
	}
	if got := filepath.Base(h.encoder.rendered[1]); got != "Converted_a.png" {
		t.Errorf("quoted input rendered as %q, want Converted_a.png", got)
	}
}

func TestRunEndOfInput(t *testing.T) {
	h := newHarness(t)
	src := &sliceSource{inputs: []string{"/stills/a.png"}}

	n, err := h.r.Run(context.Background(), nil, src, nil)
	if err != nil || n != 1 {
		t.Errorf("Run() = %d, %v, want 1, nil", n, err)
	}
}

func TestRunSkipsUnreadableStill(t *testing.T) {
	h := newHarness(t)
	n, err := h.r.Run(context.Background(), []string{"/stills/missing.png", "/stills/a.png"}, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 2 || len(h.assembler.calls) != 2 {
		t.Errorf("Run() = %d with %d assemblies, want 2 and 2", n, len(h.assembler.calls))
	}
}

func TestRunSkipsNonImageInput(t *testing.T) {
	h := newHarness(t)
	fetched := 0
	fetch := func(ctx context.Context, ref string) (string, func(), error) {
		fetched++
		return LocalFetcher(ctx, ref)
	}

	n, err := h.r.Run(context.Background(), []string{"/stills/notes.txt", "s3://bucket/clip.mp4", "/stills/a.PNG"}, nil, fetch)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Run() processed = %d, want 3", n)
	}
	if fetched != 1 || h.r.testNo != 1 {
		t.Errorf("fetched = %d, predicted = %d, want only the image", fetched, h.r.testNo)
	}
}

func TestRunStopsOnUnresolvedKey(t *testing.T) {
	h := newHarness(t)
	cls := classifier.New()
	cls.Learn("Nowhere_vd_0", []int{1, 2, 3, 4})
	h.r.deps.Classifier = cls

	_, err := h.r.Run(context.Background(), []string{"/stills/a.png", "/stills/b.png"}, nil, nil)
	if !errors.Is(err, ErrUnresolvedFrameKey) {
		t.Errorf("Run() error = %v, want ErrUnresolvedFrameKey", err)
	}
	if h.r.testNo != 1 {
		t.Errorf("stills attempted = %d, want 1", h.r.testNo)
	}
}

func TestRunFetcherCleanup(t *testing.T) {
	h := newHarness(t)
	cleaned := 0
	fetch := func(_ context.Context, ref string) (string, func(), error) {
		if ref == "s3://bucket/bad.png" {
			return "", nil, errors.New("NoSuchKey")
		}
		return "/tmp/fetched.png", func() { cleaned++ }, nil
	}

	n, err := h.r.Run(context.Background(), []string{"s3://bucket/cat.png", "s3://bucket/bad.png"}, nil, fetch)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 2 || cleaned != 1 {
		t.Errorf("Run() = %d, cleaned = %d, want 2 and 1", n, cleaned)
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := map[string]string{
		`"/a b/c.png"`:    "/a b/c.png",
		"'/a/c.png'":      "/a/c.png",
		"  /a/c.png \r\n": "/a/c.png",
		`" /a/c.png "`:    "/a/c.png",
		"":                "",
	}
	for in, want := range tests {
		if got := NormalizeInput(in); got != want {
			t.Errorf("NormalizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOutputName(t *testing.T) {
	got := OutputName(3, "Circle", 87.5, 12)
	if want := "testNo_3_LabelCircle_similarity87.5_No of same bit12.mp4"; got != want {
		t.Errorf("OutputName() = %q, want %q", got, want)
	}
}
