// Package reconstruct turns a still image into the frame sequences the
// trained memory expects to follow it, and writes each ranked candidate out
// as a video.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/results"
	"github.com/fpang/video-sequence-learning/internal/training"
	"github.com/fpang/video-sequence-learning/internal/video"
)

// ErrUnresolvedFrameKey is returned when a predicted key names a frame that
// is not part of the loaded training data.
var ErrUnresolvedFrameKey = errors.New("unresolved frame key")

// DefaultTopK is the number of ranked candidates reconstructed per still.
const DefaultTopK = 5

// StillEncoder encodes stills exactly like training frames.
type StillEncoder interface {
	EncodeStill(path string) ([]int, error)
	RenderBits(bits []int, path string) error
}

// Assembler writes an ordered list of frames as a video.
type Assembler interface {
	AssembleVideo(ctx context.Context, frames []*video.Frame, outputPath string, fps float64) error
}

// AccuracyLog appends accuracy records below a root folder.
type AccuracyLog interface {
	AppendAccuracy(root string, rec training.AccuracyRecord) error
}

// Candidate is one resolved prediction.
type Candidate struct {
	Key        string
	Label      string
	Similarity float64
	SharedBits int
	Frames     []*video.Frame

	// OutputPath is the assembled video, empty when assembly failed.
	OutputPath string
}

// Reconstruction is the result of one Predict call.
type Reconstruction struct {
	TestNo     int
	Input      string
	OutputDir  string
	Candidates []Candidate
}

// Deps are the collaborators of a Reconstructor.
type Deps struct {
	Engine     training.MemoryEngine
	Classifier training.Classifier
	Index      *video.Index
	Encoder    StillEncoder
	Assembler  Assembler
	Log        AccuracyLog
	Layout     results.Layout
}

// Options tunes a Reconstructor.
type Options struct {
	// TopK is the number of candidates per still (DefaultTopK when 0).
	TopK int
	// FrameRate of the assembled videos.
	FrameRate float64
	Now       func() time.Time
}

// Reconstructor answers stills with predicted frame sequences.
type Reconstructor struct {
	deps   Deps
	topK   int
	fps    float64
	now    func() time.Time
	testNo int
}

// New returns a Reconstructor. The engine must already be trained.
func New(deps Deps, opts Options) *Reconstructor {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconstructor{deps: deps, topK: opts.TopK, fps: opts.FrameRate, now: opts.Now}
}

// Predict encodes the still at stillPath, computes it without learning and
// reconstructs every ranked candidate the classifier returns for the
// resulting predictive cells. A still that leaves no predictive cells
// yields an empty Reconstruction.
func (r *Reconstructor) Predict(ctx context.Context, stillPath string) (*Reconstruction, error) {
	r.testNo++
	name := strings.TrimSuffix(filepath.Base(stillPath), filepath.Ext(stillPath))
	rec := &Reconstruction{
		TestNo:    r.testNo,
		Input:     stillPath,
		OutputDir: r.deps.Layout.PredictedDir(stillPath),
	}

	if err := results.EnsureDir(rec.OutputDir); err != nil {
		return nil, err
	}

	bits, err := r.deps.Encoder.EncodeStill(stillPath)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", stillPath, err)
	}
	if err := r.deps.Encoder.RenderBits(bits, filepath.Join(rec.OutputDir, "Converted_"+name+".png")); err != nil {
		log.Warn().Err(err).Str("still", name).Msg("Failed to save converted still")
	}

	res, err := r.deps.Engine.Compute(bits, false)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", name, err)
	}
	if len(res.PredictiveCells) == 0 {
		log.Info().Str("still", name).Int("testNo", rec.TestNo).Msg("No predictive cells, nothing to reconstruct")
		return rec, nil
	}

	predictions := r.deps.Classifier.Predict(res.PredictiveCells, r.topK)
	log.Info().
		Str("still", name).
		Int("testNo", rec.TestNo).
		Int("predictiveCells", len(res.PredictiveCells)).
		Int("candidates", len(predictions)).
		Msg("Predicting from still")

	for _, p := range predictions {
		c, err := r.resolve(p)
		if err != nil {
			return nil, err
		}

		note := fmt.Sprintf("%s%% match found with %s\n%s", results.FormatAccuracy(p.Similarity), video.LabelFromKey(p.Key), p.Key)
		if err := r.deps.Log.AppendAccuracy(rec.OutputDir, training.AccuracyRecord{
			Label:      name,
			VideoName:  name,
			Accuracy:   p.Similarity,
			RecordedAt: r.now(),
			Note:       note,
		}); err != nil {
			log.Warn().Err(err).Str("still", name).Msg("Failed to log candidate")
		}

		out := filepath.Join(rec.OutputDir, OutputName(rec.TestNo, c.Label, c.Similarity, c.SharedBits))
		if err := r.deps.Assembler.AssembleVideo(ctx, c.Frames, out, r.fps); err != nil {
			log.Warn().Err(err).Str("key", c.Key).Msg("Failed to assemble candidate video")
		} else {
			c.OutputPath = out
		}

		log.Info().
			Float64("similarity", c.Similarity).
			Int("sharedBits", c.SharedBits).
			Str("label", c.Label).
			Int("frames", len(c.Frames)).
			Msg("Candidate reconstructed")

		rec.Candidates = append(rec.Candidates, c)
	}
	return rec, nil
}

// resolve looks up every frame key of a prediction.
func (r *Reconstructor) resolve(p training.Prediction) (Candidate, error) {
	c := Candidate{Key: p.Key, Similarity: p.Similarity, SharedBits: p.SharedBits}
	for _, key := range video.SplitKey(p.Key) {
		f, ok := r.deps.Index.Lookup(key)
		if !ok {
			return Candidate{}, fmt.Errorf("%w: %s", ErrUnresolvedFrameKey, key)
		}
		c.Frames = append(c.Frames, f)
		c.Label = f.Label
	}
	return c, nil
}

// OutputName names the video of one candidate.
func OutputName(testNo int, label string, similarity float64, sharedBits int) string {
	return fmt.Sprintf("testNo_%d_Label%s_similarity%s_No of same bit%d.mp4", testNo, label, results.FormatAccuracy(similarity), sharedBits)
}
