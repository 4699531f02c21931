package training

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/video"
)

// ErrNotStabilized is returned when the stabilization budget runs out
// before the monitor reports a stable state.
var ErrNotStabilized = errors.New("memory engine did not stabilize")

// Options configures an Orchestrator.
type Options struct {
	Mode Mode

	// MaxCycles is the per-video cycle budget. 0 uses the mode default.
	MaxCycles int

	// MaxNewbornCycles caps the stabilization phase. 0 means unbounded.
	MaxNewbornCycles int

	SaturationCycles    int
	SaturationThreshold float64

	// Now is the clock used for elapsed times. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxCycles <= 0 {
		o.MaxCycles = o.Mode.DefaultMaxCycles()
	}
	if o.SaturationCycles <= 0 {
		o.SaturationCycles = DefaultSaturationCycles
	}
	if o.SaturationThreshold <= 0 {
		o.SaturationThreshold = DefaultSaturationThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Orchestrator drives the stabilization and sequence-learning phases.
type Orchestrator struct {
	engine     MemoryEngine
	classifier Classifier
	monitor    StabilityMonitor
	sink       ResultSink
	opts       Options

	session Session

	// lastPredicted holds the keys predicted for the next step. It carries
	// over cycle and video boundaries; a video's first key can never match a
	// prediction made before that key was learned.
	lastPredicted []string
}

// New returns an Orchestrator. sink may be nil.
func New(engine MemoryEngine, classifier Classifier, monitor StabilityMonitor, sink ResultSink, opts Options) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		classifier: classifier,
		monitor:    monitor,
		sink:       sink,
		opts:       opts.withDefaults(),
	}
}

// Session returns a copy of the current training state.
func (o *Orchestrator) Session() Session {
	return o.session
}

// Run executes both phases.
func (o *Orchestrator) Run(ctx context.Context, sets []*video.VideoSet) ([]VideoOutcome, error) {
	if err := o.Stabilize(ctx, sets); err != nil {
		return nil, err
	}
	return o.LearnSequences(ctx, sets)
}

// Stabilize feeds every frame of every video through the engine with
// learning enabled until the monitor reports a stable state. The temporal
// stage is attached on the first stable verdict.
func (o *Orchestrator) Stabilize(ctx context.Context, sets []*video.VideoSet) error {
	if countFrames(sets) == 0 {
		return fmt.Errorf("%w: no frames to train on", ErrNotStabilized)
	}

	start := o.opts.Now()
	for !o.session.Stable {
		if o.opts.MaxNewbornCycles > 0 && o.session.NewbornCycles >= o.opts.MaxNewbornCycles {
			return fmt.Errorf("%w after %d newborn cycles", ErrNotStabilized, o.session.NewbornCycles)
		}
		o.session.NewbornCycles++

		log.Info().
			Int("newborn_cycle", o.session.NewbornCycles).
			Int("patterns", o.session.Patterns).
			Int("inputs_seen", o.session.InputsSeen).
			Msg("Starting newborn cycle")

		stable, err := o.newbornCycle(ctx, sets)
		if err != nil {
			return err
		}
		if stable {
			break
		}
	}

	log.Info().
		Int("newborn_cycles", o.session.NewbornCycles).
		Int("patterns", o.session.Patterns).
		Int("inputs_seen", o.session.InputsSeen).
		Dur("elapsed", o.opts.Now().Sub(start)).
		Msg("Spatial pooler reached stable state")

	return nil
}

func (o *Orchestrator) newbornCycle(ctx context.Context, sets []*video.VideoSet) (bool, error) {
	for _, set := range sets {
		for _, v := range set.Videos {
			for _, f := range v.Frames {
				if err := ctx.Err(); err != nil {
					return false, fmt.Errorf("stabilization interrupted at newborn cycle %d: %w", o.session.NewbornCycles, err)
				}
				if _, err := o.engine.Compute(f.Bits, true); err != nil {
					return false, fmt.Errorf("failed to compute frame %s: %w", f.Key, err)
				}
				if o.poll() {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// poll applies the latest verdict to the session and attaches the temporal
// stage the first time it reports stable.
func (o *Orchestrator) poll() bool {
	v := o.monitor.Poll()
	if o.session.observe(v, o.opts.Now()) {
		o.engine.AttachTemporal()
		log.Info().
			Int("patterns", v.Patterns).
			Int("inputs_seen", v.InputsSeen).
			Int("newborn_cycle", o.session.NewbornCycles).
			Msg("STABLE: temporal memory attached")
	}
	return o.session.Stable
}

// LearnSequences trains every video in turn until its accuracy saturates or
// its cycle budget runs out. It must run after Stabilize.
func (o *Orchestrator) LearnSequences(ctx context.Context, sets []*video.VideoSet) ([]VideoOutcome, error) {
	if !o.session.Stable {
		return nil, fmt.Errorf("%w: sequence learning requires a stable engine", ErrNotStabilized)
	}

	width := 0
	if o.opts.Mode == SequenceMode {
		width = WindowWidth(sets)
		log.Info().Int("window_width", width).Msg("Sequence window width fixed from first video")
	}

	o.lastPredicted = nil
	var outcomes []VideoOutcome
	for _, set := range sets {
		for _, v := range set.Videos {
			out, err := o.learnVideo(ctx, set.Label, v, width)
			if err != nil {
				return outcomes, err
			}
			outcomes = append(outcomes, out)
			o.record("outcome", o.sinkOutcome(out))
		}
	}
	return outcomes, nil
}

func (o *Orchestrator) learnVideo(ctx context.Context, label string, v *video.Video, width int) (VideoOutcome, error) {
	start := o.opts.Now()
	keys := NewSequenceKeyBuilder(o.opts.Mode, width)
	term := NewTermination(o.opts.SaturationCycles, o.opts.SaturationThreshold)

	o.session.Learn = true

	log.Info().
		Str("label", label).
		Str("video", v.Name).
		Int("frames", v.FrameCount()).
		Int("max_cycles", o.opts.MaxCycles).
		Str("mode", o.opts.Mode.String()).
		Msg("Starting sequence learning")

	for cycle := 1; cycle <= o.opts.MaxCycles; cycle++ {
		matches := 0

		for _, f := range v.Frames {
			if err := ctx.Err(); err != nil {
				return VideoOutcome{}, fmt.Errorf("sequence learning interrupted at %s cycle %d: %w", v.Name, cycle, err)
			}

			res, err := o.engine.Compute(f.Bits, o.session.Learn)
			if err != nil {
				return VideoOutcome{}, fmt.Errorf("failed to compute frame %s: %w", f.Key, err)
			}
			o.session.observe(o.monitor.Poll(), o.opts.Now())

			key, ready := keys.Push(f.Key)
			if !ready {
				continue
			}

			o.classifier.Learn(key, selectCells(res))

			if slices.Contains(o.lastPredicted, key) {
				matches++
				log.Debug().Str("key", key).Msg("Match")
			} else {
				log.Debug().Str("key", key).Strs("predicted", o.lastPredicted).Msg("Mismatch")
			}
			o.lastPredicted = o.lastPredicted[:0]

			if len(res.PredictiveCells) > 0 {
				for _, p := range o.classifier.Predict(res.PredictiveCells, 1) {
					o.lastPredicted = append(o.lastPredicted, p.Key)
				}
			} else {
				log.Debug().Str("frame", f.Key).Msg("No cells predicted for next frame")
			}
		}

		rec := NewAccuracyRecord(label, v.Name, cycle, matches, v.FrameCount())
		rec.RecordedAt = o.opts.Now()
		o.record("accuracy", o.sinkAccuracy(rec))

		log.Info().
			Str("video", v.Name).
			Int("cycle", cycle).
			Int("matches", matches).
			Int("frames", v.FrameCount()).
			Float64("accuracy", rec.Accuracy).
			Msg("Cycle complete")

		done := term.Observe(rec.Accuracy)
		o.engine.ResetSequence()

		if done {
			res := SaturationResult{
				Label:         label,
				VideoName:     v.Name,
				Accuracy:      rec.Accuracy,
				Cycles:        cycle,
				Elapsed:       o.opts.Now().Sub(start),
				NewbornCycles: o.session.NewbornCycles,
			}
			o.record("saturation", o.sinkSaturation(res))
			log.Info().
				Str("label", label).
				Str("video", v.Name).
				Float64("accuracy", rec.Accuracy).
				Int("cycles", cycle).
				Msg("Accuracy saturated, stopping early")
			break
		}
	}

	out := VideoOutcome{
		Label:         label,
		VideoName:     v.Name,
		Frames:        v.FrameCount(),
		Cycles:        term.Cycle,
		FinalAccuracy: term.LastAccuracy,
		Completed:     term.Completed,
		Elapsed:       o.opts.Now().Sub(start),
	}
	if !out.Completed {
		log.Warn().
			Str("label", label).
			Str("video", v.Name).
			Int("max_cycles", o.opts.MaxCycles).
			Float64("final_accuracy", out.FinalAccuracy).
			Msg("Experiment did not complete successfully")
	}
	return out, nil
}

func (o *Orchestrator) sinkAccuracy(rec AccuracyRecord) error {
	if o.sink == nil {
		return nil
	}
	return o.sink.RecordAccuracy(rec)
}

func (o *Orchestrator) sinkSaturation(res SaturationResult) error {
	if o.sink == nil {
		return nil
	}
	return o.sink.RecordSaturation(res)
}

func (o *Orchestrator) sinkOutcome(out VideoOutcome) error {
	if o.sink == nil {
		return nil
	}
	return o.sink.RecordOutcome(out)
}

// record logs a failed output write. Output failures never stop training.
func (o *Orchestrator) record(kind string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("record", kind).Msg("Failed to record result")
	}
}

func countFrames(sets []*video.VideoSet) int {
	n := 0
	for _, s := range sets {
		for _, v := range s.Videos {
			n += v.FrameCount()
		}
	}
	return n
}
