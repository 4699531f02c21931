// Package htm is the reference memory engine: a spatial pooler feeding a
// temporal memory, with a plasticity controller deciding when the spatial
// mapping is stable enough to attach the temporal stage.
//
// The engine is deterministic for a given seed and is not safe for
// concurrent use.
package htm

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/config"
	"github.com/fpang/video-sequence-learning/internal/training"
)

// StabilityOptions tunes the plasticity controller.
type StabilityOptions struct {
	MinCycles    int
	SettleWindow int
	Threshold    float64
}

// Layer chains the spatial pooler and, once attached, the temporal memory.
type Layer struct {
	cfg      config.HtmConfig
	sp       *SpatialPooler
	tm       *TemporalMemory
	hpc      *PlasticityController
	temporal bool

	// observing feeds every spatial compute to hpc, learning or not.
	observing bool
}

// NewLayer builds a layer from cfg.
func NewLayer(cfg config.HtmConfig, stability StabilityOptions) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := uint64(cfg.Seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	l := &Layer{
		cfg: cfg,
		sp:  newSpatialPooler(cfg, rng),
		tm:  newTemporalMemory(cfg, rng),
		hpc: NewPlasticityController(stability.MinCycles, stability.SettleWindow, stability.Threshold),

		observing: true,
	}
	l.hpc.onNewbornEnd = l.sp.DisableBoosting

	log.Info().
		Int("inputs", cfg.NumInputs()).
		Int("columns", cfg.NumColumns()).
		Int("cells_per_column", cfg.CellsPerColumn).
		Int("min_cycles", stability.MinCycles).
		Msg("HTM layer created")

	return l, nil
}

var _ training.MemoryEngine = (*Layer)(nil)

// Compute runs one encoded frame through the layer. While observing, the
// plasticity controller sees every spatial compute, including those with
// learning off, so an unstable verdict can recover.
func (l *Layer) Compute(bits []int, learn bool) (training.CycleResult, error) {
	if len(bits) != l.sp.NumInputs() {
		return training.CycleResult{}, fmt.Errorf("input has %d bits, layer expects %d", len(bits), l.sp.NumInputs())
	}

	columns := l.sp.Compute(bits, learn)
	if l.observing {
		l.hpc.Observe(bits, columns)
	}

	res := training.CycleResult{ActiveColumns: slices.Clone(columns)}
	if l.temporal {
		res.ActiveCells, res.WinnerCells, res.PredictiveCells = l.tm.Compute(columns, learn)
	}
	return res, nil
}

// AttachTemporal enables the temporal memory for subsequent computes.
func (l *Layer) AttachTemporal() {
	if !l.temporal {
		log.Debug().Msg("Temporal memory attached to layer")
	}
	l.temporal = true
}

// ResetSequence clears the temporal memory's sequence context.
func (l *Layer) ResetSequence() {
	l.tm.Reset()
}

// Plasticity returns the layer's stability monitor.
func (l *Layer) Plasticity() *PlasticityController {
	return l.hpc
}

// SetObserving turns stability observation on or off. Prediction from
// stills runs with it off so queries do not move the verdict.
func (l *Layer) SetObserving(on bool) {
	l.observing = on
}
