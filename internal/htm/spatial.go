package htm

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/fpang/video-sequence-learning/internal/config"
)

// SpatialPooler maps encoded frames to a sparse set of active columns.
type SpatialPooler struct {
	cfg        config.HtmConfig
	numInputs  int
	numColumns int
	activeK    int

	// potential[c] lists the inputs column c may connect to; perms[c] holds
	// the matching permanences.
	potential [][]int
	perms     [][]float64

	boost          []float64
	boostEnabled   bool
	activeDuty     []float64
	overlapDuty    []float64
	minOverlapDuty float64

	iteration int
	rng       *rand.Rand
}

func newSpatialPooler(cfg config.HtmConfig, rng *rand.Rand) *SpatialPooler {
	sp := &SpatialPooler{
		cfg:          cfg,
		numInputs:    cfg.NumInputs(),
		numColumns:   cfg.NumColumns(),
		activeK:      min(cfg.ActiveColumnsPerCycle(), cfg.NumColumns()),
		boostEnabled: cfg.MaxBoost > 0,
		rng:          rng,
	}

	sp.potential = make([][]int, sp.numColumns)
	sp.perms = make([][]float64, sp.numColumns)
	sp.boost = make([]float64, sp.numColumns)
	sp.activeDuty = make([]float64, sp.numColumns)
	sp.overlapDuty = make([]float64, sp.numColumns)

	for c := 0; c < sp.numColumns; c++ {
		sp.potential[c] = sp.potentialPool(c)
		sp.perms[c] = make([]float64, len(sp.potential[c]))
		for i := range sp.perms[c] {
			sp.perms[c][i] = sp.initialPermanence()
		}
		sp.boost[c] = 1
	}
	return sp
}

// potentialPool picks a random PotentialPct share of the inputs within
// PotentialRadius of the column's center, wrapping around the input edges.
func (sp *SpatialPooler) potentialPool(col int) []int {
	radius := sp.cfg.PotentialRadius
	var window []int
	if radius < 0 || 2*radius+1 >= sp.numInputs {
		window = make([]int, sp.numInputs)
		for i := range window {
			window[i] = i
		}
	} else {
		center := int((float64(col) + 0.5) * float64(sp.numInputs) / float64(sp.numColumns))
		window = make([]int, 0, 2*radius+1)
		for d := -radius; d <= radius; d++ {
			window = append(window, ((center+d)%sp.numInputs+sp.numInputs)%sp.numInputs)
		}
	}

	n := int(math.Round(sp.cfg.PotentialPct * float64(len(window))))
	n = max(1, min(n, len(window)))
	sp.rng.Shuffle(len(window), func(i, j int) { window[i], window[j] = window[j], window[i] })
	pool := slices.Clone(window[:n])
	slices.Sort(pool)
	return pool
}

// initialPermanence starts about half the synapses connected, all close to
// the connection threshold.
func (sp *SpatialPooler) initialPermanence() float64 {
	connected := sp.cfg.SynPermConnected
	if sp.rng.Float64() < 0.5 {
		return min(1, connected+sp.rng.Float64()*0.1)
	}
	return max(0, connected-sp.rng.Float64()*0.1)
}

// Compute returns the sorted active columns for input. Permanences, duty
// cycles and boost factors only change when learn is set.
func (sp *SpatialPooler) Compute(input []int, learn bool) []int {
	overlaps := sp.overlaps(input)
	active := sp.inhibit(overlaps)

	if learn {
		sp.adaptSynapses(input, active)
		sp.updateDutyCycles(overlaps, active)
		sp.bumpWeakColumns()
		sp.updateBoostFactors()
		sp.iteration++
		if sp.iteration%max(1, sp.cfg.DutyCyclePeriod) == 0 {
			sp.updateMinDutyCycles()
		}
	}
	return active
}

func (sp *SpatialPooler) overlaps(input []int) []int {
	overlaps := make([]int, sp.numColumns)
	connected := sp.cfg.SynPermConnected
	for c := range sp.potential {
		n := 0
		for i, idx := range sp.potential[c] {
			if input[idx] != 0 && sp.perms[c][i] >= connected {
				n++
			}
		}
		if float64(n) >= sp.cfg.StimulusThreshold {
			overlaps[c] = n
		}
	}
	return overlaps
}

// inhibit keeps the activeK columns with the highest boosted overlap. Ties
// go to the lower column index.
func (sp *SpatialPooler) inhibit(overlaps []int) []int {
	type scored struct {
		col   int
		score float64
	}
	candidates := make([]scored, 0, sp.numColumns)
	for c, o := range overlaps {
		if o > 0 {
			candidates = append(candidates, scored{col: c, score: float64(o) * sp.boost[c]})
		}
	}
	slices.SortFunc(candidates, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.col - b.col
	})
	if len(candidates) > sp.activeK {
		candidates = candidates[:sp.activeK]
	}

	active := make([]int, len(candidates))
	for i, s := range candidates {
		active[i] = s.col
	}
	slices.Sort(active)
	return active
}

func (sp *SpatialPooler) adaptSynapses(input []int, active []int) {
	inc, dec := sp.cfg.SynPermActiveInc, sp.cfg.SynPermInactiveDec
	for _, c := range active {
		for i, idx := range sp.potential[c] {
			if input[idx] != 0 {
				sp.perms[c][i] = min(1, sp.perms[c][i]+inc)
			} else {
				sp.perms[c][i] = max(0, sp.perms[c][i]-dec)
			}
		}
	}
}

func (sp *SpatialPooler) updateDutyCycles(overlaps []int, active []int) {
	period := float64(max(1, min(sp.cfg.DutyCyclePeriod, sp.iteration+1)))
	isActive := make([]bool, sp.numColumns)
	for _, c := range active {
		isActive[c] = true
	}
	for c := 0; c < sp.numColumns; c++ {
		a, o := 0.0, 0.0
		if isActive[c] {
			a = 1
		}
		if overlaps[c] > 0 {
			o = 1
		}
		sp.activeDuty[c] = (sp.activeDuty[c]*(period-1) + a) / period
		sp.overlapDuty[c] = (sp.overlapDuty[c]*(period-1) + o) / period
	}
}

func (sp *SpatialPooler) updateMinDutyCycles() {
	sp.minOverlapDuty = sp.cfg.MinPctOverlapDutyCycles * slices.Max(sp.overlapDuty)
}

// bumpWeakColumns raises every potential permanence of columns that rarely
// overlap the input.
func (sp *SpatialPooler) bumpWeakColumns() {
	bump := sp.cfg.SynPermConnected * 0.1
	for c := 0; c < sp.numColumns; c++ {
		if sp.overlapDuty[c] >= sp.minOverlapDuty {
			continue
		}
		for i := range sp.perms[c] {
			sp.perms[c][i] = min(1, sp.perms[c][i]+bump)
		}
	}
}

func (sp *SpatialPooler) updateBoostFactors() {
	if !sp.boostEnabled {
		return
	}
	target := float64(sp.activeK) / float64(sp.numColumns)
	for c := range sp.boost {
		sp.boost[c] = math.Exp((target - sp.activeDuty[c]) * sp.cfg.MaxBoost)
	}
}

// DisableBoosting resets every boost factor to 1 and stops updating them.
func (sp *SpatialPooler) DisableBoosting() {
	sp.boostEnabled = false
	for c := range sp.boost {
		sp.boost[c] = 1
	}
}

// NumInputs returns the expected input length.
func (sp *SpatialPooler) NumInputs() int {
	return sp.numInputs
}
