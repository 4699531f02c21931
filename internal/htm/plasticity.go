package htm

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/training"
)

// Stability defaults.
const (
	// NewbornCyclesPerFrame scales the longest video length into the
	// newborn budget: longest × 150 × 3 inputs.
	NewbornCyclesPerFrame = 150 * 3

	DefaultSettleWindow       = 50
	DefaultStabilityThreshold = 0.97
)

// MinCyclesFor returns the newborn budget for a longest video length.
func MinCyclesFor(longestVideoLength int) int {
	return longestVideoLength * NewbornCyclesPerFrame
}

type patternState struct {
	sdr          []int
	stableCycles int
}

// PlasticityController watches the spatial pooler's input/output pairs and
// judges when the mapping has settled. Boosting is switched off when the
// newborn stage ends.
type PlasticityController struct {
	minCycles    int
	settleWindow int
	threshold    float64

	inputs   int
	patterns map[uint64]*patternState
	stable   bool
	newborn  bool

	onNewbornEnd func()
}

// NewPlasticityController returns a controller that stays newborn for
// minCycles inputs and then requires every pattern to keep its output for
// settleWindow observations.
func NewPlasticityController(minCycles, settleWindow int, threshold float64) *PlasticityController {
	if settleWindow <= 0 {
		settleWindow = DefaultSettleWindow
	}
	if threshold <= 0 {
		threshold = DefaultStabilityThreshold
	}
	return &PlasticityController{
		minCycles:    minCycles,
		settleWindow: settleWindow,
		threshold:    threshold,
		patterns:     make(map[uint64]*patternState),
		newborn:      true,
	}
}

var _ training.StabilityMonitor = (*PlasticityController)(nil)

// Observe records that input produced the active columns.
func (p *PlasticityController) Observe(input, active []int) {
	p.inputs++
	if p.inputs < p.minCycles {
		return
	}
	if p.newborn {
		p.newborn = false
		log.Info().
			Int("inputs_seen", p.inputs).
			Msg("Newborn stage finished, boosting disabled")
		if p.onNewbornEnd != nil {
			p.onNewbornEnd()
		}
	}

	h := hashInput(input)
	st, seen := p.patterns[h]
	if !seen {
		p.patterns[h] = &patternState{sdr: active}
	} else {
		if sdrSimilarity(st.sdr, active) >= p.threshold {
			st.stableCycles++
		} else {
			st.stableCycles = 0
		}
		st.sdr = active
	}

	stable := p.allSettled()
	if stable != p.stable {
		state := "UNSTABLE"
		if stable {
			state = "STABLE"
		}
		log.Info().
			Int("patterns", len(p.patterns)).
			Int("inputs_seen", p.inputs).
			Msgf("%s: Patterns: %d, Inputs: %d", state, len(p.patterns), p.inputs)
	}
	p.stable = stable
}

func (p *PlasticityController) allSettled() bool {
	if len(p.patterns) == 0 {
		return false
	}
	for _, st := range p.patterns {
		if st.stableCycles < p.settleWindow {
			return false
		}
	}
	return true
}

// Poll returns the latest verdict.
func (p *PlasticityController) Poll() training.StabilityVerdict {
	return training.StabilityVerdict{
		Stable:     p.stable,
		Patterns:   len(p.patterns),
		InputsSeen: p.inputs,
	}
}

// Newborn reports whether the controller is still in its newborn stage.
func (p *PlasticityController) Newborn() bool {
	return p.newborn
}

func hashInput(input []int) uint64 {
	buf := make([]byte, 0, len(input)/8+1)
	var b byte
	for i, v := range input {
		if v != 0 {
			b |= 1 << (i % 8)
		}
		if i%8 == 7 {
			buf = append(buf, b)
			b = 0
		}
	}
	buf = append(buf, b)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(input)))
	return xxhash.Sum64(buf)
}

// sdrSimilarity is the shared fraction of the larger sorted SDR.
func sdrSimilarity(a, b []int) float64 {
	denom := max(len(a), len(b))
	if denom == 0 {
		return 1
	}
	shared, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return float64(shared) / float64(denom)
}
