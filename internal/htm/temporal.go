package htm

import (
	"math/rand/v2"
	"slices"

	"github.com/fpang/video-sequence-learning/internal/config"
)

type synapse struct {
	presyn int
	perm   float64
}

type segment struct {
	cell     int
	synapses []synapse
	lastUsed int

	// Activity against the current active cells, refreshed every step.
	activeConnected int
	activePotential int
}

// TemporalMemory learns transitions between active column sets through
// distal segments grown towards previously active winner cells.
type TemporalMemory struct {
	cfg            config.HtmConfig
	numColumns     int
	cellsPerColumn int

	segments [][]*segment

	activeCells      []int
	winnerCells      []int
	activeSegments   []*segment
	matchingSegments []*segment

	iteration int
	rng       *rand.Rand
}

func newTemporalMemory(cfg config.HtmConfig, rng *rand.Rand) *TemporalMemory {
	numCells := cfg.NumColumns() * cfg.CellsPerColumn
	return &TemporalMemory{
		cfg:            cfg,
		numColumns:     cfg.NumColumns(),
		cellsPerColumn: cfg.CellsPerColumn,
		segments:       make([][]*segment, numCells),
		rng:            rng,
	}
}

// Compute activates cells for the given sorted active columns and returns
// the active, winner and predictive cells of this step.
func (tm *TemporalMemory) Compute(activeColumns []int, learn bool) (active, winner, predictive []int) {
	prevActive := make(map[int]bool, len(tm.activeCells))
	for _, c := range tm.activeCells {
		prevActive[c] = true
	}
	prevWinners := tm.winnerCells

	activeByCol := tm.groupByColumn(tm.activeSegments)
	matchingByCol := tm.groupByColumn(tm.matchingSegments)
	isActiveCol := make(map[int]bool, len(activeColumns))

	for _, col := range activeColumns {
		isActiveCol[col] = true

		if segs := activeByCol[col]; len(segs) > 0 {
			for _, seg := range segs {
				active = appendUnique(active, seg.cell)
				winner = appendUnique(winner, seg.cell)
				if learn {
					tm.learnOnSegment(seg, prevActive, prevWinners)
				}
			}
			continue
		}

		// Unpredicted column: every cell fires and one becomes the winner.
		first := col * tm.cellsPerColumn
		for c := first; c < first+tm.cellsPerColumn; c++ {
			active = append(active, c)
		}

		var learningSeg *segment
		var winnerCell int
		if segs := matchingByCol[col]; len(segs) > 0 {
			learningSeg = bestMatching(segs)
			winnerCell = learningSeg.cell
		} else {
			winnerCell = tm.leastUsedCell(col)
			if learn && len(prevWinners) > 0 {
				learningSeg = tm.createSegment(winnerCell)
			}
		}
		winner = append(winner, winnerCell)

		if learn && learningSeg != nil {
			tm.learnOnSegment(learningSeg, prevActive, prevWinners)
		}
	}

	if learn && tm.cfg.PredictedSegmentDecrement > 0 {
		for _, seg := range tm.matchingSegments {
			if !isActiveCol[seg.cell/tm.cellsPerColumn] {
				tm.punish(seg, prevActive)
			}
		}
	}

	slices.Sort(active)
	slices.Sort(winner)
	tm.activeCells = active
	tm.winnerCells = winner
	tm.activateDendrites()
	tm.iteration++

	for _, seg := range tm.activeSegments {
		predictive = appendUnique(predictive, seg.cell)
	}
	slices.Sort(predictive)

	return slices.Clone(active), slices.Clone(winner), predictive
}

// Reset clears all sequence context. Learned segments are kept.
func (tm *TemporalMemory) Reset() {
	tm.activeCells = nil
	tm.winnerCells = nil
	tm.activeSegments = nil
	tm.matchingSegments = nil
}

func (tm *TemporalMemory) groupByColumn(segs []*segment) map[int][]*segment {
	out := make(map[int][]*segment)
	for _, seg := range segs {
		col := seg.cell / tm.cellsPerColumn
		out[col] = append(out[col], seg)
	}
	return out
}

func (tm *TemporalMemory) learnOnSegment(seg *segment, prevActive map[int]bool, prevWinners []int) {
	tm.adaptSegment(seg, prevActive)
	if n := tm.cfg.MaxNewSynapseCount - seg.activePotential; n > 0 {
		tm.growSynapses(seg, prevWinners, n)
	}
	seg.lastUsed = tm.iteration
}

func (tm *TemporalMemory) adaptSegment(seg *segment, prevActive map[int]bool) {
	kept := seg.synapses[:0]
	for _, syn := range seg.synapses {
		if prevActive[syn.presyn] {
			syn.perm = min(1, syn.perm+tm.cfg.PermanenceIncrement)
		} else {
			syn.perm = max(0, syn.perm-tm.cfg.PermanenceDecrement)
		}
		if syn.perm > 0.00001 {
			kept = append(kept, syn)
		}
	}
	seg.synapses = kept
}

func (tm *TemporalMemory) punish(seg *segment, prevActive map[int]bool) {
	for i := range seg.synapses {
		if prevActive[seg.synapses[i].presyn] {
			seg.synapses[i].perm = max(0, seg.synapses[i].perm-tm.cfg.PredictedSegmentDecrement)
		}
	}
}

// growSynapses connects seg to up to n random candidates it is not yet
// connected to, evicting the weakest synapses when the segment is full.
func (tm *TemporalMemory) growSynapses(seg *segment, candidates []int, n int) {
	existing := make(map[int]bool, len(seg.synapses))
	for _, syn := range seg.synapses {
		existing[syn.presyn] = true
	}
	var pool []int
	for _, c := range candidates {
		if !existing[c] {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return
	}
	tm.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	n = min(n, len(pool))

	if limit := tm.cfg.MaxSynapsesPerSegment; limit > 0 {
		n = min(n, limit)
		if overflow := len(seg.synapses) + n - limit; overflow > 0 {
			slices.SortFunc(seg.synapses, func(a, b synapse) int {
				switch {
				case a.perm < b.perm:
					return -1
				case a.perm > b.perm:
					return 1
				}
				return a.presyn - b.presyn
			})
			seg.synapses = seg.synapses[overflow:]
		}
	}

	for _, presyn := range pool[:n] {
		seg.synapses = append(seg.synapses, synapse{presyn: presyn, perm: tm.cfg.InitialPermanence})
	}
}

func (tm *TemporalMemory) createSegment(cell int) *segment {
	segs := tm.segments[cell]
	if limit := tm.cfg.MaxSegmentsPerCell; limit > 0 && len(segs) >= limit {
		lru := 0
		for i, s := range segs {
			if s.lastUsed < segs[lru].lastUsed {
				lru = i
			}
		}
		segs = slices.Delete(segs, lru, lru+1)
	}
	seg := &segment{cell: cell, lastUsed: tm.iteration}
	tm.segments[cell] = append(segs, seg)
	return seg
}

// leastUsedCell returns the cell of col with the fewest segments, picking
// randomly among ties.
func (tm *TemporalMemory) leastUsedCell(col int) int {
	first := col * tm.cellsPerColumn
	fewest := -1
	var ties []int
	for c := first; c < first+tm.cellsPerColumn; c++ {
		n := len(tm.segments[c])
		switch {
		case fewest < 0 || n < fewest:
			fewest = n
			ties = append(ties[:0], c)
		case n == fewest:
			ties = append(ties, c)
		}
	}
	return ties[tm.rng.IntN(len(ties))]
}

// activateDendrites recomputes segment activity against the current active
// cells.
func (tm *TemporalMemory) activateDendrites() {
	isActive := make(map[int]bool, len(tm.activeCells))
	for _, c := range tm.activeCells {
		isActive[c] = true
	}

	tm.activeSegments = tm.activeSegments[:0]
	tm.matchingSegments = tm.matchingSegments[:0]
	connected := tm.cfg.ConnectedPermanence

	for _, segs := range tm.segments {
		for _, seg := range segs {
			seg.activeConnected, seg.activePotential = 0, 0
			for _, syn := range seg.synapses {
				if !isActive[syn.presyn] {
					continue
				}
				seg.activePotential++
				if syn.perm >= connected {
					seg.activeConnected++
				}
			}
			if seg.activeConnected >= tm.cfg.ActivationThreshold {
				tm.activeSegments = append(tm.activeSegments, seg)
			}
			if seg.activePotential >= tm.cfg.MinThreshold {
				tm.matchingSegments = append(tm.matchingSegments, seg)
			}
		}
	}
}

func bestMatching(segs []*segment) *segment {
	best := segs[0]
	for _, s := range segs[1:] {
		if s.activePotential > best.activePotential {
			best = s
		}
	}
	return best
}

func appendUnique(s []int, v int) []int {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
