package config

import (
	"errors"
	"fmt"
)

// HtmConfig holds the memory engine tuning parameters.
type HtmConfig struct {
	InputDimensions  []int `json:"InputDimensions"`
	ColumnDimensions []int `json:"ColumnDimensions"`
	CellsPerColumn   int   `json:"CellsPerColumn"`

	// Spatial pooler.
	GlobalInhibition           bool    `json:"GlobalInhibition"`
	NumActiveColumnsPerInhArea float64 `json:"NumActiveColumnsPerInhArea"`
	LocalAreaDensity           float64 `json:"LocalAreaDensity"`
	PotentialRadius            int     `json:"PotentialRadius"`
	PotentialPct               float64 `json:"PotentialPct"`
	StimulusThreshold          float64 `json:"StimulusThreshold"`
	SynPermConnected           float64 `json:"SynPermConnected"`
	SynPermActiveInc           float64 `json:"SynPermActiveInc"`
	SynPermInactiveDec         float64 `json:"SynPermInactiveDec"`
	MaxBoost                   float64 `json:"MaxBoost"`
	DutyCyclePeriod            int     `json:"DutyCyclePeriod"`
	MinPctOverlapDutyCycles    float64 `json:"MinPctOverlapDutyCycles"`

	// Temporal memory.
	ActivationThreshold       int     `json:"ActivationThreshold"`
	MinThreshold              int     `json:"MinThreshold"`
	MaxNewSynapseCount        int     `json:"MaxNewSynapseCount"`
	MaxSynapsesPerSegment     int     `json:"MaxSynapsesPerSegment"`
	MaxSegmentsPerCell        int     `json:"MaxSegmentsPerCell"`
	InitialPermanence         float64 `json:"InitialPermanence"`
	ConnectedPermanence       float64 `json:"ConnectedPermanence"`
	PermanenceIncrement       float64 `json:"PermanenceIncrement"`
	PermanenceDecrement       float64 `json:"PermanenceDecrement"`
	PredictedSegmentDecrement float64 `json:"PredictedSegmentDecrement"`

	Seed int64 `json:"Seed"`
}

// DefaultHtmConfig returns the engine defaults for an input of inputBits
// bits, before the experiment overrides are applied.
func DefaultHtmConfig(inputBits int) HtmConfig {
	return HtmConfig{
		InputDimensions:            []int{inputBits},
		ColumnDimensions:           []int{2048},
		CellsPerColumn:             32,
		GlobalInhibition:           true,
		NumActiveColumnsPerInhArea: 40,
		LocalAreaDensity:           -1,
		PotentialRadius:            -1,
		PotentialPct:               0.5,
		StimulusThreshold:          0,
		SynPermConnected:           0.1,
		SynPermActiveInc:           0.05,
		SynPermInactiveDec:         0.008,
		MaxBoost:                   10,
		DutyCyclePeriod:            1000,
		MinPctOverlapDutyCycles:    0.001,
		ActivationThreshold:        10,
		MinThreshold:               9,
		MaxNewSynapseCount:         20,
		MaxSynapsesPerSegment:      255,
		MaxSegmentsPerCell:         255,
		InitialPermanence:          0.21,
		ConnectedPermanence:        0.5,
		PermanenceIncrement:        0.1,
		PermanenceDecrement:        0.1,
		PredictedSegmentDecrement:  0.1,
		Seed:                       42,
	}
}

// ApplyExperimentDefaults applies the overrides the video experiment always
// runs with on top of whatever the file provided. The input dimensions are
// forced to inputBits so the engine matches the frame encoder.
func (c *HtmConfig) ApplyExperimentDefaults(inputBits int) {
	c.InputDimensions = []int{inputBits}
	cols := c.NumColumns()

	c.CellsPerColumn = 40
	c.GlobalInhibition = true
	c.LocalAreaDensity = -1
	c.NumActiveColumnsPerInhArea = 0.02 * float64(cols)
	c.PotentialRadius = int(0.15 * float64(inputBits))
	c.MaxBoost = 30
	c.DutyCyclePeriod = 100
	c.MinPctOverlapDutyCycles = 0.75
	c.MaxSynapsesPerSegment = int(0.02 * float64(cols))
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// NumInputs returns the flattened input size.
func (c HtmConfig) NumInputs() int {
	return product(c.InputDimensions)
}

// NumColumns returns the flattened column count.
func (c HtmConfig) NumColumns() int {
	return product(c.ColumnDimensions)
}

// ActiveColumnsPerCycle returns how many columns global inhibition keeps.
func (c HtmConfig) ActiveColumnsPerCycle() int {
	n := c.NumActiveColumnsPerInhArea
	if n <= 0 && c.LocalAreaDensity > 0 {
		n = c.LocalAreaDensity * float64(c.NumColumns())
	}
	if n < 1 {
		n = 1
	}
	return int(n)
}

// Validate checks the topology and permanence ranges.
func (c HtmConfig) Validate() error {
	var errs []error
	if c.NumInputs() <= 0 {
		errs = append(errs, fmt.Errorf("input dimensions %v must be positive", c.InputDimensions))
	}
	if c.NumColumns() <= 0 {
		errs = append(errs, fmt.Errorf("column dimensions %v must be positive", c.ColumnDimensions))
	}
	if c.CellsPerColumn <= 0 {
		errs = append(errs, fmt.Errorf("cells per column %d must be positive", c.CellsPerColumn))
	}
	for name, v := range map[string]float64{
		"SynPermConnected":    c.SynPermConnected,
		"ConnectedPermanence": c.ConnectedPermanence,
		"InitialPermanence":   c.InitialPermanence,
		"PotentialPct":        c.PotentialPct,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %v must be within [0, 1]", name, v))
		}
	}
	if c.MinThreshold > c.ActivationThreshold {
		errs = append(errs, fmt.Errorf("min threshold %d exceeds activation threshold %d", c.MinThreshold, c.ActivationThreshold))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: htm: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func product(dims []int) int {
	if len(dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
