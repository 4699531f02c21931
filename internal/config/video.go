// Package config loads the two experiment configuration files and the
// optional integration settings taken from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/fpang/video-sequence-learning/internal/video"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultDatasetDir is the dataset folder looked up in the working
// directory when no usable root is configured.
const DefaultDatasetDir = "TrainingVideos"

// VideoConfig describes how training videos are decoded and encoded.
type VideoConfig struct {
	FrameWidth  int             `json:"FrameWidth"`
	FrameHeight int             `json:"FrameHeight"`
	FrameRate   float64         `json:"FrameRate"`
	ColorMode   video.ColorMode `json:"ColorMode"`

	// TrainingDatasetRoot holds one sub-folder per label, each containing
	// that label's videos.
	TrainingDatasetRoot string `json:"TrainingDatasetRoot"`

	// TestFiles are still images reconstructed after training.
	TestFiles []string `json:"TestFiles"`
}

// InputBits returns the length of an encoded frame.
func (c VideoConfig) InputBits() int {
	return c.FrameWidth * c.FrameHeight * c.ColorMode.BitsPerPixel()
}

// Validate checks the fields the decoder and encoder depend on.
func (c VideoConfig) Validate() error {
	var errs []error
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		errs = append(errs, fmt.Errorf("frame size %dx%d must be positive", c.FrameWidth, c.FrameHeight))
	}
	if c.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("frame rate %v must not be negative", c.FrameRate))
	}
	if !c.ColorMode.Valid() {
		errs = append(errs, fmt.Errorf("color mode %v is not supported", c.ColorMode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: video: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
