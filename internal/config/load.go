package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// LoadVideoConfig reads and validates a video configuration file.
func LoadVideoConfig(path string) (VideoConfig, error) {
	var cfg VideoConfig
	if err := readJSON(path, &cfg); err != nil {
		return VideoConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return VideoConfig{}, err
	}

	log.Debug().
		Str("path", path).
		Int("width", cfg.FrameWidth).
		Int("height", cfg.FrameHeight).
		Float64("frame_rate", cfg.FrameRate).
		Str("color_mode", cfg.ColorMode.String()).
		Int("test_files", len(cfg.TestFiles)).
		Msg("Video configuration loaded")

	return cfg, nil
}

// LoadHtmConfig reads an engine configuration file on top of the defaults
// for inputBits, applies the experiment overrides and validates the result.
// An empty path yields the defaults.
func LoadHtmConfig(path string, inputBits int) (HtmConfig, error) {
	cfg := DefaultHtmConfig(inputBits)
	if path != "" {
		if err := readJSON(path, &cfg); err != nil {
			return HtmConfig{}, err
		}
	}
	cfg.ApplyExperimentDefaults(inputBits)
	if err := cfg.Validate(); err != nil {
		return HtmConfig{}, err
	}

	log.Debug().
		Str("path", path).
		Int("inputs", cfg.NumInputs()).
		Int("columns", cfg.NumColumns()).
		Int("cells_per_column", cfg.CellsPerColumn).
		Int("active_columns", cfg.ActiveColumnsPerCycle()).
		Int64("seed", cfg.Seed).
		Msg("HTM configuration loaded")

	return cfg, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
