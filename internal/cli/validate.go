package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/config"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path.
func ValidateAndResolveDirectory(dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", dirPath)
		}
		return "", fmt.Errorf("failed to access directory %s: %w", dirPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", dirPath)
	}

	if absPath, err := filepath.Abs(dirPath); err == nil {
		dirPath = absPath
	}
	return dirPath, nil
}

// ResolveDatasetRoot returns the configured dataset root when it is a
// directory. Otherwise it asks prompt for another path, and when that is
// not a directory either falls back to ./TrainingVideos. The fallback is
// returned even if it does not exist; enumerating it later reports the
// problem. prompt may be nil for non-interactive runs.
func ResolveDatasetRoot(configured string, prompt func(fallback string) string) string {
	if configured != "" {
		dir, err := ValidateAndResolveDirectory(configured)
		if err == nil {
			return dir
		}
		log.Warn().Err(err).Msg("Configured training dataset is not usable")
	}

	fallback := defaultDatasetRoot()
	if prompt != nil {
		answer := prompt(fallback)
		if dir, err := ValidateAndResolveDirectory(answer); err == nil {
			return dir
		} else if answer != fallback {
			log.Warn().Err(err).Msg("Entered path is not usable")
		}
	}

	log.Info().Str("path", fallback).Msg("Using default training dataset directory")
	return fallback
}

func defaultDatasetRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, config.DefaultDatasetDir)
}
