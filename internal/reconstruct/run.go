package reconstruct

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/filehandler"
)

// QuitSentinel ends an interactive session.
const QuitSentinel = "Q"

// UserInputSource yields still-image references one at a time. io.EOF ends
// the input.
type UserInputSource interface {
	Next(ctx context.Context) (string, error)
}

// Fetcher turns a still reference into a local file. cleanup may be nil.
type Fetcher func(ctx context.Context, ref string) (path string, cleanup func(), err error)

// LocalFetcher treats every reference as a local path.
func LocalFetcher(_ context.Context, ref string) (string, func(), error) {
	return ref, nil, nil
}

// Run reconstructs every file of testFiles, then every reference read from
// src until the Q sentinel or the end of input. src may be nil. A still that
// cannot be read is logged and skipped; an unresolved frame key stops the
// run. It returns the number of stills processed.
func (r *Reconstructor) Run(ctx context.Context, testFiles []string, src UserInputSource, fetch Fetcher) (int, error) {
	if fetch == nil {
		fetch = LocalFetcher
	}

	processed := 0
	for _, ref := range testFiles {
		if err := r.process(ctx, ref, fetch); err != nil {
			return processed, err
		}
		processed++
	}
	if src == nil {
		return processed, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		input, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return processed, nil
		}
		if err != nil {
			return processed, err
		}

		ref := NormalizeInput(input)
		if ref == "" {
			continue
		}
		if strings.EqualFold(ref, QuitSentinel) {
			log.Info().Int("processed", processed).Msg("Quit requested")
			return processed, nil
		}
		if err := r.process(ctx, ref, fetch); err != nil {
			return processed, err
		}
		processed++
	}
}

func (r *Reconstructor) process(ctx context.Context, ref string, fetch Fetcher) error {
	if !filehandler.IsImage(filepath.Ext(ref)) {
		log.Warn().Str("input", ref).Msg("Not a supported image, skipping")
		return nil
	}

	path, cleanup, err := fetch(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Str("input", ref).Msg("Failed to fetch still, skipping")
		return nil
	}
	if cleanup != nil {
		defer cleanup()
	}

	if _, err := r.Predict(ctx, path); err != nil {
		if errors.Is(err, ErrUnresolvedFrameKey) || ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Str("input", ref).Msg("Failed to predict from still, skipping")
	}
	return nil
}

// NormalizeInput trims whitespace and the quotes terminals add around
// dropped file paths.
func NormalizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.Trim(s, `"'`))
}
