package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampFormat names run folders.
const TimestampFormat = "20060102-150405"

// Layout is the folder structure of one training run:
//
//	<output>/<mode>_<timestamp>/
//	    Converted/     binarised copies of the training videos
//	    TEST/          accuracy logs, saturation reports, reconstructions
//	    metrics.jsonl  EMF metrics
type Layout struct {
	Root      string
	Converted string
	Test      string
}

// NewLayout returns the layout of a run started at now.
func NewLayout(output, mode string, now time.Time) Layout {
	root := filepath.Join(output, mode+"_"+now.Format(TimestampFormat))
	return Layout{
		Root:      root,
		Converted: filepath.Join(root, "Converted"),
		Test:      filepath.Join(root, "TEST"),
	}
}

// Ensure creates every folder of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.Converted, l.Test} {
		if err := EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// MetricsPath is the EMF metrics file of the run.
func (l Layout) MetricsPath() string {
	return filepath.Join(l.Root, "metrics.jsonl")
}

// PredictedDir is the folder reconstructions of stillPath are written to.
func (l Layout) PredictedDir(stillPath string) string {
	return filepath.Join(l.Test, "Predicted from "+baseName(stillPath))
}

// AccuracyLogPath returns <root>/AccuracyLog/<label>/<video>_accuracy.txt.
func AccuracyLogPath(root, label, videoName string) string {
	return filepath.Join(root, "AccuracyLog", label, videoName+"_accuracy.txt")
}

// SaturationLogPath returns <root>/saturatedAccuracyLog_<label>_<video>.txt.
func SaturationLogPath(root, label, videoName string) string {
	return filepath.Join(root, fmt.Sprintf("saturatedAccuracyLog_%s_%s.txt", label, videoName))
}

// EnsureDir creates dir and its parents. An existing directory is not an
// error.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// AppendLines appends lines to path, creating the file and its folder when
// missing.
func AppendLines(path string, lines ...string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(joinLines(lines)); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return f.Close()
}

// WriteLines replaces the content of path with lines.
func WriteLines(path string, lines ...string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(joinLines(lines)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
