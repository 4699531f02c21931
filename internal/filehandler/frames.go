package filehandler

// frames.go extracts scaled frames from videos and stitches frames back into
// videos using ffmpeg.

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// FramePattern is the file name pattern of extracted and reassembled
	// frames.
	FramePattern = "frame_%06d.png"

	// ReassemblyH264CRF is the CRF for H.264 encoding during frame reassembly.
	// CRF 18 is visually lossless for H.264.
	ReassemblyH264CRF = 18

	// ReassemblyMinEdge is the smallest edge of a reassembled video. Frames
	// are upscaled with nearest-neighbour sampling so binarised pixels stay
	// sharp.
	ReassemblyMinEdge = 256
)

// FrameOptions controls frame extraction.
type FrameOptions struct {
	Width  int
	Height int

	// FrameRate is the target rate. 0 keeps the source rate; a rate at or
	// above the source rate is ignored.
	FrameRate float64
}

// FrameExtractionResult contains the results of extracting frames from a video.
type FrameExtractionResult struct {
	// FrameDir is the directory containing extracted frame PNG files.
	FrameDir string

	// FramePaths is the list of frame file paths in order.
	FramePaths []string

	// OriginalFPS is the source video's frame rate.
	OriginalFPS float64

	// ExtractionFPS is the rate frames were actually extracted at.
	ExtractionFPS float64

	// Cleanup removes the temporary frame directory and all files.
	// Must be called when frames are no longer needed.
	Cleanup func()
}

// ExtractFrames decodes a video into PNG frames scaled to the requested
// size, down-sampling to the requested frame rate.
//
// The caller MUST call Cleanup() when done with the frames.
func ExtractFrames(ctx context.Context, videoPath string, metadata *VideoMetadata, opts FrameOptions) (*FrameExtractionResult, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: frame extraction requires ffmpeg: %w", err)
	}

	frameDir, err := os.MkdirTemp("", "video-frames-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(frameDir); err != nil {
			log.Warn().Err(err).Str("dir", frameDir).Msg("Failed to remove frame directory")
		} else {
			log.Debug().Str("dir", frameDir).Msg("Frame directory removed")
		}
	}

	originalFPS := 30.0
	if metadata != nil && metadata.FrameRate > 0 {
		originalFPS = metadata.FrameRate
	}
	extractionFPS := originalFPS
	if opts.FrameRate > 0 && opts.FrameRate < originalFPS {
		extractionFPS = opts.FrameRate
	}

	args := []string{"-i", videoPath}
	if filter := buildExtractionFilter(originalFPS, extractionFPS, opts.Width, opts.Height); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args, "-vsync", "0", "-y", filepath.Join(frameDir, FramePattern))

	log.Debug().
		Str("video", filepath.Base(videoPath)).
		Float64("original_fps", originalFPS).
		Float64("extraction_fps", extractionFPS).
		Strs("args", args).
		Msg("Extracting frames")

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("frame extraction failed: %w\nOutput: %s", err, string(output))
	}

	framePaths, err := collectFramePaths(frameDir)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to collect frame paths: %w", err)
	}

	if len(framePaths) == 0 {
		cleanup()
		return nil, fmt.Errorf("no frames extracted from video: %s", filepath.Base(videoPath))
	}

	log.Info().
		Str("video", filepath.Base(videoPath)).
		Int("total_frames", len(framePaths)).
		Float64("extraction_fps", extractionFPS).
		Msg("Frame extraction complete")

	return &FrameExtractionResult{
		FrameDir:      frameDir,
		FramePaths:    framePaths,
		OriginalFPS:   originalFPS,
		ExtractionFPS: extractionFPS,
		Cleanup:       cleanup,
	}, nil
}

// buildExtractionFilter returns the ffmpeg -vf chain for rate and size.
func buildExtractionFilter(originalFPS, extractionFPS float64, width, height int) string {
	var filters []string
	if extractionFPS < originalFPS {
		filters = append(filters, fmt.Sprintf("fps=%.2f", extractionFPS))
	}
	if width > 0 && height > 0 {
		filters = append(filters, fmt.Sprintf("scale=%d:%d:flags=area", width, height))
	}
	return strings.Join(filters, ",")
}

// ReassembleVideo stitches frame_%06d.png files of width x height pixels
// from frameDir into an H.264 video at fps.
func ReassembleVideo(ctx context.Context, frameDir string, outputPath string, fps float64, width, height int) error {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found: video reassembly requires ffmpeg: %w", err)
	}
	if fps <= 0 {
		fps = 1
	}

	args := []string{
		"-framerate", fmt.Sprintf("%.2f", fps),
		"-i", filepath.Join(frameDir, FramePattern),
		"-vf", reassemblyScale(width, height),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(ReassemblyH264CRF),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y", outputPath,
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("video reassembly failed: %w\nOutput: %s", err, string(output))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("output video not found after reassembly: %w", err)
	}

	log.Info().
		Str("output", filepath.Base(outputPath)).
		Int64("size_bytes", info.Size()).
		Msg("Video reassembly complete")

	return nil
}

// reassemblyScale upscales small frames by an integer factor and rounds
// both edges up to even values as yuv420p requires.
func reassemblyScale(width, height int) string {
	factor := 1
	if edge := min(width, height); edge > 0 && edge < ReassemblyMinEdge {
		factor = (ReassemblyMinEdge + edge - 1) / edge
	}
	w, h := width*factor, height*factor
	w += w % 2
	h += h % 2
	return fmt.Sprintf("scale=%d:%d:flags=neighbor", w, h)
}

// collectFramePaths returns sorted paths to all frame files in a directory.
func collectFramePaths(frameDir string) ([]string, error) {
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "frame_") && strings.HasSuffix(name, ".png") {
			paths = append(paths, filepath.Join(frameDir, name))
		}
	}

	// Sort to ensure correct frame ordering
	sort.Strings(paths)

	return paths, nil
}

// FrameFileName returns the reassembly file name of the i-th frame (1-based).
func FrameFileName(i int) string {
	return fmt.Sprintf(FramePattern, i)
}
