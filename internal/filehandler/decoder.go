package filehandler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/config"
	"github.com/fpang/video-sequence-learning/internal/video"
)

// Decoder turns video files and still images into encoded frames using the
// frame size, rate and color mode of a video configuration.
type Decoder struct {
	cfg config.VideoConfig
}

// NewDecoder returns a Decoder for cfg.
func NewDecoder(cfg config.VideoConfig) *Decoder {
	return &Decoder{cfg: cfg}
}

// LoadVideoSets decodes every label folder under root. A root that cannot be
// enumerated is logged and yields no sets; only context cancellation is
// returned as an error.
func (d *Decoder) LoadVideoSets(ctx context.Context, root string) ([]*video.VideoSet, error) {
	dirs, err := ScanVideoSetDirectories(root)
	if err != nil {
		log.Error().Err(err).Str("root", root).Msg("Failed to enumerate video sets")
		return nil, nil
	}

	var sets []*video.VideoSet
	for _, dir := range dirs {
		set, err := d.LoadVideoSet(ctx, dir)
		if err != nil {
			return sets, err
		}
		if len(set.Videos) == 0 {
			log.Warn().Str("dir", dir).Msg("Video set has no decodable videos, skipping")
			continue
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// LoadVideoSet decodes the videos of one label folder. Videos that fail to
// decode are logged and skipped.
func (d *Decoder) LoadVideoSet(ctx context.Context, dir string) (*video.VideoSet, error) {
	set := &video.VideoSet{Label: filepath.Base(dir)}

	paths, err := ScanVideos(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to list videos")
		return set, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return set, err
		}
		v, err := d.LoadVideo(ctx, path, set.Label)
		if err != nil {
			log.Warn().Err(err).Str("video", path).Msg("Failed to decode video, skipping")
			continue
		}
		set.Videos = append(set.Videos, v)
	}

	log.Info().
		Str("label", set.Label).
		Int("videos", len(set.Videos)).
		Int("longest", set.LongestFrameCount()).
		Msg("Video set loaded")

	return set, nil
}

// LoadVideo decodes and encodes every frame of one video file.
func (d *Decoder) LoadVideo(ctx context.Context, path, label string) (*video.Video, error) {
	meta, err := ProbeVideo(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("video", path).Msg("Failed to probe video, assuming 30 fps")
		meta = nil
	}

	res, err := ExtractFrames(ctx, path, meta, FrameOptions{
		Width:     d.cfg.FrameWidth,
		Height:    d.cfg.FrameHeight,
		FrameRate: d.cfg.FrameRate,
	})
	if err != nil {
		return nil, err
	}
	defer res.Cleanup()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	v := &video.Video{
		Name:      name,
		Label:     label,
		Path:      path,
		FrameRate: res.ExtractionFPS,
		Width:     d.cfg.FrameWidth,
		Height:    d.cfg.FrameHeight,
		ColorMode: d.cfg.ColorMode,
	}

	for i, framePath := range res.FramePaths {
		img, err := LoadImage(framePath)
		if err != nil {
			return nil, fmt.Errorf("frame %d of %s: %w", i, name, err)
		}
		bits := EncodeImage(img, d.cfg.FrameWidth, d.cfg.FrameHeight, d.cfg.ColorMode)
		v.Frames = append(v.Frames, video.NewFrame(label, name, i, bits, d.cfg.FrameWidth, d.cfg.FrameHeight, d.cfg.ColorMode))
	}
	return v, nil
}

// EncodeStill encodes a still image exactly like a training frame.
func (d *Decoder) EncodeStill(path string) ([]int, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return EncodeImage(img, d.cfg.FrameWidth, d.cfg.FrameHeight, d.cfg.ColorMode), nil
}

// RenderBits writes an encoded frame as a PNG.
func (d *Decoder) RenderBits(bits []int, path string) error {
	img, err := DecodeBits(bits, d.cfg.FrameWidth, d.cfg.FrameHeight, d.cfg.ColorMode)
	if err != nil {
		return err
	}
	return SavePNG(path, img)
}

// AssembleVideo renders frames in order and encodes them into outputPath.
func (d *Decoder) AssembleVideo(ctx context.Context, frames []*video.Frame, outputPath string, fps float64) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to assemble into %s", filepath.Base(outputPath))
	}

	dir, err := os.MkdirTemp("", "video-assemble-*")
	if err != nil {
		return fmt.Errorf("failed to create assembly directory: %w", err)
	}
	defer os.RemoveAll(dir)

	for i, f := range frames {
		if err := d.RenderBits(f.Bits, filepath.Join(dir, FrameFileName(i+1))); err != nil {
			return fmt.Errorf("failed to render frame %s: %w", f.Key, err)
		}
	}

	if fps <= 0 {
		fps = d.cfg.FrameRate
	}
	return ReassembleVideo(ctx, dir, outputPath, fps, d.cfg.FrameWidth, d.cfg.FrameHeight)
}

// ExportConverted writes every video of sets, as the engine sees it, under
// dir: one PNG per frame in <label>/<video>/<key>.png and the reassembled
// video as <label>/<video>.mp4. Frame paths are recorded on the frames.
func (d *Decoder) ExportConverted(ctx context.Context, sets []*video.VideoSet, dir string) error {
	for _, set := range sets {
		for _, v := range set.Videos {
			frameDir := filepath.Join(dir, set.Label, v.Name)
			if err := os.MkdirAll(frameDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", frameDir, err)
			}
			for _, f := range v.Frames {
				path := filepath.Join(frameDir, f.Key+".png")
				if err := d.RenderBits(f.Bits, path); err != nil {
					return fmt.Errorf("failed to export frame %s: %w", f.Key, err)
				}
				f.Path = path
			}

			out := filepath.Join(dir, set.Label, v.Name+".mp4")
			if err := d.AssembleVideo(ctx, v.Frames, out, v.FrameRate); err != nil {
				log.Warn().Err(err).Str("video", v.Name).Msg("Failed to export converted video")
			}
		}
	}
	return nil
}
