package filehandler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScanVideoSetDirectories returns the label folders directly under root,
// sorted by path. Symlinks to directories are followed.
func ScanVideoSetDirectories(root string) ([]string, error) {
	entries, err := readDir(root)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		isDir, err := resolveIsDir(path, entry)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to resolve entry, skipping")
			continue
		}
		if isDir && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, path)
		}
	}

	sort.Strings(dirs)

	log.Info().
		Str("root", root).
		Int("video_sets", len(dirs)).
		Msg("Video set scan complete")

	return dirs, nil
}

// ScanVideos returns the supported video files directly inside dir, sorted
// by path. Symlinks to files are followed; anything else is skipped.
func ScanVideos(dir string) ([]string, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}

	var videos []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		isDir, err := resolveIsDir(path, entry)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to resolve entry, skipping")
			continue
		}
		if isDir || !IsVideo(filepath.Ext(entry.Name())) {
			continue
		}
		videos = append(videos, path)
	}

	sort.Strings(videos)
	return videos, nil
}

func readDir(dir string) ([]fs.DirEntry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dir)
		}
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	return entries, nil
}

func resolveIsDir(path string, entry fs.DirEntry) (bool, error) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir(), nil
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
