package video

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Index resolves frame keys to frames. It is built once from all loaded
// sets and is read-only afterwards.
type Index struct {
	frames map[string]*Frame
}

// BuildIndex indexes every frame of every video in iteration order. When a
// key occurs more than once the first occurrence wins and the duplicate is
// logged.
func BuildIndex(sets []*VideoSet) *Index {
	idx := &Index{frames: make(map[string]*Frame)}
	for _, s := range sets {
		for _, v := range s.Videos {
			for _, f := range v.Frames {
				if _, exists := idx.frames[f.Key]; exists {
					log.Warn().
						Str("key", f.Key).
						Str("label", s.Label).
						Str("video", v.Name).
						Msg("Duplicate frame key, keeping first occurrence")
					continue
				}
				idx.frames[f.Key] = f
			}
		}
	}
	return idx
}

// Lookup returns the frame stored under key.
func (idx *Index) Lookup(key string) (*Frame, bool) {
	f, ok := idx.frames[key]
	return f, ok
}

// Len returns the number of indexed frames.
func (idx *Index) Len() int {
	return len(idx.frames)
}

// JoinKeys folds an ordered list of frame keys into a composite key.
func JoinKeys(keys []string) string {
	return strings.Join(keys, KeyDelimiter)
}

// SplitKey is the inverse of JoinKeys.
func SplitKey(composite string) []string {
	if composite == "" {
		return nil
	}
	return strings.Split(composite, KeyDelimiter)
}
