// Package video holds the frame, video and video-set model shared by the
// training loop and the reconstruction phase.
//
// Frames are produced once by the decoder and never mutated afterwards. A
// frame is addressed by its key, "<label>_<video>_<index>", which is unique
// across all loaded sets as long as (label, video name) pairs are unique.
package video

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyDelimiter joins frame keys into a composite sequence key.
const KeyDelimiter = "-"

// keySeparator separates the components of a single frame key.
const keySeparator = "_"

// Frame is one encoded video frame.
type Frame struct {
	Key       string
	Label     string
	VideoName string
	Index     int

	// Bits is the fixed-length 0/1 encoding of the frame.
	Bits []int

	Width     int
	Height    int
	ColorMode ColorMode

	// Path is the PNG rendering of the binarised frame, when one was written.
	Path string
}

// NewFrame builds a frame and derives its key.
func NewFrame(label, videoName string, index int, bits []int, width, height int, mode ColorMode) *Frame {
	return &Frame{
		Key:       FrameKey(label, videoName, index),
		Label:     label,
		VideoName: videoName,
		Index:     index,
		Bits:      bits,
		Width:     width,
		Height:    height,
		ColorMode: mode,
	}
}

// FrameKey returns the key of frame index of the given video. Components are
// sanitised so the key never contains KeyDelimiter.
func FrameKey(label, videoName string, index int) string {
	return SanitizeKeyPart(label) + keySeparator + SanitizeKeyPart(videoName) + keySeparator + strconv.Itoa(index)
}

// SanitizeKeyPart replaces the composite delimiter in a key component.
func SanitizeKeyPart(s string) string {
	return strings.ReplaceAll(s, KeyDelimiter, keySeparator)
}

// LabelFromKey returns the label portion of a frame key, or of the first
// frame key of a composite key.
func LabelFromKey(key string) string {
	first, _, _ := strings.Cut(key, KeyDelimiter)
	label, _, _ := strings.Cut(first, keySeparator)
	return label
}

// Video is an ordered list of frames decoded from one file.
type Video struct {
	Name      string
	Label     string
	Path      string
	Frames    []*Frame
	FrameRate float64
	Width     int
	Height    int
	ColorMode ColorMode
}

// FrameCount returns the number of frames in the video.
func (v *Video) FrameCount() int {
	return len(v.Frames)
}

// Keys returns the frame keys in chronological order.
func (v *Video) Keys() []string {
	keys := make([]string, len(v.Frames))
	for i, f := range v.Frames {
		keys[i] = f.Key
	}
	return keys
}

// VideoSet groups videos sharing one label (the source folder name).
type VideoSet struct {
	Label  string
	Videos []*Video
}

// LongestFrameCount returns the largest frame count across the set's videos.
func (s *VideoSet) LongestFrameCount() int {
	longest := 0
	for _, v := range s.Videos {
		if n := v.FrameCount(); n > longest {
			longest = n
		}
	}
	return longest
}

// LongestFrameCount returns the largest frame count across all sets.
func LongestFrameCount(sets []*VideoSet) int {
	longest := 0
	for _, s := range sets {
		if n := s.LongestFrameCount(); n > longest {
			longest = n
		}
	}
	return longest
}

// FirstVideo returns the first video in iteration order, or nil.
func FirstVideo(sets []*VideoSet) *Video {
	for _, s := range sets {
		if len(s.Videos) > 0 {
			return s.Videos[0]
		}
	}
	return nil
}

// String implements fmt.Stringer for log output.
func (s *VideoSet) String() string {
	return fmt.Sprintf("%s (%d videos)", s.Label, len(s.Videos))
}
