package training

import "github.com/fpang/video-sequence-learning/internal/video"

// SequenceKeyBuilder turns the stream of frame keys of one video into the
// composite keys the classifier learns.
type SequenceKeyBuilder struct {
	mode   Mode
	width  int
	window []string
}

// NewSequenceKeyBuilder returns a builder for mode. width is the window
// capacity in sequence mode and is ignored in frame-key mode.
func NewSequenceKeyBuilder(mode Mode, width int) *SequenceKeyBuilder {
	return &SequenceKeyBuilder{mode: mode, width: width}
}

// Push adds the next frame key. ready is false while the sequence window is
// still filling, in which case no learning step should happen.
func (b *SequenceKeyBuilder) Push(frameKey string) (key string, ready bool) {
	if b.mode == FrameKeyMode {
		return frameKey, true
	}

	b.window = append(b.window, frameKey)
	if len(b.window) > b.width {
		b.window = b.window[len(b.window)-b.width:]
	}
	if b.width <= 0 || len(b.window) < b.width {
		return "", false
	}
	return video.JoinKeys(b.window), true
}

// Reset empties the window.
func (b *SequenceKeyBuilder) Reset() {
	b.window = b.window[:0]
}

// WindowWidth returns the sequence-mode window width for a run: the first
// iterated video's frame count minus one. Later videos reuse it even when
// they are shorter; their window only fills after wrapping into the next
// cycle.
func WindowWidth(sets []*video.VideoSet) int {
	first := video.FirstVideo(sets)
	if first == nil {
		return 0
	}
	return first.FrameCount() - 1
}

// selectCells picks the cells the classifier learns for a frame: the active
// cells when they coincide in count with the winner cells, the winner cells
// otherwise.
func selectCells(res CycleResult) []int {
	if len(res.ActiveCells) == len(res.WinnerCells) {
		return res.ActiveCells
	}
	return res.WinnerCells
}
