// Package classifier implements the associative key/SDR memory used to name
// what the temporal memory predicts.
//
// Each learned key keeps a short history of the cell SDRs it was seen with.
// Prediction scores every key by the best overlap between the query and any
// of its stored SDRs. A Classifier is not safe for concurrent use.
package classifier

import (
	"slices"

	"github.com/fpang/video-sequence-learning/internal/training"
)

// DefaultMaxRecorded is how many distinct SDRs are kept per key.
const DefaultMaxRecorded = 10

// Classifier maps keys to recently seen SDRs.
type Classifier struct {
	maxRecorded int
	keys        []string
	sdrs        map[string][][]int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMaxRecorded bounds the SDR history kept per key.
func WithMaxRecorded(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxRecorded = n
		}
	}
}

// New returns an empty classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		maxRecorded: DefaultMaxRecorded,
		sdrs:        make(map[string][][]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ training.Classifier = (*Classifier)(nil)

// Learn records cells under key. An SDR identical to one already stored
// for the key is not recorded twice; the oldest SDR is dropped once the
// history is full.
func (c *Classifier) Learn(key string, cells []int) {
	sdr := normalize(cells)

	history, known := c.sdrs[key]
	if !known {
		c.keys = append(c.keys, key)
	}
	for _, existing := range history {
		if slices.Equal(existing, sdr) {
			return
		}
	}

	history = append(history, sdr)
	if len(history) > c.maxRecorded {
		history = history[len(history)-c.maxRecorded:]
	}
	c.sdrs[key] = history
}

// Predict ranks learned keys against cells. Keys sharing no bit with cells
// are not returned. topK <= 0 returns every candidate.
func (c *Classifier) Predict(cells []int, topK int) []training.Prediction {
	query := normalize(cells)
	if len(query) == 0 {
		return nil
	}

	var candidates []training.Prediction
	for _, key := range c.keys {
		best := training.Prediction{Key: key}
		for _, sdr := range c.sdrs[key] {
			shared := overlap(query, sdr)
			if shared > best.SharedBits {
				best.SharedBits = shared
				best.Similarity = similarity(shared, len(query), len(sdr))
			}
		}
		if best.SharedBits > 0 {
			candidates = append(candidates, best)
		}
	}

	// Stable sort keeps learn order among equal similarities.
	slices.SortStableFunc(candidates, func(a, b training.Prediction) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// Len returns the number of learned keys.
func (c *Classifier) Len() int {
	return len(c.keys)
}

// Keys returns the learned keys in learn order.
func (c *Classifier) Keys() []string {
	return slices.Clone(c.keys)
}

// normalize returns a sorted, de-duplicated copy of cells.
func normalize(cells []int) []int {
	out := slices.Clone(cells)
	slices.Sort(out)
	return slices.Compact(out)
}

// overlap counts common elements of two sorted slices.
func overlap(a, b []int) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}

// similarity is the shared fraction of the larger SDR, in percent.
func similarity(shared, lenA, lenB int) float64 {
	denom := max(lenA, lenB)
	if denom == 0 {
		return 0
	}
	return float64(shared) / float64(denom) * 100
}
