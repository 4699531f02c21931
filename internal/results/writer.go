// Package results writes everything a training run produces to disk: the
// run folder layout, per-video accuracy logs, saturation reports and the
// EMF metrics stream.
//
// All writes go through a single background Writer so that records for the
// same file land in the order they were produced.
package results

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrWriterClosed is returned by Submit after Close.
var ErrWriterClosed = errors.New("results writer closed")

// DefaultQueueSize is the number of pending writes buffered before Submit
// blocks.
const DefaultQueueSize = 256

// Writer runs submitted write jobs one at a time, in submission order, on a
// background goroutine.
type Writer struct {
	mu     sync.Mutex
	closed bool
	jobs   chan func() error
	done   chan struct{}
	errs   []error
}

// NewWriter starts a Writer with room for queueSize pending jobs.
func NewWriter(queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	w := &Writer{
		jobs: make(chan func() error, queueSize),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		if err := job(); err != nil {
			log.Error().Err(err).Msg("Result write failed")
			w.errs = append(w.errs, err)
		}
	}
}

// Submit queues job. It blocks while the queue is full.
func (w *Writer) Submit(job func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.jobs <- job
	return nil
}

// Close waits for every queued job to finish and returns their joined
// errors. Calling Close more than once is safe.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	<-w.done
	return errors.Join(w.errs...)
}
