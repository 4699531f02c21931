package training

import "time"

// Session is the run-wide training state threaded through both phases.
type Session struct {
	// Stable becomes true on the first stable verdict and stays true.
	Stable bool
	// Learn mirrors the latest verdict.
	Learn bool

	NewbornCycles int
	Patterns      int
	InputsSeen    int
	StabilizedAt  time.Time
}

// observe folds a verdict into the session and reports whether it is the
// first stable one.
func (s *Session) observe(v StabilityVerdict, now time.Time) (becameStable bool) {
	s.Learn = v.Stable
	s.Patterns = v.Patterns
	s.InputsSeen = v.InputsSeen
	if v.Stable && !s.Stable {
		s.Stable = true
		s.StabilizedAt = now
		return true
	}
	return false
}
