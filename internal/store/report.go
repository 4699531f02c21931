package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrRunNotFound is returned by BuildReport when the run has no metadata
// record, usually because its TTL has passed.
var ErrRunNotFound = errors.New("run not found")

// Report gathers the stored records of one run.
type Report struct {
	Run    *Run
	Videos []VideoReport
}

// VideoReport is the outcome of one video with its accuracy history.
type VideoReport struct {
	Outcome  OutcomeItem
	Accuracy []AccuracyItem
}

// BuildReport reads the run metadata and every video outcome of runID.
// Accuracy histories are loaded only when withHistory is set, as they cost
// one query per video.
func BuildReport(ctx context.Context, rs ResultStore, runID string, withHistory bool) (*Report, error) {
	run, err := rs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	outcomes, err := rs.ListOutcomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].Label != outcomes[j].Label {
			return outcomes[i].Label < outcomes[j].Label
		}
		return outcomes[i].VideoName < outcomes[j].VideoName
	})

	report := &Report{Run: run, Videos: make([]VideoReport, 0, len(outcomes))}
	for _, out := range outcomes {
		vr := VideoReport{Outcome: out}
		if withHistory {
			vr.Accuracy, err = rs.ListAccuracy(ctx, runID, out.Label, out.VideoName)
			if err != nil {
				return nil, err
			}
		}
		report.Videos = append(report.Videos, vr)
	}
	return report, nil
}

// Saturated counts the videos whose accuracy saturated.
func (r *Report) Saturated() int {
	n := 0
	for _, v := range r.Videos {
		if v.Outcome.Completed {
			n++
		}
	}
	return n
}
