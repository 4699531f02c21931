// Package store persists training runs in a single DynamoDB table.
//
// All records of a run share the partition key RUN#{runId}. Sort keys
// distinguish record types: META for the run itself, ACC#{label}#{video}#{cycle}
// for per-cycle accuracy, SAT#{label}#{video} for saturation reports and
// OUTCOME#{label}#{video} for per-video summaries. A TTL attribute
// (expiresAt) removes records once RunTTL has passed.
package store

import (
	"context"
	"time"
)

// RunTTL is the time-to-live of every record.
const RunTTL = 30 * 24 * time.Hour

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ResultStore defines the persistence interface for training runs.
//
// Get methods return (nil, nil) when the record does not exist. Put methods
// perform full-item replacement.
type ResultStore interface {
	// PutRun creates or replaces the run metadata record.
	PutRun(ctx context.Context, run *Run) error

	// GetRun retrieves run metadata by ID. Returns nil, nil if not found.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// UpdateRunStatus updates the status and finish time of a run without
	// overwriting other fields.
	UpdateRunStatus(ctx context.Context, runID, status string) error

	// PutAccuracy stores the accuracy of one cycle of one video.
	PutAccuracy(ctx context.Context, runID string, item *AccuracyItem) error

	// ListAccuracy returns the accuracy records of one video in cycle order.
	ListAccuracy(ctx context.Context, runID, label, videoName string) ([]AccuracyItem, error)

	// PutSaturation stores the saturation report of one video.
	PutSaturation(ctx context.Context, runID string, item *SaturationItem) error

	// PutOutcome stores the summary of one video.
	PutOutcome(ctx context.Context, runID string, item *OutcomeItem) error

	// ListOutcomes returns every video summary of a run.
	ListOutcomes(ctx context.Context, runID string) ([]OutcomeItem, error)
}

// --- Domain types ---

// Each type maps to a DynamoDB record. Fields derived from the keys are
// excluded from the attribute map (via dynamodbav:"-").

// Run is the metadata record of one training run.
type Run struct {
	ID         string   `json:"id" dynamodbav:"-"`
	Mode       string   `json:"mode" dynamodbav:"mode"`
	Status     string   `json:"status" dynamodbav:"status"`
	Labels     []string `json:"labels,omitempty" dynamodbav:"labels,omitempty"`
	Videos     int      `json:"videos" dynamodbav:"videos"`
	MaxCycles  int      `json:"maxCycles" dynamodbav:"maxCycles"`
	OutputDir  string   `json:"outputDir,omitempty" dynamodbav:"outputDir,omitempty"`
	StartedAt  int64    `json:"startedAt" dynamodbav:"startedAt"`
	FinishedAt int64    `json:"finishedAt,omitempty" dynamodbav:"finishedAt,omitempty"`
}

// AccuracyItem is the accuracy of one cycle of one video.
type AccuracyItem struct {
	Label       string  `json:"label" dynamodbav:"label"`
	VideoName   string  `json:"videoName" dynamodbav:"videoName"`
	Cycle       int     `json:"cycle" dynamodbav:"cycle"`
	Matches     int     `json:"matches" dynamodbav:"matches"`
	Comparisons int     `json:"comparisons" dynamodbav:"comparisons"`
	Accuracy    float64 `json:"accuracy" dynamodbav:"accuracy"`
	Note        string  `json:"note,omitempty" dynamodbav:"note,omitempty"`
	RecordedAt  int64   `json:"recordedAt" dynamodbav:"recordedAt"`
}

// SaturationItem records a video that reached saturated accuracy.
type SaturationItem struct {
	Label          string  `json:"label" dynamodbav:"label"`
	VideoName      string  `json:"videoName" dynamodbav:"videoName"`
	Accuracy       float64 `json:"accuracy" dynamodbav:"accuracy"`
	Cycles         int     `json:"cycles" dynamodbav:"cycles"`
	ElapsedSeconds float64 `json:"elapsedSeconds" dynamodbav:"elapsedSeconds"`
	NewbornCycles  int     `json:"newbornCycles" dynamodbav:"newbornCycles"`
}

// OutcomeItem summarises the sequence-learning phase of one video.
type OutcomeItem struct {
	Label          string  `json:"label" dynamodbav:"label"`
	VideoName      string  `json:"videoName" dynamodbav:"videoName"`
	Frames         int     `json:"frames" dynamodbav:"frames"`
	Cycles         int     `json:"cycles" dynamodbav:"cycles"`
	FinalAccuracy  float64 `json:"finalAccuracy" dynamodbav:"finalAccuracy"`
	Completed      bool    `json:"completed" dynamodbav:"completed"`
	ElapsedSeconds float64 `json:"elapsedSeconds" dynamodbav:"elapsedSeconds"`
}
