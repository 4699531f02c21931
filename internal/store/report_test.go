package store

import (
	"context"
	"errors"
	"testing"
)

func seedRun(t *testing.T, s *DynamoStore) {
	t.Helper()
	ctx := context.Background()
	if err := s.PutRun(ctx, &Run{ID: "r1", Mode: "FrameKey", Videos: 2}); err != nil {
		t.Fatal(err)
	}
	for _, out := range []OutcomeItem{
		{Label: "Square", VideoName: "vd1", Cycles: 10},
		{Label: "Circle", VideoName: "vd1", Cycles: 30, Completed: true, FinalAccuracy: 90},
	} {
		if err := s.PutOutcome(ctx, "r1", &out); err != nil {
			t.Fatal(err)
		}
	}
	for cycle := 1; cycle <= 3; cycle++ {
		if err := s.PutAccuracy(ctx, "r1", &AccuracyItem{Label: "Circle", VideoName: "vd1", Cycle: cycle}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildReport(t *testing.T) {
	tests := []struct {
		name        string
		withHistory bool
		circleAcc   int
		queries     int
	}{
		{"outcomes only", false, 0, 1},
		{"with history", true, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeDynamo()
			s := newTestStore(client)
			seedRun(t, s)

			report, err := BuildReport(context.Background(), s, "r1", tt.withHistory)
			if err != nil {
				t.Fatalf("BuildReport() error = %v", err)
			}
			if report.Run.ID != "r1" || report.Run.Videos != 2 {
				t.Errorf("Run = %+v", report.Run)
			}
			if len(report.Videos) != 2 {
				t.Fatalf("len(Videos) = %d, want 2", len(report.Videos))
			}
			if got := report.Videos[0].Outcome.Label; got != "Circle" {
				t.Errorf("Videos[0].Label = %q, want Circle", got)
			}
			if got := len(report.Videos[0].Accuracy); got != tt.circleAcc {
				t.Errorf("len(Circle accuracy) = %d, want %d", got, tt.circleAcc)
			}
			if report.Saturated() != 1 {
				t.Errorf("Saturated() = %d, want 1", report.Saturated())
			}
			if client.queries != tt.queries {
				t.Errorf("queries = %d, want %d", client.queries, tt.queries)
			}
		})
	}
}

func TestBuildReportErrors(t *testing.T) {
	_, err := BuildReport(context.Background(), newTestStore(newFakeDynamo()), "missing", false)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("BuildReport(missing) error = %v, want %v", err, ErrRunNotFound)
	}

	boom := errors.New("throttled")
	client := newFakeDynamo()
	client.err = boom
	if _, err := BuildReport(context.Background(), newTestStore(client), "r1", false); !errors.Is(err, boom) {
		t.Errorf("BuildReport() error = %v, want wrapping %v", err, boom)
	}
}
