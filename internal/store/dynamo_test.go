package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fpang/video-sequence-learning/internal/training"
)

// fakeDynamo is an in-memory table keyed by PK then SK. Query returns at
// most pageSize items per call when pageSize is set.
type fakeDynamo struct {
	items    map[string]map[string]map[string]types.AttributeValue
	pageSize int
	queries  int
	err      error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	pk, sk := str(in.Item["PK"]), str(in.Item["SK"])
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[pk][sk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[str(in.Key["PK"])][str(in.Key["SK"])]}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	item := f.items[str(in.Key["PK"])][str(in.Key["SK"])]
	if item == nil {
		return nil, errors.New("item not found")
	}
	item["status"] = in.ExpressionAttributeValues[":s"]
	item["finishedAt"] = in.ExpressionAttributeValues[":f"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries++
	pk := str(in.ExpressionAttributeValues[":pk"])
	prefix := str(in.ExpressionAttributeValues[":skPrefix"])
	after := ""
	if in.ExclusiveStartKey != nil {
		after = str(in.ExclusiveStartKey["SK"])
	}

	var sks []string
	for sk := range f.items[pk] {
		if strings.HasPrefix(sk, prefix) && sk > after {
			sks = append(sks, sk)
		}
	}
	sort.Strings(sks)

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks {
		if f.pageSize > 0 && len(out.Items) == f.pageSize {
			last := out.Items[len(out.Items)-1]
			out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
			break
		}
		out.Items = append(out.Items, f.items[pk][sk])
	}
	return out, nil
}

func newTestStore(client DynamoAPI) *DynamoStore {
	s := NewDynamoStore(client, "video-learning")
	s.now = func() time.Time { return time.Unix(1000, 0) }
	return s
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDynamo())

	if err := s.PutRun(ctx, &Run{ID: "r1", Mode: "FrameKey", Labels: []string{"Circle"}, Videos: 2}); err != nil {
		t.Fatalf("PutRun() error = %v", err)
	}
	run, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run == nil {
		t.Fatal("GetRun() = nil, want run")
	}
	if run.ID != "r1" || run.Mode != "FrameKey" || run.Status != RunStatusRunning || run.StartedAt != 1000 {
		t.Errorf("GetRun() = %+v", run)
	}

	if err := s.UpdateRunStatus(ctx, "r1", RunStatusCompleted); err != nil {
		t.Fatalf("UpdateRunStatus() error = %v", err)
	}
	run, _ = s.GetRun(ctx, "r1")
	if run.Status != RunStatusCompleted || run.FinishedAt != 1000 || run.Videos != 2 {
		t.Errorf("after UpdateRunStatus() = %+v", run)
	}
}

func TestGetRunNotFound(t *testing.T) {
	run, err := newTestStore(newFakeDynamo()).GetRun(context.Background(), "missing")
	if err != nil || run != nil {
		t.Errorf("GetRun() = %v, %v, want nil, nil", run, err)
	}
}

func TestPutItemKeysAndTTL(t *testing.T) {
	client := newFakeDynamo()
	s := newTestStore(client)
	if err := s.PutAccuracy(context.Background(), "r1", &AccuracyItem{Label: "Circle", VideoName: "vd1", Cycle: 7}); err != nil {
		t.Fatalf("PutAccuracy() error = %v", err)
	}

	item := client.items["RUN#r1"]["ACC#Circle#vd1#000007"]
	if item == nil {
		t.Fatalf("item not stored under expected keys: %v", client.items)
	}
	ttl, ok := item["expiresAt"].(*types.AttributeValueMemberN)
	if !ok {
		t.Fatal("expiresAt missing")
	}
	if want := "2593000"; ttl.Value != want {
		t.Errorf("expiresAt = %s, want %s", ttl.Value, want)
	}
}

func TestListAccuracyPaginatesInCycleOrder(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamo()
	client.pageSize = 2
	s := newTestStore(client)

	for _, cycle := range []int{10, 2, 1} {
		if err := s.PutAccuracy(ctx, "r1", &AccuracyItem{Label: "Circle", VideoName: "vd1", Cycle: cycle, Accuracy: float64(cycle)}); err != nil {
			t.Fatal(err)
		}
	}
	// A different video whose name extends vd1 must not match.
	if err := s.PutAccuracy(ctx, "r1", &AccuracyItem{Label: "Circle", VideoName: "vd10", Cycle: 1}); err != nil {
		t.Fatal(err)
	}

	records, err := s.ListAccuracy(ctx, "r1", "Circle", "vd1")
	if err != nil {
		t.Fatalf("ListAccuracy() error = %v", err)
	}
	var cycles []int
	for _, r := range records {
		cycles = append(cycles, r.Cycle)
	}
	if len(cycles) != 3 || cycles[0] != 1 || cycles[1] != 2 || cycles[2] != 10 {
		t.Errorf("cycles = %v, want [1 2 10]", cycles)
	}
	if client.queries != 2 {
		t.Errorf("queries = %d, want 2", client.queries)
	}
}

func TestSinkWritesRecords(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamo()
	s := newTestStore(client)
	sink := NewSink(ctx, s, "r1")

	if err := sink.RecordAccuracy(training.AccuracyRecord{Label: "Circle", VideoName: "vd1", Cycle: 1, Accuracy: 50, RecordedAt: time.Unix(42, 0)}); err != nil {
		t.Fatalf("RecordAccuracy() error = %v", err)
	}
	if err := sink.RecordSaturation(training.SaturationResult{Label: "Circle", VideoName: "vd1", Accuracy: 90, Cycles: 25}); err != nil {
		t.Fatalf("RecordSaturation() error = %v", err)
	}
	if err := sink.RecordOutcome(training.VideoOutcome{Label: "Circle", VideoName: "vd1", Completed: true, Elapsed: 3 * time.Second}); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	acc, err := s.ListAccuracy(ctx, "r1", "Circle", "vd1")
	if err != nil || len(acc) != 1 || acc[0].RecordedAt != 42 || acc[0].Accuracy != 50 {
		t.Errorf("ListAccuracy() = %+v, %v", acc, err)
	}
	if client.items["RUN#r1"]["SAT#Circle#vd1"] == nil {
		t.Error("saturation item not stored")
	}
	outcomes, err := s.ListOutcomes(ctx, "r1")
	if err != nil || len(outcomes) != 1 || !outcomes[0].Completed || outcomes[0].ElapsedSeconds != 3 {
		t.Errorf("ListOutcomes() = %+v, %v", outcomes, err)
	}
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	boom := errors.New("throttled")
	client := newFakeDynamo()
	client.err = boom
	s := newTestStore(client)

	if err := s.PutOutcome(context.Background(), "r1", &OutcomeItem{Label: "Circle", VideoName: "vd1"}); !errors.Is(err, boom) {
		t.Errorf("PutOutcome() error = %v, want wrapping %v", err, boom)
	}
	if _, err := s.ListOutcomes(context.Background(), "r1"); !errors.Is(err, boom) {
		t.Errorf("ListOutcomes() error = %v, want wrapping %v", err, boom)
	}
}
