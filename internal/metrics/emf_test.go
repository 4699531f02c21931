package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer

	rec := New(Namespace).At(time.UnixMilli(1700000000000))
	rec.Dimension("Label", "Circle")
	rec.Dimension("Mode", "FrameKey")
	rec.Metric("Accuracy", 87.5, UnitPercent)
	rec.Metric("Cycle", 3, UnitCount)
	rec.Property("video", "vd1")
	if err := rec.Flush(&buf); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	output := buf.Bytes()
	if len(output) == 0 || output[len(output)-1] != '\n' {
		t.Fatalf("Flush() output %q should be a single newline-terminated line", output)
	}

	var doc map[string]any
	if err := json.Unmarshal(output, &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]any)
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if awsMap["Timestamp"] != float64(1700000000000) {
		t.Errorf("Timestamp = %v, want 1700000000000", awsMap["Timestamp"])
	}

	cwArr, ok := awsMap["CloudWatchMetrics"].([]any)
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]any)
	if cw["Namespace"] != Namespace {
		t.Errorf("Namespace = %v, want %s", cw["Namespace"], Namespace)
	}

	dims := cw["Dimensions"].([]any)[0].([]any)
	if len(dims) != 2 || dims[0] != "Label" || dims[1] != "Mode" {
		t.Errorf("Dimensions = %v, want [Label Mode]", dims)
	}

	metrics := cw["Metrics"].([]any)
	if first := metrics[0].(map[string]any); first["Name"] != "Accuracy" || first["Unit"] != UnitPercent {
		t.Errorf("Metrics[0] = %v, want Accuracy in Percent", first)
	}

	if doc["Label"] != "Circle" {
		t.Errorf("Label = %v, want Circle", doc["Label"])
	}
	if doc["Accuracy"] != 87.5 {
		t.Errorf("Accuracy = %v, want 87.5", doc["Accuracy"])
	}
	if doc["video"] != "vd1" {
		t.Errorf("video = %v, want vd1", doc["video"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := New("Test").Dimension("Label", "x").Flush(&buf); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Count(t *testing.T) {
	rec := New("Test")
	rec.Count("Saturated")

	m, ok := rec.metrics["Saturated"]
	if !ok || m.value != 1 {
		t.Errorf("expected Saturated=1, got %v", m.value)
	}
	if m.unit != UnitCount {
		t.Errorf("expected unit Count, got %v", m.unit)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Test").
		Dimension("Op", "learn").
		Metric("Elapsed", 100, UnitSeconds).
		Count("Cycles").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "learn" {
		t.Error("chaining Dimension failed")
	}
	if rec.metrics["Elapsed"].value != 100 {
		t.Error("chaining Metric failed")
	}
	if rec.metrics["Cycles"].value != 1 {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}
