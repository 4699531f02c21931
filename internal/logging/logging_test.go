package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		value    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := levelFromEnv(tt.value); got != tt.expected {
			t.Errorf("levelFromEnv(%q) = %v, want %v", tt.value, got, tt.expected)
		}
	}
}

func TestRunLoggerLog(t *testing.T) {
	var buf bytes.Buffer
	old := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = old }()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	NewRunLogger("run-1", "FrameKey").
		OutputDir("/tmp/out").
		DynamoTable("results", "video-learning").
		Feature("upload", false).
		Config("maxCycles", "10").
		Log()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}

	run, ok := doc["run"].(map[string]any)
	if !ok {
		t.Fatalf("run = %v, want object", doc["run"])
	}
	if run["id"] != "run-1" || run["mode"] != "FrameKey" || run["outputDir"] != "/tmp/out" {
		t.Errorf("run = %v", run)
	}

	resources, ok := doc["resources"].(map[string]any)
	if !ok {
		t.Fatalf("resources = %v, want object", doc["resources"])
	}
	if _, ok := resources["s3Buckets"]; ok {
		t.Error("empty s3Buckets should be omitted")
	}
	tables, _ := resources["dynamoTables"].(map[string]any)
	if tables["results"] != "video-learning" {
		t.Errorf("dynamoTables = %v", resources["dynamoTables"])
	}

	features, _ := doc["features"].(map[string]any)
	if features["upload"] != false {
		t.Errorf("features = %v", doc["features"])
	}
	if doc["message"] != "Training run configured" {
		t.Errorf("message = %v", doc["message"])
	}
}
