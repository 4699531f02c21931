package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger collects the identity, resources, feature flags and settings of
// a training run, then emits them as a single structured zerolog event.
type RunLogger struct {
	runID     string
	mode      string
	outputDir string
	loadTime  time.Duration

	s3Buckets    map[string]string
	dynamoTables map[string]string
	queues       map[string]string
	features     map[string]bool
	config       map[string]string
}

// NewRunLogger creates a RunLogger for the given run ID and training mode.
func NewRunLogger(runID, mode string) *RunLogger {
	return &RunLogger{
		runID:        runID,
		mode:         mode,
		s3Buckets:    make(map[string]string),
		dynamoTables: make(map[string]string),
		queues:       make(map[string]string),
		features:     make(map[string]bool),
		config:       make(map[string]string),
	}
}

// OutputDir sets the run folder results are written to.
func (r *RunLogger) OutputDir(dir string) *RunLogger {
	r.outputDir = dir
	return r
}

// S3Bucket registers an S3 bucket artifacts are uploaded to.
func (r *RunLogger) S3Bucket(label, name string) *RunLogger {
	r.s3Buckets[label] = name
	return r
}

// DynamoTable registers a DynamoDB table results are written to.
func (r *RunLogger) DynamoTable(label, name string) *RunLogger {
	r.dynamoTables[label] = name
	return r
}

// Queue registers a Redis list still images are read from.
func (r *RunLogger) Queue(label, name string) *RunLogger {
	r.queues[label] = name
	return r
}

// Feature registers a boolean feature flag (e.g. "upload", "interactive").
func (r *RunLogger) Feature(name string, enabled bool) *RunLogger {
	r.features[name] = enabled
	return r
}

// Config registers a non-sensitive configuration key-value pair.
func (r *RunLogger) Config(key, value string) *RunLogger {
	r.config[key] = value
	return r
}

// LoadDuration records how long decoding the training videos took.
func (r *RunLogger) LoadDuration(d time.Duration) *RunLogger {
	r.loadTime = d
	return r
}

// Log emits a single structured INFO event with everything collected.
func (r *RunLogger) Log() {
	evt := log.Info()

	run := zerolog.Dict().
		Str("id", r.runID).
		Str("mode", r.mode).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(EnvLogLevel))
	if r.outputDir != "" {
		run = run.Str("outputDir", r.outputDir)
	}
	evt = evt.Dict("run", run)

	// Only non-empty resource maps are attached.
	resources := zerolog.Dict()
	hasResources := false
	for name, m := range map[string]map[string]string{
		"s3Buckets":    r.s3Buckets,
		"dynamoTables": r.dynamoTables,
		"queues":       r.queues,
	} {
		if len(m) > 0 {
			resources = resources.Dict(name, dictFromMap(m))
			hasResources = true
		}
	}
	if hasResources {
		evt = evt.Dict("resources", resources)
	}

	if len(r.features) > 0 {
		d := zerolog.Dict()
		for k, v := range r.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(r.config) > 0 {
		evt = evt.Dict("config", dictFromMap(r.config))
	}

	if r.loadTime > 0 {
		evt = evt.Dur("loadDuration", r.loadTime)
	}

	evt.Msg("Training run configured")
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
