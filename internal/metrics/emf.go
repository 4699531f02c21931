// Package metrics writes training metrics in the CloudWatch Embedded Metric
// Format (EMF). Each flush is one JSON line; the run's metrics file can be
// shipped to CloudWatch Logs as-is, where the metrics are extracted without
// any API calls.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// Namespace is the CloudWatch namespace of all training metrics.
const Namespace = "VideoSequenceLearning"

// CloudWatch units used by the training metrics.
const (
	UnitSeconds = "Seconds"
	UnitCount   = "Count"
	UnitPercent = "Percent"
)

// directive is the _aws metadata block of an EMF document.
type directive struct {
	Timestamp         int64             `json:"Timestamp"`
	CloudWatchMetrics []metricDirective `json:"CloudWatchMetrics"`
}

type metricDirective struct {
	Namespace  string       `json:"Namespace"`
	Dimensions [][]string   `json:"Dimensions"`
	Metrics    []metricUnit `json:"Metrics"`
}

type metricUnit struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type metric struct {
	unit  string
	value float64
}

// Recorder accumulates one EMF document. It is not safe for concurrent use;
// build one per event.
type Recorder struct {
	namespace  string
	timestamp  time.Time
	dimensions map[string]string
	metrics    map[string]metric
	properties map[string]any
}

// New creates a Recorder for namespace stamped with the current time.
func New(namespace string) *Recorder {
	return &Recorder{
		namespace:  namespace,
		timestamp:  time.Now(),
		dimensions: make(map[string]string),
		metrics:    make(map[string]metric),
		properties: make(map[string]any),
	}
}

// At overrides the document timestamp.
func (r *Recorder) At(t time.Time) *Recorder {
	r.timestamp = t
	return r
}

// Dimension adds a dimension. All dimensions of a document form one
// dimension set.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a named value with a CloudWatch unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metric{unit: unit, value: value}
	return r
}

// Count records name with the value 1.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property adds a field that is logged but not extracted as a metric.
func (r *Recorder) Property(key string, value any) *Recorder {
	r.properties[key] = value
	return r
}

func (r *Recorder) directive() directive {
	names := slices.Sorted(maps.Keys(r.metrics))
	units := make([]metricUnit, 0, len(names))
	for _, name := range names {
		units = append(units, metricUnit{Name: name, Unit: r.metrics[name].unit})
	}
	return directive{
		Timestamp: r.timestamp.UnixMilli(),
		CloudWatchMetrics: []metricDirective{{
			Namespace:  r.namespace,
			Dimensions: [][]string{slices.Sorted(maps.Keys(r.dimensions))},
			Metrics:    units,
		}},
	}
}

// Flush writes the document to w as a single JSON line. A recorder without
// metrics writes nothing.
func (r *Recorder) Flush(w io.Writer) error {
	if len(r.metrics) == 0 {
		return nil
	}

	doc := make(map[string]any, 1+len(r.dimensions)+len(r.metrics)+len(r.properties))
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for name, m := range r.metrics {
		doc[name] = m.value
	}
	doc["_aws"] = r.directive()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("emf: failed to marshal metrics: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("emf: failed to write metrics: %w", err)
	}
	return nil
}
