package otel

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "quill"

// Metrics holds the pipeline's metric instruments. Counters track request
// volume and run outcomes, histograms track run latency and quality.
type Metrics struct {
	RequestsSubmitted metric.Int64Counter
	RunsCompleted     metric.Int64Counter
	RunsFailed        metric.Int64Counter
	RunsCancelled     metric.Int64Counter

	RunDuration  metric.Float64Histogram
	QualityScore metric.Float64Histogram
}

// NewMetrics registers the pipeline instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	requestsSubmitted, err := meter.Int64Counter("quill.requests.submitted",
		metric.WithDescription("Content requests accepted into the pipeline"))
	if err != nil {
		return nil, fmt.Errorf("create requests.submitted counter: %w", err)
	}
	runsCompleted, err := meter.Int64Counter("quill.runs.completed",
		metric.WithDescription("Pipeline runs that produced a content piece"))
	if err != nil {
		return nil, fmt.Errorf("create runs.completed counter: %w", err)
	}
	runsFailed, err := meter.Int64Counter("quill.runs.failed",
		metric.WithDescription("Pipeline runs that ended in failure"))
	if err != nil {
		return nil, fmt.Errorf("create runs.failed counter: %w", err)
	}
	runsCancelled, err := meter.Int64Counter("quill.runs.cancelled",
		metric.WithDescription("Pipeline runs cancelled before completion"))
	if err != nil {
		return nil, fmt.Errorf("create runs.cancelled counter: %w", err)
	}
	runDuration, err := meter.Float64Histogram("quill.run.duration",
		metric.WithDescription("End to end pipeline run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create run.duration histogram: %w", err)
	}
	qualityScore, err := meter.Float64Histogram("quill.run.quality_score",
		metric.WithDescription("Overall quality score of completed pieces"))
	if err != nil {
		return nil, fmt.Errorf("create run.quality_score histogram: %w", err)
	}

	return &Metrics{
		RequestsSubmitted: requestsSubmitted,
		RunsCompleted:     runsCompleted,
		RunsFailed:        runsFailed,
		RunsCancelled:     runsCancelled,
		RunDuration:       runDuration,
		QualityScore:      qualityScore,
	}, nil
}
