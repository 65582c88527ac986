package worker

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	JobsCompletedCounterName    = "worker_jobs_completed_total"
	JobsRetriedCounterName      = "worker_jobs_retried_total"
	JobsDeadLetteredCounterName = "worker_jobs_dead_lettered_total"
	RecordsIndexedCounterName   = "worker_records_indexed_total"
	JobDurationHistogramName    = "worker_job_duration_seconds"
)

// Common attribute keys for consistent labeling.
const (
	AttrFailureType = "failure_type"
	AttrSourceType  = "source_type"
)

// processorMetrics collects OpenTelemetry metrics for job processing.
type processorMetrics struct {
	jobsCompleted    metric.Int64Counter
	jobsRetried      metric.Int64Counter
	jobsDeadLettered metric.Int64Counter
	recordsIndexed   metric.Int64Counter
	jobDuration      metric.Float64Histogram
}

func newProcessorMetrics() (*processorMetrics, error) {
	meter := otel.Meter("embeddra/worker", metric.WithInstrumentationVersion("1.0.0"))

	// Job attempts span embedding plus bulk indexing, so the buckets reach
	// well past typical HTTP latencies.
	durationBuckets := []float64{
		0.05, // 50ms
		0.1,  // 100ms
		0.25, // 250ms
		0.5,  // 500ms
		1.0,  // 1s
		2.5,  // 2.5s
		5.0,  // 5s
		10.0, // 10s
		30.0, // 30s
		60.0, // 1min
	}

	jobsCompleted, err := meter.Int64Counter(
		JobsCompletedCounterName,
		metric.WithDescription("Total number of jobs that reached the completed status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	jobsRetried, err := meter.Int64Counter(
		JobsRetriedCounterName,
		metric.WithDescription("Total number of job attempts requeued through the retry queue"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	jobsDeadLettered, err := meter.Int64Counter(
		JobsDeadLetteredCounterName,
		metric.WithDescription("Total number of job messages routed to the terminal queue"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	recordsIndexed, err := meter.Int64Counter(
		RecordsIndexedCounterName,
		metric.WithDescription("Total number of catalog records written to the index"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		JobDurationHistogramName,
		metric.WithDescription("Duration of one job processing attempt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	return &processorMetrics{
		jobsCompleted:    jobsCompleted,
		jobsRetried:      jobsRetried,
		jobsDeadLettered: jobsDeadLettered,
		recordsIndexed:   recordsIndexed,
		jobDuration:      jobDuration,
	}, nil
}
