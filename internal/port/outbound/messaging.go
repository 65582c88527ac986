package outbound

import (
	"context"

	"embeddra/internal/domain/messaging"
)

// MessagePublisher defines the outbound port for publishing to the job queue
// topology. The same publisher serves the accept path (main queue) and the
// worker's routing decisions (retry and terminal queues).
type MessagePublisher interface {
	// PublishIngestionJob announces a freshly accepted job on the main queue.
	PublishIngestionJob(ctx context.Context, message messaging.IngestionJobMessage, envelope messaging.Envelope) error

	// PublishRetry requeues a message through the delayed retry queue. The
	// envelope must already carry the incremented retry count.
	PublishRetry(ctx context.Context, message messaging.IngestionJobMessage, envelope messaging.Envelope) error

	// PublishDLQ routes a failed message to the terminal queue.
	PublishDLQ(ctx context.Context, dlqMessage messaging.DLQMessage) error
}

// MessagePublisherHealth defines health monitoring for message publishers.
type MessagePublisherHealth interface {
	GetConnectionHealth() MessagePublisherHealthStatus
	GetMessageMetrics() MessagePublisherMetrics
}

// MessagePublisherHealthStatus represents the health of a message publisher.
type MessagePublisherHealthStatus struct {
	Connected        bool   `json:"connected"`
	LastError        string `json:"last_error,omitempty"`
	Uptime           string `json:"uptime"`
	Reconnects       int    `json:"reconnects"`
	JetStreamEnabled bool   `json:"jetstream_enabled"`
}

// MessagePublisherMetrics represents message publishing metrics.
type MessagePublisherMetrics struct {
	PublishedCount int64 `json:"published_count"`
	RetryCount     int64 `json:"retry_count"`
	DLQCount       int64 `json:"dlq_count"`
	FailedCount    int64 `json:"failed_count"`
}
