package inbound

import (
	"context"
	"time"

	"embeddra/internal/domain/messaging"
)

// Consumer is a message-consumption loop bound to one queue. Stop must quit
// pulling new messages while letting in-flight jobs finish or return to the
// queue unacknowledged.
type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ConsumerHealthStatus
	GetStats() ConsumerStats
	QueueGroup() string
	Subject() string
	DurableName() string
}

// JobProcessor drives one job message through the processing state machine.
type JobProcessor interface {
	// ProcessJob runs one attempt for the given message. The returned
	// Outcome tells the transport whether to acknowledge, requeue through
	// the retry queue, or dead-letter the message.
	ProcessJob(ctx context.Context, message messaging.IngestionJobMessage, envelope messaging.Envelope) Outcome
	GetMetrics() JobProcessorMetrics
}

// Disposition is the transport action requested by the job processor.
type Disposition int

// Disposition constants.
const (
	// DispositionAck acknowledges the message; the job reached a terminal
	// status (or was a stale duplicate).
	DispositionAck Disposition = iota
	// DispositionRetry requeues the message through the retry queue with an
	// incremented retry count.
	DispositionRetry
	// DispositionDeadLetter routes the message to the terminal queue.
	DispositionDeadLetter
)

// Outcome reports the result of one processing attempt.
type Outcome struct {
	Disposition Disposition
	FailureType messaging.FailureType
	Err         error
}

// Ack builds a successful outcome.
func Ack() Outcome {
	return Outcome{Disposition: DispositionAck}
}

// Retry builds a retryable-failure outcome.
func Retry(failureType messaging.FailureType, err error) Outcome {
	return Outcome{Disposition: DispositionRetry, FailureType: failureType, Err: err}
}

// DeadLetter builds a terminal-failure outcome.
func DeadLetter(failureType messaging.FailureType, err error) Outcome {
	return Outcome{Disposition: DispositionDeadLetter, FailureType: failureType, Err: err}
}

// ConsumerHealthStatus represents the health of a single consumer.
type ConsumerHealthStatus struct {
	Subject         string    `json:"subject"`
	QueueGroup      string    `json:"queue_group"`
	IsRunning       bool      `json:"is_running"`
	IsConnected     bool      `json:"is_connected"`
	MessagesHandled int64     `json:"messages_handled"`
	ErrorCount      int64     `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// ConsumerStats represents consumer statistics.
type ConsumerStats struct {
	MessagesReceived   int64         `json:"messages_received"`
	MessagesProcessed  int64         `json:"messages_processed"`
	MessagesRetried    int64         `json:"messages_retried"`
	MessagesDeadLetter int64         `json:"messages_dead_letter"`
	LastProcessTime    time.Duration `json:"last_process_time"`
	ActiveSince        time.Time     `json:"active_since"`
}

// JobProcessorMetrics represents aggregate job processing metrics.
type JobProcessorMetrics struct {
	JobsCompleted      int64 `json:"jobs_completed"`
	JobsRetried        int64 `json:"jobs_retried"`
	JobsDeadLettered   int64 `json:"jobs_dead_lettered"`
	RecordsIndexed     int64 `json:"records_indexed"`
	RecordsFailed      int64 `json:"records_failed"`
	StaleMessagesAcked int64 `json:"stale_messages_acked"`
}
