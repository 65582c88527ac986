// Package messaging provides the NATS JetStream implementation of the job
// queue topology: one work-queue stream carrying the main, retry, and
// terminal subjects, plus the publisher that writes to them.
package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Queue topology. All three queues live on one work-queue stream so a
// message is owned by exactly one consumer at a time.
const (
	StreamName = "INGESTION"

	SubjectJobs  = "ingestion.jobs"
	SubjectRetry = "ingestion.jobs.retry"
	SubjectDLQ   = "ingestion.jobs.dlq"

	streamMaxAgeHours = 24
)

// Transport header names. Header lookup is case-insensitive on the NATS
// side, but published messages always carry the canonical form.
const (
	HeaderCorrelationID = "Correlation-Id"
	HeaderRetryCount    = "Retry-Count"
)

// EnsureTopology creates the ingestion stream if it doesn't exist. Safe to
// call from every process at startup.
func EnsureTopology(js nats.JetStreamContext) error {
	if js == nil {
		return errors.New("not connected to NATS server")
	}

	streamConfig := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"ingestion.>"},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    streamMaxAgeHours * time.Hour, // Unclaimed jobs expire after 1 day
		Replicas:  1,
	}

	_, err := js.AddStream(streamConfig)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "permissions") {
			return errors.New("insufficient permissions to create stream")
		}
		if strings.Contains(errMsg, "JetStream not enabled") || strings.Contains(errMsg, "not supported") {
			return errors.New("JetStream not enabled on server")
		}

		// Stream may already exist with the same configuration.
		if _, streamErr := js.StreamInfo(StreamName); streamErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}
