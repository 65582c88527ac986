package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"embeddra/internal/application/common/slogger"
	"embeddra/internal/config"
	"embeddra/internal/domain/messaging"
	"embeddra/internal/port/outbound"

	"github.com/nats-io/nats.go"
)

const (
	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5
)

// NATSMessagePublisher provides the NATS JetStream implementation of
// MessagePublisher. One publisher instance serves all three queue subjects.
type NATSMessagePublisher struct {
	config         config.NATSConfig
	conn           *nats.Conn
	js             nats.JetStreamContext
	mutex          sync.RWMutex
	isConnected    bool
	connectedAt    time.Time
	reconnectCount int
	lastError      error
	publishedCount int64
	retryCount     int64
	dlqCount       int64
	failedCount    int64
}

// NewNATSMessagePublisher creates a new NATS message publisher.
func NewNATSMessagePublisher(cfg config.NATSConfig) (*NATSMessagePublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	return &NATSMessagePublisher{config: cfg}, nil
}

// Connect establishes the connection to the NATS server and provisions the
// queue topology.
func (n *NATSMessagePublisher) Connect() error {
	opts := []nats.Option{
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.mutex.Lock()
			n.reconnectCount++
			n.isConnected = true
			n.mutex.Unlock()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.mutex.Lock()
			n.isConnected = false
			if err != nil {
				n.lastError = err
			}
			n.mutex.Unlock()
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.recordError(err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		n.recordError(err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := EnsureTopology(js); err != nil {
		conn.Close()
		n.recordError(err)
		return err
	}

	n.mutex.Lock()
	n.conn = conn
	n.js = js
	n.isConnected = true
	n.connectedAt = time.Now()
	n.mutex.Unlock()
	return nil
}

// Disconnect closes the NATS connection.
func (n *NATSMessagePublisher) Disconnect() error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
		n.js = nil
	}
	n.isConnected = false
	return nil
}

// PublishIngestionJob announces a freshly accepted job on the main queue.
func (n *NATSMessagePublisher) PublishIngestionJob(
	ctx context.Context,
	message messaging.IngestionJobMessage,
	envelope messaging.Envelope,
) error {
	if err := n.publish(ctx, SubjectJobs, message, envelope); err != nil {
		return err
	}

	n.count(&n.publishedCount)
	slogger.Info(ctx, "Ingestion job published", slogger.Fields{
		"job_id":    message.JobID.String(),
		"tenant_id": message.TenantID,
		"subject":   SubjectJobs,
		"operation": "publish_job",
	})
	return nil
}

// PublishRetry requeues a message through the retry queue.
func (n *NATSMessagePublisher) PublishRetry(
	ctx context.Context,
	message messaging.IngestionJobMessage,
	envelope messaging.Envelope,
) error {
	if err := n.publish(ctx, SubjectRetry, message, envelope); err != nil {
		return err
	}

	n.count(&n.retryCount)
	slogger.Info(ctx, "Ingestion job requeued for retry", slogger.Fields{
		"job_id":      message.JobID.String(),
		"retry_count": envelope.RetryCount,
		"subject":     SubjectRetry,
		"operation":   "publish_retry",
	})
	return nil
}

// PublishDLQ routes a failed message to the terminal queue.
func (n *NATSMessagePublisher) PublishDLQ(ctx context.Context, dlqMessage messaging.DLQMessage) error {
	if err := dlqMessage.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(dlqMessage)
	if err != nil {
		n.count(&n.failedCount)
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	msg := &nats.Msg{
		Subject: SubjectDLQ,
		Header: EncodeEnvelope(messaging.Envelope{
			CorrelationID: dlqMessage.CorrelationID,
			RetryCount:    dlqMessage.RetryCount,
		}),
		Data: data,
	}

	if err := n.publishMsg(ctx, msg); err != nil {
		n.count(&n.failedCount)
		return err
	}

	n.count(&n.dlqCount)
	slogger.Warn(ctx, "Ingestion job dead-lettered", slogger.Fields{
		"job_id":       dlqMessage.OriginalMessage.JobID.String(),
		"failure_type": string(dlqMessage.FailureContext.FailureType),
		"retry_count":  dlqMessage.RetryCount,
		"subject":      SubjectDLQ,
		"operation":    "publish_dlq",
	})
	return nil
}

func (n *NATSMessagePublisher) publish(
	ctx context.Context,
	subject string,
	message messaging.IngestionJobMessage,
	envelope messaging.Envelope,
) error {
	if err := message.Validate(); err != nil {
		return fmt.Errorf("invalid job message: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	data, err := json.Marshal(message)
	if err != nil {
		n.count(&n.failedCount)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Header:  EncodeEnvelope(envelope),
		Data:    data,
	}

	if err := n.publishMsg(ctx, msg); err != nil {
		n.count(&n.failedCount)
		return err
	}
	return nil
}

func (n *NATSMessagePublisher) publishMsg(ctx context.Context, msg *nats.Msg) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n.mutex.RLock()
	js := n.js
	n.mutex.RUnlock()
	if js == nil {
		return errors.New("publish failed: not connected to NATS")
	}

	if _, err := js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		n.recordError(err)
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// GetConnectionHealth returns the current connection health status.
func (n *NATSMessagePublisher) GetConnectionHealth() outbound.MessagePublisherHealthStatus {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	status := outbound.MessagePublisherHealthStatus{
		Connected:        n.isConnected,
		JetStreamEnabled: n.js != nil,
		Reconnects:       n.reconnectCount,
		Uptime:           "0s",
	}
	if n.isConnected {
		status.Uptime = time.Since(n.connectedAt).String()
	}
	if n.lastError != nil {
		status.LastError = n.lastError.Error()
	}
	return status
}

// GetMessageMetrics returns current message publishing metrics.
func (n *NATSMessagePublisher) GetMessageMetrics() outbound.MessagePublisherMetrics {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	return outbound.MessagePublisherMetrics{
		PublishedCount: n.publishedCount,
		RetryCount:     n.retryCount,
		DLQCount:       n.dlqCount,
		FailedCount:    n.failedCount,
	}
}

func (n *NATSMessagePublisher) count(counter *int64) {
	n.mutex.Lock()
	*counter++
	n.mutex.Unlock()
}

func (n *NATSMessagePublisher) recordError(err error) {
	n.mutex.Lock()
	n.lastError = err
	n.mutex.Unlock()
}
