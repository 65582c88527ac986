// Package messaging contains the consumer side of the job queue: the main
// job consumer, the retry forwarder that holds retried messages for the
// configured delay, and the terminal-queue monitor.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	queue "embeddra/internal/adapter/outbound/messaging"
	"embeddra/internal/application/common/logging"
	"embeddra/internal/application/common/slogger"
	"embeddra/internal/config"
	"embeddra/internal/domain/messaging"
	"embeddra/internal/port/inbound"
	"embeddra/internal/port/outbound"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"
)

const (
	// defaultJobProcessingTimeout bounds a single processing attempt.
	defaultJobProcessingTimeout = 30 * time.Second

	// publishFailureRedeliveryDelay is how long a message stays invisible
	// when routing it onward (retry or terminal queue) fails.
	publishFailureRedeliveryDelay = 5 * time.Second

	defaultFetchBatch   = 16
	defaultFetchTimeout = 2 * time.Second
)

// ConsumerConfig holds configuration for the main job consumer.
type ConsumerConfig struct {
	Subject       string
	QueueGroup    string
	DurableName   string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
	Concurrency   int
	FetchBatch    int
	FetchTimeout  time.Duration
	MaxRetryCount int
	JobTimeout    time.Duration
}

// NATSConsumer pulls job messages off the main queue, runs them through the
// job processor, and routes each message onward according to the outcome.
type NATSConsumer struct {
	config       ConsumerConfig
	natsConfig   config.NATSConfig
	jobProcessor inbound.JobProcessor
	publisher    outbound.MessagePublisher

	conn         *nats.Conn
	js           nats.JetStreamContext
	subscription *nats.Subscription
	sem          *semaphore.Weighted

	mu      sync.RWMutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
	stats   inbound.ConsumerStats
	health  inbound.ConsumerHealthStatus
}

// NewNATSConsumer creates a new main-queue consumer.
func NewNATSConsumer(
	cfg ConsumerConfig,
	natsConfig config.NATSConfig,
	processor inbound.JobProcessor,
	publisher outbound.MessagePublisher,
) (*NATSConsumer, error) {
	if err := validateConsumerConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if processor == nil {
		return nil, errors.New("job processor cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("message publisher cannot be nil")
	}

	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = defaultFetchBatch
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobProcessingTimeout
	}

	return &NATSConsumer{
		config:       cfg,
		natsConfig:   natsConfig,
		jobProcessor: processor,
		publisher:    publisher,
		sem:          semaphore.NewWeighted(int64(cfg.Concurrency)),
		stats:        inbound.ConsumerStats{ActiveSince: time.Now()},
		health: inbound.ConsumerHealthStatus{
			Subject:    cfg.Subject,
			QueueGroup: cfg.QueueGroup,
		},
	}, nil
}

// validateConsumerConfig performs validation of consumer configuration.
func validateConsumerConfig(cfg ConsumerConfig) error {
	if cfg.Subject == "" {
		return errors.New("subject cannot be empty")
	}
	if cfg.QueueGroup == "" {
		return errors.New("queue group cannot be empty")
	}
	if cfg.DurableName == "" {
		return errors.New("durable name cannot be empty")
	}
	if cfg.AckWait <= 0 {
		return errors.New("ack wait duration must be positive")
	}
	if cfg.MaxDeliver <= 0 {
		return errors.New("max deliver count must be positive")
	}
	if cfg.MaxAckPending <= 0 {
		return errors.New("max ack pending must be positive")
	}
	if cfg.Concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}
	if cfg.MaxRetryCount < 0 {
		return errors.New("max retry count cannot be negative")
	}
	return nil
}

// Start connects to NATS and begins pulling messages. It returns once the
// fetch loop is running.
func (n *NATSConsumer) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("consumer already running for subject %s", n.config.Subject)
	}

	conn, js, err := connectJetStream(n.natsConfig)
	if err != nil {
		n.health.LastError = err.Error()
		return err
	}

	if err := queue.EnsureTopology(js); err != nil {
		conn.Close()
		n.health.LastError = err.Error()
		return err
	}

	sub, err := bindDurableConsumer(js, durableConsumerSpec{
		subject:       n.config.Subject,
		durableName:   n.config.DurableName,
		ackWait:       n.config.AckWait,
		maxDeliver:    n.config.MaxDeliver,
		maxAckPending: n.config.MaxAckPending,
	})
	if err != nil {
		conn.Close()
		n.health.LastError = err.Error()
		return err
	}

	n.conn = conn
	n.js = js
	n.subscription = sub
	n.stop = make(chan struct{})
	n.running = true
	n.health.IsRunning = true
	n.health.IsConnected = true
	n.stats.ActiveSince = time.Now()

	n.wg.Add(1)
	go n.fetchLoop()

	slogger.Info(ctx, "Job consumer started", slogger.Fields{
		"subject":     n.config.Subject,
		"durable":     n.config.DurableName,
		"concurrency": n.config.Concurrency,
	})
	return nil
}

// Stop drains the consumer: no new fetches, in-flight handlers run to
// completion, then the connection closes.
func (n *NATSConsumer) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	close(n.stop)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	n.mu.Lock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
		n.js = nil
		n.subscription = nil
	}
	n.health.IsRunning = false
	n.health.IsConnected = false
	n.mu.Unlock()

	slogger.Info(ctx, "Job consumer stopped", slogger.Fields{"subject": n.config.Subject})
	return nil
}

// fetchLoop pulls message batches until the consumer stops. Each message is
// handled on its own goroutine, bounded by the concurrency semaphore.
func (n *NATSConsumer) fetchLoop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.stop:
			return
		default:
		}

		msgs, err := n.subscription.Fetch(n.config.FetchBatch, nats.MaxWait(n.config.FetchTimeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			select {
			case <-n.stop:
				return
			default:
			}
			n.recordError(fmt.Sprintf("fetch failed: %v", err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			if err := n.sem.Acquire(context.Background(), 1); err != nil {
				return
			}
			n.wg.Add(1)
			go func(m *nats.Msg) {
				defer n.wg.Done()
				defer n.sem.Release(1)
				n.handleMessage(m)
			}(msg)
		}
	}
}

// handleMessage runs one delivery through decode, process, and route.
func (n *NATSConsumer) handleMessage(msg *nats.Msg) {
	start := time.Now()

	envelope, err := queue.DecodeEnvelope(msg.Header)
	if err != nil {
		// Unusable headers never become usable: dead-letter without retry.
		n.deadLetterPoison(msg, messaging.Envelope{CorrelationID: ""}, err)
		n.updateStats(false, time.Since(start))
		return
	}

	ctx := logging.WithCorrelationID(context.Background(), envelope.CorrelationID)
	ctx, cancel := context.WithTimeout(ctx, n.config.JobTimeout)
	defer cancel()

	var jobMessage messaging.IngestionJobMessage
	if err := json.Unmarshal(msg.Data, &jobMessage); err != nil {
		n.deadLetterPoison(msg, envelope, fmt.Errorf("failed to unmarshal message: %w", err))
		n.updateStats(false, time.Since(start))
		return
	}
	if err := jobMessage.Validate(); err != nil {
		n.deadLetterPoison(msg, envelope, fmt.Errorf("message validation failed: %w", err))
		n.updateStats(false, time.Since(start))
		return
	}

	ctx = logging.WithTenantID(ctx, jobMessage.TenantID)

	outcome := n.jobProcessor.ProcessJob(ctx, jobMessage, envelope)
	n.route(ctx, msg, jobMessage, envelope, outcome)
	n.updateStats(outcome.Disposition == inbound.DispositionAck, time.Since(start))
}

// route applies the processor's outcome to the transport.
func (n *NATSConsumer) route(
	ctx context.Context,
	msg *nats.Msg,
	jobMessage messaging.IngestionJobMessage,
	envelope messaging.Envelope,
	outcome inbound.Outcome,
) {
	switch outcome.Disposition {
	case inbound.DispositionAck:
		if err := msg.Ack(); err != nil {
			n.recordError(fmt.Sprintf("ack failed: %v", err))
		}

	case inbound.DispositionRetry:
		if envelope.RetriesExhausted(n.config.MaxRetryCount) {
			n.deadLetter(ctx, msg, jobMessage, envelope, messaging.FailureContext{
				ErrorMessage: outcome.Err.Error(),
				FailureType:  messaging.FailureTypeRetryExhausted,
				Component:    "job-consumer",
				Operation:    "process_job",
				AdditionalInfo: map[string]interface{}{
					"last_failure_type": string(outcome.FailureType),
				},
			})
			return
		}

		if err := n.publisher.PublishRetry(ctx, jobMessage, envelope.NextRetry()); err != nil {
			// Requeue could not be recorded; let the broker redeliver this
			// delivery attempt instead so the failure is not lost.
			slogger.ErrorWithError(ctx, err, "Failed to requeue job for retry", slogger.Fields{
				"job_id": jobMessage.JobID.String(),
			})
			n.nakWithDelay(msg)
			return
		}
		n.countRetried()
		if err := msg.Ack(); err != nil {
			n.recordError(fmt.Sprintf("ack failed after retry publish: %v", err))
		}

	case inbound.DispositionDeadLetter:
		n.deadLetter(ctx, msg, jobMessage, envelope, messaging.FailureContext{
			ErrorMessage: outcome.Err.Error(),
			FailureType:  outcome.FailureType,
			Component:    "job-consumer",
			Operation:    "process_job",
		})
	}
}

// deadLetterPoison terminates a message that never decoded into a valid job
// message. The raw payload travels in the failure context for inspection.
func (n *NATSConsumer) deadLetterPoison(msg *nats.Msg, envelope messaging.Envelope, cause error) {
	ctx := logging.WithCorrelationID(context.Background(), envelope.CorrelationID)
	n.deadLetter(ctx, msg, messaging.IngestionJobMessage{}, envelope, messaging.FailureContext{
		ErrorMessage: cause.Error(),
		FailureType:  messaging.FailureTypePoisonMessage,
		Component:    "job-consumer",
		Operation:    "decode_message",
		AdditionalInfo: map[string]interface{}{
			"raw_payload": string(msg.Data),
		},
	})
}

func (n *NATSConsumer) deadLetter(
	ctx context.Context,
	msg *nats.Msg,
	jobMessage messaging.IngestionJobMessage,
	envelope messaging.Envelope,
	failure messaging.FailureContext,
) {
	failure.CorrelationID = envelope.CorrelationID
	dlqMessage := messaging.NewDLQMessage(jobMessage, envelope, failure)

	if err := n.publisher.PublishDLQ(ctx, dlqMessage); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to dead-letter job message", slogger.Fields{
			"job_id":       jobMessage.JobID.String(),
			"failure_type": string(failure.FailureType),
		})
		n.nakWithDelay(msg)
		return
	}

	n.countDeadLettered()
	if err := msg.Ack(); err != nil {
		n.recordError(fmt.Sprintf("ack failed after dead-letter publish: %v", err))
	}
}

func (n *NATSConsumer) nakWithDelay(msg *nats.Msg) {
	if err := msg.NakWithDelay(publishFailureRedeliveryDelay); err != nil {
		n.recordError(fmt.Sprintf("nak failed: %v", err))
	}
}

// Health returns the current health status of the consumer.
func (n *NATSConsumer) Health() inbound.ConsumerHealthStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.health
}

// GetStats returns consumer statistics.
func (n *NATSConsumer) GetStats() inbound.ConsumerStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// QueueGroup returns the consumer's queue group.
func (n *NATSConsumer) QueueGroup() string {
	return n.config.QueueGroup
}

// Subject returns the consumer's subject.
func (n *NATSConsumer) Subject() string {
	return n.config.Subject
}

// DurableName returns the consumer's durable name.
func (n *NATSConsumer) DurableName() string {
	return n.config.DurableName
}

func (n *NATSConsumer) recordError(errorMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.health.ErrorCount++
	n.health.LastError = errorMsg
}

func (n *NATSConsumer) countRetried() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats.MessagesRetried++
}

func (n *NATSConsumer) countDeadLettered() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats.MessagesDeadLetter++
}

func (n *NATSConsumer) updateStats(success bool, processTime time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stats.MessagesReceived++
	n.stats.LastProcessTime = processTime
	if success {
		n.stats.MessagesProcessed++
		n.health.MessagesHandled++
		n.health.LastMessageTime = time.Now()
	}
}
