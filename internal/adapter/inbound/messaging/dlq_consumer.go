package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	queue "embeddra/internal/adapter/outbound/messaging"
	"embeddra/internal/application/common/logging"
	"embeddra/internal/application/common/slogger"
	"embeddra/internal/config"
	"embeddra/internal/domain/messaging"

	"github.com/nats-io/nats.go"
)

const (
	dlqFetchBatch   = 16
	dlqFetchTimeout = 2 * time.Second
)

// DLQMessageHandler processes messages arriving on the terminal queue.
// Handlers observe and record; nothing here ever requeues a message for
// automatic reprocessing.
type DLQMessageHandler interface {
	HandleDLQMessage(ctx context.Context, dlqMessage messaging.DLQMessage) error
}

// DLQConsumerConfig holds configuration for the DLQ consumer.
type DLQConsumerConfig struct {
	DurableName       string
	AckWait           time.Duration
	MaxDeliver        int
	MaxAckPending     int
	ProcessingTimeout time.Duration
}

// DLQConsumerHealth represents the health status of the DLQ consumer.
type DLQConsumerHealth struct {
	IsRunning         bool  `json:"is_running"`
	IsConnected       bool  `json:"is_connected"`
	MessagesProcessed int64 `json:"messages_processed"`
	ProcessingErrors  int64 `json:"processing_errors"`
}

// DLQStatistics aggregates terminal-queue traffic by failure type.
type DLQStatistics struct {
	TotalMessages  int64            `json:"total_messages"`
	ByFailureType  map[string]int64 `json:"by_failure_type"`
	LastMessageAt  time.Time        `json:"last_message_at"`
	OldestRecorded time.Time        `json:"oldest_recorded"`
}

// DLQConsumer consumes the terminal queue for operator visibility.
type DLQConsumer struct {
	config     DLQConsumerConfig
	natsConfig config.NATSConfig
	handler    DLQMessageHandler

	conn         *nats.Conn
	subscription *nats.Subscription

	mu      sync.RWMutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
	health  DLQConsumerHealth
	stats   DLQStatistics
}

// NewDLQConsumer creates a new DLQ consumer.
func NewDLQConsumer(
	cfg DLQConsumerConfig,
	natsConfig config.NATSConfig,
	handler DLQMessageHandler,
) (*DLQConsumer, error) {
	if cfg.DurableName == "" {
		return nil, errors.New("durable name cannot be empty")
	}
	if cfg.ProcessingTimeout <= 0 {
		return nil, errors.New("processing timeout must be positive")
	}
	if handler == nil {
		return nil, errors.New("DLQ message handler cannot be nil")
	}

	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 64
	}

	return &DLQConsumer{
		config:     cfg,
		natsConfig: natsConfig,
		handler:    handler,
		stats:      DLQStatistics{ByFailureType: make(map[string]int64)},
	}, nil
}

// Start connects and begins consuming the terminal queue.
func (c *DLQConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("DLQ consumer already running")
	}

	conn, js, err := connectJetStream(c.natsConfig)
	if err != nil {
		return err
	}

	if err := queue.EnsureTopology(js); err != nil {
		conn.Close()
		return err
	}

	sub, err := bindDurableConsumer(js, durableConsumerSpec{
		subject:       queue.SubjectDLQ,
		durableName:   c.config.DurableName,
		ackWait:       c.config.AckWait,
		maxDeliver:    c.config.MaxDeliver,
		maxAckPending: c.config.MaxAckPending,
	})
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.subscription = sub
	c.stop = make(chan struct{})
	c.running = true
	c.health.IsRunning = true
	c.health.IsConnected = true
	c.stats.OldestRecorded = time.Now()

	c.wg.Add(1)
	go c.consumeLoop()

	slogger.Info(ctx, "DLQ consumer started", slogger.Fields{"subject": queue.SubjectDLQ})
	return nil
}

// Stop shuts the consumer down.
func (c *DLQConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stop)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.subscription = nil
	}
	c.health.IsRunning = false
	c.health.IsConnected = false
	c.mu.Unlock()
	return nil
}

func (c *DLQConsumer) consumeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		msgs, err := c.subscription.Fetch(dlqFetchBatch, nats.MaxWait(dlqFetchTimeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			select {
			case <-c.stop:
				return
			default:
			}
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			c.handleDLQMessage(msg)
		}
	}
}

func (c *DLQConsumer) handleDLQMessage(msg *nats.Msg) {
	var dlqMessage messaging.DLQMessage
	if err := json.Unmarshal(msg.Data, &dlqMessage); err != nil {
		// A malformed record on the terminal queue has nowhere further to
		// go; log it and move on.
		slogger.ErrorNoCtx("Failed to decode DLQ record", slogger.Fields{"error": err.Error()})
		c.recordError()
		_ = msg.Ack()
		return
	}

	ctx := logging.WithCorrelationID(context.Background(), dlqMessage.CorrelationID)
	ctx, cancel := context.WithTimeout(ctx, c.config.ProcessingTimeout)
	defer cancel()

	if err := c.handler.HandleDLQMessage(ctx, dlqMessage); err != nil {
		slogger.ErrorWithError(ctx, err, "DLQ handler failed", slogger.Fields{
			"dlq_message_id": dlqMessage.DLQMessageID,
		})
		c.recordError()
		if nakErr := msg.NakWithDelay(publishFailureRedeliveryDelay); nakErr != nil {
			slogger.ErrorNoCtx("Failed to nak DLQ record", slogger.Fields{"error": nakErr.Error()})
		}
		return
	}

	c.recordProcessed(dlqMessage)
	if err := msg.Ack(); err != nil {
		slogger.ErrorNoCtx("Failed to ack DLQ record", slogger.Fields{"error": err.Error()})
	}
}

func (c *DLQConsumer) recordProcessed(dlqMessage messaging.DLQMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.MessagesProcessed++
	c.stats.TotalMessages++
	c.stats.ByFailureType[string(dlqMessage.FailureContext.FailureType)]++
	c.stats.LastMessageAt = time.Now()
}

func (c *DLQConsumer) recordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.ProcessingErrors++
}

// Health returns the consumer's health snapshot.
func (c *DLQConsumer) Health() DLQConsumerHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// GetStatistics returns aggregate terminal-queue statistics.
func (c *DLQConsumer) GetStatistics() DLQStatistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := DLQStatistics{
		TotalMessages:  c.stats.TotalMessages,
		ByFailureType:  make(map[string]int64, len(c.stats.ByFailureType)),
		LastMessageAt:  c.stats.LastMessageAt,
		OldestRecorded: c.stats.OldestRecorded,
	}
	for failureType, count := range c.stats.ByFailureType {
		stats.ByFailureType[failureType] = count
	}
	return stats
}
