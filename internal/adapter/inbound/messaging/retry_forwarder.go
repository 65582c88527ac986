package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	queue "embeddra/internal/adapter/outbound/messaging"
	"embeddra/internal/application/common/logging"
	"embeddra/internal/application/common/slogger"
	"embeddra/internal/config"

	"github.com/nats-io/nats.go"
)

const (
	retryForwarderDurable = "ingestion-retry-forwarder"

	retryFetchBatch   = 32
	retryFetchTimeout = 2 * time.Second
	retryAckWait      = 30 * time.Second
	retryMaxDeliver   = 1000
	retryMaxPending   = 256
)

// RetryForwarder drains the retry queue back into the main queue once each
// message has aged past the configured delay. The hold is broker-side: a
// message younger than the delay is released unacknowledged with the
// remaining time, so the forwarder keeps no timers of its own and a restart
// loses nothing.
type RetryForwarder struct {
	natsConfig config.NATSConfig
	delay      time.Duration

	conn         *nats.Conn
	js           nats.JetStreamContext
	subscription *nats.Subscription

	mu        sync.RWMutex
	running   bool
	stop      chan struct{}
	wg        sync.WaitGroup
	forwarded int64
	held      int64
}

// NewRetryForwarder creates a retry-queue forwarder.
func NewRetryForwarder(natsConfig config.NATSConfig, delay time.Duration) (*RetryForwarder, error) {
	if delay < 0 {
		return nil, errors.New("retry delay cannot be negative")
	}
	return &RetryForwarder{natsConfig: natsConfig, delay: delay}, nil
}

// Start connects and begins draining the retry queue.
func (f *RetryForwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return errors.New("retry forwarder already running")
	}

	conn, js, err := connectJetStream(f.natsConfig)
	if err != nil {
		return err
	}

	if err := queue.EnsureTopology(js); err != nil {
		conn.Close()
		return err
	}

	sub, err := bindDurableConsumer(js, durableConsumerSpec{
		subject:       queue.SubjectRetry,
		durableName:   retryForwarderDurable,
		ackWait:       retryAckWait,
		maxDeliver:    retryMaxDeliver,
		maxAckPending: retryMaxPending,
	})
	if err != nil {
		conn.Close()
		return err
	}

	f.conn = conn
	f.js = js
	f.subscription = sub
	f.stop = make(chan struct{})
	f.running = true

	f.wg.Add(1)
	go f.forwardLoop()

	slogger.Info(ctx, "Retry forwarder started", slogger.Fields{
		"subject": queue.SubjectRetry,
		"delay":   f.delay.String(),
	})
	return nil
}

// Stop shuts the forwarder down. Held messages stay on the retry queue and
// resume their countdown on the next start.
func (f *RetryForwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.stop)
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
		f.js = nil
		f.subscription = nil
	}
	f.mu.Unlock()

	slogger.Info(ctx, "Retry forwarder stopped", nil)
	return nil
}

func (f *RetryForwarder) forwardLoop() {
	defer f.wg.Done()

	for {
		select {
		case <-f.stop:
			return
		default:
		}

		msgs, err := f.subscription.Fetch(retryFetchBatch, nats.MaxWait(retryFetchTimeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			select {
			case <-f.stop:
				return
			default:
			}
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			f.forwardMessage(msg)
		}
	}
}

// forwardMessage releases one retry-queue message: held if still young,
// republished to the main queue once the delay has elapsed.
func (f *RetryForwarder) forwardMessage(msg *nats.Msg) {
	meta, err := msg.Metadata()
	if err != nil {
		// Not a JetStream delivery; forward immediately rather than guess.
		f.republish(msg)
		return
	}

	age := time.Since(meta.Timestamp)
	if age < f.delay {
		if err := msg.NakWithDelay(f.delay - age); err != nil {
			slogger.ErrorNoCtx("Failed to hold retry message", slogger.Fields{"error": err.Error()})
		}
		f.mu.Lock()
		f.held++
		f.mu.Unlock()
		return
	}

	f.republish(msg)
}

func (f *RetryForwarder) republish(msg *nats.Msg) {
	envelope, err := queue.DecodeEnvelope(msg.Header)
	ctx := context.Background()
	if err == nil {
		ctx = logging.WithCorrelationID(ctx, envelope.CorrelationID)
	}

	// Headers carry through unchanged: the retry count was incremented when
	// the message entered the retry queue, not when it leaves.
	forwarded := &nats.Msg{
		Subject: queue.SubjectJobs,
		Header:  msg.Header,
		Data:    msg.Data,
	}

	if _, err := f.js.PublishMsg(forwarded); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to forward retry message", slogger.Fields{
			"subject": queue.SubjectJobs,
		})
		if nakErr := msg.NakWithDelay(publishFailureRedeliveryDelay); nakErr != nil {
			slogger.ErrorNoCtx("Failed to nak retry message", slogger.Fields{"error": nakErr.Error()})
		}
		return
	}

	if err := msg.Ack(); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to ack forwarded retry message", nil)
		return
	}

	f.mu.Lock()
	f.forwarded++
	f.mu.Unlock()

	slogger.Debug(ctx, "Retry message forwarded to main queue", slogger.Fields{
		"subject": queue.SubjectJobs,
	})
}

// Forwarded returns how many messages have been returned to the main queue.
func (f *RetryForwarder) Forwarded() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.forwarded
}

// Held returns how many fetches found a message still inside its delay.
func (f *RetryForwarder) Held() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.held
}
