package messaging

import (
	"fmt"
	"time"

	queue "embeddra/internal/adapter/outbound/messaging"
	"embeddra/internal/config"

	"github.com/nats-io/nats.go"
)

const natsConnectTimeout = 5 * time.Second

// durableConsumerSpec describes one durable pull consumer on the ingestion
// stream.
type durableConsumerSpec struct {
	subject       string
	durableName   string
	ackWait       time.Duration
	maxDeliver    int
	maxAckPending int
}

// connectJetStream opens a NATS connection with a JetStream context.
func connectJetStream(cfg config.NATSConfig) (*nats.Conn, nats.JetStreamContext, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(natsConnectTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return conn, js, nil
}

// bindDurableConsumer creates the durable pull consumer if needed and binds
// a pull subscription to it. Acknowledgment is always explicit: a message is
// removed from the work queue only after the handler has decided its fate.
func bindDurableConsumer(js nats.JetStreamContext, spec durableConsumerSpec) (*nats.Subscription, error) {
	consumerConfig := &nats.ConsumerConfig{
		Durable:       spec.durableName,
		FilterSubject: spec.subject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       spec.ackWait,
		MaxDeliver:    spec.maxDeliver,
		MaxAckPending: spec.maxAckPending,
		ReplayPolicy:  nats.ReplayInstantPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
	}

	if _, err := js.ConsumerInfo(queue.StreamName, spec.durableName); err != nil {
		if _, err := js.AddConsumer(queue.StreamName, consumerConfig); err != nil {
			return nil, fmt.Errorf("failed to create durable consumer %s: %w", spec.durableName, err)
		}
	}

	sub, err := js.PullSubscribe(spec.subject, spec.durableName, nats.Bind(queue.StreamName, spec.durableName))
	if err != nil {
		return nil, fmt.Errorf("failed to create pull subscription: %w", err)
	}
	return sub, nil
}
