package messaging

import (
	"fmt"
	"strconv"
	"strings"

	"embeddra/internal/domain/messaging"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// EncodeEnvelope writes envelope metadata into transport headers using the
// canonical header names.
func EncodeEnvelope(envelope messaging.Envelope) nats.Header {
	header := nats.Header{}
	header.Set(HeaderCorrelationID, envelope.CorrelationID)
	header.Set(HeaderRetryCount, strconv.Itoa(envelope.RetryCount))
	return header
}

// DecodeEnvelope reads envelope metadata from transport headers. A missing
// correlation ID is replaced with a fresh one so downstream logging always
// has something to correlate on; a missing retry count means zero. A present
// but unparseable retry count is an error so a corrupted header is surfaced
// instead of silently resetting the retry budget.
func DecodeEnvelope(header nats.Header) (messaging.Envelope, error) {
	envelope := messaging.Envelope{
		CorrelationID: headerValue(header, HeaderCorrelationID),
	}
	if envelope.CorrelationID == "" {
		envelope.CorrelationID = uuid.New().String()
	}

	raw := headerValue(header, HeaderRetryCount)
	if raw != "" {
		count, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return messaging.Envelope{}, fmt.Errorf("invalid %s header %q: %w", HeaderRetryCount, raw, err)
		}
		envelope.RetryCount = count
	}

	return envelope, nil
}

// headerValue looks a header up tolerantly. nats.Header.Get canonicalizes
// the key, but messages published by non-Go producers can carry arbitrary
// casing that canonicalization does not cover.
func headerValue(header nats.Header, key string) string {
	if header == nil {
		return ""
	}
	if value := header.Get(key); value != "" {
		return value
	}
	for name, values := range header {
		if strings.EqualFold(name, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
