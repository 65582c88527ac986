package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DLQError represents a domain-specific error in dead-letter queue operations.
type DLQError struct {
	Op      string // The operation that failed
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

// Error implements the error interface.
func (e *DLQError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dlq %s: %s (%s): %v", e.Op, e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("dlq %s: %s (%s)", e.Op, e.Message, e.Code)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *DLQError) Unwrap() error {
	return e.Err
}

// NewDLQError creates a new domain-specific DLQ error.
func NewDLQError(op, code, message string, err error) *DLQError {
	return &DLQError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error codes for programmatic error handling.
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidFailureType = "INVALID_FAILURE_TYPE"
)

// FailureType categorizes a processing failure. The classification decides
// routing: temporary failures are requeued through the retry queue up to the
// configured maximum, permanent failures go straight to terminal handling.
type FailureType string

// FailureType constants.
const (
	// Temporary failures - retried through the retry queue.
	FailureTypeEmbeddingUnavailable FailureType = "EMBEDDING_UNAVAILABLE" // Embedding backend unreachable or erroring
	FailureTypeIndexUnavailable     FailureType = "INDEX_UNAVAILABLE"     // Bulk index backend unreachable
	FailureTypeStoreUnavailable     FailureType = "STORE_UNAVAILABLE"     // Job record store momentarily unavailable
	FailureTypeBatchRejected        FailureType = "BATCH_REJECTED"        // Every item in the batch failed to index

	// Permanent failures - routed to terminal handling without retry.
	FailureTypePoisonMessage   FailureType = "POISON_MESSAGE"   // Malformed envelope or missing job id
	FailureTypeJobNotFound     FailureType = "JOB_NOT_FOUND"    // No job record for the message (stale/duplicate)
	FailureTypeInvalidPayload  FailureType = "INVALID_PAYLOAD"  // Raw batch cannot be parsed
	FailureTypeRetryExhausted  FailureType = "RETRY_EXHAUSTED"  // Transient failure past the retry budget
	FailureTypeProcessingError FailureType = "PROCESSING_ERROR" // Unclassified processing failure
)

// NewFailureType creates a new FailureType with validation.
func NewFailureType(failureType string) (FailureType, error) {
	switch FailureType(failureType) {
	case FailureTypeEmbeddingUnavailable,
		FailureTypeIndexUnavailable,
		FailureTypeStoreUnavailable,
		FailureTypeBatchRejected,
		FailureTypePoisonMessage,
		FailureTypeJobNotFound,
		FailureTypeInvalidPayload,
		FailureTypeRetryExhausted,
		FailureTypeProcessingError:
		return FailureType(failureType), nil
	default:
		return "", NewDLQError("NewFailureType", ErrCodeInvalidFailureType,
			fmt.Sprintf("unsupported failure type: %s", failureType), nil)
	}
}

// IsTemporary returns true if the failure type is temporary and retryable.
func (f FailureType) IsTemporary() bool {
	switch f {
	case FailureTypeEmbeddingUnavailable,
		FailureTypeIndexUnavailable,
		FailureTypeStoreUnavailable,
		FailureTypeBatchRejected:
		return true
	default:
		return false
	}
}

// IsPermanent returns true if the failure type should never be retried.
func (f FailureType) IsPermanent() bool {
	return !f.IsTemporary()
}

// ClassifyFailureFromError maps an error message to a failure type. Used as
// the fallback when the error does not already carry a classification.
func ClassifyFailureFromError(errorMessage string) FailureType {
	msg := strings.ToLower(errorMessage)
	switch {
	case strings.Contains(msg, "embed"):
		return FailureTypeEmbeddingUnavailable
	case strings.Contains(msg, "index") || strings.Contains(msg, "upsert"):
		return FailureTypeIndexUnavailable
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable"):
		return FailureTypeStoreUnavailable
	case strings.Contains(msg, "parse") || strings.Contains(msg, "decode") || strings.Contains(msg, "invalid"):
		return FailureTypeInvalidPayload
	default:
		return FailureTypeProcessingError
	}
}

// FailureContext holds detailed context about a failure for operators
// inspecting the terminal queue.
type FailureContext struct {
	ErrorMessage   string                 `json:"error_message"`
	FailureType    FailureType            `json:"failure_type"`
	Component      string                 `json:"component"`
	Operation      string                 `json:"operation"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	AdditionalInfo map[string]interface{} `json:"additional_info,omitempty"`
}

// Validate validates the failure context.
func (fc *FailureContext) Validate() error {
	if fc.ErrorMessage == "" {
		return errors.New("error_message is required")
	}
	if fc.Component == "" {
		return errors.New("component is required")
	}
	if fc.Operation == "" {
		return errors.New("operation is required")
	}
	return nil
}

// DLQMessage is the record published to the terminal queue when a job
// message exhausts its retries or fails permanently. The terminal queue is
// consumed only by operational tooling and never automatically reprocessed.
type DLQMessage struct {
	DLQMessageID    string              `json:"dlq_message_id"`
	OriginalMessage IngestionJobMessage `json:"original_message"`
	CorrelationID   string              `json:"correlation_id"`
	RetryCount      int                 `json:"retry_count"`
	FailureContext  FailureContext      `json:"failure_context"`
	DeadLetteredAt  time.Time           `json:"dead_lettered_at"`
}

// NewDLQMessage builds a terminal-queue record for a failed job message.
func NewDLQMessage(original IngestionJobMessage, envelope Envelope, failure FailureContext) DLQMessage {
	return DLQMessage{
		DLQMessageID:    uuid.New().String(),
		OriginalMessage: original,
		CorrelationID:   envelope.CorrelationID,
		RetryCount:      envelope.RetryCount,
		FailureContext:  failure,
		DeadLetteredAt:  time.Now(),
	}
}

// Validate validates the DLQ message.
func (m *DLQMessage) Validate() error {
	if m.DLQMessageID == "" {
		return NewDLQError("Validate", ErrCodeValidationFailed, "dlq_message_id is required", nil)
	}
	// A nil original job ID is legal: poison messages can be dead-lettered
	// before their payload ever parses.
	if err := m.FailureContext.Validate(); err != nil {
		return NewDLQError("Validate", ErrCodeValidationFailed, "invalid failure context", err)
	}
	return nil
}
