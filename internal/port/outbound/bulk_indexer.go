package outbound

import "context"

// IndexItem is one document handed to the bulk indexer: a record identity,
// its vector, and the payload stored alongside it.
type IndexItem struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// BulkResult is the per-batch accounting returned by a bulk upsert. Item
// counts are aggregates; individual record failures are logged, not returned.
type BulkResult struct {
	Indexed       int
	Failed        int
	BackendTookMs int64
}

// BulkIndexer defines the outbound port for writing vectors to the search
// index in batches.
type BulkIndexer interface {
	// EnsureCollection creates the tenant's collection if it does not exist.
	// Safe to call repeatedly.
	EnsureCollection(ctx context.Context, tenantID string, dimensions int) error

	// BulkUpsert writes the items into the tenant's collection, splitting
	// into backend-sized batches internally. A returned error means the
	// backend was unreachable; partial failures are reported in the result.
	BulkUpsert(ctx context.Context, tenantID string, items []IndexItem) (BulkResult, error)
}
