package entity

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"embeddra/internal/domain/valueobject"

	"github.com/google/uuid"
)

// ProductRecord is a single catalog item parsed out of a raw batch.
type ProductRecord struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// EmbeddingText returns the text submitted to the embedding backend for this
// record. Title and description are concatenated; attribute values follow in
// stable order so re-embedding the same record yields the same input.
func (r ProductRecord) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(r.Title)
	if r.Description != "" {
		b.WriteString("\n")
		b.WriteString(r.Description)
	}
	for _, key := range sortedKeys(r.Attributes) {
		b.WriteString("\n")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(r.Attributes[key])
	}
	return b.String()
}

// Validate checks the record carries the fields required for indexing.
func (r ProductRecord) Validate() error {
	if r.ID == "" {
		return NewDomainError("product record id is required", "MISSING_RECORD_ID")
	}
	if r.Title == "" {
		return NewDomainError("product record title is required", "MISSING_RECORD_TITLE")
	}
	return nil
}

// RawProductBatch is the uploaded payload associated with a job. It is stored
// once when the job is accepted and read-only thereafter; the job processor
// re-reads it by job ID on every attempt.
type RawProductBatch struct {
	jobID      uuid.UUID
	tenantID   string
	sourceType valueobject.SourceType
	payload    []byte
	createdAt  time.Time
}

// NewRawProductBatch creates a raw batch for a job.
func NewRawProductBatch(
	jobID uuid.UUID,
	tenantID string,
	sourceType valueobject.SourceType,
	payload []byte,
) *RawProductBatch {
	return &RawProductBatch{
		jobID:      jobID,
		tenantID:   tenantID,
		sourceType: sourceType,
		payload:    payload,
		createdAt:  time.Now(),
	}
}

// RestoreRawProductBatch creates a RawProductBatch entity from stored data.
func RestoreRawProductBatch(
	jobID uuid.UUID,
	tenantID string,
	sourceType valueobject.SourceType,
	payload []byte,
	createdAt time.Time,
) *RawProductBatch {
	return &RawProductBatch{
		jobID:      jobID,
		tenantID:   tenantID,
		sourceType: sourceType,
		payload:    payload,
		createdAt:  createdAt,
	}
}

// JobID returns the owning job's ID.
func (b *RawProductBatch) JobID() uuid.UUID {
	return b.jobID
}

// TenantID returns the tenant the batch belongs to, denormalized for
// isolation checks.
func (b *RawProductBatch) TenantID() string {
	return b.tenantID
}

// SourceType returns the payload format tag.
func (b *RawProductBatch) SourceType() valueobject.SourceType {
	return b.sourceType
}

// Payload returns the raw uploaded bytes.
func (b *RawProductBatch) Payload() []byte {
	return b.payload
}

// CreatedAt returns the upload timestamp.
func (b *RawProductBatch) CreatedAt() time.Time {
	return b.createdAt
}

// ParseRecords decodes the raw payload into product records. CSV payloads
// require a header row with at least "id" and "title" columns; remaining
// columns become attributes. All other source types carry a JSON array.
func (b *RawProductBatch) ParseRecords() ([]ProductRecord, error) {
	if b.sourceType.IsTabular() {
		return parseCSVRecords(b.payload)
	}
	return parseJSONRecords(b.payload)
}

func parseJSONRecords(payload []byte) ([]ProductRecord, error) {
	var records []ProductRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("failed to decode JSON product batch: %w", err)
	}
	for i, record := range records {
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("invalid product record at index %d: %w", i, err)
		}
	}
	return records, nil
}

func parseCSVRecords(payload []byte) ([]ProductRecord, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, hasID := columns["id"]
	titleCol, hasTitle := columns["title"]
	if !hasID || !hasTitle {
		return nil, NewDomainError("CSV header must contain id and title columns", "INVALID_CSV_HEADER")
	}
	descCol, hasDesc := columns["description"]

	var records []ProductRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row at line %d: %w", line, err)
		}

		record := ProductRecord{
			ID:    row[idCol],
			Title: row[titleCol],
		}
		if hasDesc && descCol < len(row) {
			record.Description = row[descCol]
		}
		for name, col := range columns {
			if col == idCol || col == titleCol || (hasDesc && col == descCol) {
				continue
			}
			if col < len(row) && row[col] != "" {
				if record.Attributes == nil {
					record.Attributes = make(map[string]string)
				}
				record.Attributes[name] = row[col]
			}
		}

		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("invalid product record at line %d: %w", line, err)
		}
		records = append(records, record)
	}

	return records, nil
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
