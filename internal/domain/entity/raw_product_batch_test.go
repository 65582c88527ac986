package entity

import (
	"testing"

	"embeddra/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatch(sourceType valueobject.SourceType, payload string) *RawProductBatch {
	return NewRawProductBatch(uuid.New(), "tenant-1", sourceType, []byte(payload))
}

func TestRawProductBatch_ParseRecords_JSON(t *testing.T) {
	t.Run("should decode a JSON array of records", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeJSON, `[
			{"id": "sku-1", "title": "Desk Lamp", "description": "Warm light"},
			{"id": "sku-2", "title": "Office Chair", "attributes": {"color": "black"}}
		]`)

		records, err := batch.ParseRecords()

		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "sku-1", records[0].ID)
		assert.Equal(t, "Desk Lamp", records[0].Title)
		assert.Equal(t, "black", records[1].Attributes["color"])
	})

	t.Run("should decode an empty array", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeWebhook, `[]`)

		records, err := batch.ParseRecords()

		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeJSON, `{"not": "an array"`)

		_, err := batch.ParseRecords()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode JSON product batch")
	})

	t.Run("should reject records missing required fields", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeJSON, `[{"id": "sku-1"}]`)

		_, err := batch.ParseRecords()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "index 0")
	})
}

func TestRawProductBatch_ParseRecords_CSV(t *testing.T) {
	t.Run("should map extra columns to attributes", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeCSV,
			"id,title,description,color\nsku-1,Desk Lamp,Warm light,brass\nsku-2,Office Chair,,\n")

		records, err := batch.ParseRecords()

		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Warm light", records[0].Description)
		assert.Equal(t, "brass", records[0].Attributes["color"])
		assert.Empty(t, records[1].Description)
		assert.Nil(t, records[1].Attributes)
	})

	t.Run("should match header names case insensitively", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeCSV, "ID, Title\nsku-1,Desk Lamp\n")

		records, err := batch.ParseRecords()

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "sku-1", records[0].ID)
	})

	t.Run("should reject a header missing id or title", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeCSV, "sku,name\nsku-1,Desk Lamp\n")

		_, err := batch.ParseRecords()

		require.Error(t, err)
		var domainErr *DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_CSV_HEADER", domainErr.Code())
	})

	t.Run("should report the line number of an invalid row", func(t *testing.T) {
		batch := newBatch(valueobject.SourceTypeCSV, "id,title\nsku-1,Desk Lamp\n,Office Chair\n")

		_, err := batch.ParseRecords()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 3")
	})
}

func TestProductRecord_EmbeddingText(t *testing.T) {
	t.Run("should join title, description, and sorted attributes", func(t *testing.T) {
		record := ProductRecord{
			ID:          "sku-1",
			Title:       "Desk Lamp",
			Description: "Warm light",
			Attributes:  map[string]string{"color": "brass", "brand": "Lumen"},
		}

		assert.Equal(t, "Desk Lamp\nWarm light\nbrand: Lumen\ncolor: brass", record.EmbeddingText())
	})

	t.Run("should omit empty sections", func(t *testing.T) {
		record := ProductRecord{ID: "sku-1", Title: "Desk Lamp"}

		assert.Equal(t, "Desk Lamp", record.EmbeddingText())
	})
}
