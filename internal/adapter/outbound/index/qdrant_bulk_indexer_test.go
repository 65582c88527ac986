package index

import (
	"context"
	"fmt"
	"testing"

	"embeddra/internal/config"
	"embeddra/internal/port/outbound"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakePointsClient records upsert calls. Per-call errors are injected by
// index; only Upsert is implemented, everything else panics via the embedded
// interface.
type fakePointsClient struct {
	pb.PointsClient
	upserts []*pb.UpsertPoints
	errs    map[int]error
}

func (f *fakePointsClient) Upsert(
	_ context.Context,
	in *pb.UpsertPoints,
	_ ...grpc.CallOption,
) (*pb.PointsOperationResponse, error) {
	call := len(f.upserts)
	f.upserts = append(f.upserts, in)
	if err := f.errs[call]; err != nil {
		return nil, err
	}
	return &pb.PointsOperationResponse{}, nil
}

func batchIndexer(points *fakePointsClient, batchSize int) *QdrantBulkIndexer {
	return &QdrantBulkIndexer{
		pointsClient:     points,
		collectionPrefix: "catalog",
		batchSize:        batchSize,
	}
}

func indexItems(n int) []outbound.IndexItem {
	items := make([]outbound.IndexItem, n)
	for i := range items {
		items[i] = outbound.IndexItem{ID: fmt.Sprintf("sku-%d", i), Vector: []float32{0.1, 0.2}}
	}
	return items
}

func TestNewQdrantBulkIndexer(t *testing.T) {
	t.Run("should create indexer with defaults", func(t *testing.T) {
		indexer, err := NewQdrantBulkIndexer(config.QdrantConfig{Host: "localhost", Port: 6334})
		require.NoError(t, err)
		defer indexer.Close()

		assert.Equal(t, defaultBatchSize, indexer.batchSize)
		assert.Equal(t, "catalog_acme", indexer.CollectionName("acme"))
	})

	t.Run("should reject empty host", func(t *testing.T) {
		_, err := NewQdrantBulkIndexer(config.QdrantConfig{})
		require.Error(t, err)
	})

	t.Run("should use configured collection prefix and batch size", func(t *testing.T) {
		indexer, err := NewQdrantBulkIndexer(config.QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "products",
			BatchSize:  25,
		})
		require.NoError(t, err)
		defer indexer.Close()

		assert.Equal(t, 25, indexer.batchSize)
		assert.Equal(t, "products_acme", indexer.CollectionName("acme"))
	})
}

func TestQdrantBulkIndexer_BuildPoint(t *testing.T) {
	indexer := &QdrantBulkIndexer{collectionPrefix: "catalog"}

	t.Run("should derive the same point id for the same record", func(t *testing.T) {
		item := outbound.IndexItem{ID: "sku-1", Vector: []float32{0.1, 0.2}}

		first, err := indexer.buildPoint("acme", item)
		require.NoError(t, err)
		second, err := indexer.buildPoint("acme", item)
		require.NoError(t, err)

		assert.Equal(t, first.GetId().GetUuid(), second.GetId().GetUuid())
	})

	t.Run("should derive different point ids per tenant", func(t *testing.T) {
		item := outbound.IndexItem{ID: "sku-1", Vector: []float32{0.1, 0.2}}

		first, err := indexer.buildPoint("acme", item)
		require.NoError(t, err)
		second, err := indexer.buildPoint("globex", item)
		require.NoError(t, err)

		assert.NotEqual(t, first.GetId().GetUuid(), second.GetId().GetUuid())
	})

	t.Run("should reject empty record id", func(t *testing.T) {
		_, err := indexer.buildPoint("acme", outbound.IndexItem{Vector: []float32{0.1}})
		require.Error(t, err)
	})

	t.Run("should reject empty vector", func(t *testing.T) {
		_, err := indexer.buildPoint("acme", outbound.IndexItem{ID: "sku-1"})
		require.Error(t, err)
	})

	t.Run("should carry payload values", func(t *testing.T) {
		point, err := indexer.buildPoint("acme", outbound.IndexItem{
			ID:     "sku-1",
			Vector: []float32{0.1},
			Payload: map[string]any{
				"title":      "Red Shoe",
				"count":      3,
				"attributes": map[string]string{"color": "red"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "Red Shoe", point.Payload["title"].GetStringValue())
		assert.Equal(t, int64(3), point.Payload["count"].GetIntegerValue())
		assert.Equal(t, "red", point.Payload["attributes"].GetStructValue().GetFields()["color"].GetStringValue())
	})
}

func TestQdrantBulkIndexer_BulkUpsert(t *testing.T) {
	t.Run("should split items into bounded batches", func(t *testing.T) {
		points := &fakePointsClient{}
		indexer := batchIndexer(points, 2)

		result, err := indexer.BulkUpsert(context.Background(), "acme", indexItems(5))
		require.NoError(t, err)

		require.Len(t, points.upserts, 3)
		assert.Len(t, points.upserts[0].GetPoints(), 2)
		assert.Len(t, points.upserts[1].GetPoints(), 2)
		assert.Len(t, points.upserts[2].GetPoints(), 1)
		assert.Equal(t, 5, result.Indexed)
		assert.Zero(t, result.Failed)
	})

	t.Run("should address every batch to the tenant collection", func(t *testing.T) {
		points := &fakePointsClient{}
		indexer := batchIndexer(points, 2)

		_, err := indexer.BulkUpsert(context.Background(), "acme", indexItems(3))
		require.NoError(t, err)

		for _, upsert := range points.upserts {
			assert.Equal(t, "catalog_acme", upsert.GetCollectionName())
		}
	})

	t.Run("should count invalid items as failed without calling the backend for them", func(t *testing.T) {
		points := &fakePointsClient{}
		indexer := batchIndexer(points, 10)

		items := indexItems(3)
		items[1].Vector = nil

		result, err := indexer.BulkUpsert(context.Background(), "acme", items)
		require.NoError(t, err)

		require.Len(t, points.upserts, 1)
		assert.Len(t, points.upserts[0].GetPoints(), 2)
		assert.Equal(t, 2, result.Indexed)
		assert.Equal(t, 1, result.Failed)
	})

	t.Run("should absorb a rejected batch and keep indexing the rest", func(t *testing.T) {
		points := &fakePointsClient{
			errs: map[int]error{1: status.Error(codes.InvalidArgument, "bad vector size")},
		}
		indexer := batchIndexer(points, 2)

		result, err := indexer.BulkUpsert(context.Background(), "acme", indexItems(5))
		require.NoError(t, err)

		require.Len(t, points.upserts, 3)
		assert.Equal(t, 3, result.Indexed)
		assert.Equal(t, 2, result.Failed)
	})

	t.Run("should abort when the backend is unreachable", func(t *testing.T) {
		points := &fakePointsClient{
			errs: map[int]error{0: status.Error(codes.Unavailable, "connection refused")},
		}
		indexer := batchIndexer(points, 2)

		_, err := indexer.BulkUpsert(context.Background(), "acme", indexItems(5))
		require.Error(t, err)
		assert.Len(t, points.upserts, 1)
	})

	t.Run("should not call the backend for an empty item list", func(t *testing.T) {
		points := &fakePointsClient{}
		indexer := batchIndexer(points, 2)

		result, err := indexer.BulkUpsert(context.Background(), "acme", nil)
		require.NoError(t, err)
		assert.Zero(t, result.Indexed)
		assert.Empty(t, points.upserts)
	})
}

func TestIsUnavailable(t *testing.T) {
	assert.True(t, isUnavailable(status.Error(codes.Unavailable, "connection refused")))
	assert.True(t, isUnavailable(status.Error(codes.DeadlineExceeded, "timed out")))
	assert.False(t, isUnavailable(status.Error(codes.InvalidArgument, "bad vector size")))
	assert.False(t, isUnavailable(assert.AnError))
}

func TestValueFromAny(t *testing.T) {
	assert.Equal(t, "hello", valueFromAny("hello").GetStringValue())
	assert.True(t, valueFromAny(true).GetBoolValue())
	assert.Equal(t, int64(7), valueFromAny(7).GetIntegerValue())
	assert.InDelta(t, 1.5, valueFromAny(1.5).GetDoubleValue(), 1e-9)

	list := valueFromAny([]string{"a", "b"}).GetListValue()
	require.NotNil(t, list)
	assert.Len(t, list.GetValues(), 2)
}

func TestCollectionVectorSize(t *testing.T) {
	t.Run("should return false for nil info", func(t *testing.T) {
		_, ok := collectionVectorSize(nil)
		assert.False(t, ok)
	})

	t.Run("should read single vector params", func(t *testing.T) {
		info := &pb.CollectionInfo{
			Config: &pb.CollectionConfig{
				Params: &pb.CollectionParams{
					VectorsConfig: &pb.VectorsConfig{
						Config: &pb.VectorsConfig_Params{
							Params: &pb.VectorParams{Size: 384},
						},
					},
				},
			},
		}

		size, ok := collectionVectorSize(info)
		require.True(t, ok)
		assert.Equal(t, uint64(384), size)
	})
}
