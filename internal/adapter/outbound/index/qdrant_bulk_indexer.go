// Package index provides the Qdrant-backed bulk indexer. Vectors are
// written over gRPC in fixed-size batches, one collection per tenant.
package index

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"embeddra/internal/application/common/slogger"
	"embeddra/internal/config"
	"embeddra/internal/port/outbound"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultBatchSize        = 100
	defaultCollectionPrefix = "catalog"
)

// apiKeyInterceptor creates a unary interceptor that adds the API key to
// request metadata.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantBulkIndexer implements the BulkIndexer port against Qdrant.
type QdrantBulkIndexer struct {
	conn             *grpc.ClientConn
	pointsClient     pb.PointsClient
	collectClient    pb.CollectionsClient
	collectionPrefix string
	batchSize        int
}

// NewQdrantBulkIndexer creates a bulk indexer. Supports both local Qdrant
// (insecure) and Qdrant Cloud (TLS plus API key).
func NewQdrantBulkIndexer(cfg config.QdrantConfig) (*QdrantBulkIndexer, error) {
	if cfg.Host == "" {
		return nil, errors.New("qdrant host cannot be empty")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	prefix := cfg.Collection
	if prefix == "" {
		prefix = defaultCollectionPrefix
	}

	return &QdrantBulkIndexer{
		conn:             conn,
		pointsClient:     pb.NewPointsClient(conn),
		collectClient:    pb.NewCollectionsClient(conn),
		collectionPrefix: prefix,
		batchSize:        batchSize,
	}, nil
}

// Close closes the gRPC connection.
func (q *QdrantBulkIndexer) Close() error {
	return q.conn.Close()
}

// CollectionName returns the collection used for a tenant. Tenants never
// share a collection.
func (q *QdrantBulkIndexer) CollectionName(tenantID string) string {
	return q.collectionPrefix + "_" + tenantID
}

// EnsureCollection creates the tenant's collection if it doesn't exist.
func (q *QdrantBulkIndexer) EnsureCollection(ctx context.Context, tenantID string, dimensions int) error {
	collection := q.CollectionName(tenantID)

	info, err := q.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: collection,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(dimensions) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", collection, size, dimensions)
		}
		return nil
	}

	_, err = q.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		// Another worker may have created it between Get and Create.
		if s, ok := status.FromError(err); ok && s.Code() == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}

	return nil
}

// BulkUpsert writes items into the tenant's collection in batches. The
// backend being unreachable aborts the call with an error; anything else is
// absorbed into per-item counts so one bad batch cannot fail the whole job.
func (q *QdrantBulkIndexer) BulkUpsert(
	ctx context.Context,
	tenantID string,
	items []outbound.IndexItem,
) (outbound.BulkResult, error) {
	result := outbound.BulkResult{}
	if len(items) == 0 {
		return result, nil
	}

	collection := q.CollectionName(tenantID)

	for start := 0; start < len(items); start += q.batchSize {
		end := start + q.batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		points := make([]*pb.PointStruct, 0, len(batch))
		skipped := 0
		for _, item := range batch {
			point, err := q.buildPoint(tenantID, item)
			if err != nil {
				slogger.Warn(ctx, "Skipping unindexable item", slogger.Fields{
					"record_id": item.ID,
					"error":     err.Error(),
				})
				skipped++
				continue
			}
			points = append(points, point)
		}
		result.Failed += skipped

		if len(points) == 0 {
			continue
		}

		callStart := time.Now()
		_, err := q.pointsClient.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		result.BackendTookMs += time.Since(callStart).Milliseconds()

		if err != nil {
			if isUnavailable(err) {
				return result, fmt.Errorf("index backend unavailable: %w", err)
			}
			// The batch was rejected but the backend is up; count the items
			// as failed and keep going.
			slogger.ErrorWithError(ctx, err, "Bulk upsert batch rejected", slogger.Fields{
				"collection": collection,
				"batch_size": len(points),
			})
			result.Failed += len(points)
			continue
		}

		result.Indexed += len(points)
	}

	return result, nil
}

// buildPoint converts one index item into a Qdrant point. The point ID is
// derived deterministically from tenant and record ID so re-indexing the
// same record overwrites rather than duplicates.
func (q *QdrantBulkIndexer) buildPoint(tenantID string, item outbound.IndexItem) (*pb.PointStruct, error) {
	if item.ID == "" {
		return nil, errors.New("item ID cannot be empty")
	}
	if len(item.Vector) == 0 {
		return nil, errors.New("item vector cannot be empty")
	}

	pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(tenantID+"/"+item.ID))

	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: pointID.String()},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: item.Vector},
			},
		},
		Payload: payloadValues(item.Payload),
	}, nil
}

// isUnavailable reports whether a gRPC error means the backend could not be
// reached at all.
func isUnavailable(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return true
	default:
		return false
	}
}

// payloadValues converts a payload map to Qdrant values. Unsupported types
// are stored as their string form rather than dropped.
func payloadValues(payload map[string]any) map[string]*pb.Value {
	if len(payload) == 0 {
		return nil
	}
	values := make(map[string]*pb.Value, len(payload))
	for key, value := range payload {
		values[key] = valueFromAny(value)
	}
	return values
}

func valueFromAny(value any) *pb.Value {
	switch v := value.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: v}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(v)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: v}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: v}}
	case []string:
		items := make([]*pb.Value, len(v))
		for i, s := range v {
			items[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: items}}}
	case map[string]string:
		fields := make(map[string]*pb.Value, len(v))
		for key, s := range v {
			fields[key] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprintf("%v", v)}}
	}
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	config := info.GetConfig()
	if config == nil {
		return 0, false
	}
	params := config.GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	return 0, false
}
