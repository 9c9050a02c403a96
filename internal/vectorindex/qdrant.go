package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/types"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	payloadText     = "document"
	scrollPageLimit = 256
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Qdrant is an Index backed by a Qdrant server over gRPC.
// Collections are created lazily with cosine distance on first insert.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	logger      *zap.Logger

	mu    sync.Mutex
	known map[string]bool
}

// NewQdrant connects to Qdrant at the given gRPC address (e.g. localhost:6334).
func NewQdrant(addr string, logger *zap.Logger) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial qdrant %s: %w", addr, err)
	}
	q := NewQdrantWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), logger)
	q.conn = conn
	return q, nil
}

// NewQdrantWithClients builds a Qdrant index over existing gRPC clients.
func NewQdrantWithClients(points pointsAPI, collections collectionsAPI, logger *zap.Logger) *Qdrant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Qdrant{
		points:      points,
		collections: collections,
		logger:      logger,
		known:       make(map[string]bool),
	}
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Insert implements Index.
func (q *Qdrant) Insert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	dims := len(docs[0].Vector)
	points := make([]*pb.PointStruct, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) != dims {
			return fmt.Errorf("document %d has %d dimensions, want %d", i, len(doc.Vector), dims)
		}

		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}

		payload := make(map[string]*pb.Value, len(doc.Metadata)+1)
		payload[payloadText] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: doc.Text}}
		for k, v := range doc.Metadata {
			payload[k] = toValue(v)
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: id},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: doc.Vector},
				},
			},
			Payload: payload,
		}
	}

	if err := q.ensureCollection(ctx, collection, dims); err != nil {
		return err
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return &types.UpstreamError{Service: "qdrant", Message: fmt.Sprintf("upsert %d points into %s", len(points), collection), Cause: err}
	}
	return nil
}

// Query implements Index. Qdrant reports cosine similarity, converted here to distance.
func (q *Qdrant) Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	exists, err := q.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Hit{}, nil
	}

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, &types.UpstreamError{Service: "qdrant", Message: "search " + collection, Cause: err}
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		text, metadata := fromPayload(r.GetPayload())
		hits = append(hits, Hit{
			ID:       pointID(r.GetId()),
			Text:     text,
			Metadata: metadata,
			Distance: 1 - float64(r.GetScore()),
		})
	}
	return hits, nil
}

// Get implements Index by scrolling through every matching point.
func (q *Qdrant) Get(ctx context.Context, collection string, filter Filter) ([]Hit, error) {
	exists, err := q.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Hit{}, nil
	}

	limit := uint32(scrollPageLimit)
	req := &pb.ScrollPoints{
		CollectionName: collection,
		Filter:         toFilter(filter),
		Limit:          &limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	hits := []Hit{}
	for {
		resp, err := q.points.Scroll(ctx, req)
		if err != nil {
			return nil, &types.UpstreamError{Service: "qdrant", Message: "scroll " + collection, Cause: err}
		}
		for _, p := range resp.GetResult() {
			text, metadata := fromPayload(p.GetPayload())
			hits = append(hits, Hit{ID: pointID(p.GetId()), Text: text, Metadata: metadata})
		}
		next := resp.GetNextPageOffset()
		if next == nil {
			break
		}
		req.Offset = next
	}
	return hits, nil
}

// Delete implements Index.
func (q *Qdrant) Delete(ctx context.Context, collection string, filter Filter) error {
	exists, err := q.collectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	wait := true
	_, err = q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: toFilter(filter),
			},
		},
	})
	if err != nil {
		return &types.UpstreamError{Service: "qdrant", Message: "delete from " + collection, Cause: err}
	}
	return nil
}

func (q *Qdrant) collectionExists(ctx context.Context, name string) (bool, error) {
	q.mu.Lock()
	known := q.known[name]
	q.mu.Unlock()
	if known {
		return true, nil
	}

	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, &types.UpstreamError{Service: "qdrant", Message: "list collections", Cause: err}
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			q.mu.Lock()
			q.known[name] = true
			q.mu.Unlock()
			return true, nil
		}
	}
	return false, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, name string, dims int) error {
	exists, err := q.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return &types.UpstreamError{Service: "qdrant", Message: "create collection " + name, Cause: err}
	}

	q.logger.Info("created qdrant collection", zap.String("collection", name), zap.Int("dims", dims))
	q.mu.Lock()
	q.known[name] = true
	q.mu.Unlock()
	return nil
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromPayload(payload map[string]*pb.Value) (string, map[string]any) {
	var text string
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == payloadText {
			text = v.GetStringValue()
			continue
		}
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			metadata[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			metadata[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			metadata[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			metadata[k] = kind.BoolValue
		}
	}
	return text, metadata
}

func toFilter(filter Filter) *pb.Filter {
	must := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, fieldMatch(k, v))
	}
	return &pb.Filter{Must: must}
}

func fieldMatch(key string, value any) *pb.Condition {
	match := &pb.Match{}
	switch tv := value.(type) {
	case int:
		match.MatchValue = &pb.Match_Integer{Integer: int64(tv)}
	case int64:
		match.MatchValue = &pb.Match_Integer{Integer: tv}
	case bool:
		match.MatchValue = &pb.Match_Boolean{Boolean: tv}
	default:
		match.MatchValue = &pb.Match_Keyword{Keyword: fmt.Sprint(tv)}
	}

	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: match,
			},
		},
	}
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}
