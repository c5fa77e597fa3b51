package vector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"persona-advisor/internal/logger"
)

const (
	upsertBatchSize = 100
	callRetries     = 3
	callBackoff     = 500 * time.Millisecond
)

// QdrantStore implements Store against a Qdrant instance over gRPC,
// mapping each namespace to its own collection.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	dimension   uint64
	backoff     time.Duration
}

// NewQdrantStore connects to Qdrant. Collections are created lazily on
// first upsert into a namespace.
func NewQdrantStore(host string, port int, dimension int) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		dimension:   uint64(dimension),
		backoff:     callBackoff,
	}, nil
}

// callWithRetry runs fn up to callRetries times with doubling backoff.
// NotFound is terminal: it encodes missing-namespace semantics, not a
// transient provider fault.
func (s *QdrantStore) callWithRetry(ctx context.Context, op, namespace string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < callRetries; attempt++ {
		if attempt > 0 {
			backoff := s.backoff * time.Duration(1<<(attempt-1))
			logger.Warn("qdrant retry", "op", op, "namespace", namespace, "attempt", attempt, "backoff", backoff.String())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = fn()
		if lastErr == nil || isNotFound(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (s *QdrantStore) ensureCollection(ctx context.Context, namespace string) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: namespace,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err == nil {
		logger.Info("vector namespace created", "namespace", namespace)
		return nil
	}
	st, ok := status.FromError(err)
	if ok && (st.Code() == codes.AlreadyExists || strings.Contains(st.Message(), "already exists")) {
		return nil
	}
	return fmt.Errorf("create collection %s: %w", namespace, err)
}

// pointID maps a logical record id onto Qdrant's UUID point id space
// deterministically, preserving idempotent re-upsert.
func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

func toPayload(id string, m Metadata) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"record_id":    {Kind: &pb.Value_StringValue{StringValue: id}},
		"excerpt":      {Kind: &pb.Value_StringValue{StringValue: m.Excerpt}},
		"source":       {Kind: &pb.Value_StringValue{StringValue: m.Source}},
		"file_type":    {Kind: &pb.Value_StringValue{StringValue: m.FileType}},
		"content_hash": {Kind: &pb.Value_StringValue{StringValue: m.ContentHash}},
		"char_start":   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(m.CharStart)}},
		"char_end":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(m.CharEnd)}},
		"persona_id":   {Kind: &pb.Value_StringValue{StringValue: m.PersonaID}},
		"created_at":   {Kind: &pb.Value_StringValue{StringValue: m.CreatedAt.UTC().Format(time.RFC3339)}},
	}
	if len(m.TopicTags) > 0 {
		payload["topic_tags"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: strings.Join(m.TopicTags, ",")}}
	}
	return payload
}

func fromPayload(payload map[string]*pb.Value) (string, Metadata) {
	m := Metadata{
		Excerpt:     payload["excerpt"].GetStringValue(),
		Source:      payload["source"].GetStringValue(),
		FileType:    payload["file_type"].GetStringValue(),
		ContentHash: payload["content_hash"].GetStringValue(),
		CharStart:   int(payload["char_start"].GetIntegerValue()),
		CharEnd:     int(payload["char_end"].GetIntegerValue()),
		PersonaID:   payload["persona_id"].GetStringValue(),
	}
	if v, ok := payload["created_at"]; ok {
		if t, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
			m.CreatedAt = t
		}
	}
	if v, ok := payload["topic_tags"]; ok && v.GetStringValue() != "" {
		m.TopicTags = strings.Split(v.GetStringValue(), ",")
	}
	return payload["record_id"].GetStringValue(), m
}

func (s *QdrantStore) Upsert(ctx context.Context, namespace string, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i := range records {
		if len(records[i].Vector) != int(s.dimension) {
			return 0, fmt.Errorf("record %d: vector dimension %d, store expects %d", i, len(records[i].Vector), s.dimension)
		}
		if records[i].ID == "" {
			records[i].ID = RecordID(records[i].Metadata.PersonaID, records[i].Metadata.ContentHash, i)
		}
	}
	if err := s.ensureCollection(ctx, namespace); err != nil {
		return 0, err
	}

	total := 0
	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		points := make([]*pb.PointStruct, len(batch))
		for i, r := range batch {
			points[i] = &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(r.ID)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Vector}}},
				Payload: toPayload(r.ID, r.Metadata),
			}
		}

		if err := s.upsertWithRetry(ctx, namespace, points); err != nil {
			// A failed batch aborts the whole call: partial namespaces are
			// reported rather than silently accepted.
			return total, fmt.Errorf("upsert batch %d-%d into %s: %w", start, end, namespace, err)
		}
		total += len(batch)
	}
	return total, nil
}

func (s *QdrantStore) upsertWithRetry(ctx context.Context, namespace string, points []*pb.PointStruct) error {
	wait := true
	return s.callWithRetry(ctx, "upsert", namespace, func() error {
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: namespace,
			Points:         points,
			Wait:           &wait,
		})
		return err
	})
}

func (s *QdrantStore) Search(ctx context.Context, namespace string, queryVector []float32, k int, filter *Filter) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	var resp *pb.SearchResponse
	err := s.callWithRetry(ctx, "search", namespace, func() error {
		var callErr error
		resp, callErr = s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: namespace,
			Vector:         queryVector,
			Limit:          uint64(k),
			Filter:         toQdrantFilter(filter),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", namespace, err)
	}

	matches := make([]Match, len(resp.Result))
	for i, pt := range resp.Result {
		id, meta := fromPayload(pt.Payload)
		if id == "" {
			id = pt.Id.GetUuid()
		}
		matches[i] = Match{ID: id, Score: pt.Score, Metadata: meta}
	}
	return matches, nil
}

func (s *QdrantStore) NamespaceStats(ctx context.Context, namespace string) (bool, int64, error) {
	exact := true
	var resp *pb.CountResponse
	err := s.callWithRetry(ctx, "count", namespace, func() error {
		var callErr error
		resp, callErr = s.points.Count(ctx, &pb.CountPoints{
			CollectionName: namespace,
			Exact:          &exact,
		})
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("count %s: %w", namespace, err)
	}
	count := int64(resp.GetResult().GetCount())
	return count > 0, count, nil
}

func (s *QdrantStore) DeleteNamespace(ctx context.Context, namespace string) (bool, error) {
	err := s.callWithRetry(ctx, "delete_collection", namespace, func() error {
		_, callErr := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: namespace})
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete collection %s: %w", namespace, err)
	}
	logger.Info("vector namespace deleted", "namespace", namespace)
	return true, nil
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func toQdrantFilter(filter *Filter) *pb.Filter {
	if filter == nil {
		return nil
	}
	var must []*pb.Condition
	if filter.Source != "" {
		must = append(must, keywordCondition("source", filter.Source))
	}
	if filter.FileType != "" {
		must = append(must, keywordCondition("file_type", filter.FileType))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func keywordCondition(field, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: field,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.NotFound || strings.Contains(st.Message(), "doesn't exist") || strings.Contains(st.Message(), "not found")
}

var _ Store = (*QdrantStore)(nil)
