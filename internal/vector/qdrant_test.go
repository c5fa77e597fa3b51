package vector

import (
	"context"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakePointsClient fails the first failures calls with the configured
// error, then succeeds. Embedding the generated interface means only
// the methods under test need overriding.
type fakePointsClient struct {
	pb.PointsClient
	failures int
	err      error

	searchCalls int
	countCalls  int
	upsertCalls int

	searchResult []*pb.ScoredPoint
	count        uint64
}

func (f *fakePointsClient) Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.searchCalls++
	if f.searchCalls <= f.failures {
		return nil, f.err
	}
	return &pb.SearchResponse{Result: f.searchResult}, nil
}

func (f *fakePointsClient) Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error) {
	f.countCalls++
	if f.countCalls <= f.failures {
		return nil, f.err
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: f.count}}, nil
}

func (f *fakePointsClient) Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upsertCalls++
	if f.upsertCalls <= f.failures {
		return nil, f.err
	}
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollectionsClient struct {
	pb.CollectionsClient
	failures    int
	err         error
	deleteCalls int
	createCalls int
}

func (f *fakeCollectionsClient) Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.deleteCalls++
	if f.deleteCalls <= f.failures {
		return nil, f.err
	}
	return &pb.CollectionOperationResponse{}, nil
}

func (f *fakeCollectionsClient) Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.createCalls++
	return &pb.CollectionOperationResponse{}, nil
}

func fastStore(points *fakePointsClient, collections *fakeCollectionsClient) *QdrantStore {
	return &QdrantStore{
		points:      points,
		collections: collections,
		dimension:   3,
		backoff:     time.Millisecond,
	}
}

func TestQdrantSearchRetriesTransientErrors(t *testing.T) {
	points := &fakePointsClient{
		failures: 2,
		err:      status.Error(codes.Unavailable, "connection refused"),
		searchResult: []*pb.ScoredPoint{
			{
				Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "abc"}},
				Score: 0.9,
				Payload: map[string]*pb.Value{
					"record_id": {Kind: &pb.Value_StringValue{StringValue: "p1_deadbeef_0"}},
					"excerpt":   {Kind: &pb.Value_StringValue{StringValue: "hello"}},
				},
			},
		},
	}
	store := fastStore(points, &fakeCollectionsClient{})

	matches, err := store.Search(context.Background(), "ns", []float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if points.searchCalls != 3 {
		t.Errorf("search calls = %d, want 3", points.searchCalls)
	}
	if len(matches) != 1 || matches[0].ID != "p1_deadbeef_0" {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestQdrantSearchMissingNamespaceNotRetried(t *testing.T) {
	points := &fakePointsClient{
		failures: callRetries,
		err:      status.Error(codes.NotFound, "collection ns doesn't exist"),
	}
	store := fastStore(points, &fakeCollectionsClient{})

	matches, err := store.Search(context.Background(), "ns", []float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches != nil {
		t.Errorf("matches = %+v, want nil", matches)
	}
	if points.searchCalls != 1 {
		t.Errorf("search calls = %d, want 1 (no retry on missing namespace)", points.searchCalls)
	}
}

func TestQdrantSearchExhaustedRetriesPropagates(t *testing.T) {
	points := &fakePointsClient{
		failures: callRetries,
		err:      status.Error(codes.Unavailable, "connection refused"),
	}
	store := fastStore(points, &fakeCollectionsClient{})

	_, err := store.Search(context.Background(), "ns", []float32{1, 0, 0}, 5, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if points.searchCalls != callRetries {
		t.Errorf("search calls = %d, want %d", points.searchCalls, callRetries)
	}
}

func TestQdrantNamespaceStatsRetriesTransientErrors(t *testing.T) {
	points := &fakePointsClient{
		failures: 1,
		err:      status.Error(codes.Unavailable, "connection refused"),
		count:    7,
	}
	store := fastStore(points, &fakeCollectionsClient{})

	exists, count, err := store.NamespaceStats(context.Background(), "ns")
	if err != nil {
		t.Fatalf("NamespaceStats: %v", err)
	}
	if !exists || count != 7 {
		t.Errorf("got exists=%v count=%d, want exists=true count=7", exists, count)
	}
	if points.countCalls != 2 {
		t.Errorf("count calls = %d, want 2", points.countCalls)
	}
}

func TestQdrantDeleteNamespaceRetriesThenSucceeds(t *testing.T) {
	collections := &fakeCollectionsClient{
		failures: 1,
		err:      status.Error(codes.Unavailable, "connection refused"),
	}
	store := fastStore(&fakePointsClient{}, collections)

	deleted, err := store.DeleteNamespace(context.Background(), "ns")
	if err != nil {
		t.Fatalf("DeleteNamespace: %v", err)
	}
	if !deleted {
		t.Error("deleted = false, want true")
	}
	if collections.deleteCalls != 2 {
		t.Errorf("delete calls = %d, want 2", collections.deleteCalls)
	}
}

func TestQdrantDeleteNamespaceMissingReturnsFalse(t *testing.T) {
	collections := &fakeCollectionsClient{
		failures: callRetries,
		err:      status.Error(codes.NotFound, "collection ns not found"),
	}
	store := fastStore(&fakePointsClient{}, collections)

	deleted, err := store.DeleteNamespace(context.Background(), "ns")
	if err != nil {
		t.Fatalf("DeleteNamespace: %v", err)
	}
	if deleted {
		t.Error("deleted = true, want false")
	}
	if collections.deleteCalls != 1 {
		t.Errorf("delete calls = %d, want 1 (no retry on missing namespace)", collections.deleteCalls)
	}
}

func TestQdrantUpsertRetriesTransientErrors(t *testing.T) {
	points := &fakePointsClient{
		failures: 1,
		err:      status.Error(codes.Unavailable, "connection refused"),
	}
	store := fastStore(points, &fakeCollectionsClient{})

	records := []Record{testRecord("r1", "p1", "hash1", []float32{1, 0, 0})}
	n, err := store.Upsert(context.Background(), "ns", records)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 1 {
		t.Errorf("upserted = %d, want 1", n)
	}
	if points.upsertCalls != 2 {
		t.Errorf("upsert calls = %d, want 2", points.upsertCalls)
	}
}
