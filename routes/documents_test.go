package routes

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"persona-advisor/internal/config"
	"persona-advisor/models"
	"persona-advisor/services"
)

type stubJobStore struct {
	mu  sync.Mutex
	job *models.IngestionJob
}

func (s *stubJobStore) CreateJob(ctx context.Context, personaID, ownerID string, files []models.FileManifestEntry, topicTags []string) (*models.IngestionJob, error) {
	return nil, services.ErrJobNotFound
}

func (s *stubJobStore) RequeueJob(ctx context.Context, jobID, ownerID string, files []models.FileManifestEntry, topicTags []string) (*models.IngestionJob, error) {
	return nil, services.ErrJobNotFound
}

func (s *stubJobStore) GetJobForOwner(ctx context.Context, jobID, ownerID string) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil || s.job.ID != jobID {
		return nil, services.ErrJobNotFound
	}
	copied := *s.job
	return &copied, nil
}

func (s *stubJobStore) set(mutate func(*models.IngestionJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(s.job)
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, url string) []sseEvent {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if current.name != "" || current.data != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	if current.name != "" || current.data != "" {
		events = append(events, current)
	}
	return events
}

func newEventsServer(t *testing.T, store *stubJobStore) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	cfg := &config.Config{SSEPollSeconds: 1}
	SetupDocumentRoutes(router.Group("/api"), cfg, nil, store, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestJobEventsTerminalJobClosesAfterComplete(t *testing.T) {
	store := &stubJobStore{job: &models.IngestionJob{
		ID:             "job1",
		Status:         models.JobStatusCompleted,
		Progress:       100,
		ProcessedFiles: 2,
		TotalFiles:     2,
	}}
	srv := newEventsServer(t, store)

	events := readSSE(t, srv.URL+"/api/jobs/job1/events")
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].name != "progress" {
		t.Errorf("first event = %q, want progress", events[0].name)
	}
	if events[1].name != "complete" {
		t.Errorf("last event = %q, want complete", events[1].name)
	}
	if !strings.Contains(events[1].data, models.JobStatusCompleted) {
		t.Errorf("complete payload missing terminal status: %s", events[1].data)
	}
}

func TestJobEventsEmitsOnChangeThenCompletes(t *testing.T) {
	store := &stubJobStore{job: &models.IngestionJob{
		ID:         "job1",
		Status:     models.JobStatusProcessing,
		Progress:   10,
		TotalFiles: 2,
	}}
	srv := newEventsServer(t, store)

	go func() {
		time.Sleep(1200 * time.Millisecond)
		store.set(func(j *models.IngestionJob) {
			j.Progress = 60
			j.ProcessedFiles = 1
		})
		time.Sleep(1200 * time.Millisecond)
		store.set(func(j *models.IngestionJob) {
			j.Status = models.JobStatusCompleted
			j.Progress = 100
			j.ProcessedFiles = 2
		})
	}()

	events := readSSE(t, srv.URL+"/api/jobs/job1/events")
	if len(events) < 2 {
		t.Fatalf("got %d events, want at least 2: %+v", len(events), events)
	}
	if events[0].name != "progress" {
		t.Errorf("first event = %q, want progress", events[0].name)
	}

	completes := 0
	var lastProgress string
	for i, ev := range events {
		switch ev.name {
		case "complete":
			completes++
			if i != len(events)-1 {
				t.Errorf("complete emitted before stream end at index %d", i)
			}
		case "progress":
			// The stream only emits progress when the snapshot changed.
			if ev.data == lastProgress {
				t.Errorf("duplicate progress event: %s", ev.data)
			}
			lastProgress = ev.data
		default:
			t.Errorf("unexpected event %q", ev.name)
		}
	}
	if completes != 1 {
		t.Errorf("complete events = %d, want exactly 1", completes)
	}
	if !strings.Contains(events[len(events)-1].data, models.JobStatusCompleted) {
		t.Errorf("final payload missing terminal status: %s", events[len(events)-1].data)
	}
}

func TestJobEventsUnknownJobReturns404(t *testing.T) {
	srv := newEventsServer(t, &stubJobStore{})

	resp, err := http.Get(srv.URL + "/api/jobs/missing/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
