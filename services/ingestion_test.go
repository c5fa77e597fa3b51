package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"persona-advisor/internal/vector"
	"persona-advisor/models"
)

type fakeJobStore struct {
	jobs       map[string]*models.IngestionJob
	updates    int
	failUpdate bool
}

func newFakeJobStore(jobs ...*models.IngestionJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*models.IngestionJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *j
	return &copied, nil
}

func (s *fakeJobStore) UpdateJob(ctx context.Context, job *models.IngestionJob) error {
	if s.failUpdate {
		return errors.New("update refused")
	}
	s.updates++
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

type fakePersonaStore struct {
	persona *models.Persona
	chunks  int64
	tokens  int64
	getErr  error
}

func (s *fakePersonaStore) GetPersona(ctx context.Context, personaID string) (*models.Persona, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.persona, nil
}

func (s *fakePersonaStore) AddCounters(ctx context.Context, personaID string, chunks, tokens int64) error {
	s.chunks += chunks
	s.tokens += tokens
	return nil
}

// fakeExtractor serves canned text per file name; names absent from the map
// fail extraction.
type fakeExtractor struct {
	texts map[string]string
}

func (e *fakeExtractor) ExtractText(fileName string, data []byte) (string, error) {
	text, ok := e.texts[fileName]
	if !ok {
		return "", fmt.Errorf("%s: unsupported file type", fileName)
	}
	return text, nil
}

type fakeDocEmbedder struct {
	dimension int
	truncate  int // when > 0, return at most this many vectors
	err       error
}

func (e *fakeDocEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	n := len(texts)
	if e.truncate > 0 && n > e.truncate {
		n = e.truncate
	}
	out := make([][]float32, n)
	for i := range out {
		vec := make([]float32, e.dimension)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}

func testJob(files ...string) *models.IngestionJob {
	manifest := make([]models.FileManifestEntry, len(files))
	for i, name := range files {
		manifest[i] = models.FileManifestEntry{Filename: name, FileType: FileType(name)}
	}
	return &models.IngestionJob{
		ID:        "job-1",
		PersonaID: "persona-1",
		OwnerID:   "user-1",
		Status:    models.JobStatusQueued,
		Metadata:  models.JobMetadata{Files: manifest},
		CreatedAt: time.Now().UTC(),
	}
}

func testPersona() *models.Persona {
	return &models.Persona{
		ID:        "persona-1",
		OwnerID:   "user-1",
		Name:      "test persona",
		Namespace: "persona_test",
	}
}

func newTestIngestor(t *testing.T, jobs *fakeJobStore, personas *fakePersonaStore, extractor *fakeExtractor, embedder *fakeDocEmbedder) (*Ingestor, *vector.MemoryStore) {
	t.Helper()
	chunker, err := NewChunker(50, 10, wordCounter{})
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	store := vector.NewMemoryStore(embedder.dimension)
	return NewIngestor(jobs, personas, extractor, chunker, embedder, store, nil), store
}

func TestIngestorCompletesJob(t *testing.T) {
	job := testJob("a.txt", "b.txt")
	jobs := newFakeJobStore(job)
	personas := &fakePersonaStore{persona: testPersona()}
	extractor := &fakeExtractor{texts: map[string]string{
		"a.txt": strings.Repeat("alpha beta gamma delta ", 20),
		"b.txt": strings.Repeat("omega psi chi phi ", 20),
	}}
	embedder := &fakeDocEmbedder{dimension: 4}
	ing, store := newTestIngestor(t, jobs, personas, extractor, embedder)

	files := []IngestedFile{{Name: "a.txt"}, {Name: "b.txt"}}
	if err := ing.Run(context.Background(), job.ID, files); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := jobs.jobs[job.ID]
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q, want completed (error: %q)", final.Status, final.ErrorMessage)
	}
	if final.Progress != 100 {
		t.Errorf("progress = %d, want 100", final.Progress)
	}
	if final.ProcessedFiles != 2 {
		t.Errorf("processed_files = %d, want 2", final.ProcessedFiles)
	}
	if final.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if final.Metadata.CurrentFile != "" {
		t.Errorf("current_file = %q, want empty after completion", final.Metadata.CurrentFile)
	}

	exists, count, err := store.NamespaceStats(context.Background(), "persona_test")
	if err != nil || !exists || count == 0 {
		t.Fatalf("namespace stats: exists=%v count=%d err=%v", exists, count, err)
	}
	if int64(final.Metadata.ChunksCreated) != count {
		t.Errorf("chunks_created = %d, store holds %d", final.Metadata.ChunksCreated, count)
	}
	if personas.chunks != count {
		t.Errorf("persona chunk counter = %d, want %d", personas.chunks, count)
	}
	if personas.tokens == 0 {
		t.Error("persona token counter not incremented")
	}
}

func TestIngestorContainsPerFileFailure(t *testing.T) {
	job := testJob("good.txt", "bad.bin")
	jobs := newFakeJobStore(job)
	personas := &fakePersonaStore{persona: testPersona()}
	extractor := &fakeExtractor{texts: map[string]string{
		"good.txt": strings.Repeat("reliable content here today ", 15),
	}}
	embedder := &fakeDocEmbedder{dimension: 4}
	ing, _ := newTestIngestor(t, jobs, personas, extractor, embedder)

	files := []IngestedFile{{Name: "good.txt"}, {Name: "bad.bin"}}
	if err := ing.Run(context.Background(), job.ID, files); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := jobs.jobs[job.ID]
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q, want completed despite one bad file", final.Status)
	}
	if final.ProcessedFiles != 1 {
		t.Errorf("processed_files = %d, want 1", final.ProcessedFiles)
	}

	var badEntry *models.FileManifestEntry
	for i := range final.Metadata.Files {
		if final.Metadata.Files[i].Filename == "bad.bin" {
			badEntry = &final.Metadata.Files[i]
		}
	}
	if badEntry == nil || badEntry.Error == "" {
		t.Error("failed file missing error in manifest")
	}
}

func TestIngestorFailsWhenNothingExtracted(t *testing.T) {
	job := testJob("one.bin", "two.bin")
	jobs := newFakeJobStore(job)
	personas := &fakePersonaStore{persona: testPersona()}
	extractor := &fakeExtractor{texts: map[string]string{}}
	embedder := &fakeDocEmbedder{dimension: 4}
	ing, _ := newTestIngestor(t, jobs, personas, extractor, embedder)

	files := []IngestedFile{{Name: "one.bin"}, {Name: "two.bin"}}
	if err := ing.Run(context.Background(), job.ID, files); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := jobs.jobs[job.ID]
	if final.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "no content") {
		t.Errorf("error message = %q", final.ErrorMessage)
	}
}

func TestIngestorSkipsDuplicateContent(t *testing.T) {
	sameText := strings.Repeat("identical words repeated often ", 15)
	job := testJob("first.txt", "copy.txt")
	jobs := newFakeJobStore(job)
	personas := &fakePersonaStore{persona: testPersona()}
	extractor := &fakeExtractor{texts: map[string]string{
		"first.txt": sameText,
		"copy.txt":  sameText,
	}}
	embedder := &fakeDocEmbedder{dimension: 4}
	ing, store := newTestIngestor(t, jobs, personas, extractor, embedder)

	files := []IngestedFile{{Name: "first.txt"}, {Name: "copy.txt"}}
	if err := ing.Run(context.Background(), job.ID, files); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := jobs.jobs[job.ID]
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	// Only the first copy counts toward processed files
	if final.ProcessedFiles != 1 {
		t.Errorf("processed_files = %d, want 1", final.ProcessedFiles)
	}

	var dup *models.FileManifestEntry
	for i := range final.Metadata.Files {
		if final.Metadata.Files[i].Filename == "copy.txt" {
			dup = &final.Metadata.Files[i]
		}
	}
	if dup == nil || !dup.Skipped {
		t.Error("duplicate file not marked skipped in manifest")
	}
	if dup != nil && dup.ContentHash == "" {
		t.Error("duplicate file missing content hash")
	}

	_, count, _ := store.NamespaceStats(context.Background(), "persona_test")
	if int64(final.Metadata.ChunksCreated) != count {
		t.Errorf("chunks_created = %d, store holds %d", final.Metadata.ChunksCreated, count)
	}
}

func TestIngestorFailsOnPersonaLookup(t *testing.T) {
	job := testJob("a.txt")
	jobs := newFakeJobStore(job)
	personas := &fakePersonaStore{getErr: ErrPersonaNotFound}
	extractor := &fakeExtractor{texts: map[string]string{"a.txt": "some text"}}
	embedder := &fakeDocEmbedder{dimension: 4}
	ing, _ := newTestIngestor(t, jobs, personas, extractor, embedder)

	if err := ing.Run(context.Background(), job.ID, []IngestedFile{{Name: "a.txt"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if jobs.jobs[job.ID].Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed", jobs.jobs[job.ID].Status)
	}
}

func TestIngestorTruncatesLongErrorMessage(t *testing.T) {
	job := testJob("a.txt")
	jobs := newFakeJobStore(job)
	longErr := errors.New("persona lookup exploded: " + strings.Repeat("x", 2000))
	personas := &fakePersonaStore{getErr: longErr}
	ing, _ := newTestIngestor(t, jobs, personas, &fakeExtractor{}, &fakeDocEmbedder{dimension: 4})

	if err := ing.Run(context.Background(), job.ID, []IngestedFile{{Name: "a.txt"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := jobs.jobs[job.ID]
	if stored.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed", stored.Status)
	}
	if got := len([]rune(stored.ErrorMessage)); got > maxErrorMessageLen+3 {
		t.Errorf("error message length = %d runes, want at most %d", got, maxErrorMessageLen+3)
	}
	if !strings.Contains(stored.ErrorMessage, "persona lookup exploded") {
		t.Errorf("truncated message lost its prefix: %q", stored.ErrorMessage)
	}
	if !strings.HasSuffix(stored.ErrorMessage, "...") {
		t.Errorf("truncated message missing ellipsis: %q", stored.ErrorMessage)
	}
}

func TestTruncateMessage(t *testing.T) {
	if got := truncateMessage("short", 10); got != "short" {
		t.Errorf("got %q, want unchanged", got)
	}
	got := truncateMessage(strings.Repeat("é", 20), 5)
	if got != strings.Repeat("é", 5)+"..." {
		t.Errorf("got %q, want 5 runes plus ellipsis", got)
	}
}

func TestIngestorSkipsTerminalJob(t *testing.T) {
	job := testJob("a.txt")
	job.Status = models.JobStatusCompleted
	jobs := newFakeJobStore(job)
	personas := &fakePersonaStore{persona: testPersona()}
	ing, _ := newTestIngestor(t, jobs, personas, &fakeExtractor{}, &fakeDocEmbedder{dimension: 4})

	if err := ing.Run(context.Background(), job.ID, []IngestedFile{{Name: "a.txt"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if jobs.updates != 0 {
		t.Errorf("terminal job was updated %d times, want 0", jobs.updates)
	}
}

func TestIngestorReturnsErrorWhenJobMissing(t *testing.T) {
	jobs := newFakeJobStore()
	personas := &fakePersonaStore{persona: testPersona()}
	ing, _ := newTestIngestor(t, jobs, personas, &fakeExtractor{}, &fakeDocEmbedder{dimension: 4})

	if err := ing.Run(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for missing job record")
	}
}

func TestIngestorStoresPartialEmbeddingResult(t *testing.T) {
	// 200 words against a 50-token budget yields several segments; the
	// embedder only returns vectors for the first two.
	job := testJob("long.txt")
	jobs := newFakeJobStore(job)
	personas := &fakePersonaStore{persona: testPersona()}
	extractor := &fakeExtractor{texts: map[string]string{
		"long.txt": makeParagraphs(8, 25, 5),
	}}
	embedder := &fakeDocEmbedder{dimension: 4, truncate: 2}
	ing, store := newTestIngestor(t, jobs, personas, extractor, embedder)

	if err := ing.Run(context.Background(), job.ID, []IngestedFile{{Name: "long.txt"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := jobs.jobs[job.ID]
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	_, count, _ := store.NamespaceStats(context.Background(), "persona_test")
	if count != 2 {
		t.Errorf("stored %d vectors, want the 2 that were embedded", count)
	}
}
