package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/metadata"
	"github.com/kalambet/mixtape/internal/storage"
)

type memCache struct {
	entries map[string]features.Track
	gets    int
	sets    int
	failSet bool
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]features.Track)}
}

func (m *memCache) GetTrackFeatures(_ context.Context, catalogID string, _ time.Duration) (features.Track, error) {
	m.gets++
	t, ok := m.entries[catalogID]
	if !ok {
		return features.Track{}, storage.ErrNotFound
	}
	return t, nil
}

func (m *memCache) SetTrackFeatures(_ context.Context, t features.Track) error {
	m.sets++
	if m.failSet {
		return errors.New("disk full")
	}
	m.entries[t.CatalogID] = t
	return nil
}

type fakeMetadata struct {
	tags        []metadata.Tag
	af          *metadata.AudioFeatures
	searchErr   error
	featuresErr error
}

func (f *fakeMetadata) SearchEntity(_ context.Context, _, _ string) (metadata.Entity, error) {
	if f.searchErr != nil {
		return metadata.Entity{}, f.searchErr
	}
	return metadata.Entity{ID: "e1", Tags: f.tags}, nil
}

func (f *fakeMetadata) Features(_ context.Context, _, _, _ string) (*metadata.AudioFeatures, error) {
	return f.af, f.featuresErr
}

func testCandidate() catalog.Candidate {
	return catalog.Candidate{CatalogID: "t1", Title: "Song", Artists: []string{"A"}, Year: 2020}
}

func TestResolve_CacheMissFetchesAndWritesBack(t *testing.T) {
	cache := newMemCache()
	meta := &fakeMetadata{tags: []metadata.Tag{{Name: "rock", Count: 80}}}
	r := NewResolver(cache, meta, time.Hour)

	got, err := r.Resolve(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.CatalogID != "t1" || got.Proxy {
		t.Errorf("resolved track = %+v, want tag-mapped vector", got)
	}
	if cache.sets != 1 {
		t.Errorf("cache writes = %d, want 1", cache.sets)
	}

	// Second call is a cache hit: no extra write.
	if _, err := r.Resolve(context.Background(), testCandidate()); err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if cache.sets != 1 {
		t.Errorf("cache writes after hit = %d, want still 1", cache.sets)
	}
}

func TestResolve_ProviderFailureDegradesToProxy(t *testing.T) {
	cache := newMemCache()
	meta := &fakeMetadata{searchErr: errors.New("down"), featuresErr: errors.New("down")}
	r := NewResolver(cache, meta, time.Hour)

	got, err := r.Resolve(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Proxy {
		t.Errorf("expected neutral proxy vector when both providers fail, got %+v", got)
	}
}

func TestResolve_CacheWriteFailureStillReturnsTrack(t *testing.T) {
	cache := newMemCache()
	cache.failSet = true
	meta := &fakeMetadata{tags: []metadata.Tag{{Name: "jazz", Count: 50}}}
	r := NewResolver(cache, meta, time.Hour)

	got, err := r.Resolve(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.CatalogID != "t1" {
		t.Errorf("track lost to a cache write failure: %+v", got)
	}
}

type memJobs struct {
	jobs      map[string]*storage.Job
	order     []string
	completed []string
	failed    []string
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*storage.Job)}
}

func (m *memJobs) EnqueueJob(job storage.Job) error {
	job.Status = "pending"
	m.jobs[job.ID] = &job
	m.order = append(m.order, job.ID)
	return nil
}

func (m *memJobs) ClaimNextJob(types []string) (*storage.Job, error) {
	for _, id := range m.order {
		j := m.jobs[id]
		if j.Status != "pending" {
			continue
		}
		for _, typ := range types {
			if j.Type == typ {
				j.Status = "running"
				out := *j
				return &out, nil
			}
		}
	}
	return nil, nil
}

func (m *memJobs) CompleteJob(id string) error {
	m.jobs[id].Status = "completed"
	m.completed = append(m.completed, id)
	return nil
}

func (m *memJobs) FailJob(id, errMsg string) error {
	m.jobs[id].Status = "failed"
	m.jobs[id].LastError = errMsg
	m.failed = append(m.failed, id)
	return nil
}

func TestWorker_RunOnceProcessesJob(t *testing.T) {
	jobs := newMemJobs()
	cache := newMemCache()
	meta := &fakeMetadata{tags: []metadata.Tag{{Name: "rock", Count: 80}}}
	w := NewWorker(jobs, NewResolver(cache, meta, time.Hour), 0)

	EnqueueCandidates(jobs, []catalog.Candidate{testCandidate()})

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce found no job")
	}
	if len(jobs.completed) != 1 {
		t.Errorf("completed jobs = %v, want 1", jobs.completed)
	}
	if _, ok := cache.entries["t1"]; !ok {
		t.Error("feature cache not warmed by the job")
	}
}

func TestWorker_RunOnceNoJob(t *testing.T) {
	w := NewWorker(newMemJobs(), NewResolver(newMemCache(), &fakeMetadata{}, time.Hour), 0)
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("RunOnce claims work from an empty queue")
	}
}

func TestWorker_BadPayloadFailsJob(t *testing.T) {
	jobs := newMemJobs()
	jobs.EnqueueJob(storage.Job{ID: "bad", Type: JobTypeFeatureEnrich, PayloadJSON: "{"})
	w := NewWorker(jobs, NewResolver(newMemCache(), &fakeMetadata{}, time.Hour), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce skipped the malformed job")
	}
	if len(jobs.failed) != 1 {
		t.Errorf("failed jobs = %v, want the malformed one failed", jobs.failed)
	}
}
