package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abibardhan/EGMS-L3/internal/config"
	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/progress"
)

// mockFetcher implements TileFetcher for manager tests.
type mockFetcher struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]error
}

func (m *mockFetcher) Fetch(ctx context.Context, req TileRequest) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := req.Product.FileBase()
	m.fetched = append(m.fetched, base)
	if err, ok := m.fail[base]; ok {
		return nil, err
	}
	return &Result{
		Dataset: &models.Dataset{
			ID:           base,
			TileCode:     req.Product.Tile.Code(),
			Displacement: req.Product.Displacement,
			YearSpan:     req.Product.YearSpan,
			Status:       models.DatasetStatusDownloaded,
			DownloadedAt: time.Now(),
		},
		Outcome: models.TileOutcomeDownloaded,
	}, nil
}

// mockDatasetRepo implements repository.DatasetRepository for manager tests.
type mockDatasetRepo struct {
	mu       sync.Mutex
	datasets map[string]*models.Dataset
}

func newMockRepo() *mockDatasetRepo {
	return &mockDatasetRepo{datasets: make(map[string]*models.Dataset)}
}

func (m *mockDatasetRepo) AddDataset(ctx context.Context, d *models.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[d.ID] = d
	return nil
}

func (m *mockDatasetRepo) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.datasets[id], nil
}

func (m *mockDatasetRepo) DatasetExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.datasets[id]
	return ok, nil
}

func (m *mockDatasetRepo) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Dataset
	for _, d := range m.datasets {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockDatasetRepo) SetDatasetStatus(ctx context.Context, id string, status models.DatasetStatus) error {
	return nil
}

func (m *mockDatasetRepo) MarkDatasetEnriched(ctx context.Context, d *models.Dataset) error {
	return nil
}

func (m *mockDatasetRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.datasets)
}

func managerConfig() *config.Config {
	return &config.Config{
		EGMS: config.EGMSConfig{
			YearSpan: "2019_2023",
		},
		Worker: config.WorkerConfig{Count: 2, BufferSize: 32},
	}
}

func waitForJob(t *testing.T, mgr *Manager, id string) *models.DownloadJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := mgr.GetJob(id)
		if job != nil && job.Status != models.JobStatusRunning {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for job to finish")
	return nil
}

func TestManager_RunsBatchJob(t *testing.T) {
	fetcher := &mockFetcher{}
	repo := newMockRepo()
	mgr := NewManager(managerConfig(), fetcher, repo, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	job, err := mgr.StartJob(BatchRequest{
		MinE: 10, MaxE: 11, MinN: 25, MaxN: 25,
		Displacements: []string{"E"},
	})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	if job.TotalTasks != 2 {
		t.Fatalf("expected 2 tasks, got %d", job.TotalTasks)
	}

	final := waitForJob(t, mgr, job.ID)
	if final.Status != models.JobStatusDone {
		t.Errorf("expected status done, got %s", final.Status)
	}
	if len(final.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(final.Results))
	}
	if repo.count() != 2 {
		t.Errorf("expected 2 datasets recorded, got %d", repo.count())
	}
}

func TestManager_DefaultsDisplacementsAndYearSpan(t *testing.T) {
	fetcher := &mockFetcher{}
	mgr := NewManager(managerConfig(), fetcher, newMockRepo(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	job, err := mgr.StartJob(BatchRequest{MinE: 32, MaxE: 32, MinN: 31, MaxN: 31})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	// Both displacement components by default.
	if job.TotalTasks != 2 {
		t.Errorf("expected 2 tasks for both displacements, got %d", job.TotalTasks)
	}
	if job.YearSpan != "2019_2023" {
		t.Errorf("expected configured year span, got %s", job.YearSpan)
	}
	waitForJob(t, mgr, job.ID)
}

func TestManager_RejectsInvalidRequests(t *testing.T) {
	mgr := NewManager(managerConfig(), &mockFetcher{}, newMockRepo(), nil, nil)

	if _, err := mgr.StartJob(BatchRequest{MinE: 11, MaxE: 10, MinN: 25, MaxN: 25}); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := mgr.StartJob(BatchRequest{MinE: 10, MaxE: 10, MinN: 25, MaxN: 25, Displacements: []string{"X"}}); err == nil {
		t.Error("expected error for bad displacement")
	}
	if _, err := mgr.StartJob(BatchRequest{MinE: 10, MaxE: 10, MinN: 25, MaxN: 25, YearSpan: "1999_2003"}); err == nil {
		t.Error("expected error for bad year span")
	}
}

func TestManager_RecordsFailuresAndPublishesProgress(t *testing.T) {
	failing := "EGMS_L3_E10N25_100km_E_2019_2023_1"
	fetcher := &mockFetcher{fail: map[string]error{failing: errors.New("boom")}}
	repo := newMockRepo()
	broadcaster := progress.NewBroadcaster()
	defer broadcaster.Close()
	_, events := broadcaster.Subscribe()

	mgr := NewManager(managerConfig(), fetcher, repo, broadcaster, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	job, err := mgr.StartJob(BatchRequest{
		MinE: 10, MaxE: 11, MinN: 25, MaxN: 25,
		Displacements: []string{"E"},
	})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}

	final := waitForJob(t, mgr, job.ID)
	// One failure out of two: the job still completes as done.
	if final.Status != models.JobStatusDone {
		t.Errorf("expected status done with partial failure, got %s", final.Status)
	}

	var failed, ok int
	for _, r := range final.Results {
		if r.Outcome == models.TileOutcomeFailed {
			failed++
			if r.Error == "" {
				t.Error("expected failure message on failed result")
			}
		} else {
			ok++
		}
	}
	if failed != 1 || ok != 1 {
		t.Errorf("expected 1 failed / 1 ok, got %d / %d", failed, ok)
	}
	if repo.count() != 1 {
		t.Errorf("expected only the successful dataset recorded, got %d", repo.count())
	}

	// Progress events arrived for both tasks.
	received := 0
	timeout := time.After(time.Second)
	for received < 2 {
		select {
		case <-events:
			received++
		case <-timeout:
			t.Fatalf("expected 2 progress events, got %d", received)
		}
	}
}

func TestManager_AllTasksFailedMarksJobFailed(t *testing.T) {
	fetcher := &mockFetcher{fail: map[string]error{
		"EGMS_L3_E10N25_100km_E_2019_2023_1": errors.New("boom"),
	}}
	mgr := NewManager(managerConfig(), fetcher, newMockRepo(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	job, err := mgr.StartJob(BatchRequest{
		MinE: 10, MaxE: 10, MinN: 25, MaxN: 25,
		Displacements: []string{"E"},
	})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}

	final := waitForJob(t, mgr, job.ID)
	if final.Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", final.Status)
	}
}

func TestManager_GetJobUnknown(t *testing.T) {
	mgr := NewManager(managerConfig(), &mockFetcher{}, newMockRepo(), nil, nil)
	if job := mgr.GetJob("nope"); job != nil {
		t.Errorf("expected nil for unknown job, got %+v", job)
	}
}
