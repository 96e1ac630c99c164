package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/abibardhan/EGMS-L3/internal/config"
	"github.com/abibardhan/EGMS-L3/internal/egms"
	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/observability"
	"github.com/abibardhan/EGMS-L3/internal/progress"
	"github.com/abibardhan/EGMS-L3/internal/repository"
	"github.com/abibardhan/EGMS-L3/internal/worker"
)

// BatchRequest describes a tile-range download.
type BatchRequest struct {
	MinE, MaxE    int
	MinN, MaxN    int
	Displacements []string
	YearSpan      string
	Force         bool
}

type task struct {
	jobID   string
	product egms.Product
	force   bool
}

// TileFetcher is the single-tile download dependency, satisfied by *Fetcher.
type TileFetcher interface {
	Fetch(ctx context.Context, req TileRequest) (*Result, error)
}

// Manager runs batch download jobs through the worker pool, records the
// resulting datasets, and publishes per-tile progress.
type Manager struct {
	cfg         *config.Config
	fetcher     TileFetcher
	repo        repository.DatasetRepository
	broadcaster *progress.Broadcaster
	metrics     *observability.Metrics
	pool        *worker.Pool[task]

	mu   sync.Mutex
	jobs map[string]*models.DownloadJob
}

func NewManager(cfg *config.Config, fetcher TileFetcher, repo repository.DatasetRepository, broadcaster *progress.Broadcaster, metrics *observability.Metrics) *Manager {
	return &Manager{
		cfg:         cfg,
		fetcher:     fetcher,
		repo:        repo,
		broadcaster: broadcaster,
		metrics:     metrics,
		jobs:        make(map[string]*models.DownloadJob),
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.process)
	m.pool.Start(ctx)
}

func (m *Manager) Stop() {
	m.pool.Stop()
	slog.Info("download manager stopped")
}

// StartJob validates and expands the request, registers a job, and queues
// one task per tile x displacement. Returns immediately with the job.
func (m *Manager) StartJob(req BatchRequest) (*models.DownloadJob, error) {
	if req.YearSpan == "" {
		req.YearSpan = m.cfg.EGMS.YearSpan
	}
	if len(req.Displacements) == 0 {
		req.Displacements = []string{egms.DisplacementEast, egms.DisplacementUp}
	}
	for _, d := range req.Displacements {
		if !egms.ValidDisplacement(d) {
			return nil, fmt.Errorf("invalid displacement %q", d)
		}
	}
	if !egms.ValidYearSpan(req.YearSpan) {
		return nil, fmt.Errorf("invalid year span %q", req.YearSpan)
	}

	tiles, err := egms.Range(req.MinE, req.MaxE, req.MinN, req.MaxN)
	if err != nil {
		return nil, err
	}

	job := &models.DownloadJob{
		ID:            uuid.NewString(),
		MinE:          req.MinE,
		MaxE:          req.MaxE,
		MinN:          req.MinN,
		MaxN:          req.MaxN,
		Displacements: req.Displacements,
		YearSpan:      req.YearSpan,
		Status:        models.JobStatusRunning,
		TotalTasks:    len(tiles) * len(req.Displacements),
		CreatedAt:     clock.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveJobs.Inc()
	}
	slog.Info("download job started", "job_id", job.ID, "tasks", job.TotalTasks)

	go func() {
		for _, t := range tiles {
			for _, d := range req.Displacements {
				ok := m.pool.Submit(task{
					jobID: job.ID,
					product: egms.Product{
						Tile:         t,
						Displacement: d,
						YearSpan:     req.YearSpan,
					},
					force: req.Force,
				})
				if !ok {
					slog.Warn("worker pool stopping, abandoning remaining tasks", "job_id", job.ID)
					return
				}
			}
		}
	}()

	return m.snapshot(job.ID), nil
}

// GetJob returns a copy of the job state, or nil when unknown.
func (m *Manager) GetJob(id string) *models.DownloadJob {
	return m.snapshot(id)
}

func (m *Manager) snapshot(id string) *models.DownloadJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	cp.Results = append([]models.TileResult(nil), job.Results...)
	cp.Displacements = append([]string(nil), job.Displacements...)
	return &cp
}

func (m *Manager) process(ctx context.Context, t task) error {
	result, err := m.fetcher.Fetch(ctx, TileRequest{Product: t.product, Force: t.force})

	tr := models.TileResult{
		TileCode:     t.product.Tile.Code(),
		Displacement: t.product.Displacement,
		FinishedAt:   clock.Now(),
	}

	switch {
	case err != nil:
		tr.Outcome = models.TileOutcomeFailed
		tr.Error = err.Error()
		slog.Error("tile download failed", "job_id", t.jobID, "product", t.product.FileBase(), "error", err)
	default:
		tr.Outcome = result.Outcome
		m.record(ctx, result.Dataset)
	}

	m.finishTask(t.jobID, tr)
	return err
}

// record persists the dataset row unless it is already known.
func (m *Manager) record(ctx context.Context, d *models.Dataset) {
	exists, err := m.repo.DatasetExists(ctx, d.ID)
	if err != nil {
		slog.Error("error checking dataset existence", "id", d.ID, "error", err)
		return
	}
	if exists {
		return
	}
	if err := m.repo.AddDataset(ctx, d); err != nil {
		slog.Error("error adding dataset", "id", d.ID, "error", err)
	}
}

func (m *Manager) finishTask(jobID string, tr models.TileResult) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}

	job.Results = append(job.Results, tr)
	job.Completed++
	done := job.Completed >= job.TotalTasks
	if done {
		job.FinishedAt = clock.Now()
		job.Status = models.JobStatusDone
		failed := 0
		for _, r := range job.Results {
			if r.Outcome == models.TileOutcomeFailed {
				failed++
			}
		}
		if failed == len(job.Results) {
			job.Status = models.JobStatusFailed
		}
	}
	completed, total := job.Completed, job.TotalTasks
	m.mu.Unlock()

	if m.broadcaster != nil {
		msg := fmt.Sprintf("%s %s: %s", tr.TileCode, tr.Displacement, tr.Outcome)
		if tr.Error != "" {
			msg = fmt.Sprintf("%s (%s)", msg, tr.Error)
		}
		m.broadcaster.Publish(progress.Event{
			Stage:     progress.StageDownload,
			JobID:     jobID,
			Message:   msg,
			Completed: completed,
			Total:     total,
			Timestamp: clock.Now(),
		})
	}

	if done {
		if m.metrics != nil {
			m.metrics.ActiveJobs.Dec()
		}
		slog.Info("download job finished", "job_id", jobID, "completed", completed)
	}
}
