package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abibardhan/EGMS-L3/internal/fetch"
	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/progress"
	"github.com/abibardhan/EGMS-L3/internal/repository"
)

// JobManager starts and reports on batch download jobs.
type JobManager interface {
	StartJob(req fetch.BatchRequest) (*models.DownloadJob, error)
	GetJob(id string) *models.DownloadJob
}

// DatasetEnricher runs the enrichment pipeline for one dataset.
type DatasetEnricher interface {
	Enrich(ctx context.Context, d *models.Dataset) (*models.Dataset, error)
}

type Handler struct {
	repo        repository.Store
	manager     JobManager
	enricher    DatasetEnricher
	broadcaster *progress.Broadcaster

	mu        sync.Mutex
	enriching map[string]bool // dataset IDs with an enrichment in flight
}

func NewHandler(repo repository.Store, manager JobManager, enricher DatasetEnricher, broadcaster *progress.Broadcaster) *Handler {
	return &Handler{
		repo:        repo,
		manager:     manager,
		enricher:    enricher,
		broadcaster: broadcaster,
		enriching:   make(map[string]bool),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/datasets", h.listDatasets)
	r.GET("/api/datasets/:id", h.getDataset)
	r.GET("/api/datasets/:id/points", h.getPoints)
	r.POST("/api/datasets/:id/enrich", h.enrichDataset)
	r.POST("/api/downloads", h.startDownload)
	r.GET("/api/jobs/:id", h.getJob)
	r.GET("/ws/progress", h.progressWebSocket)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type datasetSummary struct {
	models.Dataset
	MatchedPoints   int `json:"matched_points"`
	UnmatchedPoints int `json:"unmatched_points"`
}

func (h *Handler) listDatasets(c *gin.Context) {
	datasets, err := h.repo.ListDatasets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch datasets",
		})
		return
	}

	out := make([]datasetSummary, 0, len(datasets))
	for _, d := range datasets {
		s := datasetSummary{Dataset: d}
		if d.Status == models.DatasetStatusEnriched {
			matched, unmatched, err := h.repo.CountPoints(c.Request.Context(), d.ID)
			if err != nil {
				slog.Error("error counting points", "dataset", d.ID, "error", err)
			} else {
				s.MatchedPoints = matched
				s.UnmatchedPoints = unmatched
			}
		}
		out = append(out, s)
	}

	c.JSON(http.StatusOK, gin.H{"datasets": out})
}

func (h *Handler) getDataset(c *gin.Context) {
	dataset, err := h.repo.GetDataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch dataset"})
		return
	}
	if dataset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}
	c.JSON(http.StatusOK, dataset)
}

func (h *Handler) getPoints(c *gin.Context) {
	id := c.Param("id")
	dataset, err := h.repo.GetDataset(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch dataset"})
		return
	}
	if dataset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}

	filter := repository.PointFilter{
		DatasetID: id,
		Limit:     1000, // Default page size if limit param not supplied
	}
	if m := c.Query("matched"); m != "" {
		if matched, err := strconv.ParseBool(m); err == nil {
			filter.Matched = &matched
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 10000 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	points, err := h.repo.ListPoints(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch points"})
		return
	}

	fc := toGeoJSON(points)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

type downloadRequest struct {
	MinE          int      `json:"min_e" binding:"required"`
	MaxE          int      `json:"max_e" binding:"required"`
	MinN          int      `json:"min_n" binding:"required"`
	MaxN          int      `json:"max_n" binding:"required"`
	Displacements []string `json:"displacements"`
	YearSpan      string   `json:"year_span"`
	Force         bool     `json:"force"`
}

func (h *Handler) startDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.manager.StartJob(fetch.BatchRequest{
		MinE:          req.MinE,
		MaxE:          req.MaxE,
		MinN:          req.MinN,
		MaxN:          req.MaxN,
		Displacements: req.Displacements,
		YearSpan:      req.YearSpan,
		Force:         req.Force,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) getJob(c *gin.Context) {
	job := h.manager.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) enrichDataset(c *gin.Context) {
	id := c.Param("id")
	dataset, err := h.repo.GetDataset(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch dataset"})
		return
	}
	if dataset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}

	h.mu.Lock()
	if h.enriching[id] || dataset.Status == models.DatasetStatusEnriching {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "enrichment already running"})
		return
	}
	h.enriching[id] = true
	h.mu.Unlock()

	// Runs detached from the request context; progress streams over the
	// websocket and the dataset status tracks completion.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.enriching, id)
			h.mu.Unlock()
		}()
		if _, err := h.enricher.Enrich(context.Background(), dataset); err != nil {
			slog.Error("enrichment failed", "dataset", id, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"dataset_id": id,
		"status":     string(models.DatasetStatusEnriching),
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
