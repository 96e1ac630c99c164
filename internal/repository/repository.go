package repository

import (
	"context"

	"github.com/abibardhan/EGMS-L3/internal/models"
)

// PointFilter narrows point listings for the API.
type PointFilter struct {
	DatasetID string
	Matched   *bool // true: located points only; false: unmatched only
	Limit     int
	Offset    int
}

type DatasetRepository interface {
	AddDataset(ctx context.Context, d *models.Dataset) error
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	DatasetExists(ctx context.Context, id string) (bool, error)
	ListDatasets(ctx context.Context) ([]models.Dataset, error)
	SetDatasetStatus(ctx context.Context, id string, status models.DatasetStatus) error
	MarkDatasetEnriched(ctx context.Context, d *models.Dataset) error
}

type PointRepository interface {
	// ReplacePoints atomically swaps the stored points for a dataset.
	// Re-running the enricher overwrites rather than duplicates.
	ReplacePoints(ctx context.Context, datasetID string, points []models.EnrichedPoint) error
	ListPoints(ctx context.Context, opts PointFilter) ([]models.EnrichedPoint, error)
	CountPoints(ctx context.Context, datasetID string) (matched, unmatched int, err error)
}

// Store is the full persistence surface the service wires up.
type Store interface {
	DatasetRepository
	PointRepository
}
