package models

import "time"

type DatasetStatus string

const (
	DatasetStatusDownloaded DatasetStatus = "downloaded"
	DatasetStatusEnriching  DatasetStatus = "enriching"
	DatasetStatusEnriched   DatasetStatus = "enriched"
)

// Dataset is one downloaded tile CSV on disk, plus its enriched output
// once the enricher has run.
type Dataset struct {
	ID           string        `json:"id"` // product file base, e.g. "EGMS_L3_E32N31_100km_E_2019_2023_1"
	TileCode     string        `json:"tile_code"`    // "E32N31"
	Displacement string        `json:"displacement"` // "E" or "U"
	YearSpan     string        `json:"year_span"`    // "2019_2023"
	RawPath      string        `json:"raw_path"`
	EnrichedPath string        `json:"enriched_path,omitempty"`
	PointCount   int           `json:"point_count"`
	Status       DatasetStatus `json:"status"`
	DownloadedAt time.Time     `json:"downloaded_at"`
	EnrichedAt   time.Time     `json:"enriched_at,omitzero"`
}
