package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/abibardhan/EGMS-L3/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			tile_code TEXT NOT NULL,
			displacement TEXT NOT NULL,
			year_span TEXT NOT NULL,
			raw_path TEXT NOT NULL,
			enriched_path TEXT,
			point_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			downloaded_at DATETIME NOT NULL,
			enriched_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS points (
			dataset_id TEXT NOT NULL,
			pid TEXT NOT NULL,
			easting REAL NOT NULL,
			northing REAL NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			mean_velocity REAL,
			location_name TEXT,
			location_admin TEXT,
			geo_source TEXT NOT NULL,
			enriched_at DATETIME NOT NULL,
			PRIMARY KEY (dataset_id, pid),
			FOREIGN KEY (dataset_id) REFERENCES datasets(id)
		);

		CREATE INDEX IF NOT EXISTS idx_points_dataset ON points(dataset_id);
		CREATE INDEX IF NOT EXISTS idx_points_geo_source ON points(geo_source);
		CREATE INDEX IF NOT EXISTS idx_datasets_status ON datasets(status);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) AddDataset(ctx context.Context, d *models.Dataset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, tile_code, displacement, year_span, raw_path, enriched_path, point_count, status, downloaded_at, enriched_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, NULL)`,
		d.ID, d.TileCode, d.Displacement, d.YearSpan, d.RawPath, d.EnrichedPath, d.PointCount, string(d.Status), d.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting dataset: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tile_code, displacement, year_span, raw_path, enriched_path, point_count, status, downloaded_at, enriched_at
		FROM datasets WHERE id = ?`, id)

	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning dataset: %w", err)
	}
	return d, nil
}

func (s *SQLiteDB) DatasetExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM datasets WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking dataset existence: %w", err)
	}
	return true, nil
}

func (s *SQLiteDB) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tile_code, displacement, year_span, raw_path, enriched_path, point_count, status, downloaded_at, enriched_at
		FROM datasets ORDER BY downloaded_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("error listing datasets: %w", err)
	}
	defer rows.Close()

	var datasets []models.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning dataset row: %w", err)
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}

func (s *SQLiteDB) SetDatasetStatus(ctx context.Context, id string, status models.DatasetStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE datasets SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("error updating dataset status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dataset not found: %s", id)
	}
	return nil
}

func (s *SQLiteDB) MarkDatasetEnriched(ctx context.Context, d *models.Dataset) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE datasets SET status = ?, enriched_path = ?, point_count = ?, enriched_at = ?
		WHERE id = ?`,
		string(models.DatasetStatusEnriched), d.EnrichedPath, d.PointCount, d.EnrichedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("error marking dataset enriched: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dataset not found: %s", d.ID)
	}
	return nil
}

func (s *SQLiteDB) ReplacePoints(ctx context.Context, datasetID string, points []models.EnrichedPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE dataset_id = ?`, datasetID); err != nil {
		return fmt.Errorf("error clearing points: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (dataset_id, pid, easting, northing, latitude, longitude, mean_velocity, location_name, location_admin, geo_source, enriched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			datasetID, p.PID, p.Easting, p.Northing, p.Latitude, p.Longitude,
			p.MeanVelocity, p.Location.Name, p.Location.Admin, p.GeoSource, p.EnrichedAt,
		); err != nil {
			return fmt.Errorf("error inserting point %s: %w", p.PID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteDB) ListPoints(ctx context.Context, opts PointFilter) ([]models.EnrichedPoint, error) {
	query := `
		SELECT dataset_id, pid, easting, northing, latitude, longitude, mean_velocity, location_name, location_admin, geo_source, enriched_at
		FROM points WHERE dataset_id = ?`
	args := []any{opts.DatasetID}

	if opts.Matched != nil {
		if *opts.Matched {
			query += ` AND geo_source != ?`
		} else {
			query += ` AND geo_source = ?`
		}
		args = append(args, models.GeoSourceUnmatched)
	}

	query += ` ORDER BY pid`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing points: %w", err)
	}
	defer rows.Close()

	var points []models.EnrichedPoint
	for rows.Next() {
		var p models.EnrichedPoint
		var velocity sql.NullFloat64
		var name, admin sql.NullString
		if err := rows.Scan(
			&p.DatasetID, &p.PID, &p.Easting, &p.Northing, &p.Latitude, &p.Longitude,
			&velocity, &name, &admin, &p.GeoSource, &p.EnrichedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning point row: %w", err)
		}
		p.MeanVelocity = velocity.Float64
		p.Location.Name = name.String
		p.Location.Admin = admin.String
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLiteDB) CountPoints(ctx context.Context, datasetID string) (matched, unmatched int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN geo_source != ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN geo_source = ? THEN 1 ELSE 0 END), 0)
		FROM points WHERE dataset_id = ?`,
		models.GeoSourceUnmatched, models.GeoSourceUnmatched, datasetID,
	).Scan(&matched, &unmatched)
	if err != nil {
		return 0, 0, fmt.Errorf("error counting points: %w", err)
	}
	return matched, unmatched, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*models.Dataset, error) {
	var d models.Dataset
	var status string
	var enrichedPath sql.NullString
	var enrichedAt sql.NullTime
	if err := row.Scan(
		&d.ID, &d.TileCode, &d.Displacement, &d.YearSpan, &d.RawPath,
		&enrichedPath, &d.PointCount, &status, &d.DownloadedAt, &enrichedAt,
	); err != nil {
		return nil, err
	}
	d.Status = models.DatasetStatus(status)
	d.EnrichedPath = enrichedPath.String
	if enrichedAt.Valid {
		d.EnrichedAt = enrichedAt.Time
	}
	return &d, nil
}
