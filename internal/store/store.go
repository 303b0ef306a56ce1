package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "sehatmap/internal/errors"
	"sehatmap/internal/exporter"
	"sehatmap/pkg/contracts/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	kecamatan       TEXT    NOT NULL,
	wilayah         TEXT,
	tahun           INTEGER NOT NULL,
	persentase      REAL,
	prioritas       TEXT,
	lat             REAL,
	lon             REAL,
	predicted_route TEXT,
	focus_month     INTEGER,
	focus_date      TEXT,
	meta            TEXT,
	created_at      TEXT    NOT NULL,
	updated_at      TEXT    NOT NULL,
	UNIQUE (kecamatan, tahun)
);
CREATE INDEX IF NOT EXISTS idx_predictions_tahun ON predictions (tahun);
CREATE INDEX IF NOT EXISTS idx_predictions_prioritas ON predictions (prioritas);
`

const selectColumns = `id, kecamatan, wilayah, tahun, persentase, prioritas, lat, lon,
	predicted_route, focus_month, focus_date, meta, created_at, updated_at`

// ImportStats counts the effect of an Upsert
type ImportStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Total returns the number of rows written
func (s ImportStats) Total() int {
	return s.Inserted + s.Updated
}

// SQLiteStore persists forecast rows in a SQLite database, one row per (kecamatan, tahun)
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.NewStorageError("failed to create store directory", err).WithContext("path", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open sqlite", err).WithContext("path", path)
	}
	// single writer
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger.With(slog.String("component", "store")),
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.InfoContext(ctx, "Prediction store ready", slog.String("path", path))
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return apperrors.NewStorageError("failed to configure sqlite", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewStorageError("failed to apply schema", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert writes rows in one transaction. An existing (kecamatan, tahun) row has its
// values and meta replaced; created_at is kept.
func (s *SQLiteStore) Upsert(ctx context.Context, rows []domain.ForecastRow) (ImportStats, error) {
	var stats ImportStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	exists, err := tx.PrepareContext(ctx, `SELECT 1 FROM predictions WHERE kecamatan = ? AND tahun = ?`)
	if err != nil {
		return stats, apperrors.NewStorageError("failed to prepare lookup", err)
	}
	defer exists.Close()

	upsert, err := tx.PrepareContext(ctx, `
INSERT INTO predictions (kecamatan, wilayah, tahun, persentase, prioritas, lat, lon,
	predicted_route, focus_month, focus_date, meta, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (kecamatan, tahun) DO UPDATE SET
	wilayah = excluded.wilayah,
	persentase = excluded.persentase,
	prioritas = excluded.prioritas,
	lat = excluded.lat,
	lon = excluded.lon,
	predicted_route = excluded.predicted_route,
	focus_month = excluded.focus_month,
	focus_date = excluded.focus_date,
	meta = excluded.meta,
	updated_at = excluded.updated_at`)
	if err != nil {
		return stats, apperrors.NewStorageError("failed to prepare upsert", err)
	}
	defer upsert.Close()

	now := s.now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		var one int
		switch err := exists.QueryRowContext(ctx, r.Subdivision, r.Year).Scan(&one); err {
		case nil:
			stats.Updated++
		case sql.ErrNoRows:
			stats.Inserted++
		default:
			return ImportStats{}, apperrors.NewStorageError("failed to look up prediction", err).
				WithContext("row", r.Key().String())
		}

		meta, err := json.Marshal(exporter.RowFields(r))
		if err != nil {
			return ImportStats{}, apperrors.NewStorageError("failed to encode meta", err)
		}

		if _, err := upsert.ExecContext(ctx,
			r.Subdivision, r.Region, r.Year, nullFloat(r.Coverage), r.Priority,
			nullFloat(r.Latitude), nullFloat(r.Longitude),
			r.Route, r.FocusMonth, r.FocusDate, string(meta), now, now,
		); err != nil {
			return ImportStats{}, apperrors.NewStorageError("failed to upsert prediction", err).
				WithContext("row", r.Key().String())
		}
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, apperrors.NewStorageError("failed to commit predictions", err)
	}

	s.logger.InfoContext(ctx, "Imported predictions",
		slog.Int("inserted", stats.Inserted),
		slog.Int("updated", stats.Updated))
	return stats, nil
}

// List returns stored predictions matching filter, ordered by year, route and id
func (s *SQLiteStore) List(ctx context.Context, filter domain.PredictionFilter) ([]domain.StoredPrediction, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Year != 0 {
		where = append(where, "tahun = ?")
		args = append(args, filter.Year)
	}
	if filter.Priority != "" {
		where = append(where, "prioritas = ?")
		args = append(args, filter.Priority)
	}
	if filter.WithCoordinates {
		where = append(where, "lat IS NOT NULL AND lon IS NOT NULL")
	}

	query := "SELECT " + selectColumns + " FROM predictions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY tahun, predicted_route, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query predictions", err)
	}
	defer rows.Close()

	var out []domain.StoredPrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan prediction", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate predictions", err)
	}
	return out, nil
}

// Years returns the distinct stored years in ascending order
func (s *SQLiteStore) Years(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tahun FROM predictions ORDER BY tahun`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query years", err)
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, apperrors.NewStorageError("failed to scan year", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// Routes returns the distinct non-empty route ids in natural order (Rute-2 before Rute-10)
func (s *SQLiteStore) Routes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT predicted_route FROM predictions
WHERE predicted_route IS NOT NULL AND predicted_route != ''
ORDER BY length(predicted_route), predicted_route`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query routes", err)
	}
	defer rows.Close()

	routes := []string{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, apperrors.NewStorageError("failed to scan route", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// Count returns the number of stored predictions
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, apperrors.NewStorageError("failed to count predictions", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(sc scanner) (domain.StoredPrediction, error) {
	var (
		p                    domain.StoredPrediction
		region, priority     sql.NullString
		route, focusDate     sql.NullString
		meta                 sql.NullString
		coverage, lat, lon   sql.NullFloat64
		focusMonth           sql.NullInt64
		createdAt, updatedAt string
	)
	if err := sc.Scan(
		&p.ID, &p.Row.Subdivision, &region, &p.Row.Year, &coverage, &priority, &lat, &lon,
		&route, &focusMonth, &focusDate, &meta, &createdAt, &updatedAt,
	); err != nil {
		return p, err
	}

	p.Row.Region = region.String
	p.Row.Priority = priority.String
	p.Row.Route = route.String
	p.Row.FocusDate = focusDate.String
	p.Row.FocusMonth = int(focusMonth.Int64)
	p.Row.Coverage = floatPtr(coverage)
	p.Row.Latitude = floatPtr(lat)
	p.Row.Longitude = floatPtr(lon)
	p.Meta = meta.String

	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return p, fmt.Errorf("created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return p, fmt.Errorf("updated_at: %w", err)
	}
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
