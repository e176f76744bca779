package astrodb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nightjar-data/gradient.report/internal/astro"
)

// Timestamps are stored as RFC3339Nano text so the archive stays
// readable from the sqlite shell and the tailsql console.
const timeLayout = time.RFC3339Nano

var _ astro.RunStore = (*AstroDB)(nil)

// InsertExtractionRun archives one finished run and returns its row id.
func (db *AstroDB) InsertExtractionRun(rec *astro.RunRecord) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO extraction_runs (
			run_id, extractor, started_at, finished_at, success, cancelled,
			error_kind, message, width, height, channels,
			sample_count, rejected_count, rms_error, elapsed_ms,
			settings_json, metrics_json, model_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Extractor,
		rec.StartedAt.UTC().Format(timeLayout), rec.FinishedAt.UTC().Format(timeLayout),
		rec.Success, rec.Cancelled, rec.ErrorKind, rec.Message,
		rec.Width, rec.Height, rec.Channels,
		rec.SampleCount, rec.RejectedCount, rec.RMSError, rec.ElapsedMS,
		rec.SettingsJSON, rec.MetricsJSON, rec.ModelBlob,
	)
	if err != nil {
		return 0, fmt.Errorf("insert extraction run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}
	return id, nil
}

const runColumns = `
	id, run_id, extractor, started_at, finished_at, success, cancelled,
	error_kind, message, width, height, channels,
	sample_count, rejected_count, rms_error, elapsed_ms,
	settings_json, metrics_json`

func scanRun(row interface{ Scan(...interface{}) error }) (*astro.RunRecord, error) {
	var rec astro.RunRecord
	var started, finished string
	if err := row.Scan(
		&rec.ID, &rec.RunID, &rec.Extractor, &started, &finished,
		&rec.Success, &rec.Cancelled, &rec.ErrorKind, &rec.Message,
		&rec.Width, &rec.Height, &rec.Channels,
		&rec.SampleCount, &rec.RejectedCount, &rec.RMSError, &rec.ElapsedMS,
		&rec.SettingsJSON, &rec.MetricsJSON,
	); err != nil {
		return nil, err
	}
	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	if rec.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
	}
	return &rec, nil
}

// GetRun fetches one archived run by row id. The model blob is not
// loaded; use RunModelBlob for that.
func (db *AstroDB) GetRun(id int64) (*astro.RunRecord, error) {
	rec, err := scanRun(db.QueryRow(
		`SELECT`+runColumns+` FROM extraction_runs WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	return rec, nil
}

// GetRunByRunID fetches one archived run by its extraction run id.
func (db *AstroDB) GetRunByRunID(runID string) (*astro.RunRecord, error) {
	rec, err := scanRun(db.QueryRow(
		`SELECT`+runColumns+` FROM extraction_runs WHERE run_id = ?`, runID))
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// LatestRun returns the newest archived run for one extractor. After a
// restart this is how the service finds the outcome it last reported.
func (db *AstroDB) LatestRun(extractor string) (*astro.RunRecord, error) {
	rec, err := scanRun(db.QueryRow(
		`SELECT`+runColumns+` FROM extraction_runs WHERE extractor = ? ORDER BY id DESC LIMIT 1`,
		extractor))
	if err != nil {
		return nil, fmt.Errorf("latest run for %s: %w", extractor, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *AstroDB) ListRuns(limit int) ([]*astro.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT`+runColumns+` FROM extraction_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var recs []*astro.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// RunModelBlob returns the stored model archive for a run, or nil when
// the run was archived without one.
func (db *AstroDB) RunModelBlob(runID string) ([]byte, error) {
	var blob []byte
	err := db.QueryRow(
		`SELECT model_blob FROM extraction_runs WHERE run_id = ?`, runID).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("get model blob for %s: %w", runID, err)
	}
	return blob, nil
}

// RestoreModels loads and unpacks the archived surfaces for a run.
func (db *AstroDB) RestoreModels(runID string) (*astro.Model, []*astro.Model, error) {
	blob, err := db.RunModelBlob(runID)
	if err != nil {
		return nil, nil, err
	}
	return astro.DeserializeModels(blob)
}

// PruneRuns deletes all but the newest keep runs and returns the number
// removed.
func (db *AstroDB) PruneRuns(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := db.Exec(`
		DELETE FROM extraction_runs
		WHERE id NOT IN (
			SELECT id FROM extraction_runs ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteRun removes one archived run by row id. Returns an IsNotFound
// error when no such run exists.
func (db *AstroDB) DeleteRun(id int64) error {
	res, err := db.Exec(`DELETE FROM extraction_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delete run %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// RunStats summarizes the archive for the stats endpoint.
type RunStats struct {
	TotalRuns     int     `json:"total_runs"`
	Succeeded     int     `json:"succeeded"`
	Cancelled     int     `json:"cancelled"`
	Failed        int     `json:"failed"`
	MeanRMSError  float64 `json:"mean_rms_error"`
	MeanElapsedMS float64 `json:"mean_elapsed_ms"`
}

// Stats aggregates counts and averages over the archive. Averages cover
// successful runs only.
func (db *AstroDB) Stats() (RunStats, error) {
	var s RunStats
	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(SUM(cancelled), 0),
			COALESCE(SUM(CASE WHEN success = 0 AND cancelled = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN success = 1 THEN rms_error END), 0),
			COALESCE(AVG(CASE WHEN success = 1 THEN elapsed_ms END), 0)
		FROM extraction_runs`).Scan(
		&s.TotalRuns, &s.Succeeded, &s.Cancelled, &s.Failed,
		&s.MeanRMSError, &s.MeanElapsedMS,
	)
	if err != nil {
		return RunStats{}, fmt.Errorf("run stats: %w", err)
	}
	return s, nil
}

// IsNotFound reports whether err means the requested run does not
// exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
