package data

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/sfi/pkg/fusion"
	"github.com/pkg/errors"
)

const (
	insertRun = `INSERT INTO run (id, created_at, eval_set, ref_c, ref_w, image_size, power_mean_p, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertDistance = `INSERT INTO distance (run_id, image_uid, image_path, style, style_abbrev, metric, dc, dw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectRuns = `SELECT r.id, r.created_at, r.eval_set, r.ref_c, r.ref_w, r.image_size, r.power_mean_p, r.notes,
			(SELECT COUNT(*) FROM distance d WHERE d.run_id = r.id)
		FROM run r
		ORDER BY r.created_at DESC, r.id
		LIMIT ?`

	selectRunExists = `SELECT COUNT(*) FROM run WHERE id = ?`

	selectLatestRun = `SELECT id FROM run ORDER BY created_at DESC, id LIMIT 1`

	selectDistances = `SELECT image_uid, image_path, style, style_abbrev, metric, dc, dw
		FROM distance
		WHERE run_id = ? AND (? = '' OR metric = ?)
		ORDER BY image_uid, metric`

	upsertKeyNumber = `INSERT INTO key_number (run_id, ord, name, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, name) DO UPDATE SET ord = excluded.ord, value = excluded.value`

	selectKeyNumbers = `SELECT name, value FROM key_number WHERE run_id = ? ORDER BY ord, name`
)

// created_at is stored as fixed-width UTC text so it sorts chronologically
// on every driver.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	// ErrRunNotFound is returned when a run id does not exist.
	ErrRunNotFound = errors.New("run not found")

	deleteAll = []string{
		"DELETE FROM key_number",
		"DELETE FROM distance",
		"DELETE FROM run",
	}
)

// Run describes one stored set of distance rows.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	CreatedAt  time.Time `json:"created_at" yaml:"createdAt"`
	EvalSet    string    `json:"eval_set" yaml:"evalSet"`
	RefC       string    `json:"ref_c" yaml:"refC"`
	RefW       string    `json:"ref_w,omitempty" yaml:"refW,omitempty"`
	ImageSize  int       `json:"image_size" yaml:"imageSize"`
	PowerMeanP float64   `json:"power_mean_p" yaml:"powerMeanP"`
	Notes      string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Distances  int       `json:"distances" yaml:"distances"`
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SaveRun stores the run and its distance rows in one transaction and
// returns the new run id. Undefined distances are stored as NULL.
func (s *Store) SaveRun(ctx context.Context, run Run, records []fusion.DistanceRecord) (string, error) {
	if s == nil || s.db == nil {
		return "", errDBNotInitialized
	}

	run.ID = uuid.NewString()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}

	if _, err := tx.ExecContext(ctx, s.rebind(insertRun),
		run.ID, run.CreatedAt.UTC().Format(timeLayout), run.EvalSet, run.RefC, run.RefW,
		run.ImageSize, run.PowerMeanP, run.Notes); err != nil {
		return "", rollback(tx, errors.Wrap(err, "failed to insert run"))
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertDistance))
	if err != nil {
		return "", rollback(tx, errors.Wrap(err, "failed to prepare distance insert"))
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, run.ID, r.ImageUID, r.ImagePath, r.Style, r.StyleAbbrev,
			r.Metric, nullable(r.DC), nullable(r.DW)); err != nil {
			return "", rollback(tx, errors.Wrapf(err, "failed to insert distance %s/%s", r.ImageUID, r.Metric))
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit transaction")
	}
	return run.ID, nil
}

func rollback(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return errors.Wrapf(err, "rollback failed: %v", rbErr)
	}
	return err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectRuns), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	list := make([]Run, 0)
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &created, &r.EvalSet, &r.RefC, &r.RefW,
			&r.ImageSize, &r.PowerMeanP, &r.Notes, &r.Distances); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, errors.Wrapf(err, "invalid created_at on run %s", r.ID)
		}
		list = append(list, r)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate runs")
}

// LatestRunID returns the id of the newest run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", errDBNotInitialized
	}
	var id string
	err := s.db.QueryRowContext(ctx, selectLatestRun).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to query latest run")
	}
	return id, nil
}

func (s *Store) ensureRun(ctx context.Context, runID string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(selectRunExists), runID).Scan(&n); err != nil {
		return errors.Wrap(err, "failed to look up run")
	}
	if n == 0 {
		return errors.Wrap(ErrRunNotFound, runID)
	}
	return nil
}

// GetDistances returns the distance rows of a run, optionally limited to
// one metric, ordered by image and metric.
func (s *Store) GetDistances(ctx context.Context, runID, metric string) ([]fusion.DistanceRecord, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if err := s.ensureRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectDistances), runID, metric, metric)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query distances")
	}
	defer rows.Close()

	list := make([]fusion.DistanceRecord, 0)
	for rows.Next() {
		var r fusion.DistanceRecord
		var dc, dw sql.NullFloat64
		if err := rows.Scan(&r.ImageUID, &r.ImagePath, &r.Style, &r.StyleAbbrev, &r.Metric, &dc, &dw); err != nil {
			return nil, errors.Wrap(err, "failed to scan distance")
		}
		r.DC = fromNullable(dc)
		r.DW = fromNullable(dw)
		list = append(list, r)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate distances")
}

// SaveKeyNumbers stores the key numbers of a run, replacing existing
// values of the same key. The slice order is kept.
func (s *Store) SaveKeyNumbers(ctx context.Context, runID string, keys []fusion.KeyNumber) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if err := s.ensureRun(ctx, runID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(upsertKeyNumber))
	if err != nil {
		return rollback(tx, errors.Wrap(err, "failed to prepare key number upsert"))
	}
	defer stmt.Close()

	for i, k := range keys {
		if _, err := stmt.ExecContext(ctx, runID, i, k.Key, nullable(k.Value)); err != nil {
			return rollback(tx, errors.Wrapf(err, "failed to save key number %s", k.Key))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// GetKeyNumbers returns the key numbers of a run in saved order.
func (s *Store) GetKeyNumbers(ctx context.Context, runID string) ([]fusion.KeyNumber, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if err := s.ensureRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectKeyNumbers), runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query key numbers")
	}
	defer rows.Close()

	list := make([]fusion.KeyNumber, 0)
	for rows.Next() {
		var k fusion.KeyNumber
		var v sql.NullFloat64
		if err := rows.Scan(&k.Key, &v); err != nil {
			return nil, errors.Wrap(err, "failed to scan key number")
		}
		k.Value = fromNullable(v)
		list = append(list, k)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate key numbers")
}

// DeleteAll removes every run with its rows.
func (s *Store) DeleteAll(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	for _, q := range deleteAll {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return rollback(tx, errors.Wrapf(err, "failed to execute: %s", q))
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}
