// Package inventory records scan runs in SQLite so a collection's layout
// facts can be listed and re-aggregated without rescanning the files.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/robert-malhotra/chunkscan/internal/aggregate"
	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

// ErrRunNotFound is returned when no run matches an id or id prefix.
var ErrRunNotFound = errors.New("run not found")

const schema = `
	-- One row per scan invocation
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		root TEXT NOT NULL,
		pattern TEXT NOT NULL,
		files INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0
	);

	-- Successfully scanned files, including those without variables
	CREATE TABLE IF NOT EXISTS files (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		file TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		UNIQUE(run_id, file),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Layout facts of the files above
	CREATE TABLE IF NOT EXISTS facts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		file TEXT NOT NULL,
		variable TEXT NOT NULL,
		dimensions TEXT NOT NULL,
		shape TEXT NOT NULL,
		chunks TEXT NOT NULL,
		dtype TEXT NOT NULL,
		cache_bytes INTEGER,
		cache_slots INTEGER,
		cache_preemption REAL,
		scale_factor REAL,
		add_offset REAL,
		compression TEXT NOT NULL,
		level INTEGER,
		shuffle BOOLEAN NOT NULL,
		fletcher32 BOOLEAN NOT NULL,
		coordinate BOOLEAN NOT NULL,
		read_time_ns INTEGER,
		UNIQUE(run_id, file, variable),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Files that could not be scanned
	CREATE TABLE IF NOT EXISTS failures (
		run_id TEXT NOT NULL,
		file TEXT NOT NULL,
		reason TEXT NOT NULL,
		message TEXT NOT NULL,
		PRIMARY KEY (run_id, file),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_facts_run ON facts(run_id);
	`

// Store is the inventory database.
type Store struct {
	db *sql.DB
}

// Run describes one recorded scan.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
	Root       string
	Pattern    string
	Files      int
	Failures   int
}

// Open opens or creates the inventory at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create inventory schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun starts a run over the files matching pattern under root.
func (s *Store) BeginRun(ctx context.Context, root, pattern string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Root:      root,
		Pattern:   pattern,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, root, pattern) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.Root, run.Pattern)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin run: %w", err)
	}
	return run, nil
}

// Record stores one scan result under runID, replacing whatever was
// recorded for the same file before.
func (s *Store) Record(ctx context.Context, runID string, r scan.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"facts", "failures"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ? AND file = ?`, runID, r.File); err != nil {
			return fmt.Errorf("failed to clear %s of %s: %w", table, r.File, err)
		}
	}

	if !r.OK() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE run_id = ? AND file = ?`, runID, r.File); err != nil {
			return fmt.Errorf("failed to clear %s: %w", r.File, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO failures (run_id, file, reason, message) VALUES (?, ?, ?, ?)`,
			runID, r.File, chunking.Reason(r.Err.Err), r.Err.Err.Error())
		if err != nil {
			return fmt.Errorf("failed to record failure of %s: %w", r.File, err)
		}
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (run_id, file, file_size) VALUES (?, ?, ?)
		ON CONFLICT (run_id, file) DO UPDATE SET file_size = excluded.file_size`,
		runID, r.File, r.Size)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", r.File, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facts (
			run_id, file, variable, dimensions, shape, chunks, dtype,
			cache_bytes, cache_slots, cache_preemption, scale_factor, add_offset,
			compression, level, shuffle, fletcher32, coordinate, read_time_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range r.Facts {
		var cacheBytes, cacheSlots sql.NullInt64
		var preemption sql.NullFloat64
		if f.Cache.Available {
			cacheBytes = sql.NullInt64{Int64: f.Cache.Bytes, Valid: true}
			cacheSlots = sql.NullInt64{Int64: int64(f.Cache.Slots), Valid: true}
			preemption = sql.NullFloat64{Float64: f.Cache.Preemption, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			runID, r.File, f.Name,
			strings.Join(f.Dimensions, ","), formatShape(f.Shape), f.Chunks.String(), f.Dtype,
			cacheBytes, cacheSlots, preemption,
			sql.NullFloat64{Float64: f.Scale.Value, Valid: f.Scale.Valid},
			sql.NullFloat64{Float64: f.Offset.Value, Valid: f.Offset.Valid},
			f.Compression,
			sql.NullInt64{Int64: int64(f.Level.Value), Valid: f.Level.Valid},
			f.Shuffle, f.Fletcher32, f.Coordinate,
			sql.NullInt64{Int64: int64(f.ReadTime.Value), Valid: f.ReadTime.Valid},
		)
		if err != nil {
			return fmt.Errorf("failed to record %s of %s: %w", f.Name, r.File, err)
		}
	}
	return tx.Commit()
}

// FinishRun closes a run and stores its file and failure counts.
func (s *Store) FinishRun(ctx context.Context, runID string) (Run, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			files = (SELECT COUNT(*) FROM files WHERE run_id = runs.id)
				+ (SELECT COUNT(*) FROM failures WHERE run_id = runs.id),
			failures = (SELECT COUNT(*) FROM failures WHERE run_id = runs.id)
		WHERE id = ?`, time.Now().UTC().UnixNano(), runID)
	if err != nil {
		return Run{}, fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return s.Run(ctx, runID)
}

const runColumns = `id, started_at, finished_at, root, pattern, files, failures`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&run.ID, &started, &finished, &run.Root, &run.Pattern, &run.Files, &run.Failures); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		run.FinishedAt = time.Unix(0, finished.Int64).UTC()
	}
	return run, nil
}

// Runs lists every run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns the run whose id is, or uniquely starts with, id.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? LIMIT 2`, id+"%")
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	}
	return Run{}, fmt.Errorf("run id %q is ambiguous", id)
}

// Results returns the recorded results of a run, one per file in the order
// they were recorded, failures last.
func (s *Store) Results(ctx context.Context, runID string) ([]scan.Result, error) {
	results, err := s.files(ctx, runID)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(results))
	for i, r := range results {
		pos[r.File] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT file, variable, dimensions, shape, chunks, dtype,
			cache_bytes, cache_slots, cache_preemption, scale_factor, add_offset,
			compression, level, shuffle, fletcher32, coordinate, read_time_ns
		FROM facts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			file, dims, shape, chunks string
			f                         chunking.VariableLayoutFact
			cacheBytes, cacheSlots    sql.NullInt64
			preemption, scale, offset sql.NullFloat64
			level, readTime           sql.NullInt64
		)
		err := rows.Scan(&file, &f.Name, &dims, &shape, &chunks, &f.Dtype,
			&cacheBytes, &cacheSlots, &preemption, &scale, &offset,
			&f.Compression, &level, &f.Shuffle, &f.Fletcher32, &f.Coordinate, &readTime)
		if err != nil {
			return nil, err
		}
		if f.Chunks, err = chunking.ParseChunkShape(chunks); err != nil {
			return nil, fmt.Errorf("%s %s: %w", file, f.Name, err)
		}
		if f.Shape, err = parseShape(shape); err != nil {
			return nil, fmt.Errorf("%s %s: %w", file, f.Name, err)
		}
		if dims != "" {
			f.Dimensions = strings.Split(dims, ",")
		}
		if cacheBytes.Valid {
			f.Cache = chunking.Cache{
				Bytes: cacheBytes.Int64, Slots: int(cacheSlots.Int64),
				Preemption: preemption.Float64, Available: true,
			}
		}
		f.Scale = chunking.Optional[float64]{Value: scale.Float64, Valid: scale.Valid}
		f.Offset = chunking.Optional[float64]{Value: offset.Float64, Valid: offset.Valid}
		f.Level = chunking.Optional[int]{Value: int(level.Int64), Valid: level.Valid}
		f.ReadTime = chunking.Optional[time.Duration]{Value: time.Duration(readTime.Int64), Valid: readTime.Valid}

		i, ok := pos[file]
		if !ok {
			return nil, fmt.Errorf("%s %s: fact of an unrecorded file", file, f.Name)
		}
		results[i].Facts = append(results[i].Facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	failures, err := s.failures(ctx, runID)
	if err != nil {
		return nil, err
	}
	return append(results, failures...), nil
}

func (s *Store) files(ctx context.Context, runID string) ([]scan.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file, file_size FROM files WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scan.Result
	for rows.Next() {
		var r scan.Result
		if err := rows.Scan(&r.File, &r.Size); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) failures(ctx context.Context, runID string) ([]scan.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file, reason, message FROM failures WHERE run_id = ? ORDER BY file`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scan.Result
	for rows.Next() {
		var file, reason, message string
		if err := rows.Scan(&file, &reason, &message); err != nil {
			return nil, err
		}
		out = append(out, scan.Result{
			File: file,
			Err:  &scan.ScanError{File: file, Err: &recordedError{kind: kindOf(reason), msg: message}},
		})
	}
	return out, rows.Err()
}

// Index rebuilds the shape index of a run.
func (s *Store) Index(ctx context.Context, runID string) (aggregate.Index, []*scan.ScanError, error) {
	results, err := s.Results(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan scan.Result, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	ix, failed := aggregate.Aggregate(ch)
	return ix, failed, nil
}

// recordedError is a failure read back from the inventory. It matches the
// error kind it was recorded with.
type recordedError struct {
	kind error
	msg  string
}

func (e *recordedError) Error() string { return e.msg }
func (e *recordedError) Unwrap() error { return e.kind }

func kindOf(reason string) error {
	for _, kind := range []error{
		chunking.ErrFileNotFound,
		chunking.ErrVariableNotFound,
		chunking.ErrCorruptMetadata,
		chunking.ErrRankConflict,
	} {
		if chunking.Reason(kind) == reason {
			return kind
		}
	}
	return chunking.ErrExtraction
}

func formatShape(shape []uint64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return strings.Join(parts, ",")
}

func parseShape(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		d, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing shape %q: %w", s, err)
		}
		out[i] = d
	}
	return out, nil
}
