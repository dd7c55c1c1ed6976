// Package catalog is a SQLite-backed classification engine. It stores
// per-satellite flags, records runs, keeps info written back by the
// positioning engine and holds the decision audit log.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	status       INTEGER,
	config_json  TEXT
);

CREATE TABLE IF NOT EXISTS sat_flags (
	sat_id       TEXT NOT NULL,
	week         INTEGER NOT NULL,
	tow          INTEGER NOT NULL,
	nlos         INTEGER NOT NULL DEFAULT 0,
	virtual      INTEGER NOT NULL DEFAULT 0,
	coefficient  REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (sat_id, week, tow)
);

CREATE TABLE IF NOT EXISTS info_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	week         INTEGER NOT NULL,
	tow          REAL NOT NULL,
	key          TEXT NOT NULL,
	value        TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS decision_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	operation    TEXT NOT NULL,
	sat_id       TEXT,
	week         INTEGER NOT NULL,
	tow          REAL NOT NULL,
	outcome      TEXT NOT NULL,
	value        TEXT,
	reason       TEXT,
	created_at   TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store manages the catalog in SQLite.
type Store struct {
	db *sql.DB
}

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the decision audit log.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region runs

// BeginRun records the start of a positioning run and returns it.
func (s *Store) BeginRun(configJSON string) (Run, error) {
	run := Run{
		RunID:      uuid.New().String(),
		StartedAt:  time.Now().UTC(),
		ConfigJSON: configJSON,
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, started_at, config_json) VALUES (?, ?, ?)`,
		run.RunID, run.StartedAt.Format(time.RFC3339Nano), nullIfEmpty(configJSON),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps a run with its exit status.
func (s *Store) FinishRun(runID string, status int) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun reads one run.
func (s *Store) GetRun(runID string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, started_at, finished_at, status, config_json FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, started_at, finished_at, status, config_json
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var started string
	var finished, config sql.NullString
	var status sql.NullInt64
	if err := sc.Scan(&run.RunID, &started, &finished, &status, &config); err != nil {
		return Run{}, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		run.Finished = true
	}
	if status.Valid {
		run.Status = int(status.Int64)
	}
	run.ConfigJSON = config.String
	return run, nil
}

// #endregion runs

// #region flags

// UpsertFlags inserts or replaces flag rows in one transaction.
func (s *Store) UpsertFlags(flags []Flag) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO sat_flags (sat_id, week, tow, nlos, virtual, coefficient)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sat_id, week, tow) DO UPDATE SET
			nlos = excluded.nlos, virtual = excluded.virtual, coefficient = excluded.coefficient`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, f := range flags {
		if f.SatID == "" {
			return errors.New("upsert flag: empty satellite id")
		}
		coef := f.Coefficient
		if coef == 0 {
			coef = 1.0
		}
		if _, err := stmt.Exec(f.SatID, f.Week, f.TOW, f.NLOS, f.Virtual, coef); err != nil {
			return fmt.Errorf("upsert flag %s: %w", f.SatID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LookupFlag returns the flag for a satellite at (week, tow), falling back to
// the satellite's AllEpochs row. ok is false when neither exists.
func (s *Store) LookupFlag(satID string, week int, tow int64) (Flag, bool, error) {
	f := Flag{SatID: satID}
	err := s.db.QueryRow(
		`SELECT week, tow, nlos, virtual, coefficient FROM sat_flags
		 WHERE sat_id = ? AND ((week = ? AND tow = ?) OR week = ?)
		 ORDER BY week DESC LIMIT 1`,
		satID, week, tow, AllEpochs,
	).Scan(&f.Week, &f.TOW, &f.NLOS, &f.Virtual, &f.Coefficient)
	if errors.Is(err, sql.ErrNoRows) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, fmt.Errorf("lookup flag %s: %w", satID, err)
	}
	return f, true, nil
}

// CountFlags reports the number of stored flag rows.
func (s *Store) CountFlags() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sat_flags`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flags: %w", err)
	}
	return n, nil
}

// #endregion flags

// #region info

// AppendInfo persists info records in one transaction.
func (s *Store) AppendInfo(records []InfoRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err := tx.Exec(
			`INSERT INTO info_records (run_id, week, tow, key, value, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Week, r.TOW, r.Key, nullIfEmpty(r.Value), created.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert info: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListInfo returns a run's info records in insertion order.
func (s *Store) ListInfo(runID string) ([]InfoRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, week, tow, key, value, created_at
		 FROM info_records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list info: %w", err)
	}
	defer rows.Close()

	var out []InfoRecord
	for rows.Next() {
		var r InfoRecord
		var value sql.NullString
		var created string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Week, &r.TOW, &r.Key, &value, &created); err != nil {
			return nil, fmt.Errorf("scan info: %w", err)
		}
		r.Value = value.String
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion info

// #region decisions

// ListDecisions returns the last limit audit rows of a run in insertion order.
// An empty runID lists across runs.
func (s *Store) ListDecisions(runID string, limit int) ([]DecisionRow, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, operation, sat_id, week, tow, outcome, value, reason, created_at
		 FROM (SELECT * FROM decision_log WHERE ? = '' OR run_id = ? ORDER BY id DESC LIMIT ?)
		 ORDER BY id`, runID, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var d DecisionRow
		var sat, value, reason sql.NullString
		var created string
		if err := rows.Scan(&d.ID, &d.RunID, &d.Operation, &sat, &d.Week, &d.TOW, &d.Outcome, &value, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.SatID, d.Value, d.Reason = sat.String, value.String, reason.String
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// #endregion decisions

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
