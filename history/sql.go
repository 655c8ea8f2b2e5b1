// Copyright 2026, Square, Inc.

package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/runner"
)

type sqlStore struct {
	db *sql.DB
}

// NewSQLStore opens a MySQL-backed Store and creates its tables if they
// don't exist. The dsn must include parseTime=true for timestamp scanning.
func NewSQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot reach history db: %s", err)
	}
	s := &sqlStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) ensureSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id       VARCHAR(32)  NOT NULL,
			state        VARCHAR(16)  NOT NULL,
			built        INT          NOT NULL,
			skipped      INT          NOT NULL,
			failed       INT          NOT NULL,
			started_at   TIMESTAMP(3) NOT NULL,
			finished_at  TIMESTAMP(3) NOT NULL,
			PRIMARY KEY (run_id),
			INDEX (started_at)
		)`,
		`CREATE TABLE IF NOT EXISTS run_results (
			run_id   VARCHAR(32)  NOT NULL,
			name     VARCHAR(255) NOT NULL,
			success  TINYINT(1)   NOT NULL,
			skipped  TINYINT(1)   NOT NULL,
			reason   VARCHAR(512) NOT NULL,
			error    TEXT,
			PRIMARY KEY (run_id, name),
			INDEX (run_id)
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) SaveRun(status proto.RunStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO runs (run_id, state, built, skipped, failed, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		status.RunId,
		proto.StateName[status.State],
		status.Built,
		status.Skipped,
		status.Failed,
		status.StartedAt,
		status.FinishedAt,
	)
	if err != nil {
		return err
	}

	for _, r := range status.Results {
		_, err = tx.Exec(
			"INSERT INTO run_results (run_id, name, success, skipped, reason, error) VALUES (?, ?, ?, ?, ?, ?)",
			status.RunId, r.Name, r.Success, r.Skipped, r.Reason, r.Error,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *sqlStore) Runs(limit int) ([]proto.RunStatus, error) {
	q := "SELECT run_id, state, built, skipped, failed, started_at, finished_at FROM runs ORDER BY started_at DESC"
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []proto.RunStatus{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *sqlStore) Run(runId string) (proto.RunStatus, error) {
	row := s.db.QueryRow(
		"SELECT run_id, state, built, skipped, failed, started_at, finished_at FROM runs WHERE run_id = ?",
		runId,
	)
	status, err := scanRun(row)
	if err == sql.ErrNoRows {
		return proto.RunStatus{}, fmt.Errorf("run %s not found", runId)
	}
	if err != nil {
		return proto.RunStatus{}, err
	}

	rows, err := s.db.Query(
		"SELECT name, success, skipped, reason, error FROM run_results WHERE run_id = ? ORDER BY name",
		runId,
	)
	if err != nil {
		return proto.RunStatus{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var r proto.BuildResult
		var errText sql.NullString
		if err := rows.Scan(&r.Name, &r.Success, &r.Skipped, &r.Reason, &errText); err != nil {
			return proto.RunStatus{}, err
		}
		r.Error = errText.String
		status.Results = append(status.Results, r)
	}
	status.FailedNames = runner.FailedNames(status.Results)
	return status, rows.Err()
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scannable) (proto.RunStatus, error) {
	var status proto.RunStatus
	var state string
	var started, finished time.Time
	err := row.Scan(&status.RunId, &state, &status.Built, &status.Skipped, &status.Failed, &started, &finished)
	if err != nil {
		return status, err
	}
	status.State = proto.StateValue[state]
	status.StartedAt = started
	status.FinishedAt = finished
	return status, nil
}
