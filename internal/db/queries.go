package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run represents a row in the runs table.
type Run struct {
	ID         int64
	SpecFile   string
	OutputDir  string
	Status     string
	Configs    int
	StartedAt  string
	FinishedAt string
}

// ScenarioResult represents a row in the scenario_results table.
type ScenarioResult struct {
	ID         int64
	RunID      int64
	Name       string
	Identifier string
	Status     string
	Configs    int
	Reason     string
	DurationMs int64
}

// StageEvent represents a row in the stage_events table.
type StageEvent struct {
	ID         int64
	RunID      int64
	Scenario   string
	Stage      string
	StageIndex int
	Inputs     int
	Outputs    int
	Cached     bool
	DurationMs int64
	Error      string
	Timestamp  string
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StartRun records a new run in status "running" and returns its id.
func (d *DB) StartRun(specFile, outputDir string) (int64, error) {
	var id int64
	err := d.conn.QueryRow(
		d.Rebind(`INSERT INTO runs (spec_file, output_dir, status, started_at) VALUES (?, ?, 'running', ?) RETURNING id`),
		specFile, outputDir, now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun sets the final status and config count of a run.
func (d *DB) FinishRun(id int64, status string, configs int) error {
	res, err := d.conn.Exec(
		d.Rebind(`UPDATE runs SET status = ?, configs = ?, finished_at = ? WHERE id = ?`),
		status, configs, now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", id)
	}
	return nil
}

// LogScenarioResult inserts the outcome of one scenario.
func (d *DB) LogScenarioResult(r ScenarioResult) error {
	_, err := d.conn.Exec(
		d.Rebind(`INSERT INTO scenario_results (run_id, name, identifier, status, configs, reason, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.RunID, r.Name, nullable(r.Identifier), r.Status, r.Configs, nullable(r.Reason), r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("log scenario result: %w", err)
	}
	return nil
}

// LogStageEvent inserts one stage invocation.
func (d *DB) LogStageEvent(e StageEvent) error {
	ts := e.Timestamp
	if ts == "" {
		ts = now()
	}
	_, err := d.conn.Exec(
		d.Rebind(`INSERT INTO stage_events (run_id, scenario, stage, stage_index, inputs, outputs, cached, duration_ms, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.RunID, e.Scenario, e.Stage, e.StageIndex, e.Inputs, e.Outputs, e.Cached, e.DurationMs, nullable(e.Error), ts,
	)
	if err != nil {
		return fmt.Errorf("log stage event: %w", err)
	}
	return nil
}

// GetRun returns a run by id, or nil if it does not exist.
func (d *DB) GetRun(id int64) (*Run, error) {
	row := d.conn.QueryRow(
		d.Rebind(`SELECT id, spec_file, output_dir, status, configs, started_at, finished_at FROM runs WHERE id = ?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT id, spec_file, output_dir, status, configs, started_at, finished_at FROM runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.conn.Query(d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var finished sql.NullString
	if err := s.Scan(&r.ID, &r.SpecFile, &r.OutputDir, &r.Status, &r.Configs, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.FinishedAt = finished.String
	return &r, nil
}

// ScenarioResults returns the scenario outcomes of a run in insertion order.
func (d *DB) ScenarioResults(runID int64) ([]ScenarioResult, error) {
	return d.queryScenarioResults(`WHERE run_id = ?`, runID)
}

// IdentifierHistory returns every recorded outcome of the scenario with the
// given identifier, oldest first.
func (d *DB) IdentifierHistory(identifier string) ([]ScenarioResult, error) {
	return d.queryScenarioResults(`WHERE identifier = ?`, identifier)
}

func (d *DB) queryScenarioResults(where string, arg any) ([]ScenarioResult, error) {
	rows, err := d.conn.Query(d.Rebind(
		`SELECT id, run_id, name, identifier, status, configs, reason, duration_ms FROM scenario_results `+where+` ORDER BY id ASC`), arg)
	if err != nil {
		return nil, fmt.Errorf("query scenario results: %w", err)
	}
	defer rows.Close()

	var out []ScenarioResult
	for rows.Next() {
		var r ScenarioResult
		var identifier, reason sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.Name, &identifier, &r.Status, &r.Configs, &reason, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("scan scenario result: %w", err)
		}
		r.Identifier, r.Reason = identifier.String, reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// StageEvents returns the stage invocations of a run in order.
func (d *DB) StageEvents(runID int64) ([]StageEvent, error) {
	rows, err := d.conn.Query(d.Rebind(
		`SELECT id, run_id, scenario, stage, stage_index, inputs, outputs, cached, duration_ms, error, timestamp
		 FROM stage_events WHERE run_id = ? ORDER BY id ASC`), runID)
	if err != nil {
		return nil, fmt.Errorf("query stage events: %w", err)
	}
	defer rows.Close()

	var out []StageEvent
	for rows.Next() {
		var e StageEvent
		var msg sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Scenario, &e.Stage, &e.StageIndex, &e.Inputs, &e.Outputs, &e.Cached, &e.DurationMs, &msg, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		e.Error = msg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// CacheStats counts the stage invocations of a run and how many were served
// from the stage cache.
func (d *DB) CacheStats(runID int64) (hits, total int, err error) {
	err = d.conn.QueryRow(d.Rebind(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) FROM stage_events WHERE run_id = ?`), runID,
	).Scan(&total, &hits)
	if err != nil {
		return 0, 0, fmt.Errorf("cache stats: %w", err)
	}
	return hits, total, nil
}
