package analytics

import (
	"database/sql"
	"testing"

	"github.com/lucasnoah/variantfactory/internal/db"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func exec(t *testing.T, conn *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func insertRun(t *testing.T, c *sql.DB, id int, status string, configs int, started string) {
	t.Helper()
	exec(t, c, `INSERT INTO runs (id, spec_file, output_dir, status, configs, started_at) VALUES (?, 'a.vast', 'out', ?, ?, ?)`,
		id, status, configs, started)
}

func insertEvent(t *testing.T, c *sql.DB, run int, stage string, cached bool, ms, in, out int, errMsg, ts string) {
	t.Helper()
	var e any
	if errMsg != "" {
		e = errMsg
	}
	exec(t, c, `INSERT INTO stage_events (run_id, scenario, stage, stage_index, inputs, outputs, cached, duration_ms, error, timestamp)
		VALUES (?, 's', ?, 0, ?, ?, ?, ?, ?, ?)`, run, stage, in, out, cached, ms, e, ts)
}

// --- QueryStageStats ---

func TestQueryStageStats(t *testing.T) {
	d := testDB(t)
	c := d.Conn()
	insertRun(t, c, 1, "completed", 6, "2024-06-01T10:00:00Z")

	insertEvent(t, c, 1, "PathVariation", false, 100, 1, 3, "", "2024-06-01T10:00:01Z")
	insertEvent(t, c, 1, "PathVariation", false, 300, 1, 3, "", "2024-06-01T10:00:02Z")
	insertEvent(t, c, 1, "PathVariation", true, 1, 2, 6, "", "2024-06-01T10:00:03Z")
	insertEvent(t, c, 1, "PathVariation", false, 50, 1, 0, "path not found", "2024-06-01T10:00:04Z")
	insertEvent(t, c, 1, "ParameterVariationList", false, 2, 1, 2, "", "2024-06-01T10:00:05Z")

	results, err := QueryStageStats(d, "")
	if err != nil {
		t.Fatalf("QueryStageStats: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(results))
	}
	if results[0].Stage != "ParameterVariationList" || results[1].Stage != "PathVariation" {
		t.Fatalf("stages not sorted: %+v", results)
	}

	p := results[1]
	if p.Count != 4 {
		t.Errorf("count = %d, want 4", p.Count)
	}
	if p.CachedPct != 25.0 || p.FailedPct != 25.0 {
		t.Errorf("cached = %.1f failed = %.1f, want 25/25", p.CachedPct, p.FailedPct)
	}
	if p.AvgMs != 200.0 {
		t.Errorf("avg = %.1f, want 200 (cache hits and failures excluded)", p.AvgMs)
	}
	if p.P50Ms != 200.0 {
		t.Errorf("p50 = %.1f, want 200", p.P50Ms)
	}
	if p.Fanout != 3.0 {
		t.Errorf("fanout = %.1f, want 3", p.Fanout)
	}
}

func TestQueryStageStats_Since(t *testing.T) {
	d := testDB(t)
	c := d.Conn()
	insertRun(t, c, 1, "completed", 1, "2024-06-01T10:00:00Z")
	insertEvent(t, c, 1, "old", false, 10, 1, 1, "", "2024-05-01T10:00:00Z")
	insertEvent(t, c, 1, "new", false, 10, 1, 1, "", "2024-06-02T10:00:00Z")

	results, err := QueryStageStats(d, "2024-06-01")
	if err != nil {
		t.Fatalf("QueryStageStats: %v", err)
	}
	if len(results) != 1 || results[0].Stage != "new" {
		t.Errorf("expected only the new stage, got %+v", results)
	}
}

func TestQueryStageStats_Empty(t *testing.T) {
	d := testDB(t)
	results, err := QueryStageStats(d, "")
	if err != nil {
		t.Fatalf("QueryStageStats: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

// --- QueryScenarioStats ---

func TestQueryScenarioStats(t *testing.T) {
	d := testDB(t)
	c := d.Conn()
	insertRun(t, c, 1, "completed", 4, "2024-06-01T10:00:00Z")
	insertRun(t, c, 2, "partial", 6, "2024-06-02T10:00:00Z")
	exec(t, c, `INSERT INTO scenario_results (run_id, name, identifier, status, configs) VALUES (1, 'nav', 'aaa', 'completed', 4)`)
	exec(t, c, `INSERT INTO scenario_results (run_id, name, identifier, status, configs) VALUES (2, 'nav', 'bbb', 'completed', 6)`)
	exec(t, c, `INSERT INTO scenario_results (run_id, name, identifier, status, configs, reason) VALUES (2, 'sweep', 'ccc', 'failed', 0, 'boom')`)

	results, err := QueryScenarioStats(d, "")
	if err != nil {
		t.Fatalf("QueryScenarioStats: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(results))
	}
	nav := results[0]
	if nav.Name != "nav" || nav.Runs != 2 || nav.AvgConfigs != 5.0 || nav.Identifiers != 2 {
		t.Errorf("nav stats = %+v", nav)
	}
	sweep := results[1]
	if sweep.FailedPct != 100.0 || sweep.AvgConfigs != 0 {
		t.Errorf("sweep stats = %+v", sweep)
	}

	recent, err := QueryScenarioStats(d, "2024-06-02")
	if err != nil {
		t.Fatalf("QueryScenarioStats since: %v", err)
	}
	if len(recent) != 2 || recent[0].Runs != 1 {
		t.Errorf("since filter: %+v", recent)
	}
}

// --- QueryThroughput ---

func TestQueryThroughput(t *testing.T) {
	d := testDB(t)
	c := d.Conn()
	insertRun(t, c, 1, "completed", 4, "2024-06-01T10:00:00Z")
	insertRun(t, c, 2, "failed", 0, "2024-06-01T12:00:00Z")
	insertRun(t, c, 3, "completed", 10, "2024-06-02T09:00:00Z")
	insertRun(t, c, 4, "running", 0, "2024-06-02T11:00:00Z")

	results, err := QueryThroughput(d, "")
	if err != nil {
		t.Fatalf("QueryThroughput: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 days, got %d", len(results))
	}
	if results[0].Day != "2024-06-02" || results[0].Runs != 1 || results[0].Configs != 10 {
		t.Errorf("day 2 = %+v", results[0])
	}
	if results[1].Runs != 2 || results[1].Failed != 1 || results[1].Configs != 4 {
		t.Errorf("day 1 = %+v", results[1])
	}
}

// --- helpers ---

func TestPercentile(t *testing.T) {
	if got := percentile([]float64{10, 20, 30, 40}, 50); got != 25.0 {
		t.Errorf("p50 = %.1f, want 25", got)
	}
	if got := percentile([]float64{7}, 95); got != 7.0 {
		t.Errorf("single value p95 = %.1f", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty p50 = %.1f", got)
	}
}

func TestPct(t *testing.T) {
	if got := pct(1, 3); got != 33.3 {
		t.Errorf("pct(1,3) = %.1f", got)
	}
	if got := pct(1, 0); got != 0 {
		t.Errorf("pct(1,0) = %.1f", got)
	}
}
