// Package analytics aggregates recorded runs into stage timing, cache and
// throughput statistics.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// StageStats holds timing and outcome stats for one stage family.
type StageStats struct {
	Stage     string  `json:"stage"`
	Count     int     `json:"count"`
	CachedPct float64 `json:"cached_pct"`
	FailedPct float64 `json:"failed_pct"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	// Fanout is the average outputs per input of successful invocations.
	Fanout float64 `json:"fanout"`
}

// QueryStageStats returns per-stage statistics over stage_events. Percentiles
// cover invocations that actually ran; cache hits would drag them to zero.
func QueryStageStats(database DB, since string) ([]StageStats, error) {
	query := `SELECT stage, cached, duration_ms, inputs, outputs, COALESCE(error, '') FROM stage_events`
	args := []any{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query stage stats: %w", err)
	}
	defer rows.Close()

	type acc struct {
		count, cached, failed int
		durations             []float64
		inputs, outputs       int
	}
	byStage := make(map[string]*acc)
	for rows.Next() {
		var stage, errMsg string
		var cached bool
		var ms int64
		var inputs, outputs int
		if err := rows.Scan(&stage, &cached, &ms, &inputs, &outputs, &errMsg); err != nil {
			return nil, fmt.Errorf("scan stage stats: %w", err)
		}
		a := byStage[stage]
		if a == nil {
			a = &acc{}
			byStage[stage] = a
		}
		a.count++
		switch {
		case errMsg != "":
			a.failed++
		case cached:
			a.cached++
		default:
			a.durations = append(a.durations, float64(ms))
		}
		if errMsg == "" {
			a.inputs += inputs
			a.outputs += outputs
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]StageStats, 0, len(byStage))
	for stage, a := range byStage {
		sort.Float64s(a.durations)
		s := StageStats{
			Stage:     stage,
			Count:     a.count,
			CachedPct: pct(a.cached, a.count),
			FailedPct: pct(a.failed, a.count),
			AvgMs:     avg(a.durations),
			P50Ms:     percentile(a.durations, 50),
			P95Ms:     percentile(a.durations, 95),
		}
		if a.inputs > 0 {
			s.Fanout = math.Round(float64(a.outputs)/float64(a.inputs)*10) / 10
		}
		results = append(results, s)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// ScenarioStats holds outcome stats for one abstract scenario across runs.
type ScenarioStats struct {
	Name       string  `json:"name"`
	Runs       int     `json:"runs"`
	FailedPct  float64 `json:"failed_pct"`
	AvgConfigs float64 `json:"avg_configs"`
	// Identifiers counts distinct structural identifiers, i.e. how often the
	// scenario definition or its inputs changed.
	Identifiers int `json:"identifiers"`
}

// QueryScenarioStats returns per-scenario statistics over scenario_results.
func QueryScenarioStats(database DB, since string) ([]ScenarioStats, error) {
	query := `
		SELECT sr.name,
			COUNT(*) AS runs,
			SUM(CASE WHEN sr.status = 'failed' THEN 1 ELSE 0 END) AS failed,
			SUM(CASE WHEN sr.status = 'failed' THEN 0 ELSE sr.configs END) AS configs,
			COUNT(DISTINCT sr.identifier) AS identifiers
		FROM scenario_results sr
		JOIN runs r ON r.id = sr.run_id`

	args := []any{}
	if since != "" {
		query += ` WHERE r.started_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY sr.name ORDER BY sr.name`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query scenario stats: %w", err)
	}
	defer rows.Close()

	var results []ScenarioStats
	for rows.Next() {
		var s ScenarioStats
		var failed, configs int
		if err := rows.Scan(&s.Name, &s.Runs, &failed, &configs, &s.Identifiers); err != nil {
			return nil, fmt.Errorf("scan scenario stats: %w", err)
		}
		s.FailedPct = pct(failed, s.Runs)
		if ok := s.Runs - failed; ok > 0 {
			s.AvgConfigs = math.Round(float64(configs)/float64(ok)*10) / 10
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// Throughput holds generation volume for one day.
type Throughput struct {
	Day     string `json:"day"`
	Runs    int    `json:"runs"`
	Failed  int    `json:"failed"`
	Configs int    `json:"configs"`
}

// QueryThroughput returns runs and configs generated per day, newest first.
func QueryThroughput(database DB, since string) ([]Throughput, error) {
	query := `
		SELECT SUBSTR(started_at, 1, 10) AS day,
			COUNT(*) AS runs,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			SUM(configs) AS configs
		FROM runs
		WHERE status != 'running'`

	args := []any{}
	if since != "" {
		query += ` AND started_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY SUBSTR(started_at, 1, 10) ORDER BY day DESC`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query throughput: %w", err)
	}
	defer rows.Close()

	var results []Throughput
	for rows.Next() {
		var t Throughput
		if err := rows.Scan(&t.Day, &t.Runs, &t.Failed, &t.Configs); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
