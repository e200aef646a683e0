// Package sqlite keeps the cycle report history in a local SQLite file
// through the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/sitewatch/internal/monitor"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS cycle_reports (
    cycle_id TEXT PRIMARY KEY,
    report_ts TEXT NOT NULL,
    total_sites INTEGER NOT NULL,
    successful INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    uptime_percent REAL NOT NULL,
    avg_response_ms INTEGER,
    report TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS cycle_reports_ts ON cycle_reports(report_ts);`

// tsLayout sorts lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// ReportStore appends one row per cycle.
type ReportStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// ":memory:" keeps everything in process.
func Open(path string) (*ReportStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &ReportStore{db: db}, nil
}

// Close closes the database.
func (s *ReportStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}

// Save inserts the report and returns its cycle id.
func (s *ReportStore) Save(ctx context.Context, report monitor.CycleReport) (string, error) {
	if report.CycleID == "" {
		return "", errors.New("sqlite: cycle id is required")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal report: %w", err)
	}
	var avg sql.NullInt64
	if report.AverageResponseTimeMs != nil {
		avg = sql.NullInt64{Int64: *report.AverageResponseTimeMs, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO cycle_reports (cycle_id, report_ts, total_sites, successful, failed, uptime_percent, avg_response_ms, report)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.CycleID,
		report.Timestamp.UTC().Format(tsLayout),
		report.TotalSites,
		report.Successful,
		report.Failed,
		report.UptimePercent,
		avg,
		string(body),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: insert report: %w", err)
	}
	return report.CycleID, nil
}

// Latest returns the report with the newest timestamp.
func (s *ReportStore) Latest(ctx context.Context) (monitor.CycleReport, string, error) {
	var id, body string
	err := s.db.QueryRowContext(ctx,
		`SELECT cycle_id, report FROM cycle_reports ORDER BY report_ts DESC, rowid DESC LIMIT 1`).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.CycleReport{}, "", monitor.ErrNotFound
	}
	if err != nil {
		return monitor.CycleReport{}, "", fmt.Errorf("sqlite: select latest: %w", err)
	}
	var report monitor.CycleReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return monitor.CycleReport{}, "", fmt.Errorf("sqlite: decode report %s: %w", id, err)
	}
	return report, id, nil
}

// Count returns the number of stored reports.
func (s *ReportStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycle_reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count reports: %w", err)
	}
	return n, nil
}
