// Package postgres provides a Postgres-backed cycle report history.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const defaultTable = "cycle_reports"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for report rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// EnsureSchema creates the table when it does not exist.
	EnsureSchema bool
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ReportStore appends one row per cycle. Rows are never updated.
type ReportStore struct {
	pool  pool
	table string
}

// NewReportStore connects to Postgres using cfg.
func NewReportStore(ctx context.Context, cfg Config) (*ReportStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.reports.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &ReportStore{pool: p, table: table}
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewReportStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReportStoreWithPool(p pool, table string) (*ReportStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ReportStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the report table and its timestamp index.
func (s *ReportStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	cycle_id TEXT PRIMARY KEY,
	report_ts TIMESTAMPTZ NOT NULL,
	total_sites INTEGER NOT NULL,
	successful INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	uptime_percent DOUBLE PRECISION NOT NULL,
	avg_response_ms BIGINT,
	report JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_report_ts_idx ON %[1]s (report_ts DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create report table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ReportStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save inserts the report and returns its cycle id.
func (s *ReportStore) Save(ctx context.Context, report monitor.CycleReport) (string, error) {
	if report.CycleID == "" {
		return "", fmt.Errorf("cycle id is required")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	cycle_id,
	report_ts,
	total_sites,
	successful,
	failed,
	uptime_percent,
	avg_response_ms,
	report
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)

	args := []any{
		report.CycleID,
		report.Timestamp.UTC(),
		report.TotalSites,
		report.Successful,
		report.Failed,
		report.UptimePercent,
		report.AverageResponseTimeMs,
		body,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return report.CycleID, nil
}

// Latest returns the report with the newest timestamp.
func (s *ReportStore) Latest(ctx context.Context) (monitor.CycleReport, string, error) {
	query := fmt.Sprintf(`SELECT cycle_id, report FROM %s ORDER BY report_ts DESC LIMIT 1`, s.table)
	var (
		id   string
		body []byte
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&id, &body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.CycleReport{}, "", monitor.ErrNotFound
		}
		return monitor.CycleReport{}, "", fmt.Errorf("select latest report: %w", err)
	}
	var report monitor.CycleReport
	if err := json.Unmarshal(body, &report); err != nil {
		return monitor.CycleReport{}, "", fmt.Errorf("decode report %s: %w", id, err)
	}
	return report, id, nil
}
