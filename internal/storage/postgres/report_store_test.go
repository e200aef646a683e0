package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

func TestSaveInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "")
	require.NoError(t, err)

	avg := int64(230)
	report := monitor.CycleReport{
		CycleID:               "cycle-1",
		Timestamp:             time.Unix(1700000000, 0).UTC(),
		TotalSites:            3,
		Successful:            2,
		Failed:                1,
		UptimePercent:         66.7,
		AverageResponseTimeMs: &avg,
	}
	body, err := json.Marshal(report)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO cycle_reports").
		WithArgs(
			report.CycleID,
			report.Timestamp,
			3,
			2,
			1,
			66.7,
			&avg,
			body,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ref, err := store.Save(context.Background(), report)
	require.NoError(t, err)
	require.Equal(t, "cycle-1", ref)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRequiresCycleID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "reports")
	require.NoError(t, err)
	_, err = store.Save(context.Background(), monitor.CycleReport{})
	require.Error(t, err)
}

func TestLatestDecodesReport(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "reports")
	require.NoError(t, err)

	body, err := json.Marshal(monitor.CycleReport{CycleID: "c9", TotalSites: 1, Successful: 1, UptimePercent: 100})
	require.NoError(t, err)
	mock.ExpectQuery("SELECT cycle_id, report FROM reports").
		WillReturnRows(pgxmock.NewRows([]string{"cycle_id", "report"}).AddRow("c9", body))

	report, ref, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, "c9", ref)
	require.Equal(t, 1, report.Successful)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestWithoutRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "reports")
	require.NoError(t, err)
	mock.ExpectQuery("SELECT cycle_id").WillReturnError(pgx.ErrNoRows)

	_, _, err = store.Latest(context.Background())
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestRejectsInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewReportStoreWithPool(mock, "reports; DROP TABLE x")
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "reports")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS reports").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
