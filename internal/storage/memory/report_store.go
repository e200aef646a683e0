package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// ReportStore appends cycle reports to an in-memory slice.
type ReportStore struct {
	mu      sync.RWMutex
	reports []monitor.CycleReport
}

// NewReportStore constructs an empty ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// Save appends report and returns its position as the reference.
func (s *ReportStore) Save(_ context.Context, report monitor.CycleReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report.Results = append([]monitor.CaptureResult(nil), report.Results...)
	s.reports = append(s.reports, report)
	return fmt.Sprintf("memory://reports/%d", len(s.reports)-1), nil
}

// Latest returns the most recently saved report.
func (s *ReportStore) Latest(_ context.Context) (monitor.CycleReport, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return monitor.CycleReport{}, "", monitor.ErrNotFound
	}
	idx := len(s.reports) - 1
	return s.reports[idx], fmt.Sprintf("memory://reports/%d", idx), nil
}

// All returns every saved report in order.
func (s *ReportStore) All() []monitor.CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]monitor.CycleReport(nil), s.reports...)
}
