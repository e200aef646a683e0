package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const (
	reportPrefix     = "report-"
	reportSuffix     = ".json"
	reportTimeLayout = "20060102T150405Z"
	maxNameAttempts  = 10
)

// ReportStore keeps one JSON file per cycle. Files are created exclusively
// and never rewritten.
type ReportStore struct {
	dir string
}

// NewReportStore creates the store rooted at dir.
func NewReportStore(dir string) (*ReportStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if err := ensureWritableDir(dir); err != nil {
		return nil, err
	}
	return &ReportStore{dir: filepath.Clean(dir)}, nil
}

// Save writes report as report-<UTC timestamp>.json and returns the file name.
func (s *ReportStore) Save(_ context.Context, report monitor.CycleReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	stamp := report.Timestamp.UTC().Format(reportTimeLayout)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := reportPrefix + stamp + reportSuffix
		if attempt > 0 {
			name = fmt.Sprintf("%s%s.%d%s", reportPrefix, stamp, attempt, reportSuffix)
		}
		err := writeExclusive(filepath.Join(s.dir, name), body)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("report %s: %w", name, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("report %s: too many reports for one second", stamp)
}

func writeExclusive(path string, body []byte) error {
	// #nosec G304 -- path is built from the store directory and a timestamp.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// reportName is a parsed report file name: the cycle timestamp and the
// same-second collision counter (0 for the unsuffixed name).
type reportName struct {
	file    string
	stamp   string
	attempt int
}

func parseReportName(file string) (reportName, bool) {
	if !strings.HasPrefix(file, reportPrefix) || !strings.HasSuffix(file, reportSuffix) {
		return reportName{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(file, reportPrefix), reportSuffix)
	stamp, suffix, hasSuffix := strings.Cut(core, ".")
	if _, err := time.Parse(reportTimeLayout, stamp); err != nil {
		return reportName{}, false
	}
	n := reportName{file: file, stamp: stamp}
	if hasSuffix {
		attempt, err := strconv.Atoi(suffix)
		if err != nil || attempt <= 0 {
			return reportName{}, false
		}
		n.attempt = attempt
	}
	return n, true
}

// Latest returns the newest report by timestamp, then by save order within
// the same second.
func (s *ReportStore) Latest(_ context.Context) (monitor.CycleReport, string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return monitor.CycleReport{}, "", fmt.Errorf("list reports: %w", err)
	}
	var names []reportName
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if n, ok := parseReportName(entry.Name()); ok {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return monitor.CycleReport{}, "", monitor.ErrNotFound
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].stamp != names[j].stamp {
			return names[i].stamp < names[j].stamp
		}
		return names[i].attempt < names[j].attempt
	})
	latest := names[len(names)-1].file

	// #nosec G304 -- name comes from listing the store directory.
	body, err := os.ReadFile(filepath.Join(s.dir, latest))
	if err != nil {
		return monitor.CycleReport{}, "", fmt.Errorf("read report %s: %w", latest, err)
	}
	var report monitor.CycleReport
	if err := json.Unmarshal(body, &report); err != nil {
		return monitor.CycleReport{}, "", fmt.Errorf("decode report %s: %w", latest, err)
	}
	return report, latest, nil
}
