// Package report folds a cycle's capture results into a CycleReport.
package report

import (
	"math"
	"time"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Process exit codes for single-shot mode.
const (
	ExitOK          = 0
	ExitFatal       = 1
	ExitSitesFailed = 2
)

// Aggregate builds the report for results. It is pure: results are copied
// in order and never modified.
func Aggregate(cycleID string, at time.Time, results []monitor.CaptureResult) monitor.CycleReport {
	report := monitor.CycleReport{
		CycleID:    cycleID,
		Timestamp:  at.UTC(),
		TotalSites: len(results),
		Results:    append([]monitor.CaptureResult{}, results...),
	}

	var (
		timedSum   int64
		timedCount int64
	)
	for _, res := range results {
		if !res.Success {
			continue
		}
		report.Successful++
		if res.ResponseTimeMs != nil {
			timedSum += *res.ResponseTimeMs
			timedCount++
		}
	}
	report.Failed = report.TotalSites - report.Successful
	report.UptimePercent = UptimePercent(report.Successful, report.TotalSites)
	if timedCount > 0 {
		avg := int64(math.Round(float64(timedSum) / float64(timedCount)))
		report.AverageResponseTimeMs = &avg
	}
	return report
}

// UptimePercent is successful/total as a percentage rounded to one decimal,
// or 0 when total is 0.
func UptimePercent(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(successful)/float64(total)*1000) / 10
}

// ExitCode maps a report to the single-shot exit status.
func ExitCode(report monitor.CycleReport) int {
	if report.Failed > 0 {
		return ExitSitesFailed
	}
	return ExitOK
}
