package report

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Subject is the one-line headline used for notifications and logs.
func Subject(r monitor.CycleReport) string {
	if r.Failed == 0 {
		return fmt.Sprintf("Website Monitor: all %d sites up (%.1f%% uptime)", r.TotalSites, r.UptimePercent)
	}
	return fmt.Sprintf("Website Monitor: %d of %d sites down (%.1f%% uptime)", r.Failed, r.TotalSites, r.UptimePercent)
}

// AverageLabel renders the average response time or "N/A".
func AverageLabel(r monitor.CycleReport) string {
	if r.AverageResponseTimeMs == nil {
		return "N/A"
	}
	return humanize.Comma(*r.AverageResponseTimeMs) + " ms"
}

// ResponseLabel renders one result's response time or "N/A".
func ResponseLabel(res monitor.CaptureResult) string {
	if res.ResponseTimeMs == nil {
		return "N/A"
	}
	return humanize.Comma(*res.ResponseTimeMs) + " ms"
}
