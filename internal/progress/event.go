package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageCycleStart  Stage = "CYCLE_START"
	StageCycleDone   Stage = "CYCLE_DONE"
	StageSiteStart   Stage = "SITE_START"
	StageSiteDone    Stage = "SITE_DONE"
	StageSiteError   Stage = "SITE_ERROR"
	StageWaitTimeout Stage = "WAIT_TIMEOUT"
	StagePrune       Stage = "PRUNE"
	StageSyncError   Stage = "SYNC_ERROR"
)

// Event is one structured milestone of a monitoring cycle.
type Event struct {
	// CycleID ties the event to the cycle that produced it.
	CycleID string
	// TS is the UTC time the event was recorded.
	TS time.Time
	// Stage is the milestone type.
	Stage Stage
	// SiteID scopes site-level events.
	SiteID string
	// URL is the monitored URL for site events.
	URL string
	// Dur is the capture duration for site events or the cycle wall time.
	Dur time.Duration
	// ErrorKind carries the capture failure class for SITE_ERROR.
	ErrorKind string
	// Count is the number of pruned artifacts (PRUNE) or successful sites (CYCLE_DONE).
	Count int
	// Total is the number of sites in the cycle (CYCLE_START, CYCLE_DONE).
	Total int
	// Uptime is the cycle uptime percentage for CYCLE_DONE.
	Uptime float64
	// Note is low-volume context such as an error message or sync target.
	Note string
}

// Validate rejects events that sinks cannot interpret.
func (e Event) Validate() error {
	if e.CycleID == "" {
		return errors.New("cycle id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone:
	case StageSiteStart, StageSiteDone, StageWaitTimeout, StagePrune:
		if e.SiteID == "" {
			return fmt.Errorf("%s requires site id", e.Stage)
		}
	case StageSiteError:
		if e.SiteID == "" {
			return errors.New("site error requires site id")
		}
		if e.ErrorKind == "" {
			return errors.New("site error requires error kind")
		}
	case StageSyncError:
		if e.Note == "" {
			return errors.New("sync error requires a target note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
