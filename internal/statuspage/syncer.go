package statuspage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const target = "statuspage"

// SyncerConfig tunes what SyncSiteStatus writes besides component state.
type SyncerConfig struct {
	// ResponseTimeMetricID receives one point per online site when > 0.
	ResponseTimeMetricID int64
	// ResolveOnRecovery closes open incidents when a site comes back.
	ResolveOnRecovery bool
}

// Syncer implements monitor.StatusSyncer. Remote state is looked up on every
// call, never cached.
type Syncer struct {
	client *Client
	cfg    SyncerConfig
	clock  func() time.Time
	logger *zap.Logger
}

// NewSyncer wraps client.
func NewSyncer(client *Client, cfg SyncerConfig, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{client: client, cfg: cfg, clock: time.Now, logger: logger}
}

// FindComponent returns the component named siteName, falling back to the
// first whose name contains it.
func FindComponent(components []Component, siteName string) (Component, bool) {
	for _, c := range components {
		if c.Name == siteName {
			return c, true
		}
	}
	for _, c := range components {
		if siteName != "" && strings.Contains(c.Name, siteName) {
			return c, true
		}
	}
	return Component{}, false
}

// SyncSiteStatus mirrors one site's state. It is idempotent: the component
// status is only written when it differs, and an incident is opened only
// when the component has no unresolved one, so repeating an offline sync
// never duplicates incidents and a failed create is retried next time.
func (s *Syncer) SyncSiteStatus(ctx context.Context, siteName string, online bool, responseTimeMs *int64, errorMessage string) error {
	logger := s.logger.With(zap.String("site", siteName), zap.Bool("online", online))
	want := StatusFor(online)

	components, err := s.client.ListComponents(ctx)
	if err != nil {
		return &monitor.SyncError{Target: target, Op: "list components", Err: err}
	}
	component, found := FindComponent(components, siteName)

	if !s.client.HasToken() {
		// Without a token the page is read-only.
		logger.Debug("status page token not configured, skipping writes", zap.Bool("component_found", found))
		return nil
	}

	previous := component.Status
	if !found {
		component, err = s.client.CreateComponent(ctx, siteName, "Automatic monitoring of "+siteName, want)
		if err != nil {
			return &monitor.SyncError{Target: target, Op: "create component", Err: err}
		}
		logger.Info("status page component created", zap.Int64("component_id", component.ID))
		previous = 0
	} else if component.Status != want {
		if _, err := s.client.UpdateComponentStatus(ctx, component.ID, want); err != nil {
			return &monitor.SyncError{Target: target, Op: "update component", Err: err}
		}
		logger.Info("status page component updated",
			zap.Int64("component_id", component.ID),
			zap.Stringer("from", component.Status),
			zap.Stringer("to", want))
	}

	var errs []error
	switch {
	case !online && errorMessage != "":
		if found {
			open, err := s.hasOpenIncident(ctx, component.ID)
			if err != nil {
				errs = append(errs, &monitor.SyncError{Target: target, Op: "list incidents", Err: err})
				break
			}
			if open {
				logger.Debug("status page incident already open", zap.Int64("component_id", component.ID))
				break
			}
		}
		_, err := s.client.CreateIncident(ctx, NewIncident{
			Name:          "Problem with " + siteName,
			Message:       "Error detected: " + errorMessage,
			Status:        IncidentInvestigating,
			ComponentID:   component.ID,
			Visible:       1,
			Notifications: true,
		})
		if err != nil {
			errs = append(errs, &monitor.SyncError{Target: target, Op: "create incident", Err: err})
		} else {
			logger.Info("status page incident opened", zap.Int64("component_id", component.ID))
		}
	case online && found && previous != StatusOperational && s.cfg.ResolveOnRecovery:
		if err := s.resolveOpen(ctx, component.ID, siteName); err != nil {
			errs = append(errs, &monitor.SyncError{Target: target, Op: "resolve incidents", Err: err})
		}
	}

	if online && responseTimeMs != nil && s.cfg.ResponseTimeMetricID > 0 {
		err := s.client.AddMetricPoint(ctx, s.cfg.ResponseTimeMetricID, float64(*responseTimeMs), s.clock())
		if err != nil {
			errs = append(errs, &monitor.SyncError{Target: target, Op: "add metric point", Err: err})
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) hasOpenIncident(ctx context.Context, componentID int64) (bool, error) {
	incidents, err := s.client.ListIncidents(ctx, componentID)
	if err != nil {
		return false, err
	}
	for _, inc := range incidents {
		if inc.Status != IncidentFixed {
			return true, nil
		}
	}
	return false, nil
}

func (s *Syncer) resolveOpen(ctx context.Context, componentID int64, siteName string) error {
	incidents, err := s.client.ListIncidents(ctx, componentID)
	if err != nil {
		return err
	}
	var errs []error
	for _, inc := range incidents {
		if inc.Status == IncidentFixed {
			continue
		}
		if _, err := s.client.ResolveIncident(ctx, inc.ID, fmt.Sprintf("%s is back online", siteName)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
