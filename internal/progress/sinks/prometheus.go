package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitewatch/internal/progress"
)

// PrometheusSink turns cycle events into Prometheus collectors.
type PrometheusSink struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	cycleUptime   prometheus.Gauge

	captures        *prometheus.CounterVec
	captureDuration *prometheus.HistogramVec
	siteUp          *prometheus.GaugeVec
	waitTimeouts    *prometheus.CounterVec
	pruned          *prometheus.CounterVec
	syncErrors      *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors on reg (the default registerer
// when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitewatch_cycles_total",
			Help: "Monitoring cycles completed.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitewatch_cycle_duration_seconds",
			Help:    "Wall time per monitoring cycle.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		cycleUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitewatch_cycle_uptime_percent",
			Help: "Uptime percentage of the most recent cycle.",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_site_captures_total",
			Help: "Site captures partitioned by site and result.",
		}, []string{"site", "result"}),
		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitewatch_capture_duration_seconds",
			Help:    "Navigation-to-settle time for successful captures.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"site"}),
		siteUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sitewatch_site_up",
			Help: "1 when the last capture of the site succeeded.",
		}, []string{"site"}),
		waitTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_wait_condition_timeouts_total",
			Help: "Wait conditions that never matched.",
		}, []string{"site"}),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_artifacts_pruned_total",
			Help: "Artifacts removed by retention.",
		}, []string{"site"}),
		syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_sync_errors_total",
			Help: "Status page and notification failures by target.",
		}, []string{"target"}),
	}
	for _, collector := range []prometheus.Collector{
		s.cycles,
		s.cycleDuration,
		s.cycleUptime,
		s.captures,
		s.captureDuration,
		s.siteUp,
		s.waitTimeouts,
		s.pruned,
		s.syncErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register cycle collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCycleDone:
			s.cycles.Inc()
			s.cycleUptime.Set(evt.Uptime)
			if evt.Dur > 0 {
				s.cycleDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageSiteDone:
			s.captures.WithLabelValues(evt.SiteID, "success").Inc()
			s.siteUp.WithLabelValues(evt.SiteID).Set(1)
			if evt.Dur > 0 {
				s.captureDuration.WithLabelValues(evt.SiteID).Observe(evt.Dur.Seconds())
			}
		case progress.StageSiteError:
			s.captures.WithLabelValues(evt.SiteID, evt.ErrorKind).Inc()
			s.siteUp.WithLabelValues(evt.SiteID).Set(0)
		case progress.StageWaitTimeout:
			s.waitTimeouts.WithLabelValues(evt.SiteID).Inc()
		case progress.StagePrune:
			if evt.Count > 0 {
				s.pruned.WithLabelValues(evt.SiteID).Add(float64(evt.Count))
			}
		case progress.StageSyncError:
			s.syncErrors.WithLabelValues(evt.Note).Inc()
		}
	}
	return nil
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
