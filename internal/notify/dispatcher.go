package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const target = "notify"

// Config controls message addressing and content.
type Config struct {
	From string
	To   []string
	// StatusPageURL is linked from the message when set.
	StatusPageURL string
	// AttachArtifacts adds one snapshot per successful capture.
	AttachArtifacts bool
	// AttachReport adds the cycle report as JSON.
	AttachReport bool
}

// Dispatcher implements monitor.Notifier.
type Dispatcher struct {
	transport Transport
	artifacts monitor.ArtifactStore
	cfg       Config
	logger    *zap.Logger
}

// NewDispatcher builds a Dispatcher. artifacts may be nil when snapshots are
// not attached.
func NewDispatcher(transport Transport, artifacts monitor.ArtifactStore, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{transport: transport, artifacts: artifacts, cfg: cfg, logger: logger}
}

// Build composes the message for r without sending it.
func (d *Dispatcher) Build(ctx context.Context, r monitor.CycleReport) (Message, error) {
	var attachments []Attachment
	if d.cfg.AttachArtifacts && d.artifacts != nil {
		attachments = append(attachments, d.snapshots(ctx, r)...)
	}
	if d.cfg.AttachReport {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return Message{}, fmt.Errorf("encode report: %w", err)
		}
		attachments = append(attachments, Attachment{
			Filename:    fmt.Sprintf("report-%s.json", r.CycleID),
			ContentType: "application/json",
			Data:        data,
		})
	}

	labels := make([]string, 0, len(attachments))
	for _, a := range attachments {
		labels = append(labels, attachmentLabel(a))
	}
	subject, html, text, err := Compose(r, d.cfg.StatusPageURL, labels)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:        d.cfg.From,
		To:          d.cfg.To,
		Subject:     subject,
		HTML:        html,
		Text:        text,
		Attachments: attachments,
	}, nil
}

// snapshots reads back each successful capture. Unreadable artifacts are
// logged and left out.
func (d *Dispatcher) snapshots(ctx context.Context, r monitor.CycleReport) []Attachment {
	var out []Attachment
	for _, res := range r.SuccessfulResults() {
		if res.ArtifactRef == "" {
			continue
		}
		data, err := d.artifacts.Get(ctx, res.ArtifactRef)
		if err != nil {
			d.logger.Warn("artifact unavailable for notification",
				zap.String("site", res.Site.ID), zap.String("ref", res.ArtifactRef), zap.Error(err))
			continue
		}
		out = append(out, Attachment{
			Filename:    res.Site.ID + "-" + path.Base(res.ArtifactRef),
			ContentType: res.Site.Screenshot.Normalized().Format.ContentType(),
			Data:        data,
		})
	}
	return out
}

// Notify composes and sends the report. Failures come back as SyncError.
func (d *Dispatcher) Notify(ctx context.Context, r monitor.CycleReport) error {
	msg, err := d.Build(ctx, r)
	if err != nil {
		return &monitor.SyncError{Target: target, Op: "compose", Err: err}
	}
	if err := msg.Validate(); err != nil {
		return &monitor.SyncError{Target: target, Op: "compose", Err: err}
	}
	if err := d.transport.Send(ctx, msg); err != nil {
		return &monitor.SyncError{Target: target, Op: "send", Err: err}
	}
	d.logger.Info("notification sent",
		zap.String("cycle_id", r.CycleID),
		zap.Strings("to", msg.To),
		zap.Int("attachments", len(msg.Attachments)))
	return nil
}
