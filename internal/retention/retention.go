// Package retention bounds how many artifacts each site keeps.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// DefaultMaxArtifactsPerSite is used when no limit is configured.
const DefaultMaxArtifactsPerSite = 10

// Manager prunes a site's artifacts, oldest first, within each capture date.
type Manager struct {
	store  monitor.ArtifactStore
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Manager over store.
func New(store monitor.ArtifactStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) siteLock(siteID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[siteID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[siteID] = lock
	}
	return lock
}

// Prune deletes the oldest artifacts of every capture date of siteID that
// holds more than max entries. It returns how many were deleted. A failed
// deletion is logged and skipped; all such failures are joined into the
// returned error. max <= 0 disables pruning.
func (m *Manager) Prune(ctx context.Context, siteID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	lock := m.siteLock(siteID)
	lock.Lock()
	defer lock.Unlock()

	infos, err := m.store.List(ctx, siteID)
	if err != nil {
		return 0, fmt.Errorf("list artifacts for %s: %w", siteID, err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, group := range Surplus(infos, max) {
		for _, info := range group {
			if err := ctx.Err(); err != nil {
				return deleted, errors.Join(append(errs, err)...)
			}
			if err := m.store.Delete(ctx, info.Key); err != nil {
				rerr := &monitor.RetentionError{Key: info.Key, Err: err}
				m.logger.Warn("artifact deletion failed", zap.String("site", siteID), zap.Error(rerr))
				errs = append(errs, rerr)
				continue
			}
			deleted++
			m.logger.Debug("artifact pruned", zap.String("site", siteID), zap.String("artifact", info.Key.Path()))
		}
	}
	return deleted, errors.Join(errs...)
}

// Surplus groups infos by capture date and returns, per date, the entries
// beyond the newest max ordered oldest first. Dates come back sorted.
// Equal modification times fall back to name order.
func Surplus(infos []monitor.ArtifactInfo, max int) [][]monitor.ArtifactInfo {
	if max <= 0 {
		return nil
	}
	groups := make(map[string][]monitor.ArtifactInfo)
	for _, info := range infos {
		groups[info.Key.Date] = append(groups[info.Key.Date], info)
	}
	dates := make([]string, 0, len(groups))
	for date := range groups {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var out [][]monitor.ArtifactInfo
	for _, date := range dates {
		group := groups[date]
		if len(group) <= max {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].ModTime.Equal(group[j].ModTime) {
				return group[i].ModTime.Before(group[j].ModTime)
			}
			return group[i].Key.Name < group[j].Key.Name
		})
		out = append(out, group[:len(group)-max])
	}
	return out
}
