// Package memory keeps artifacts and cycle reports in process memory for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const scheme = "memory://"

type artifact struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// ArtifactStore stores snapshots in a map keyed by artifact path.
type ArtifactStore struct {
	mu    sync.RWMutex
	items map[string]artifact
	now   func() time.Time
}

// NewArtifactStore creates an empty store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{items: make(map[string]artifact), now: time.Now}
}

// Put copies data and returns a memory:// reference.
func (s *ArtifactStore) Put(_ context.Context, key monitor.ArtifactKey, contentType string, data []byte) (string, error) {
	path := key.Path()
	if strings.TrimSpace(key.SiteID) == "" || strings.TrimSpace(key.Name) == "" {
		return "", fmt.Errorf("artifact key %q is incomplete", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[path] = artifact{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modTime:     s.now(),
	}
	return scheme + path, nil
}

// Get returns a copy of the artifact behind ref.
func (s *ArtifactStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[strings.TrimPrefix(ref, scheme)]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", ref, monitor.ErrNotFound)
	}
	return append([]byte(nil), item.data...), nil
}

// List returns the site's artifacts sorted by path.
func (s *ArtifactStore) List(_ context.Context, siteID string) ([]monitor.ArtifactInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := siteID + "/"
	var out []monitor.ArtifactInfo
	for path, item := range s.items {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		date, name, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		out = append(out, monitor.ArtifactInfo{
			Key:     monitor.ArtifactKey{SiteID: siteID, Date: date, Name: name},
			ModTime: item.modTime,
			Size:    int64(len(item.data)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Path() < out[j].Key.Path() })
	return out, nil
}

// Delete removes the artifact if present.
func (s *ArtifactStore) Delete(_ context.Context, key monitor.ArtifactKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key.Path())
	return nil
}

// SetModTime overrides an artifact's modification time.
func (s *ArtifactStore) SetModTime(key monitor.ArtifactKey, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[key.Path()]; ok {
		item.modTime = at
		s.items[key.Path()] = item
	}
}

// Len reports how many artifacts are stored.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
