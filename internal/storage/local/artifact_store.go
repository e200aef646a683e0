// Package local implements filesystem-backed artifact and report stores.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const fileScheme = "file://"

// Config captures the parameters for the local artifact store.
type Config struct {
	// BaseDir is the root directory holding <site>/<date>/<time>.<ext> files.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ArtifactStore keeps snapshots on the local filesystem.
type ArtifactStore struct {
	baseDir string
}

// New creates the store, creating BaseDir when missing and checking that it
// is writable.
func New(cfg Config) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := ensureWritableDir(cfg.BaseDir); err != nil {
		return nil, err
	}
	return &ArtifactStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("create directory %s: %w", dir, mkErr)
		}
	case err != nil:
		return fmt.Errorf("stat directory %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}

	check := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(check, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	if err := os.Remove(check); err != nil {
		return fmt.Errorf("remove writability check file: %w", err)
	}
	return nil
}

// BaseDir returns the root directory.
func (s *ArtifactStore) BaseDir() string {
	return s.baseDir
}

// Put writes data under the key's path and returns a file:// reference.
// Existing files are never overwritten: a second artifact for the same
// second is stored as <time>.1.<ext>, then <time>.2.<ext> and so on.
func (s *ArtifactStore) Put(_ context.Context, key monitor.ArtifactKey, _ string, data []byte) (string, error) {
	fullPath, err := s.resolve(key.Path())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	ext := filepath.Ext(fullPath)
	stem := strings.TrimSuffix(fullPath, ext)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		path := fullPath
		if attempt > 0 {
			path = fmt.Sprintf("%s.%d%s", stem, attempt, ext)
		}
		err := writeExclusive(path, data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("artifact %s: %w", key.Path(), err)
		}
		return fileScheme + path, nil
	}
	return "", fmt.Errorf("artifact %s: too many artifacts for one second", key.Path())
}

// Get reads an artifact by the reference Put returned, or by a path relative
// to the base directory.
func (s *ArtifactStore) Get(_ context.Context, ref string) ([]byte, error) {
	var fullPath string
	if strings.HasPrefix(ref, fileScheme) {
		fullPath = filepath.Clean(strings.TrimPrefix(ref, fileScheme))
		if !s.contains(fullPath) {
			return nil, fmt.Errorf("artifact %q is outside %s", ref, s.baseDir)
		}
	} else {
		var err error
		if fullPath, err = s.resolve(ref); err != nil {
			return nil, err
		}
	}
	// #nosec G304 -- path is confined to the base directory above.
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", ref, monitor.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// List returns every artifact stored for siteID. A site with no directory
// yields an empty list.
func (s *ArtifactStore) List(_ context.Context, siteID string) ([]monitor.ArtifactInfo, error) {
	siteDir, err := s.resolve(siteID)
	if err != nil {
		return nil, err
	}
	dates, err := os.ReadDir(siteDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list site directory: %w", err)
	}

	var out []monitor.ArtifactInfo
	for _, date := range dates {
		if !date.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(siteDir, date.Name()))
		if err != nil {
			return nil, fmt.Errorf("list date directory %s: %w", date.Name(), err)
		}
		for _, file := range files {
			if !file.Type().IsRegular() {
				continue
			}
			info, err := file.Info()
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("stat artifact %s: %w", file.Name(), err)
			}
			out = append(out, monitor.ArtifactInfo{
				Key:     monitor.ArtifactKey{SiteID: siteID, Date: date.Name(), Name: file.Name()},
				ModTime: info.ModTime(),
				Size:    info.Size(),
			})
		}
	}
	return out, nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
// An emptied date directory is removed as well.
func (s *ArtifactStore) Delete(_ context.Context, key monitor.ArtifactKey) error {
	fullPath, err := s.resolve(key.Path())
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	// Fails harmlessly while other artifacts remain.
	_ = os.Remove(filepath.Dir(fullPath))
	return nil
}

func (s *ArtifactStore) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, rel))
	if !s.contains(fullPath) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

func (s *ArtifactStore) contains(fullPath string) bool {
	return strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator))
}
