package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScreenshotOptionsNormalized(t *testing.T) {
	t.Parallel()

	require.Equal(t, ScreenshotOptions{FullPage: true, Format: FormatPNG}, ScreenshotOptions{FullPage: true, Quality: 50}.Normalized())
	require.Equal(t, ScreenshotOptions{Format: FormatJPEG, Quality: DefaultJPEGQuality}, ScreenshotOptions{Format: FormatJPEG}.Normalized())
	require.Equal(t, ScreenshotOptions{Format: FormatJPEG, Quality: 40}, ScreenshotOptions{Format: FormatJPEG, Quality: 40}.Normalized())
}

func TestSiteConfigValidate(t *testing.T) {
	t.Parallel()

	base := SiteConfig{ID: "home", Name: "Home", URL: "https://example.com", Enabled: true}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*SiteConfig)
		want   string
	}{
		{"missing id", func(s *SiteConfig) { s.ID = " " }, "id is required"},
		{"path id", func(s *SiteConfig) { s.ID = "a/b" }, "path separators"},
		{"missing name", func(s *SiteConfig) { s.Name = "" }, "name is required"},
		{"relative url", func(s *SiteConfig) { s.URL = "/index.html" }, "absolute http(s)"},
		{"ftp url", func(s *SiteConfig) { s.URL = "ftp://example.com" }, "absolute http(s)"},
		{"bad format", func(s *SiteConfig) { s.Screenshot.Format = "gif" }, "unsupported screenshot format"},
		{"bad quality", func(s *SiteConfig) { s.Screenshot.Quality = 101 }, "quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			site := base
			tt.mutate(&site)
			err := site.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResultConstructors(t *testing.T) {
	t.Parallel()

	site := SiteConfig{ID: "s", Name: "S", URL: "https://s.example"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	ok := Succeeded(site, at, 1500*time.Millisecond, &PageStats{Title: "t"}, "file:///a.png")
	require.True(t, ok.Success)
	require.Empty(t, ok.ErrorKind)
	require.NotNil(t, ok.ResponseTimeMs)
	require.EqualValues(t, 1500, *ok.ResponseTimeMs)
	require.Equal(t, time.UTC, ok.Timestamp.Location())

	failed := Failed(site, at, "", nil)
	require.False(t, failed.Success)
	require.Equal(t, ErrorKindUnknown, failed.ErrorKind)
	require.Equal(t, "unknown error", failed.ErrorMessage)
	require.Nil(t, failed.ResponseTimeMs)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Equal(t, ErrorKind(""), Classify(nil))
	require.Equal(t, ErrorKindTimeout, Classify(fmt.Errorf("%w: %w", ErrNavigation, context.DeadlineExceeded)))
	require.Equal(t, ErrorKindNavigation, Classify(fmt.Errorf("goto: %w", ErrNavigation)))
	require.Equal(t, ErrorKindCapture, Classify(fmt.Errorf("shot: %w", ErrCapture)))
	require.Equal(t, ErrorKindUnknown, Classify(errors.New("boom")))
}

func TestNewArtifactKey(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 18, 8, 30, 15, 0, time.UTC)
	key := NewArtifactKey("home", at, FormatJPEG)
	require.Equal(t, ArtifactKey{SiteID: "home", Date: "2026-10-18", Name: "08-30-15.jpg"}, key)
	require.Equal(t, "home/2026-10-18/08-30-15.jpg", key.Path())
}

func TestCycleReportFilters(t *testing.T) {
	t.Parallel()

	report := CycleReport{Results: []CaptureResult{
		{Site: SiteConfig{ID: "a"}, Success: true},
		{Site: SiteConfig{ID: "b"}},
		{Site: SiteConfig{ID: "c"}, Success: true},
	}}
	require.Len(t, report.SuccessfulResults(), 2)
	require.Equal(t, "b", report.FailedResults()[0].Site.ID)
}
