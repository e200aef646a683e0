package monitor

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ImageFormat is the encoding used for a stored snapshot.
type ImageFormat string

// Supported snapshot encodings.
const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// DefaultJPEGQuality is applied when a jpeg snapshot has no explicit quality.
const DefaultJPEGQuality = 90

// Extension returns the file extension used for artifacts of this format.
func (f ImageFormat) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// ContentType returns the MIME type for the format.
func (f ImageFormat) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// ScreenshotOptions controls how a site snapshot is taken.
type ScreenshotOptions struct {
	FullPage bool        `json:"fullPage" mapstructure:"fullPage"`
	Format   ImageFormat `json:"format" mapstructure:"format"`
	// Quality only applies to jpeg; zero means DefaultJPEGQuality.
	Quality int `json:"quality,omitempty" mapstructure:"quality"`
}

// Normalized returns the options with format and quality defaults applied.
func (o ScreenshotOptions) Normalized() ScreenshotOptions {
	out := o
	if out.Format != FormatJPEG {
		out.Format = FormatPNG
		out.Quality = 0
		return out
	}
	if out.Quality <= 0 {
		out.Quality = DefaultJPEGQuality
	}
	return out
}

// SiteConfig describes one monitored site. It is loaded once at startup and
// never mutated afterwards.
type SiteConfig struct {
	ID            string            `json:"id" mapstructure:"id"`
	Name          string            `json:"name" mapstructure:"name"`
	URL           string            `json:"url" mapstructure:"url"`
	Enabled       bool              `json:"enabled" mapstructure:"enabled"`
	WaitCondition string            `json:"waitCondition,omitempty" mapstructure:"waitCondition"`
	Screenshot    ScreenshotOptions `json:"screenshotOptions" mapstructure:"screenshotOptions"`
}

// Validate checks the fields required to run a capture.
func (s SiteConfig) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("site id is required")
	}
	if strings.ContainsAny(s.ID, `/\`) || s.ID == "." || s.ID == ".." {
		return fmt.Errorf("site %q: id must not contain path separators", s.ID)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("site %q: name is required", s.ID)
	}
	parsed, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("site %q: parse url: %w", s.ID, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("site %q: url must be an absolute http(s) url", s.ID)
	}
	switch s.Screenshot.Format {
	case "", FormatPNG, FormatJPEG:
	default:
		return fmt.Errorf("site %q: unsupported screenshot format %q", s.ID, s.Screenshot.Format)
	}
	if s.Screenshot.Quality < 0 || s.Screenshot.Quality > 100 {
		return fmt.Errorf("site %q: screenshot quality must be within 0..100", s.ID)
	}
	return nil
}

// Viewport is the browser window size used for every session.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageStats is the structural summary evaluated on a rendered page.
type PageStats struct {
	Title           string `json:"title"`
	ElementCount    int    `json:"elementCount"`
	ImageCount      int    `json:"imageCount"`
	ScriptCount     int    `json:"scriptCount"`
	StylesheetCount int    `json:"stylesheetCount"`
}

// ErrorKind classifies why a capture failed.
type ErrorKind string

// Capture failure classes.
const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindNavigation ErrorKind = "navigation"
	ErrorKindCapture    ErrorKind = "capture"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// CaptureResult is the outcome of one capture attempt for one site in one
// cycle. Build it with Succeeded or Failed; it is not modified afterwards.
type CaptureResult struct {
	Site           SiteConfig `json:"site"`
	Success        bool       `json:"success"`
	Timestamp      time.Time  `json:"timestamp"`
	ResponseTimeMs *int64     `json:"responseTimeMs,omitempty"`
	Stats          *PageStats `json:"stats,omitempty"`
	ArtifactRef    string     `json:"artifactRef,omitempty"`
	ErrorKind      ErrorKind  `json:"errorKind,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
}

// Succeeded builds a successful result. stats may be nil when evaluation
// failed after the snapshot was stored.
func Succeeded(site SiteConfig, at time.Time, elapsed time.Duration, stats *PageStats, artifactRef string) CaptureResult {
	ms := elapsed.Milliseconds()
	return CaptureResult{
		Site:           site,
		Success:        true,
		Timestamp:      at.UTC(),
		ResponseTimeMs: &ms,
		Stats:          stats,
		ArtifactRef:    artifactRef,
	}
}

// Failed builds a failed result. An empty kind is recorded as unknown.
func Failed(site SiteConfig, at time.Time, kind ErrorKind, err error) CaptureResult {
	if kind == "" {
		kind = ErrorKindUnknown
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return CaptureResult{
		Site:         site,
		Success:      false,
		Timestamp:    at.UTC(),
		ErrorKind:    kind,
		ErrorMessage: msg,
	}
}

// CycleReport summarises one cycle. It is persisted once and never updated.
type CycleReport struct {
	CycleID               string          `json:"cycleId"`
	Timestamp             time.Time       `json:"timestamp"`
	TotalSites            int             `json:"totalSites"`
	Successful            int             `json:"successful"`
	Failed                int             `json:"failed"`
	UptimePercent         float64         `json:"uptimePercent"`
	AverageResponseTimeMs *int64          `json:"averageResponseTimeMs"`
	Results               []CaptureResult `json:"results"`
}

// FailedResults returns the failed results in report order.
func (r CycleReport) FailedResults() []CaptureResult {
	return r.filter(false)
}

// SuccessfulResults returns the successful results in report order.
func (r CycleReport) SuccessfulResults() []CaptureResult {
	return r.filter(true)
}

func (r CycleReport) filter(success bool) []CaptureResult {
	out := make([]CaptureResult, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Success == success {
			out = append(out, res)
		}
	}
	return out
}

// ArtifactKey addresses one stored snapshot. Date is "2006-01-02" and Name is
// the file name within that date, e.g. "15-04-05.png".
type ArtifactKey struct {
	SiteID string `json:"siteId"`
	Date   string `json:"date"`
	Name   string `json:"name"`
}

// Path joins the key into a slash separated relative path.
func (k ArtifactKey) Path() string {
	return k.SiteID + "/" + k.Date + "/" + k.Name
}

// ArtifactInfo is a listing entry returned by an ArtifactStore.
type ArtifactInfo struct {
	Key     ArtifactKey
	ModTime time.Time
	Size    int64
}

// Capture date and time layouts used to key artifacts.
const (
	ArtifactDateLayout = "2006-01-02"
	ArtifactTimeLayout = "15-04-05"
)

// NewArtifactKey derives the storage key for a capture taken at the given time.
func NewArtifactKey(siteID string, at time.Time, format ImageFormat) ArtifactKey {
	at = at.UTC()
	return ArtifactKey{
		SiteID: siteID,
		Date:   at.Format(ArtifactDateLayout),
		Name:   at.Format(ArtifactTimeLayout) + format.Extension(),
	}
}
