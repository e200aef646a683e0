// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/app"
	"github.com/JakeFAU/sitewatch/internal/config"
	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/notify"
	"github.com/JakeFAU/sitewatch/internal/storage/local"
	"github.com/JakeFAU/sitewatch/internal/storage/memory"
	"github.com/JakeFAU/sitewatch/internal/storage/sqlite"
)

var testSites = []monitor.SiteConfig{
	{ID: "home", Name: "Home", URL: "https://home.example.com", Enabled: true},
	{ID: "shop", Name: "Shop", URL: "https://shop.example.com", Enabled: true},
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Artifacts.Provider = "memory"
	cfg.Storage.Reports.Provider = "memory"
	cfg.Monitor.SiteDelay = 0
	return cfg
}

func TestNewApp_MemoryProviders(t *testing.T) {
	t.Parallel()

	a, err := app.NewApp(context.Background(), baseConfig(t), testSites, zap.NewNop(), app.WithLauncher(new(mockLauncher)))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.NotNil(t, a.GetLogger())
	assert.NotNil(t, a.GetScheduler())
	assert.NotNil(t, a.GetServer())
	assert.NotNil(t, a.GetRunner())
	assert.IsType(t, &memory.ArtifactStore{}, a.GetArtifacts())
	assert.IsType(t, &memory.ReportStore{}, a.GetReports())
}

func TestNewApp_LocalProviders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig(t)
	cfg.Storage.Artifacts.Provider = "local"
	cfg.Storage.Artifacts.BaseDir = filepath.Join(dir, "screenshots")
	cfg.Storage.Reports.Provider = "local"
	cfg.Storage.Reports.Dir = filepath.Join(dir, "reports")

	a, err := app.NewApp(context.Background(), cfg, testSites, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.IsType(t, &local.ArtifactStore{}, a.GetArtifacts())
	assert.IsType(t, &local.ReportStore{}, a.GetReports())
	assert.NotNil(t, a.GetLauncher())
}

func TestNewApp_SQLiteReports(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Storage.Reports.Provider = "sqlite"
	cfg.Storage.Reports.SQLitePath = filepath.Join(t.TempDir(), "reports.db")

	a, err := app.NewApp(context.Background(), cfg, testSites, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &sqlite.ReportStore{}, a.GetReports())
	a.Close()
	a.Close()
}

func TestNewApp_ConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		configSetup   func(*config.Config)
		expectedError string
	}{
		{
			name:          "Unknown artifact provider",
			configSetup:   func(c *config.Config) { c.Storage.Artifacts.Provider = "ftp" },
			expectedError: `unknown artifact provider "ftp"`,
		},
		{
			name:          "Unknown report provider",
			configSetup:   func(c *config.Config) { c.Storage.Reports.Provider = "mongo" },
			expectedError: `unknown report provider "mongo"`,
		},
		{
			name: "Status page without base URL",
			configSetup: func(c *config.Config) {
				c.StatusPage.Enabled = true
				c.StatusPage.BaseURL = ""
			},
			expectedError: "statuspage.base_url is required",
		},
		{
			name: "Mailgun without credentials",
			configSetup: func(c *config.Config) {
				c.Notify.Enabled = true
				c.Notify.Transport = "mailgun"
			},
			expectedError: "mailgun domain and api key are required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig(t)
			tc.configSetup(&cfg)

			_, err := app.NewApp(context.Background(), cfg, testSites, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedError)
		})
	}
}

func TestApp_RunOnceWithFailingBrowser(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Notify.Enabled = true
	cfg.Notify.Mailgun.From = "monitor@example.com"
	cfg.Notify.Mailgun.To = []string{"ops@example.com"}

	launcher := new(mockLauncher)
	launcher.On("Launch", mock.Anything).Return(nil, errors.New("chrome not found")).Once()
	transport := new(mockTransport)
	transport.On("Send", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
		return len(msg.To) == 1 && len(msg.Attachments) == 1
	})).Return(nil).Once()

	a, err := app.NewApp(context.Background(), cfg, testSites, zap.NewNop(),
		app.WithLauncher(launcher), app.WithTransport(transport))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rep, code := a.GetScheduler().RunOnce(context.Background())
	assert.Equal(t, 2, code)
	assert.Equal(t, 2, rep.TotalSites)
	assert.Equal(t, 2, rep.Failed)
	assert.Zero(t, rep.UptimePercent)

	rec := httptest.NewRecorder()
	a.GetServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status       string              `json:"status"`
		LatestReport monitor.CycleReport `json:"latest_report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "active", body.Status)
	assert.Equal(t, rep.CycleID, body.LatestReport.CycleID)

	launcher.AssertExpectations(t)
	transport.AssertExpectations(t)
}

// mockLauncher mocks the monitor.Launcher interface.
type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) Launch(ctx context.Context) (monitor.Browser, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).(monitor.Browser)
	return b, args.Error(1)
}

// mockTransport mocks the notify.Transport interface.
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
