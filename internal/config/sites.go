package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

type siteFile struct {
	Sites []siteEntry `mapstructure:"sites"`
}

type siteEntry struct {
	ID              string          `mapstructure:"id"`
	Name            string          `mapstructure:"name"`
	URL             string          `mapstructure:"url"`
	Enabled         bool            `mapstructure:"enabled"`
	WaitCondition   string          `mapstructure:"waitCondition"`
	WaitForSelector string          `mapstructure:"waitForSelector"`
	Screenshot      screenshotEntry `mapstructure:"screenshotOptions"`
}

type screenshotEntry struct {
	FullPage *bool  `mapstructure:"fullPage"`
	Format   string `mapstructure:"format"`
	Quality  int    `mapstructure:"quality"`
}

// waitCondition resolves the selector to wait for. waitForSelector is an
// alias; setting both to different values is an error.
func (e siteEntry) waitCondition() (string, error) {
	switch {
	case e.WaitForSelector == "" || e.WaitForSelector == e.WaitCondition:
		return e.WaitCondition, nil
	case e.WaitCondition == "":
		return e.WaitForSelector, nil
	default:
		return "", fmt.Errorf("waitCondition %q conflicts with waitForSelector %q", e.WaitCondition, e.WaitForSelector)
	}
}

func (e siteEntry) site() (monitor.SiteConfig, error) {
	wait, err := e.waitCondition()
	if err != nil {
		return monitor.SiteConfig{}, err
	}
	fullPage := true
	if e.Screenshot.FullPage != nil {
		fullPage = *e.Screenshot.FullPage
	}
	return monitor.SiteConfig{
		ID:            e.ID,
		Name:          e.Name,
		URL:           e.URL,
		Enabled:       e.Enabled,
		WaitCondition: wait,
		Screenshot: monitor.ScreenshotOptions{
			FullPage: fullPage,
			Format:   monitor.ImageFormat(e.Screenshot.Format),
			Quality:  e.Screenshot.Quality,
		}.Normalized(),
	}, nil
}

// LoadSites reads the sites file (JSON or YAML, {"sites": [...]}) and
// returns the enabled entries in file order. Disabled entries are skipped
// without validation. Failures wrap monitor.ErrConfig; so does a file with
// no enabled site.
func LoadSites(path string) ([]monitor.SiteConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sites file path is empty", monitor.ErrConfig)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read sites file: %w", monitor.ErrConfig, err)
	}
	var file siteFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("%w: decode sites file: %w", monitor.ErrConfig, err)
	}
	return enabledSites(file.Sites)
}

func enabledSites(entries []siteEntry) ([]monitor.SiteConfig, error) {
	var (
		sites []monitor.SiteConfig
		errs  []error
		seen  = make(map[string]bool, len(entries))
	)
	for i, entry := range entries {
		if !entry.Enabled {
			continue
		}
		site, err := entry.site()
		if err == nil {
			err = site.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("sites[%d]: %w", i, err))
			continue
		}
		if seen[site.ID] {
			errs = append(errs, fmt.Errorf("sites[%d]: duplicate id %q", i, site.ID))
			continue
		}
		seen[site.ID] = true
		sites = append(sites, site)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", monitor.ErrConfig, errors.Join(errs...))
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: no enabled sites", monitor.ErrConfig)
	}
	return sites, nil
}
