package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/dev-sujan/prepdesk/pkg/models"
)

// LoadSite reads and validates the prepdesk.yml site file at the repo root.
// Unknown keys are rejected so typos in the site file surface immediately.
func LoadSite() (*models.SiteConfig, error) {
	return LoadSiteFrom(filepath.Join(RepoPath, SiteFile))
}

// LoadSiteFrom parses a site file from an explicit path.
func LoadSiteFrom(path string) (*models.SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site file: %w", err)
	}

	var site models.SiteConfig
	if err := yaml.UnmarshalWithOptions(data, &site, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	applySiteDefaults(&site)
	if err := validateSite(&site); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &site, nil
}

func applySiteDefaults(site *models.SiteConfig) {
	if site.Lint.FailOn == "" {
		site.Lint.FailOn = string(models.SeverityError)
	}
	for i := range site.Collections {
		col := &site.Collections[i]
		if col.Extension == "" {
			col.Extension = "md"
		}
		if col.Format == "" {
			col.Format = "yaml"
		}
		if col.Role == "" {
			col.Role = models.RoleGuides
		}
	}
}

func validateSite(site *models.SiteConfig) error {
	seen := make(map[string]bool, len(site.Collections))
	for _, col := range site.Collections {
		if col.Name == "" {
			return fmt.Errorf("collection without a name")
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate collection %q", col.Name)
		}
		seen[col.Name] = true
		if col.Folder == "" {
			return fmt.Errorf("collection %q: folder is required", col.Name)
		}
		switch col.Format {
		case "yaml", "toml", "json":
		default:
			return fmt.Errorf("collection %q: unsupported format %q", col.Name, col.Format)
		}
		switch col.Role {
		case models.RoleGuides, models.RoleQuestions:
		default:
			return fmt.Errorf("collection %q: unsupported role %q", col.Name, col.Role)
		}
	}
	switch site.Lint.FailOn {
	case string(models.SeverityError), string(models.SeverityWarn):
	default:
		return fmt.Errorf("lint.fail_on must be %q or %q", models.SeverityError, models.SeverityWarn)
	}
	for _, hook := range site.Webhooks {
		if hook.Name == "" || hook.URL == "" {
			return fmt.Errorf("webhook endpoints need both name and url")
		}
	}
	return nil
}
