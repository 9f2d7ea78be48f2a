package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte(`storage_dir = "/tmp/x"`))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if c.Backend != BackendSQLite || c.SearchMode != ModeFTS {
		t.Errorf("Unexpected backend/mode %s/%s", c.Backend, c.SearchMode)
	}
	if c.CMS.BaseURL != DefaultBaseURL {
		t.Errorf("Unexpected base url %s", c.CMS.BaseURL)
	}
	if c.CMS.PageSize != 100 || c.Sync.BatchSize != 400 || c.Search.Limit != 100 {
		t.Errorf("Unexpected sizes: %+v", c)
	}
	if c.Redis.TTL.Duration != 168*time.Hour {
		t.Errorf("Unexpected redis ttl %v", c.Redis.TTL)
	}
	if !c.Sync.OnStart {
		t.Error("on_start should default to true")
	}
}

func TestParseSubstringDefaultForOtherBackends(t *testing.T) {
	c, err := Parse([]byte(`backend = "memory"`))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if c.SearchMode != ModeSubstring {
		t.Errorf("Expected substring mode, got %s", c.SearchMode)
	}
}

func TestParseFullConfig(t *testing.T) {
	data := `
backend = "redis"
search_mode = "substring"

[cms]
site_id = "site"
api_token = "token"
page_size = 50
timeout = "10s"

[sync]
secret = "s3cret"
schedule = "@every 30m"
on_start = false

[server]
search_max_age = "1m"

[[widget.bindings]]
field = "main-image"
kind = "image"
`
	c, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if c.CMS.PageSize != 50 || c.CMS.Timeout.Duration != 10*time.Second {
		t.Errorf("Unexpected cms config %+v", c.CMS)
	}
	if c.Sync.OnStart {
		t.Error("on_start should be false")
	}
	if c.Server.SearchMaxAge.Duration != time.Minute {
		t.Errorf("Unexpected search max age %v", c.Server.SearchMaxAge)
	}
	if len(c.Widget.Bindings) != 1 || c.Widget.Bindings[0].Kind != "image" {
		t.Errorf("Unexpected bindings %+v", c.Widget.Bindings)
	}
	if !c.HasCMSCredentials() {
		t.Error("Expected credentials to be present")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Expected valid config: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(`[cms]
api_token = "from-file"`))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	env := map[string]string{
		EnvAPIToken:   "from-env",
		EnvSiteID:     "site-env",
		EnvSyncSecret: "",
		EnvRedisURL:   "redis://other:6379/1",
	}
	c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if c.CMS.APIToken != "from-env" || c.CMS.SiteID != "site-env" {
		t.Errorf("Env not applied: %+v", c.CMS)
	}
	if c.Sync.Secret != "" {
		t.Error("Empty env value should not override")
	}
	if c.Redis.URL != "redis://other:6379/1" {
		t.Errorf("Unexpected redis url %s", c.Redis.URL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"defaults", ``, false},
		{"unknown backend", `backend = "mongo"`, true},
		{"unknown mode", `search_mode = "fuzzy"`, true},
		{"fts on memory", "backend = \"memory\"\nsearch_mode = \"fts\"", true},
		{"postgres without url", `backend = "postgres"`, true},
		{"postgres with url", "backend = \"postgres\"\n[postgres]\nurl = \"postgres://localhost/db\"", false},
		{"bad binding kind", "[[widget.bindings]]\nfield = \"x\"\nkind = \"video\"", true},
		{"binding without field", "[[widget.bindings]]\nkind = \"text\"", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Failed to parse: %v", err)
			}
			err = c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *core.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("Expected ConfigError, got %T", err)
				}
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(EnvSiteID, "site-from-env")

	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if c.Backend != BackendSQLite {
		t.Errorf("Unexpected backend %s", c.Backend)
	}
	if c.CMS.SiteID != "site-from-env" {
		t.Errorf("Env override not applied, got %q", c.CMS.SiteID)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "config.toml")

	c := &Config{StorageDir: dataDir}
	if err := c.SaveTemplateConfig(path); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read template: %v", err)
	}

	loaded, err := Parse(raw)
	if err != nil {
		t.Fatalf("Template does not parse: %v", err)
	}
	if loaded.StorageDir != dataDir {
		t.Errorf("Expected storage dir %s, got %s", dataDir, loaded.StorageDir)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Template does not validate: %v", err)
	}
}
