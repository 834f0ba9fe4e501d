package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/atlasbot/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8081"
  log_level: debug
  trace_sample_ratio: 0.5
atlas:
  base_url: "http://localhost:9000"
  region: NA
  language: jp
  timeout: 5s
  rate_limit: 10
  rate_burst: 3
  breaker:
    max_failures: 2
    reset_timeout: 1m
snapshot:
  backend: postgres
  postgres_dsn: "postgres://atlas@localhost/atlas"
nicknames:
  path: /data/nicknames.json
  watch_interval: 2s
fuzzy:
  phonetic_threshold: 0.8
  fuzzy_threshold: 0.9
patch:
  collection_no: 100
  noble_phantasm_id: 42
discord:
  token: abc
  guild_id: "123"
  editor_role_id: "456"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8081" {
		t.Errorf("ListenAddr = %q, want :8081", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Server.TraceSampleRatio != 0.5 {
		t.Errorf("TraceSampleRatio = %v, want 0.5", cfg.Server.TraceSampleRatio)
	}
	if cfg.Atlas.Region != "NA" || cfg.Atlas.Language != "jp" {
		t.Errorf("Atlas region/language = %q/%q, want NA/jp", cfg.Atlas.Region, cfg.Atlas.Language)
	}
	if cfg.Atlas.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Atlas.Timeout)
	}
	if cfg.Atlas.Breaker.ResetTimeout != time.Minute {
		t.Errorf("ResetTimeout = %v, want 1m", cfg.Atlas.Breaker.ResetTimeout)
	}
	if cfg.Snapshot.Backend != config.BackendPostgres {
		t.Errorf("Backend = %q, want postgres", cfg.Snapshot.Backend)
	}
	if cfg.Nicknames.WatchInterval != 2*time.Second {
		t.Errorf("WatchInterval = %v, want 2s", cfg.Nicknames.WatchInterval)
	}
	if cfg.Patch.CollectionNo != 100 || cfg.Patch.NoblePhantasmID != 42 {
		t.Errorf("Patch = %+v, want 100/42", cfg.Patch)
	}
	if cfg.Discord.EditorRoleID != "456" {
		t.Errorf("EditorRoleID = %q, want 456", cfg.Discord.EditorRoleID)
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := config.Default()
	if cfg.Atlas.BaseURL != want.Atlas.BaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Atlas.BaseURL, want.Atlas.BaseURL)
	}
	if cfg.Atlas.Region != "JP" || cfg.Atlas.Language != "en" {
		t.Errorf("region/language = %q/%q, want JP/en", cfg.Atlas.Region, cfg.Atlas.Language)
	}
	if cfg.Snapshot.Backend != config.BackendFile || cfg.Snapshot.Dir != config.DefaultSnapshotDir {
		t.Errorf("Snapshot = %+v, want file backend in %q", cfg.Snapshot, config.DefaultSnapshotDir)
	}
	if cfg.Nicknames.Path != config.DefaultNicknamesPath {
		t.Errorf("Nicknames.Path = %q, want %q", cfg.Nicknames.Path, config.DefaultNicknamesPath)
	}
	if cfg.Patch.CollectionNo != 336 || cfg.Patch.NoblePhantasmID != 1001150 {
		t.Errorf("Patch = %+v, want 336/1001150", cfg.Patch)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("atlas:\n  regoin: JP\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "atlasbot.yaml", validYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Atlas.BaseURL != "http://localhost:9000" {
		t.Errorf("BaseURL = %q", cfg.Atlas.BaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("error = %v, want config: open prefix", err)
	}
}
