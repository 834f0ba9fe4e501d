package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":9090"
	DefaultBaseURL        = "https://api.atlasacademy.io"
	DefaultRegion         = "JP"
	DefaultLanguage       = "en"
	DefaultTimeout        = 30 * time.Second
	DefaultSnapshotDir    = "assets"
	DefaultNicknamesPath  = "nicknames.json"
	DefaultMaxFailures    = 5
	DefaultResetTimeout   = 30 * time.Second
	DefaultCollectionNo   = 336
	DefaultNoblePhantasm  = 1001150
	DefaultRateBurst      = 1
	maxFuzzyThreshold     = 1.0
	minRecommendedTimeout = time.Second
)

// ValidRegions lists the game regions served by the remote API.
var ValidRegions = []string{"JP", "NA", "CN", "KR", "TW"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Atlas.BaseURL == "" {
		cfg.Atlas.BaseURL = DefaultBaseURL
	}
	if cfg.Atlas.Region == "" {
		cfg.Atlas.Region = DefaultRegion
	}
	if cfg.Atlas.Language == "" {
		cfg.Atlas.Language = DefaultLanguage
	}
	if cfg.Atlas.Timeout == 0 {
		cfg.Atlas.Timeout = DefaultTimeout
	}
	if cfg.Atlas.RateBurst == 0 {
		cfg.Atlas.RateBurst = DefaultRateBurst
	}
	if cfg.Atlas.Breaker.MaxFailures == 0 {
		cfg.Atlas.Breaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.Atlas.Breaker.ResetTimeout == 0 {
		cfg.Atlas.Breaker.ResetTimeout = DefaultResetTimeout
	}

	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = BackendFile
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = DefaultSnapshotDir
	}

	if cfg.Nicknames.Path == "" {
		cfg.Nicknames.Path = DefaultNicknamesPath
	}

	if cfg.Patch.CollectionNo == 0 {
		cfg.Patch.CollectionNo = DefaultCollectionNo
	}
	if cfg.Patch.NoblePhantasmID == 0 {
		cfg.Patch.NoblePhantasmID = DefaultNoblePhantasm
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be between 0 and 1", r))
	}

	// Atlas
	if u, err := url.Parse(cfg.Atlas.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("atlas.base_url %q must be an absolute http(s) URL", cfg.Atlas.BaseURL))
	}
	if !slices.Contains(ValidRegions, cfg.Atlas.Region) {
		errs = append(errs, fmt.Errorf("atlas.region %q is invalid; valid values: %v", cfg.Atlas.Region, ValidRegions))
	}
	if cfg.Atlas.Timeout < 0 {
		errs = append(errs, fmt.Errorf("atlas.timeout %v must not be negative", cfg.Atlas.Timeout))
	} else if cfg.Atlas.Timeout > 0 && cfg.Atlas.Timeout < minRecommendedTimeout {
		slog.Warn("atlas.timeout is very short; the catalog export may not finish", "timeout", cfg.Atlas.Timeout)
	}
	if cfg.Atlas.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("atlas.rate_limit %v must not be negative", cfg.Atlas.RateLimit))
	}
	if cfg.Atlas.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("atlas.rate_burst %d must not be negative", cfg.Atlas.RateBurst))
	}
	if cfg.Atlas.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("atlas.breaker.max_failures %d must not be negative", cfg.Atlas.Breaker.MaxFailures))
	}
	if cfg.Atlas.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("atlas.breaker.reset_timeout %v must not be negative", cfg.Atlas.Breaker.ResetTimeout))
	}

	// Snapshot
	switch {
	case !cfg.Snapshot.Backend.IsValid():
		errs = append(errs, fmt.Errorf("snapshot.backend %q is invalid; valid values: file, badger, postgres", cfg.Snapshot.Backend))
	case cfg.Snapshot.Backend == BackendPostgres && cfg.Snapshot.PostgresDSN == "":
		errs = append(errs, errors.New("snapshot.postgres_dsn is required when snapshot.backend is postgres"))
	case cfg.Snapshot.Backend != BackendPostgres && cfg.Snapshot.PostgresDSN != "":
		slog.Warn("snapshot.postgres_dsn is set but unused by the selected backend", "backend", cfg.Snapshot.Backend)
	}

	// Nicknames
	if cfg.Nicknames.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("nicknames.watch_interval %v must not be negative", cfg.Nicknames.WatchInterval))
	}

	// Fuzzy
	for name, v := range map[string]float64{
		"fuzzy.phonetic_threshold": cfg.Fuzzy.PhoneticThreshold,
		"fuzzy.fuzzy_threshold":    cfg.Fuzzy.FuzzyThreshold,
	} {
		if v < 0 || v > maxFuzzyThreshold {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", name, v))
		}
	}

	// Patch
	if cfg.Patch.CollectionNo < 0 || cfg.Patch.NoblePhantasmID < 0 {
		errs = append(errs, errors.New("patch.collection_no and patch.noble_phantasm_id must not be negative"))
	}

	// Discord
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the chat bot will not start")
	}
	if cfg.Discord.Token != "" && cfg.Discord.EditorRoleID == "" {
		slog.Warn("discord.editor_role_id is empty; every user may add nicknames")
	}

	return errors.Join(errs...)
}
