// Package config provides the configuration schema and loader for atlasbot.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SnapshotBackend selects where the catalog snapshot is persisted.
type SnapshotBackend string

const (
	// BackendFile stores two JSON files in [SnapshotConfig.Dir].
	BackendFile SnapshotBackend = "file"

	// BackendBadger stores the snapshot in an embedded BadgerDB in
	// [SnapshotConfig.Dir].
	BackendBadger SnapshotBackend = "badger"

	// BackendPostgres stores the snapshot in PostgreSQL.
	BackendPostgres SnapshotBackend = "postgres"
)

// IsValid reports whether b is a recognised backend.
func (b SnapshotBackend) IsValid() bool {
	switch b {
	case BackendFile, BackendBadger, BackendPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for atlasbot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Atlas     AtlasConfig     `yaml:"atlas"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Nicknames NicknamesConfig `yaml:"nicknames"`
	Fuzzy     FuzzyConfig     `yaml:"fuzzy"`
	Patch     PatchConfig     `yaml:"patch"`
	Discord   DiscordConfig   `yaml:"discord"`
}

// ServerConfig holds the ops HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics endpoints
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the listener. When nil, it serves plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// TraceSampleRatio is the fraction of root traces sampled, in [0, 1].
	// Zero samples everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AtlasConfig configures the remote dataset client.
type AtlasConfig struct {
	BaseURL  string `yaml:"base_url"`
	Region   string `yaml:"region"`
	Language string `yaml:"language"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the limiter burst size.
	RateBurst int `yaml:"rate_burst"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding the remote API.
type BreakerConfig struct {
	// Disabled turns the breaker off.
	Disabled bool `yaml:"disabled"`

	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// SnapshotConfig selects and configures the snapshot store.
type SnapshotConfig struct {
	Backend SnapshotBackend `yaml:"backend"`

	// Dir holds the snapshot files for the file backend and the database
	// for the badger backend.
	Dir string `yaml:"dir"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// NicknamesConfig locates the alias directory.
type NicknamesConfig struct {
	Path string `yaml:"path"`

	// WatchInterval enables polling the file for external edits when > 0.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// FuzzyConfig tunes the fuzzy name index. Zero keeps the index defaults.
type FuzzyConfig struct {
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`
}

// PatchConfig configures the noble phantasm override.
type PatchConfig struct {
	Disabled        bool `yaml:"disabled"`
	CollectionNo    int  `yaml:"collection_no"`
	NoblePhantasmID int  `yaml:"noble_phantasm_id"`
}

// DiscordConfig configures the chat bot.
type DiscordConfig struct {
	// Token is the bot token. Empty runs without the Discord surface.
	Token string `yaml:"token"`

	// GuildID scopes slash command registration. Empty registers globally.
	GuildID string `yaml:"guild_id"`

	// EditorRoleID is the role allowed to add nicknames. Empty allows
	// everyone.
	EditorRoleID string `yaml:"editor_role_id"`
}
