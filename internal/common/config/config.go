// Package config loads agent-desk's own configuration (ports, timeouts,
// persisted-file paths, push-channel wiring). It is deliberately separate
// from internal/settings, which reads/writes agent-desk's settings document
// (settingsFile) as an opaque YAML blob.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable the daemon needs at startup.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Permission  PermissionConfig  `mapstructure:"permission"`
	Session     SessionConfig     `mapstructure:"session"`
	EventLog    EventLogConfig    `mapstructure:"eventLog"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Scanner     ScannerConfig     `mapstructure:"scanner"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Push        PushConfig        `mapstructure:"push"`
	Audit       AuditConfig       `mapstructure:"audit"`
	SettingsFile string           `mapstructure:"settingsFile"`
}

// ServerConfig is the HTTP/TCP listener configuration.
type ServerConfig struct {
	// Port is the core HTTP server's port. The hook relay daemon binds Port+1.
	Port int `mapstructure:"port"`
}

// PermissionConfig controls the permission gate's default timeout.
type PermissionConfig struct {
	TimeoutSecs int `mapstructure:"timeoutSecs"`
}

// SessionConfig controls session-tracker TTLs.
type SessionConfig struct {
	TTLSecs       int `mapstructure:"ttlSecs"`
	StaleSecs     int `mapstructure:"staleSecs"`
	SnapshotPath  string `mapstructure:"snapshotPath"`
}

// EventLogConfig controls the JSONL event store.
type EventLogConfig struct {
	Path       string `mapstructure:"path"`
	MaxAgeSecs int    `mapstructure:"maxAgeSecs"`
}

// DedupConfig controls the §4.11 dedup window.
type DedupConfig struct {
	WindowMillis int `mapstructure:"windowMillis"`
}

// ScannerConfig controls process-scan cadence.
type ScannerConfig struct {
	IntervalSecs  int      `mapstructure:"intervalSecs"`
	IncludeNames  []string `mapstructure:"includeNames"`
	ExcludeNames  []string `mapstructure:"excludeNames"`
}

// LoggingConfig mirrors internal/common/logger.LoggingConfig's shape.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PushConfig is the fire-and-forget remote push boundary: generic webhook
// endpoints plus the three provider-specific channels the daemon dispatches
// directly (internal/push/remote.go).
type PushConfig struct {
	WebhookURLs []string       `mapstructure:"webhookUrls"`
	TimeoutSecs int            `mapstructure:"timeoutSecs"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	DingTalk    DingTalkConfig `mapstructure:"dingtalk"`
	WeChat      WeChatConfig   `mapstructure:"wechat"`
}

// TelegramConfig configures Telegram bot push.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"botToken"`
	ChatID   string `mapstructure:"chatId"`
}

// DingTalkConfig configures DingTalk custom-robot webhook push, optionally
// HMAC-SHA256 signed when Secret is set.
type DingTalkConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	WebhookURL  string `mapstructure:"webhookUrl"`
	AccessToken string `mapstructure:"accessToken"`
	Secret      string `mapstructure:"secret"`
}

// WeChatConfig configures WeChat push via either the "pushplus" or
// "serverchan" relay provider.
type WeChatConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Provider          string `mapstructure:"provider"`
	PushPlusToken     string `mapstructure:"pushplusToken"`
	ServerChanSendKey string `mapstructure:"serverchanSendkey"`
}

// AuditConfig controls the supplemental decision-audit SQLite store.
type AuditConfig struct {
	DBPath  string `mapstructure:"dbPath"`
	Enabled bool   `mapstructure:"enabled"`
}

// Load reads configuration from defaults, an optional agentdesk.yaml in the
// current directory or /etc/agentdesk/, and AGENTDESK_-prefixed env vars.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath is Load with an extra config-file search directory, mainly
// for tests.
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("agentdesk")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentdesk/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	expandPaths(&cfg)

	return &cfg, nil
}

// expandPaths resolves a leading "~" in every persisted-file path to the
// user's home directory, the way credentials.AugmentSessionProvider resolves
// ~/.augment/session.json.
func expandPaths(cfg *Config) {
	cfg.Session.SnapshotPath = expandHome(cfg.Session.SnapshotPath)
	cfg.EventLog.Path = expandHome(cfg.EventLog.Path)
	cfg.Audit.DBPath = expandHome(cfg.Audit.DBPath)
	cfg.SettingsFile = expandHome(cfg.SettingsFile)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}
	if path == "~" {
		return homeDir
	}
	return filepath.Join(homeDir, path[2:])
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 15924)
	v.SetDefault("permission.timeoutSecs", 600)
	v.SetDefault("session.ttlSecs", 86400)
	v.SetDefault("session.staleSecs", 300)
	v.SetDefault("session.snapshotPath", "~/.agent-desk/sessions.json")
	v.SetDefault("eventLog.path", "~/.agent-desk/events.jsonl")
	v.SetDefault("eventLog.maxAgeSecs", 3600)
	v.SetDefault("dedup.windowMillis", 500)
	v.SetDefault("scanner.intervalSecs", 5)
	v.SetDefault("scanner.includeNames", []string{"claude.exe", "claude", "node.exe"})
	v.SetDefault("scanner.excludeNames", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("push.timeoutSecs", 10)
	v.SetDefault("push.telegram.enabled", false)
	v.SetDefault("push.dingtalk.enabled", false)
	v.SetDefault("push.dingtalk.webhookUrl", "https://oapi.dingtalk.com/robot/send")
	v.SetDefault("push.wechat.enabled", false)
	v.SetDefault("push.wechat.provider", "pushplus")
	v.SetDefault("audit.dbPath", "~/.agent-desk/audit.db")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("settingsFile", "~/.agent-desk/settings.json")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65534 {
		return fmt.Errorf("server.port must be between 1 and 65534")
	}
	if cfg.Permission.TimeoutSecs <= 0 {
		return fmt.Errorf("permission.timeoutSecs must be positive")
	}
	return nil
}
