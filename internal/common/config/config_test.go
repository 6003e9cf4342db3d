package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15924, cfg.Server.Port)
	assert.Equal(t, 600, cfg.Permission.TimeoutSecs)
	assert.Equal(t, 86400, cfg.Session.TTLSecs)
	assert.Equal(t, []string{"claude.exe", "claude", "node.exe"}, cfg.Scanner.IncludeNames)
}

func TestLoad_ExpandsTildePaths(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".agent-desk", "sessions.json"), cfg.Session.SnapshotPath)
	assert.Equal(t, filepath.Join(home, ".agent-desk", "events.jsonl"), cfg.EventLog.Path)
	assert.Equal(t, filepath.Join(home, ".agent-desk", "audit.db"), cfg.Audit.DBPath)
	assert.Equal(t, filepath.Join(home, ".agent-desk", "settings.json"), cfg.SettingsFile)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "foo", "bar"), expandHome("~/foo/bar"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/absolute/path", expandHome("/absolute/path"))
	assert.Equal(t, "relative/path", expandHome("relative/path"))
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 0}, Permission: PermissionConfig{TimeoutSecs: 10}}
	assert.Error(t, validate(cfg))

	cfg.Server.Port = 70000
	assert.Error(t, validate(cfg))
}

func TestValidate_RejectsNonPositiveTimeout(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 15924}, Permission: PermissionConfig{TimeoutSecs: 0}}
	assert.Error(t, validate(cfg))
}
