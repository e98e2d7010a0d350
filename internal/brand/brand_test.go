package brand

import (
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if ConfigEnvPrefix != "ZONEFWD" {
		t.Errorf("ConfigEnvPrefix = %q, want ZONEFWD", ConfigEnvPrefix)
	}
}

func TestGetDirectories(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
		t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "")
		t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")
		t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")

		if got := GetSocketPath(); got != filepath.Join(DefaultRunDir, SocketName) {
			t.Errorf("GetSocketPath() = %q", got)
		}
		if got := GetConfigPath(); got != filepath.Join(DefaultConfigDir, ConfigFileName) {
			t.Errorf("GetConfigPath() = %q", got)
		}
	})

	t.Run("Prefix", func(t *testing.T) {
		t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/zf")
		t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "")
		t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")

		if got := GetRunDir(); got != "/tmp/zf/run" {
			t.Errorf("GetRunDir() = %q, want /tmp/zf/run", got)
		}
		if got := GetAuditDBPath(); got != "/tmp/zf/state/audit.db" {
			t.Errorf("GetAuditDBPath() = %q", got)
		}
	})

	t.Run("ExplicitOverride", func(t *testing.T) {
		t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/zf")
		t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "/custom/run")

		if got := GetSocketPath(); got != "/custom/run/"+SocketName {
			t.Errorf("GetSocketPath() = %q", got)
		}
	})
}
