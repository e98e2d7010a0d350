// Package brand holds the product name and default filesystem locations.
//
// The identity is read from brand.json at compile time so packaging scripts
// can share the same values.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information.
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	SocketName       string `json:"socketName"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultRunDir = b.DefaultRunDir
	SocketName = b.SocketName
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	License = b.License
}

var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultRunDir    string
	SocketName       string
	BinaryName       string
	ConfigFileName   string
	License          string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct.
func Get() Brand {
	return b
}

// envDir resolves a directory from <PREFIX>_<key>, then <PREFIX>_PREFIX/<sub>,
// then the compiled-in default.
func envDir(key, sub, def string) string {
	if dir := os.Getenv(ConfigEnvPrefix + "_" + key); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return def
}

// GetStateDir returns the state directory (audit database).
// Priority: ZONEFWD_STATE_DIR > ZONEFWD_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	return envDir("STATE_DIR", "state", DefaultStateDir)
}

// GetConfigDir returns the config directory.
// Priority: ZONEFWD_CONFIG_DIR > ZONEFWD_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	return envDir("CONFIG_DIR", "config", DefaultConfigDir)
}

// GetRunDir returns the runtime directory for the control socket.
// Priority: ZONEFWD_RUN_DIR > ZONEFWD_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	return envDir("RUN_DIR", "run", DefaultRunDir)
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// GetSocketPath returns the full path to the control socket,
// e.g. /var/run/zonefwd.sock.
func GetSocketPath() string {
	return filepath.Join(GetRunDir(), SocketName)
}

// GetAuditDBPath returns the default audit database path.
func GetAuditDBPath() string {
	return filepath.Join(GetStateDir(), "audit.db")
}
