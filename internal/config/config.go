// Package config loads the daemon's YAML configuration (spec §6 "Config
// surface"), grounded on the teacher's own flat-struct + gopkg.in/yaml.v3
// LoginServer config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full telemetryd configuration surface (spec §6).
type Config struct {
	// Bot-wide
	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`

	Pvp       PvpConfig       `yaml:"pvp"`
	Transport TransportConfig `yaml:"transport"`
	Agent     AgentConfig     `yaml:"agent"`
	Save      SaveConfig      `yaml:"save"`
	Rcon      RconConfig      `yaml:"rcon"`
	Store     StoreConfig     `yaml:"store"`
}

// PvpConfig configures the PvpScheduler (spec §4.7 "Inputs").
type PvpConfig struct {
	StartMinutes int                   `yaml:"start_minutes"`
	EndMinutes   int                   `yaml:"end_minutes"`
	Days         []string              `yaml:"days"` // weekday names, empty means every day
	PerDay       map[string]DayWindow  `yaml:"per_day"`
	RestartDelay int                   `yaml:"restart_delay"` // minutes
	RewriteName  bool                  `yaml:"rewrite_server_name"`
	ConfigPath   string                `yaml:"config_path"`
}

// DayWindow is a per-weekday override window (minutes-from-midnight).
type DayWindow struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// TransportConfig configures the SSH-backed file-transfer/exec client
// (internal/transport.Client).
type TransportConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	KeyPath     string `yaml:"key_path"`
	DialTimeout string `yaml:"dial_timeout"` // duration, e.g. "15s"
}

// AgentConfig configures SaveService's agent mode and trigger strategy
// (spec §4.5).
type AgentConfig struct {
	Mode            string `yaml:"mode"`    // direct, agent, auto
	Trigger         string `yaml:"trigger"` // panel, ssh, none, auto
	ConsoleCommand  string `yaml:"console_command"`
	PanelDelay      string `yaml:"panel_delay"` // duration, e.g. "5s"
	ScriptPath      string `yaml:"script_path"`
	CachePath       string `yaml:"cache_path"`
	PanelBaseURL    string `yaml:"panel_base_url"`
	PanelAPIKey     string `yaml:"panel_api_key"`
	PanelTimeout    string `yaml:"panel_timeout"` // duration, e.g. "10s"
}

// SaveConfig locates the save and clan files and the poll cadence.
type SaveConfig struct {
	SavePath     string `yaml:"save_path"`
	ClanPath     string `yaml:"clan_path"`
	PollInterval string `yaml:"poll_interval"` // duration, e.g. "60s"
}

// RconConfig configures the RconClient.
type RconConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// StoreConfig locates the embedded sqlite database. StatusCacheTTL is
// loaded from the file but no component reads it.
type StoreConfig struct {
	Path          string `yaml:"path"`
	StatusCacheTTL string `yaml:"status_cache_ttl"` // duration, e.g. "10s"
}

// Default returns a Config with sensible defaults for local/dev use.
func Default() Config {
	return Config{
		Timezone: "UTC",
		LogLevel: "info",
		Pvp: PvpConfig{
			StartMinutes: 18 * 60,
			EndMinutes:   22 * 60,
			RestartDelay: 10,
			ConfigPath:   "./Saved/Config/WindowsServer/GameUserSettings.ini",
		},
		Transport: TransportConfig{
			Port:        22,
			DialTimeout: "15s",
		},
		Agent: AgentConfig{
			Mode:         "auto",
			Trigger:      "auto",
			PanelDelay:   "5s",
			ScriptPath:   "/tmp/humanitz-agent.js",
			PanelTimeout: "10s",
		},
		Save: SaveConfig{
			PollInterval: "60s",
		},
		Rcon: RconConfig{
			Port: 27015,
		},
		Store: StoreConfig{
			Path:           "./telemetry.db",
			StatusCacheTTL: "10s",
		},
	}
}

// Load reads YAML configuration from path, falling back to Default() if the
// file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseDuration parses a config duration string, applying def when s is empty.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
