package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverridesMergeOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetryd.yaml")
	yamlContent := `
timezone: "America/New_York"
agent:
  mode: direct
  trigger: none
save:
  save_path: /srv/saves/world.sav
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "America/New_York", cfg.Timezone)
	require.Equal(t, "direct", cfg.Agent.Mode)
	require.Equal(t, "none", cfg.Agent.Trigger)
	require.Equal(t, "/srv/saves/world.sav", cfg.Save.SavePath)
	// Fields absent from the override file keep their defaults.
	require.Equal(t, 22, cfg.Transport.Port)
	require.Equal(t, 27015, cfg.Rcon.Port)
}

func TestParseDuration_EmptyUsesDefault(t *testing.T) {
	d, err := ParseDuration("", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)
}

func TestParseDuration_ParsesExplicitValue(t *testing.T) {
	d, err := ParseDuration("90s", time.Second)
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, d)
}
