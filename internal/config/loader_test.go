package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigDir(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yamlBody), 0o644))
	return dir
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := writeConfigDir(t, `
provider: acme
models:
  default: acme-large
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, DefaultAshigaruCount, cfg.AshigaruCount)
	require.Equal(t, DefaultServerPort, cfg.Server.Port)
	require.Equal(t, "acme", cfg.Provider)
	require.Equal(t, "acme-large", cfg.Models.Default)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("SHOGUN_TEST_PROVIDER", "fromenv")
	dir := writeConfigDir(t, `
provider: ${SHOGUN_TEST_PROVIDER}
models:
  default: m
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "fromenv", cfg.Provider)
}

func TestLoadMissingFileReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadRejectsInvalidAshigaruCount(t *testing.T) {
	// mergo treats a zero value as "not set" (it falls through to the
	// built-in default of 5), so an out-of-range value has to be nonzero
	// to actually override the default and reach validation.
	dir := writeConfigDir(t, `
ashigaruCount: 999
models:
  default: m
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadValidatesAshigaruProfileReferencesConfiguredAgent(t *testing.T) {
	dir := writeConfigDir(t, `
ashigaruCount: 2
models:
  default: m
ashigaruProfiles:
  - agentId: ashigaru5
    displayName: ghost
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadPerRoleModelOverride(t *testing.T) {
	dir := writeConfigDir(t, `
models:
  default: base-model
  karou: karou-model
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "karou-model", cfg.Models.ForRole("karou"))
	require.Equal(t, "base-model", cfg.Models.ForRole("shogun"))
}
