package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLedgerConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := LoadLedgerConfig([]string{t.TempDir()})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 10, cfg.Priority.DefaultLimit)
	assert.Equal(t, 100, cfg.Priority.MaxLimit)
	assert.Equal(t, 5.0, cfg.LowCreditThreshold)
}

func TestLoadLedgerConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("ledger:\n  priority:\n    defaultLimit: 25\n    maxLimit: 50\n  lowCreditThreshold: 2.5\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.yml"), content, 0o600))

	holder, err := LoadLedgerConfig([]string{dir})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 25, cfg.Priority.DefaultLimit)
	assert.Equal(t, 50, cfg.Priority.MaxLimit)
	assert.Equal(t, 2.5, cfg.LowCreditThreshold)
}

func TestLoadLedgerConfigRejectsInvalidLimits(t *testing.T) {
	dir := t.TempDir()
	content := []byte("ledger:\n  priority:\n    defaultLimit: 20\n    maxLimit: 5\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.yml"), content, 0o600))

	_, err := LoadLedgerConfig([]string{dir})
	assert.Error(t, err)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *LedgerConfigHolder
	assert.Equal(t, DefaultLedgerConfig(), holder.Get())
}

func TestLoadLedgerConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	content := []byte("ledger:\n  lowCreditThreshold: 1\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.yml"), content, 0o600))

	holder, err := LoadLedgerConfig([]string{dir})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 10, cfg.Priority.DefaultLimit)
	assert.Equal(t, 100, cfg.Priority.MaxLimit)
	assert.Equal(t, 1.0, cfg.LowCreditThreshold)
}
