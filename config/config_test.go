package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/worker"
)

func TestLoadAppliesDefaultsForZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lcim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cells: 2048\nmode: clk48\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2048, cfg.Cells)
	assert.Equal(t, "clk48", cfg.Mode)
	assert.Equal(t, "aos", cfg.Layout)
	assert.Equal(t, 4096, cfg.RegionSize)
	assert.Equal(t, 1024, cfg.QueueCapacity)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCellModeAndWorkerLayoutResolution(t *testing.T) {
	cfg := Default()
	cfg.Mode = "value32"
	cfg.Layout = "soa"

	mode, err := cfg.CellMode()
	require.NoError(t, err)
	assert.Equal(t, cell.ModeValue32, mode)

	layout, err := cfg.WorkerLayout()
	require.NoError(t, err)
	assert.Equal(t, worker.LayoutSoA, layout)

	cfg.Mode = "bogus"
	_, err = cfg.CellMode()
	assert.Error(t, err)
}
