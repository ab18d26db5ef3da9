package disks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/block-fs/minfs/disks"
)

func TestLookup_KnownPreset(t *testing.T) {
	preset, err := disks.Lookup("floppy-1.44m")
	require.NoError(t, err)
	assert.Equal(t, uint(8192), preset.BlockSizeBytes)
	assert.Equal(t, uint(180), preset.TotalBlocks)
	assert.EqualValues(t, 8192*180, preset.TotalSizeBytes())
}

func TestLookup_UnknownPresetFails(t *testing.T) {
	_, err := disks.Lookup("does-not-exist")
	assert.Error(t, err)
}

func TestNames_IncludesBuiltins(t *testing.T) {
	assert.Contains(t, disks.Names(), "floppy-1.44m")
}
