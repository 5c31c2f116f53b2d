package envconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresConfigFile(t *testing.T) {
	t.Setenv(ConfigurationFileVar, "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadHappyPath(t *testing.T) {
	t.Setenv(ConfigurationFileVar, "/tmp/layout.csv")
	t.Setenv(MmapFFAListSizeVar, "256")
	t.Setenv(FileFFAListSizeVar, "64")
	t.Setenv(AnalyzeHPBRsVar, "1")
	t.Setenv(VerboseLevelVar, "2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/layout.csv", cfg.ConfigurationFile)
	require.Equal(t, 256, cfg.MmapFFAListSize)
	require.Equal(t, 64, cfg.FileFFAListSize)
	require.True(t, cfg.AnalyzeHPBRs)
	require.Equal(t, 2, cfg.VerboseLevel)
}

func TestLoadRejectsBadFFASize(t *testing.T) {
	t.Setenv(ConfigurationFileVar, "/tmp/layout.csv")
	t.Setenv(MmapFFAListSizeVar, "not-a-number")
	t.Setenv(FileFFAListSizeVar, "64")
	_, err := Load()
	require.Error(t, err)
}
