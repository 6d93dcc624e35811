package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToFileAtLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Setup("warn", path))
	t.Cleanup(func() {
		_ = Close()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	log.Info().Str("sku", "A1").Msg("below level")
	log.Warn().Str("sku", "B2").Msg("manual intervention required")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "below level")
	require.Contains(t, string(data), `"sku":"B2"`)
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestSetupFallsBackToInfo(t *testing.T) {
	require.NoError(t, Setup("loud", ""))
	t.Cleanup(func() { _ = Close() })
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	require.Error(t, Setup("info", filepath.Join(t.TempDir(), "missing", "app.log")))
}
