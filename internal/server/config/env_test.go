package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_OverlaysSetVariables(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	t.Setenv("SETTLEMENT_DATABASE_DSN", "postgres://env/db")
	t.Setenv("SETTLEMENT_TOKEN_LEAD_TIME", "90s")
	t.Setenv("SETTLEMENT_ANCHOR_RPS", "2.5")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "postgres://env/db", cfg.DatabaseDSN)
	assert.Equal(t, 90*time.Second, cfg.TokenLeadTime)
	assert.Equal(t, 2.5, cfg.AnchorRequestsPerSec)
	assert.Equal(t, ":50051", cfg.EndpointAddrGRPC, "unset variables keep previous value")
}

func TestParseEnv_NothingSet(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NotPanics(t, func() { parseEnv(cfg) })
	assert.Equal(t, "SRT", cfg.AssetCode)
}

func TestParseEnv_DotenvFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := filepath.Join(t.TempDir(), "settlement.env")
	require.NoError(t, os.WriteFile(path, []byte("SETTLEMENT_S3_BUCKET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SETTLEMENT_S3_BUCKET") })

	os.Args = []string{"testbin", "-env", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "from-dotenv", cfg.S3Bucket)
}

func TestParseEnv_MissingDotenvPanics(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin", "-env", filepath.Join(t.TempDir(), "missing.env")}

	cfg := &Config{}
	require.Panics(t, func() { parseEnv(cfg) })
}
