package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLoadServer_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("CHARTKEEPER_GRACE_PERIOD", "")
	t.Setenv("CHARTKEEPER_RATE_PER_MINUTE", "")
	cfg, err := LoadServer(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, 720*time.Hour, cfg.GracePeriod)
	require.Equal(t, "@every 1h", cfg.PurgeSchedule)
	require.Equal(t, 120, cfg.RatePerMinute)

	t.Setenv("CHARTKEEPER_GRACE_PERIOD", "48h")
	t.Setenv("CHARTKEEPER_RATE_PER_MINUTE", "not-a-number")
	cfg, err = LoadServer()
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, cfg.GracePeriod)
	require.Equal(t, 120, cfg.RatePerMinute)

	t.Setenv("CHARTKEEPER_GRACE_PERIOD", "-1h")
	_, err = LoadServer()
	require.Error(t, err)
}

func TestLoadServer_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHARTKEEPER_PURGE_SCHEDULE=@daily\n"), 0o600))
	t.Setenv("CHARTKEEPER_PURGE_SCHEDULE", "")
	os.Unsetenv("CHARTKEEPER_PURGE_SCHEDULE")

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, "@daily", cfg.PurgeSchedule)
}

func TestClient_RoundTripAndStrict(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(Dir(), "config.yaml")

	missing, err := LoadClient(path)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultClient(), missing); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}

	want := DefaultClient()
	want.Transport = TransportHTTP
	want.Endpoint = "https://notes.example.org"
	want.Debounce = 2 * time.Second
	require.NoError(t, want.Save(path))
	got, err := LoadClient(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, os.WriteFile(path, []byte("endpoint: x\nbogus: 1\n"), 0o600))
	_, err = LoadClient(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("transport: carrier-pigeon\n"), 0o600))
	_, err = LoadClient(path)
	require.Error(t, err)
}
