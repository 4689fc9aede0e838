package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesExternalInterfaceContract(t *testing.T) {
	c := Default()
	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, DiscoveryStatic, c.Workers.Discovery.Mode)
	assert.Equal(t, "model:", c.Registry.ModelKeyPrefix)
	assert.Equal(t, 300, c.Registry.TTLSeconds)
	assert.Equal(t, 16, c.Concurrency.HealthFanout)
}

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	c, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default().ListenAddr, c.ListenAddr)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "gateway-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("listenAddr: \":9090\"\nregistry:\n  ttlSeconds: 120\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.ListenAddr)
	assert.Equal(t, 120, c.Registry.TTLSeconds)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "gateway-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("listenAddr: \":9090\"\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Setenv("GATEWAY_LISTEN_ADDR", ":7070")

	c, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, ":7070", c.ListenAddr)
}

func TestLoad_StaticWorkersFromEnvIsCommaSplit(t *testing.T) {
	t.Setenv("GATEWAY_WORKERS_STATIC", "a:8000,b:8000,c:8000")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:8000", "b:8000", "c:8000"}, c.Workers.Static)
}

func TestTimeoutHelpers_ConvertMillisecondsToDuration(t *testing.T) {
	c := Default()
	assert.Equal(t, 2000, c.Timeouts.ProbeMs)
	assert.Equal(t, c.Timeouts.Probe().Milliseconds(), int64(2000))
	assert.Equal(t, c.Registry.TTL().Seconds(), float64(300))
}
