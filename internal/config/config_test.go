package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/election"
)

const sampleYAML = `
self:
  host: node-1
  port: 9000
  container_name: coordinator-1
peers:
  - host: node-1
    port: 9000
    container_name: coordinator-1
  - host: node-2
    port: 9000
    container_name: coordinator-2
  - host: node-3
    port: 9000
    container_name: coordinator-3
variant: lossy-o1
heartbeat: 50ms
ack_ratio: 4
health_port: "12346"
monitor_interval: 5s
workers:
  - worker-1
  - worker-2
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "elector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "node-1", cfg.Self.Host)
	require.Equal(t, election.VariantLossyO1, cfg.Variant)
	require.Equal(t, 50_000_000, int(cfg.Heartbeat))
	require.Equal(t, 4, cfg.AckRatio)
	require.Len(t, cfg.Peers, 3)
	require.Len(t, cfg.PeerAddresses(), 3)
	require.Equal(t, []string{"worker-1", "worker-2"}, cfg.Workers)
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeTemp(t, "self:\n  host: node-1\n  port: 9000\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, election.VariantStable, cfg.Variant)
	require.Equal(t, defaultHeartbeat, cfg.Heartbeat)
	require.Equal(t, defaultAckRatio, cfg.AckRatio)
	require.Equal(t, defaultHealthPort, cfg.HealthPort)
}

func TestLoadRejectsUnknownVariant(t *testing.T) {
	path := writeTemp(t, "self:\n  host: node-1\n  port: 9000\nvariant: quorum-raft\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingSelfAddress(t *testing.T) {
	path := writeTemp(t, "variant: basic\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEnvOverridesVariant(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	t.Setenv("ELECTOR_VARIANT", "basic")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, election.VariantBasic, cfg.Variant)
}
