// Package config loads the elector process' configuration: its own address,
// its peers, which algorithm variant to run, and the timing/monitoring
// parameters that drive it. Generalized from a Docker-Compose-specific
// worker inventory to a plain peers/variant/timeout/ackratio schema.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/election"
)

// Node is one process' identity within the group: its address plus, for the
// leader's own benefit once elected, the container it corresponds to for
// health-check/restart purposes.
type Node struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	ContainerName string `yaml:"container_name,omitempty"`
}

// Address converts a Node into the election package's wire address.
func (n Node) Address() address.Address { return address.New(n.Host, n.Port) }

// raw mirrors the on-disk YAML shape; durations are strings here (YAML has
// no native duration type) and get parsed into Config's time.Duration
// fields by Load.
type raw struct {
	Self               Node     `yaml:"self"`
	Peers              []Node   `yaml:"peers"`
	Variant            string   `yaml:"variant"`
	Heartbeat          string   `yaml:"heartbeat"`
	AckRatio           int      `yaml:"ack_ratio"`
	HealthPort         string   `yaml:"health_port"`
	MonitorInterval    string   `yaml:"monitor_interval"`
	WorkersComposePath string   `yaml:"workers_compose_path"`
	Workers            []string `yaml:"workers"`
}

// Config is the fully parsed, validated configuration an elector process is
// built from.
type Config struct {
	Self               Node
	Peers              []Node
	Variant            election.Variant
	Heartbeat          time.Duration
	AckRatio           int
	HealthPort         string
	MonitorInterval    time.Duration
	WorkersComposePath string
	Workers            []string
}

const (
	defaultHeartbeat       = 100 * time.Millisecond
	defaultMonitorInterval = 5 * time.Second
	defaultHealthPort      = "12346"
	defaultAckRatio        = 3
)

// Load reads and validates the YAML configuration file at path, applying
// an environment-variable override pattern on top of it (a handful of
// ELECTOR_* variables take precedence over the file).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}

	var r raw
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}

	cfg := &Config{
		Self:               r.Self,
		Peers:              r.Peers,
		Variant:            election.Variant(orDefault(r.Variant, string(election.VariantStable))),
		AckRatio:           r.AckRatio,
		HealthPort:         orDefault(r.HealthPort, defaultHealthPort),
		WorkersComposePath: r.WorkersComposePath,
		Workers:            r.Workers,
	}
	if cfg.AckRatio <= 0 {
		cfg.AckRatio = defaultAckRatio
	}

	cfg.Heartbeat, err = parseDurationOrDefault(r.Heartbeat, defaultHeartbeat)
	if err != nil {
		return nil, errors.Wrap(err, "config: heartbeat")
	}
	cfg.MonitorInterval, err = parseDurationOrDefault(r.MonitorInterval, defaultMonitorInterval)
	if err != nil {
		return nil, errors.Wrap(err, "config: monitor_interval")
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Self.Host == "" {
		return errors.New("config: self.host is required")
	}
	if c.Self.Port == 0 {
		return errors.New("config: self.port is required")
	}
	switch c.Variant {
	case election.VariantBasic, election.VariantStable, election.VariantLossyON, election.VariantLossyO1:
	default:
		return errors.Errorf("config: unknown variant %q", c.Variant)
	}
	return nil
}

// PeerAddresses returns every configured peer's election address, self
// included, matching election.Config.Peers' expected contract (the core
// adds self automatically if missing, but listing it keeps the file
// self-documenting).
func (c *Config) PeerAddresses() []address.Address {
	out := make([]address.Address, 0, len(c.Peers)+1)
	for _, p := range c.Peers {
		out = append(out, p.Address())
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseDurationOrDefault(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

// applyEnvOverrides lets a handful of environment variables override the
// file, an escape hatch for operators that avoids a config file edit for a
// one-off run.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ELECTOR_VARIANT"); v != "" {
		cfg.Variant = election.Variant(v)
	}
	if v := os.Getenv("ELECTOR_HEALTH_PORT"); v != "" {
		cfg.HealthPort = v
	}
	if v := os.Getenv("ELECTOR_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Heartbeat = d
		}
	}
}
