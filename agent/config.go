package agent

import (
	"os"
	"strconv"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shared by both agent kinds. Durations
// are strings ("5m", "30s") parsed at load time.
type Config struct {
	// Listen is the agent's HTTP listen address
	Listen string `yaml:"listen"`
	// Self is this agent's address as it appears in the registry; it
	// determines the computation agent's party index
	Self string `yaml:"self"`

	// EngineDir is the base directory of the external MPC installation
	EngineDir string `yaml:"engine_dir"`
	// Protocol selects the engine party binary, e.g. "shamir"
	Protocol string `yaml:"protocol"`

	// PortBase is the first port of the slot table
	PortBase int `yaml:"port_base"`
	// PortStep is the number of ports owned by one slot
	PortStep int `yaml:"port_step"`
	// SlotCount is the number of concurrent session slots
	SlotCount int `yaml:"slot_count"`

	// Agents is the ordered computation agent registry; the order defines
	// the party indices and must be identical across every encryption agent
	Agents []string `yaml:"agents"`

	// Programs maps circuit ids to circuit sources
	Programs map[string]string `yaml:"programs"`

	// FetchToken authenticates the encryption agent's data fetches
	FetchToken string `yaml:"fetch_token"`
	// KeyFile holds the encryption agent's ECDSA signing key
	KeyFile string `yaml:"key_file"`

	RunTimeout   string `yaml:"run_timeout"`
	GracePeriod  string `yaml:"grace_period"`
	RetentionTTL string `yaml:"retention_ttl"`

	runTimeout   time.Duration
	gracePeriod  time.Duration
	retentionTTL time.Duration
}

// DefaultConfig returns the configuration used when a field is not set
func DefaultConfig() Config {
	return Config{
		Listen:       ":8000",
		Protocol:     "shamir",
		PortBase:     5000,
		PortStep:     10,
		SlotCount:    10,
		RunTimeout:   "5m",
		GracePeriod:  "10s",
		RetentionTTL: "60s",
	}
}

// ConfigFromYAML loads a configuration file, fills in defaults, applies the
// PORT_BASE environment override and resolves the duration fields
func ConfigFromYAML(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	conf := DefaultConfig()
	err = yaml.Unmarshal(yamlFile, &conf)
	if err != nil {
		return nil, err
	}

	if err := conf.resolve(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// resolve validates the config, applies the environment override and parses
// the durations
func (c *Config) resolve() error {
	// multiple agents on one host avoid port collisions via the override
	if env := os.Getenv("PORT_BASE"); env != "" {
		base, err := strconv.Atoi(env)
		if err != nil {
			return xerrors.Errorf("invalid PORT_BASE override %q: %v", env, err)
		}
		c.PortBase = base
	}

	if c.PortStep <= 0 || c.SlotCount <= 0 {
		return xerrors.Errorf("port_step and slot_count must be positive")
	}

	var err error
	if c.runTimeout, err = time.ParseDuration(c.RunTimeout); err != nil {
		return xerrors.Errorf("invalid run_timeout: %v", err)
	}
	if c.gracePeriod, err = time.ParseDuration(c.GracePeriod); err != nil {
		return xerrors.Errorf("invalid grace_period: %v", err)
	}
	if c.retentionTTL, err = time.ParseDuration(c.RetentionTTL); err != nil {
		return xerrors.Errorf("invalid retention_ttl: %v", err)
	}
	return nil
}

// RunTimeoutDuration returns the parsed engine run timeout
func (c *Config) RunTimeoutDuration() time.Duration { return c.runTimeout }

// GracePeriodDuration returns the parsed cancellation grace period
func (c *Config) GracePeriodDuration() time.Duration { return c.gracePeriod }

// RetentionTTLDuration returns the parsed session record retention
func (c *Config) RetentionTTLDuration() time.Duration { return c.retentionTTL }
