package authz

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultDryRunHeader names the response header carrying the dry-run verdict
// when no header is configured.
const DefaultDryRunHeader = "X-Policy-Decision"

// Environment variables applied once by LoadConfig. They exist so operators
// can flip enforcement without editing the config file; the resolved values
// live on Config and are never re-read per request.
const (
	EnvDisableAdmissionControl = "POLIS_AUTHZ_DISABLE_ADMISSION_CONTROL"
	EnvProduction              = "POLIS_AUTHZ_PRODUCTION"
)

// DryRunConfig controls the non-enforcing operating mode.
type DryRunConfig struct {
	// Enabled computes and reports verdicts without ever blocking requests.
	Enabled bool `yaml:"enabled"`
	// Header is the response header set to "allow" or "reject" in dry-run
	// mode. Empty selects DefaultDryRunHeader.
	Header string `yaml:"header"`
}

// Config holds the process-wide middleware settings. It is set once at
// factory construction and read-only afterwards.
type Config struct {
	// URL is the decision point base address, e.g. "http://opa:8181/v1/data".
	// The per-route decision path is appended to it verbatim.
	URL string `yaml:"url"`

	DryRun DryRunConfig `yaml:"dry_run"`

	// DisableAdmissionControl forces dry-run behaviour regardless of
	// DryRun.Enabled. Operators use it as an emergency brake.
	DisableAdmissionControl bool `yaml:"disable_admission_control"`

	// Production gates the error-level audit line emitted when a request
	// that would have been rejected passes through in dry-run mode.
	Production bool `yaml:"production"`
}

// Validate checks the settings a caller is expected to supply. The factory
// does not call it: a missing URL surfaces lazily as a failing decision call,
// so binaries that want registration-time feedback must invoke it themselves.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("authz config: decision point url is required")
	}
	return nil
}

// DryRunHeader returns the configured dry-run header name or the default.
func (c Config) DryRunHeader() string {
	if c.DryRun.Header != "" {
		return c.DryRun.Header
	}
	return DefaultDryRunHeader
}

func (c Config) dryRun() bool {
	return c.DryRun.Enabled || c.DisableAdmissionControl
}

// LoadConfig reads a YAML config file and applies environment overrides.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg.withEnvOverrides(), nil
}

func (c Config) withEnvOverrides() Config {
	if v, ok := lookupBool(EnvDisableAdmissionControl); ok {
		c.DisableAdmissionControl = v
	}
	if v, ok := lookupBool(EnvProduction); ok {
		c.Production = v
	}
	return c
}

func lookupBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}
