package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

var (
	ErrNoSeedNodes      = errors.New("config: at least one seed node is required")
	ErrInvalidSeed      = errors.New("config: seed is not a valid host:port address")
	ErrInvalidTTL       = errors.New("config: topology TTL must be positive")
	ErrInvalidRedirects = errors.New("config: max redirects must be non-negative")
	ErrInvalidWorkers   = errors.New("config: worker count must be positive")
	ErrShortSecret      = errors.New("config: auth secret must be at least 32 characters")
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Duration wraps time.Duration so config files can use readable forms
// like "250ms" or "5s"
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete driver configuration, loadable from YAML
type Config struct {
	Cluster   ClusterConfig   `yaml:"cluster"`
	Pool      PoolConfig      `yaml:"pool"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Journal   JournalConfig   `yaml:"journal"`
	Ops       OpsConfig       `yaml:"ops"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// ClusterConfig controls topology discovery and caching
type ClusterConfig struct {
	// Seed nodes contacted when no topology is known yet
	Seeds []string `yaml:"seeds" validate:"required,min=1,dive,hostname_port"`

	// TopologyTTL is how long a topology snapshot stays fresh
	TopologyTTL Duration `yaml:"topology_ttl"`

	// FetchTimeout bounds each per-candidate topology fetch
	FetchTimeout Duration `yaml:"fetch_timeout"`
}

// PoolConfig controls per-node connection pooling
type PoolConfig struct {
	MaxPerNode     int      `yaml:"max_per_node" validate:"omitempty,min=1"`
	MaxIdlePerNode int      `yaml:"max_idle_per_node" validate:"omitempty,min=0"`
	MinIdlePerNode int      `yaml:"min_idle_per_node" validate:"omitempty,min=0"`
	IdleTimeout    Duration `yaml:"idle_timeout"`
	TestOnBorrow   bool     `yaml:"test_on_borrow"`
}

// ExecutorConfig controls command execution
type ExecutorConfig struct {
	// MaxRedirects bounds redirect chasing per routed command
	MaxRedirects int `yaml:"max_redirects" validate:"omitempty,max=64"`

	// Workers sizes the fan-out worker pool
	Workers int `yaml:"workers" validate:"omitempty,max=1024"`

	// NodeTimeout bounds each per-node attempt
	NodeTimeout Duration `yaml:"node_timeout"`
}

// TransportConfig controls how node connections are established
type TransportConfig struct {
	ClientID       string   `yaml:"client_id"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	Compression    bool     `yaml:"compression"`

	// Protocol selects the wire transport. zmq and nng require a
	// build with the matching tag.
	Protocol string `yaml:"protocol" validate:"omitempty,oneof=tcp zmq nng"`
}

// AuthConfig controls handshake token minting. An empty secret leaves
// the client anonymous.
type AuthConfig struct {
	Secret   string   `yaml:"secret"`
	TokenTTL Duration `yaml:"token_ttl"`
}

// JournalConfig controls the topology event journal
type JournalConfig struct {
	// BufferSize caps the in-memory event ring
	BufferSize int `yaml:"buffer_size" validate:"omitempty,min=1"`

	// DatabaseURL enables the Postgres sink when set
	DatabaseURL string `yaml:"database_url"`
}

// OpsConfig controls the diagnostics HTTP endpoint. An empty listen
// address disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// DefaultConfig returns a safe default configuration. Seeds must still
// be provided before the config validates.
func DefaultConfig() Config {
	return Config{
		Cluster: ClusterConfig{
			TopologyTTL:  Duration(100 * time.Millisecond),
			FetchTimeout: Duration(time.Second),
		},
		Pool: PoolConfig{
			MaxPerNode:     8,
			MaxIdlePerNode: 8,
			IdleTimeout:    Duration(5 * time.Minute),
			TestOnBorrow:   true,
		},
		Executor: ExecutorConfig{
			MaxRedirects: 5,
			Workers:      16,
			NodeTimeout:  Duration(5 * time.Second),
		},
		Transport: TransportConfig{
			ConnectTimeout: Duration(5 * time.Second),
			Compression:    true,
			Protocol:       "tcp",
		},
		Auth: AuthConfig{
			TokenTTL: Duration(15 * time.Minute),
		},
		Journal: JournalConfig{
			BufferSize: 1024,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file over the defaults and validates the
// result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals YAML config bytes over the defaults and validates
// the result
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if len(c.Cluster.Seeds) == 0 {
		return ErrNoSeedNodes
	}
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if _, err := cluster.ParseNodeAddresses(c.Cluster.Seeds); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if c.Cluster.TopologyTTL <= 0 {
		return ErrInvalidTTL
	}
	if c.Executor.MaxRedirects < 0 {
		return ErrInvalidRedirects
	}
	if c.Executor.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return ErrShortSecret
	}
	return nil
}

// formatValidationError converts validator errors to a more
// user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Namespace()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "hostname_port":
			return fmt.Errorf("%s: must be a host:port address", field)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
