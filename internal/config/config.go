// Package config loads and validates the NL-query service's YAML
// configuration, with environment variable overrides for 12-factor
// deployments (SPEC_FULL.md ambient stack: gopkg.in/yaml.v3 +
// go-playground/validator/v10, following the teacher's ServerConfig
// pattern).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Duration wraps time.Duration with YAML support for Go duration strings
// ("30s", "2m"), since yaml.v3 has no built-in Duration unmarshaler.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServerConfig is the root configuration document.
type ServerConfig struct {
	Server        ServerSettings        `yaml:"server" validate:"required"`
	LanguageModel LanguageModelSettings `yaml:"language_model" validate:"required"`
	Triplestore   TriplestoreSettings   `yaml:"triplestore" validate:"required"`
	Cache         CacheSettings         `yaml:"cache"`
	CORS          CORSSettings          `yaml:"cors"`
	Logging       LoggingSettings       `yaml:"logging"`
}

// ServerSettings controls the HTTP listener (component C8).
type ServerSettings struct {
	ListenAddr   string   `yaml:"listen_addr" validate:"required"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// LanguageModelSettings configures the Anthropic client.
type LanguageModelSettings struct {
	APIKey    string   `yaml:"api_key" validate:"required"`
	Model     string   `yaml:"model" validate:"required"`
	MaxTokens int64    `yaml:"max_tokens" validate:"gte=1"`
	Timeout   Duration `yaml:"timeout"`
}

// TriplestoreSettings configures the SPARQL endpoint client.
type TriplestoreSettings struct {
	QueryEndpoint string   `yaml:"query_endpoint" validate:"required,url"`
	GSPEndpoint   string   `yaml:"gsp_endpoint"`
	Timeout       Duration `yaml:"timeout"`
}

// CacheSettings selects and tunes the Cache Gate's backend (component C6).
type CacheSettings struct {
	Backend      string `yaml:"backend" validate:"omitempty,oneof=redis memory"`
	RedisAddr    string `yaml:"redis_addr"`
	PopularLimit int    `yaml:"popular_limit" validate:"gte=0"`
}

// CORSSettings mirrors pkg/shared/cors.Options for declarative config
// instead of only environment variables.
type CORSSettings struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
}

// LoggingSettings controls the shared logrus.Logger (SPEC_FULL.md ambient
// stack).
type LoggingSettings struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DefaultRetryTimeout fills any server read/write/idle timeout the
// settings omit; other timeouts get no default here.
const DefaultRetryTimeout = Duration(30 * time.Second)

// LoadFromFile reads and parses a YAML config document at path.
func LoadFromFile(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultRetryTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultRetryTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultRetryTimeout
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.PopularLimit == 0 {
		c.Cache.PopularLimit = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// LoadFromEnv overrides select fields from environment variables, so
// operators can tune a deployment without rebuilding the config file.
func (c *ServerConfig) LoadFromEnv() {
	if v := os.Getenv("NLQUERY_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("NLQUERY_ANTHROPIC_API_KEY"); v != "" {
		c.LanguageModel.APIKey = v
	}
	if v := os.Getenv("NLQUERY_ANTHROPIC_MODEL"); v != "" {
		c.LanguageModel.Model = v
	}
	if v := os.Getenv("NLQUERY_TRIPLESTORE_QUERY_ENDPOINT"); v != "" {
		c.Triplestore.QueryEndpoint = v
	}
	if v := os.Getenv("NLQUERY_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("NLQUERY_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("NLQUERY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NLQUERY_POPULAR_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.PopularLimit = n
		}
	}
}

// Validate runs struct-tag validation plus the cross-field checks
// validator tags alone can't express.
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("invalid configuration: cache.redis_addr is required when cache.backend is \"redis\"")
	}
	return nil
}
