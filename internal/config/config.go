package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config models hseb5.yml plus the environment overrides.
type Config struct {
	API struct {
		BaseURL string `yaml:"base_url" mapstructure:"base_url"`
		// TimeoutMS mirrors VITE_API_TIMEOUT, which is expressed in milliseconds.
		TimeoutMS int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	} `yaml:"api"`
	Demo struct {
		Enabled bool `yaml:"enabled" mapstructure:"enabled"`
		// Fallback serves demo data when a live call fails. When off the
		// live error is returned.
		Fallback        bool `yaml:"fallback" mapstructure:"fallback"`
		FallbackDelayMS int  `yaml:"fallback_delay_ms" mapstructure:"fallback_delay_ms"`
	} `yaml:"demo"`
	OpenAI struct {
		APIKey  string `yaml:"api_key" mapstructure:"api_key"`
		Model   string `yaml:"model" mapstructure:"model"`
		BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	} `yaml:"openai"`
	App struct {
		Name    string `yaml:"name" mapstructure:"name"`
		Version string `yaml:"version" mapstructure:"version"`
	} `yaml:"app"`
	Log struct {
		Level  string `yaml:"level" mapstructure:"level"`
		Format string `yaml:"format" mapstructure:"format"`
		File   string `yaml:"file" mapstructure:"file"`
	} `yaml:"log"`
	Server struct {
		JWTSecret  string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
		StorageDir string `yaml:"storage_dir" mapstructure:"storage_dir"`
	} `yaml:"server"`
	Workspace string `yaml:"-" mapstructure:"-"`
}

// envBindings maps viper keys to the environment variables the front-end used.
var envBindings = map[string][]string{
	"api.base_url":           {"VITE_API_BASE_URL"},
	"api.timeout_ms":         {"VITE_API_TIMEOUT"},
	"demo.enabled":           {"VITE_DEMO_MODE", "HSEB5_DEMO"},
	"demo.fallback":          {"HSEB5_FALLBACK"},
	"demo.fallback_delay_ms": {"HSEB5_FALLBACK_DELAY"},
	"openai.api_key":         {"VITE_OPENAI_API_KEY"},
	"openai.model":           {"VITE_OPENAI_MODEL"},
	"openai.base_url":        {"VITE_OPENAI_BASE_URL"},
	"app.name":               {"VITE_APP_NAME"},
	"app.version":            {"VITE_APP_VERSION"},
	"log.level":              {"HSEB5_LOG_LEVEL"},
	"log.format":             {"HSEB5_LOG_FORMAT"},
	"log.file":               {"HSEB5_LOG_FILE"},
	"server.jwt_secret":      {"HSEB5_JWT_SECRET"},
	"server.storage_dir":     {"HSEB5_STORAGE_DIR"},
}

// Timeout returns the API timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutMS) * time.Millisecond
}

// FallbackDelay is the simulated latency before serving mock data.
func (c *Config) FallbackDelay() time.Duration {
	return time.Duration(c.Demo.FallbackDelayMS) * time.Millisecond
}

// IsDemo reports whether every data operation must use the mock stores.
func (c *Config) IsDemo() bool { return c.Demo.Enabled }

// switchValue reads on/off style values; anything unrecognised keeps def.
func switchValue(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	}
	return def
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute url, got %q", c.API.BaseURL)
	}
	if c.API.TimeoutMS <= 0 {
		return fmt.Errorf("api.timeout_ms must be positive")
	}
	if c.Demo.FallbackDelayMS < 0 {
		return fmt.Errorf("demo.fallback_delay_ms must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not one of json, console", c.Log.Format)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hseb5.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config from raw YAML bytes on top of the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve builds the effective configuration. Flags already bound to v win,
// then the process environment, then <workspace>/.env, then hseb5.yml.
func Resolve(v *viper.Viper) (*Config, error) {
	workspace := v.GetString("workspace")
	if workspace == "" {
		workspace = "."
	}
	envPath := filepath.Join(workspace, ".env")
	if _, err := os.Stat(envPath); err == nil {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	cfg := Default()
	data, err := os.ReadFile(Path(workspace))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config yaml: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout_ms", cfg.API.TimeoutMS)
	v.SetDefault("demo.enabled", cfg.Demo.Enabled)
	v.SetDefault("demo.fallback", cfg.Demo.Fallback)
	v.SetDefault("demo.fallback_delay_ms", cfg.Demo.FallbackDelayMS)
	v.SetDefault("openai.api_key", cfg.OpenAI.APIKey)
	v.SetDefault("openai.model", cfg.OpenAI.Model)
	v.SetDefault("openai.base_url", cfg.OpenAI.BaseURL)
	v.SetDefault("app.name", cfg.App.Name)
	v.SetDefault("app.version", cfg.App.Version)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("server.jwt_secret", cfg.Server.JWTSecret)
	v.SetDefault("server.storage_dir", cfg.Server.StorageDir)

	cfg.API.BaseURL = strings.TrimRight(v.GetString("api.base_url"), "/")
	cfg.API.TimeoutMS = v.GetInt("api.timeout_ms")
	cfg.Demo.Enabled = v.GetBool("demo.enabled")
	cfg.Demo.Fallback = switchValue(v.GetString("demo.fallback"), cfg.Demo.Fallback)
	cfg.Demo.FallbackDelayMS = v.GetInt("demo.fallback_delay_ms")
	cfg.OpenAI.APIKey = v.GetString("openai.api_key")
	cfg.OpenAI.Model = v.GetString("openai.model")
	cfg.OpenAI.BaseURL = v.GetString("openai.base_url")
	cfg.App.Name = v.GetString("app.name")
	cfg.App.Version = v.GetString("app.version")
	cfg.Log.Level = strings.ToLower(v.GetString("log.level"))
	cfg.Log.Format = strings.ToLower(v.GetString("log.format"))
	cfg.Log.File = v.GetString("log.file")
	cfg.Server.JWTSecret = v.GetString("server.jwt_secret")
	cfg.Server.StorageDir = v.GetString("server.storage_dir")
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = filepath.Join(workspace, ".hseb5", "storage")
	}
	cfg.Workspace = workspace

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `api:
  base_url: http://localhost:8000/api
  timeout_ms: 30000

demo:
  enabled: false
  fallback: true
  fallback_delay_ms: 300

openai:
  model: gpt-4o-mini

app:
  name: HSE B5
  version: 1.0.0

log:
  level: info
  format: console

server:
  jwt_secret: hseb5-demo-secret
`
