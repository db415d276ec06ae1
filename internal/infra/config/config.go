package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Routing  RoutingConfig  `yaml:"routing"`
	GitHub   GitHubConfig   `yaml:"github"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Providers      []ProviderConfig     `yaml:"providers"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	// DefaultTimeout bounds a single provider attempt when the provider sets none.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"` // openai, anthropic, gemini, bedrock
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"` // env var holding the credential
	Model     string `yaml:"model"`
	Region    string `yaml:"region,omitempty"`

	Priority          int    `yaml:"priority"`
	DailyRequestLimit int    `yaml:"daily_request_limit"`
	CostClass         string `yaml:"cost_class"` // free or paid
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty"`
	Disabled          bool   `yaml:"disabled,omitempty"`

	Headers     map[string]string `yaml:"headers,omitempty"`
	Timeout     time.Duration     `yaml:"timeout"`
	ConnTimeout time.Duration     `yaml:"conn_timeout"`
	RespTimeout time.Duration     `yaml:"resp_timeout"`
	Pool        PoolConfig        `yaml:"pool"`
}

// HasCredential reports whether the provider can be called. Bedrock uses the
// AWS credential chain instead of an API key.
func (p ProviderConfig) HasCredential() bool {
	if p.Disabled {
		return false
	}
	if p.Type == "bedrock" {
		return p.APIKey != "" || os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != ""
	}
	return p.APIKey != ""
}

// RoutingConfig overrides the static task table.
type RoutingConfig struct {
	// Tasks maps a task category to the preferred provider and sampling settings.
	Tasks map[string]TaskRouteConfig `yaml:"tasks,omitempty"`
}

// TaskRouteConfig is one routing table entry.
type TaskRouteConfig struct {
	Provider    string   `yaml:"provider"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
}

// GitHubConfig holds settings for the GitHub profile source.
type GitHubConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxRepos int           `yaml:"max_repos"`
}

// AnalysisConfig holds candidate analysis pipeline settings.
type AnalysisConfig struct {
	// UseDefaults substitutes documented default payloads when a stage exhausts
	// every provider instead of failing the whole analysis.
	UseDefaults bool `yaml:"use_defaults"`
	// Timeout bounds the whole pipeline.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	// SampleRatio is the fraction of root spans kept; 0 means all.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// DefaultProviders returns the built-in backend set. Credentials come from the
// named environment variables; a provider without one stays unavailable.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name: "groq", Type: "openai",
			BaseURL: "https://api.groq.com/openai/v1", APIKeyEnv: "GROQ_API_KEY",
			Model: "llama-3.3-70b-versatile", Priority: 1,
			DailyRequestLimit: 14400, CostClass: "free",
		},
		{
			Name: "gemini", Type: "gemini",
			APIKeyEnv: "GEMINI_API_KEY",
			Model:     "gemini-2.0-flash", Priority: 2,
			DailyRequestLimit: 1500, CostClass: "free",
		},
		{
			Name: "together", Type: "openai",
			BaseURL: "https://api.together.xyz/v1", APIKeyEnv: "TOGETHER_API_KEY",
			Model: "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free", Priority: 3,
			DailyRequestLimit: 1000, CostClass: "free",
		},
		{
			Name: "huggingface", Type: "openai",
			BaseURL: "https://router.huggingface.co/v1", APIKeyEnv: "HUGGINGFACE_API_KEY",
			Model: "meta-llama/Llama-3.1-8B-Instruct", Priority: 4,
			DailyRequestLimit: 1000, CostClass: "free",
		},
		{
			Name: "openai", Type: "openai",
			BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY",
			Model: "gpt-4o-mini", Priority: 5, CostClass: "paid",
		},
		{
			Name: "anthropic", Type: "anthropic",
			BaseURL: "https://api.anthropic.com", APIKeyEnv: "ANTHROPIC_API_KEY",
			Model: "claude-3-5-haiku-latest", Priority: 6, CostClass: "paid",
		},
	}
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Providers:      DefaultProviders(),
			DefaultTimeout: 45 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     false,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		GitHub: GitHubConfig{
			BaseURL:  "https://api.github.com",
			Timeout:  15 * time.Second,
			MaxRepos: 10,
		},
		Analysis: AnalysisConfig{
			UseDefaults: false,
			Timeout:     3 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Addr:      ":9464",
			Namespace: "talentscan",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, resolves provider
// credentials, and decrypts secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)
	ResolveCredentials(cfg)

	passphrase := os.Getenv("TALENTSCAN_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envBinding maps one TALENTSCAN_* variable onto a config field. apply is
// only called for non-empty values and ignores values it cannot parse.
type envBinding struct {
	key   string
	apply func(cfg *Config, v string)
}

var envBindings = []envBinding{
	{"TALENTSCAN_LOGGER_LEVEL", func(c *Config, v string) { c.Logger.Level = v }},
	{"TALENTSCAN_LOGGER_FORMAT", func(c *Config, v string) { c.Logger.Format = v }},
	{"TALENTSCAN_LOGGER_OUTPUT", func(c *Config, v string) { c.Logger.Output = v }},
	{"TALENTSCAN_TRACER_ENABLED", func(c *Config, v string) { setBool(&c.Tracer.Enabled, v) }},
	{"TALENTSCAN_TRACER_EXPORTER", func(c *Config, v string) { c.Tracer.Exporter = v }},
	{"TALENTSCAN_METRICS_ENABLED", func(c *Config, v string) { setBool(&c.Metrics.Enabled, v) }},
	{"TALENTSCAN_METRICS_ADDR", func(c *Config, v string) { c.Metrics.Addr = v }},
	{"TALENTSCAN_LLM_DEFAULT_TIMEOUT", func(c *Config, v string) { setDuration(&c.LLM.DefaultTimeout, v) }},
	{"TALENTSCAN_CIRCUIT_BREAKER_ENABLED", func(c *Config, v string) { setBool(&c.LLM.CircuitBreaker.Enabled, v) }},
	{"GITHUB_TOKEN", func(c *Config, v string) {
		if c.GitHub.Token == "" {
			c.GitHub.Token = v
		}
	}},
	{"TALENTSCAN_GITHUB_TOKEN", func(c *Config, v string) { c.GitHub.Token = v }},
	{"TALENTSCAN_GITHUB_MAX_REPOS", func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.GitHub.MaxRepos = n
		}
	}},
	{"TALENTSCAN_ANALYSIS_USE_DEFAULTS", func(c *Config, v string) { setBool(&c.Analysis.UseDefaults, v) }},
	{"TALENTSCAN_ANALYSIS_TIMEOUT", func(c *Config, v string) { setDuration(&c.Analysis.Timeout, v) }},
}

// ApplyEnvOverrides maps TALENTSCAN_* env vars to config fields. GITHUB_TOKEN
// only fills an unset token; TALENTSCAN_GITHUB_TOKEN always wins.
func ApplyEnvOverrides(cfg *Config) {
	for _, b := range envBindings {
		if v := strings.TrimSpace(os.Getenv(b.key)); v != "" {
			b.apply(cfg, v)
		}
	}
}

func setBool(dst *bool, v string) {
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func setDuration(dst *time.Duration, v string) {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}

// ResolveCredentials fills each provider's APIKey from its api_key_env
// variable when no inline key is configured. Credentials are read once;
// there is no reload.
func ResolveCredentials(cfg *Config) {
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.APIKey != "" || p.APIKeyEnv == "" {
			continue
		}
		p.APIKey = strings.TrimSpace(os.Getenv(p.APIKeyEnv))
	}
}

// decryptSecrets finds "enc:..." values in provider API keys and the GitHub
// token and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}

	if strings.HasPrefix(cfg.GitHub.Token, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.GitHub.Token, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("github token: %w", err)
		}
		cfg.GitHub.Token = decrypted
	}

	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	salt, data, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, saltBytes)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
