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

	"lattice/internal/infra/env"
)

// Config is the root configuration for the server and the terminal client.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Storage StorageConfig `yaml:"storage"`
	Agents  AgentsConfig  `yaml:"agents"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	CORSOrigins    []string        `yaml:"cors_origins,omitempty"`
	TrustedProxies []string        `yaml:"trusted_proxies,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimitConfig configures the per-client request limiter. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	Tokens  []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// StorageConfig locates the database, the session id file and the workspace.
// Blank fields are filled in by ResolveStorage.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir,omitempty"`
	DBPath        string `yaml:"db_path,omitempty"`
	SessionIDPath string `yaml:"session_id_path,omitempty"`
	WorkspaceDir  string `yaml:"workspace_dir,omitempty"`
	ProjectRoot   string `yaml:"project_root,omitempty"`
	WorkspaceMode string `yaml:"workspace_mode,omitempty"` // "local" or "central"
}

// AgentsConfig declares the agent plugins to register.
type AgentsConfig struct {
	Default        string               `yaml:"default,omitempty"`
	Enabled        []string             `yaml:"enabled,omitempty"`
	ReloadSchedule string               `yaml:"reload_schedule,omitempty"`
	Definitions    []AgentDefinition    `yaml:"definitions"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// AgentDefinition configures a single agent plugin.
type AgentDefinition struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"` // "echo" or "openai"
	DefaultModel string        `yaml:"default_model,omitempty"`
	BaseURL      string        `yaml:"base_url,omitempty"`
	APIKey       string        `yaml:"api_key,omitempty"`
	Models       []string      `yaml:"models,omitempty"`
	SystemPrompt string        `yaml:"system_prompt,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	ModelsTTL    time.Duration `yaml:"models_ttl,omitempty"`
}

// CircuitBreakerConfig holds circuit breaker settings for remote agents.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
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
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8001",
		},
		Storage: StorageConfig{
			WorkspaceMode: ModeLocal,
		},
		Agents: AgentsConfig{
			Definitions: []AgentDefinition{
				{ID: "echo", Name: "Echo", Type: "echo"},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error; defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
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
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase, ok := env.Read("LATTICE_CONFIG_KEY"); ok {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps LATTICE_* and AGENT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := env.Read("LATTICE_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := env.Read("LATTICE_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v, ok := env.Read("LATTICE_LOG_LEVEL"); ok {
		cfg.Logger.Level = v
	}
	if v, ok := env.Read("LATTICE_LOG_FORMAT"); ok {
		cfg.Logger.Format = v
	}
	if env.Bool("LATTICE_TRACER_ENABLED", false) {
		cfg.Tracer.Enabled = true
	}
	if v, ok := env.Read("LATTICE_TRACER_EXPORTER"); ok {
		cfg.Tracer.Exporter = v
	}
	if env.Bool("LATTICE_GATEWAY_ENABLED", false) {
		cfg.Gateway.Enabled = true
	}
	if v, ok := env.Read("LATTICE_GATEWAY_ADDR"); ok {
		cfg.Gateway.Addr = v
	}
	if v, ok := env.Read("LATTICE_GATEWAY_TOKEN"); ok {
		cfg.Gateway.Tokens = append(cfg.Gateway.Tokens, TokenConfig{Token: v, Name: "env"})
	}

	if v, ok := env.Read("AGENT_DEFAULT"); ok {
		cfg.Agents.Default = v
	}
	if ids := env.List("AGENT_PLUGINS"); len(ids) > 0 {
		cfg.Agents.Enabled = ids
	}
	if v, ok := env.Read("LATTICE_AGENTS_RELOAD"); ok {
		cfg.Agents.ReloadSchedule = v
	}
	if v, ok := env.Read("OPENAI_API_KEY"); ok {
		for i := range cfg.Agents.Definitions {
			d := &cfg.Agents.Definitions[i]
			if d.Type == "openai" && d.APIKey == "" {
				d.APIKey = v
			}
		}
	}
}

// decryptSecrets finds "enc:..." values in agent API keys and gateway tokens
// and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Agents.Definitions {
		d := &cfg.Agents.Definitions[i]
		if strings.HasPrefix(d.APIKey, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(d.APIKey, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("agent %s api_key: %w", d.ID, err)
			}
			d.APIKey = decrypted
		}
	}

	for i := range cfg.Gateway.Tokens {
		tok := cfg.Gateway.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway token %s: %w", cfg.Gateway.Tokens[i].Name, err)
			}
			cfg.Gateway.Tokens[i].Token = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result has the form hex(salt) ":" hex(nonce+ciphertext).
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
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	// Argon2id, 32-byte key.
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
