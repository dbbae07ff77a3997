package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/storage"
)

// Config represents the complete service configuration.
// The structure matches config.yaml and can be overridden by CL_* environment variables.
type Config struct {
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	Auth        AuthConfig        `json:"auth" mapstructure:"auth"`
	LLM         LLMConfig         `json:"llm" mapstructure:"llm"`
	Storage     StorageConfig     `json:"storage" mapstructure:"storage"`
	MinIO       MinIOConfig       `json:"minio" mapstructure:"minio"`
	Negotiation NegotiationConfig `json:"negotiation" mapstructure:"negotiation"`
	Log         LogConfig         `json:"log" mapstructure:"log"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Addr           string        `json:"addr" mapstructure:"addr"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	CORSOrigins    []string      `json:"cors_origins" mapstructure:"cors_origins"`
}

type AuthConfig struct {
	Token string `json:"token" mapstructure:"token"`
}

// LLMConfig selects the model provider and its retry budget
type LLMConfig struct {
	Provider    string        `json:"provider" mapstructure:"provider"`
	APIKey      string        `json:"api_key" mapstructure:"api_key"`
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	Model       string        `json:"model" mapstructure:"model"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" mapstructure:"max_delay"`
}

// StorageConfig locates the report database
type StorageConfig struct {
	Driver         string `json:"driver" mapstructure:"driver"`
	DSN            string `json:"dsn" mapstructure:"dsn"`
	EncryptionKey  string `json:"encryption_key" mapstructure:"encryption_key"`
	EncryptionSalt string `json:"encryption_salt" mapstructure:"encryption_salt"`
}

type MinIOConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
}

type NegotiationConfig struct {
	MaxRounds int `json:"max_rounds" mapstructure:"max_rounds"`
}

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Load reads config.yaml from . or $HOME/.contractlens, then the environment.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads an explicit config file, then the environment.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	// Load .env first (ignore error if not present)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(resolvePath(path))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.contractlens")
	}

	v.SetEnvPrefix("CL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by deployments that predate the CL_ prefix.
	_ = v.BindEnv("llm.api_key", "CL_LLM_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("storage.encryption_key", "CL_STORAGE_ENCRYPTION_KEY", "ENCRYPTION_KEY")
	_ = v.BindEnv("storage.dsn", "CL_STORAGE_DSN", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Storage.Driver == storage.DriverSQLite && cfg.Storage.DSN != ":memory:" {
		cfg.Storage.DSN = resolvePath(cfg.Storage.DSN)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 120*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("auth.token", "")

	v.SetDefault("llm.provider", llm.ProviderOpenAI)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.base_delay", time.Second)
	v.SetDefault("llm.max_delay", 20*time.Second)

	v.SetDefault("storage.driver", storage.DriverSQLite)
	v.SetDefault("storage.dsn", "~/.contractlens/contractlens.db")
	v.SetDefault("storage.encryption_key", "")
	v.SetDefault("storage.encryption_salt", "salt")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("minio.access_key", "minioadmin")
	v.SetDefault("minio.secret_key", "minioadmin")
	v.SetDefault("minio.bucket", "contractlens-documents")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("negotiation.max_rounds", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Gateway maps the llm section onto the gateway factory config.
func (c *Config) Gateway() llm.Config {
	return llm.Config{
		Provider: c.LLM.Provider,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
		Model:    c.LLM.Model,
		Timeout:  c.LLM.Timeout,
		Retry: llm.RetryPolicy{
			MaxAttempts: c.LLM.MaxAttempts,
			BaseDelay:   c.LLM.BaseDelay,
			MaxDelay:    c.LLM.MaxDelay,
		},
	}
}

// Archive maps the minio section onto the document archive config.
func (c *Config) Archive() storage.MinIOConfig {
	return storage.MinIOConfig{
		Endpoint:  c.MinIO.Endpoint,
		AccessKey: c.MinIO.AccessKey,
		SecretKey: c.MinIO.SecretKey,
		Bucket:    c.MinIO.Bucket,
		UseSSL:    c.MinIO.UseSSL,
	}
}

// resolvePath resolves ~ to home directory and cleans the path
func resolvePath(p string) string {
	if p == "" {
		return p
	}
	if p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return filepath.Clean(p)
}
