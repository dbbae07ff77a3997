package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/negotiation"
	"github.com/ericksa/contractlens/internal/storage"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Addr == "" {
		return errors.New("server address cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", c.Server.Addr); err != nil {
		return fmt.Errorf("invalid server address: %v", err)
	}
	if c.Server.RequestTimeout < 0 {
		return errors.New("server request_timeout cannot be negative")
	}

	// Validate LLM configuration
	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm model cannot be empty")
	}
	if c.LLM.MaxAttempts < 1 {
		return errors.New("llm max_attempts must be at least 1")
	}
	if c.LLM.MaxDelay < c.LLM.BaseDelay {
		return errors.New("llm max_delay cannot be shorter than base_delay")
	}

	// Validate storage configuration
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage dsn cannot be empty")
	}

	// Validate MinIO configuration
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return errors.New("minio endpoint cannot be empty when minio is enabled")
		}
		if c.MinIO.AccessKey == "" {
			return errors.New("minio access key cannot be empty when minio is enabled")
		}
		if c.MinIO.SecretKey == "" {
			return errors.New("minio secret key cannot be empty when minio is enabled")
		}
		if !isValidBucketName(c.MinIO.Bucket) {
			return fmt.Errorf("invalid minio bucket name: %s", c.MinIO.Bucket)
		}
	}

	if c.Negotiation.MaxRounds < 0 || c.Negotiation.MaxRounds > negotiation.MaxRoundsCap {
		return fmt.Errorf("negotiation max_rounds must be between 0 and %d", negotiation.MaxRoundsCap)
	}

	return nil
}

// isValidBucketName checks if a bucket name is valid according to MinIO/S3 rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return bucketNamePattern.MatchString(name)
}
