package minio

import (
	"errors"
	"time"
)

// Config defines the MinIO client configuration
type Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// DefaultConfig returns the default MinIO configuration
func DefaultConfig() *Config {
	return &Config{
		Endpoint:       "localhost:9000",
		UseSSL:         false,
		Bucket:         "scenehub-assets",
		RequestTimeout: 30 * time.Second,
	}
}

// Validate validates the MinIO configuration
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if c.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	return nil
}
