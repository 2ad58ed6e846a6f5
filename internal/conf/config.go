package conf

import (
	"fmt"
	"time"

	"github.com/scenehub/scenehub-backend/internal/pkg/database"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/pkg/minio"
	"github.com/scenehub/scenehub-backend/internal/pkg/redis"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database *database.Config  `mapstructure:"database"`
	Redis    *redis.Config     `mapstructure:"redis"`
	MinIO    *minio.Config     `mapstructure:"minio"`
	Log      *logger.Config    `mapstructure:"log"`
	Auth     AuthConfig        `mapstructure:"auth"`
	Upload   UploadConfig      `mapstructure:"upload"`
	Sweeper  biz.SweeperConfig `mapstructure:"sweeper"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type UploadConfig struct {
	Session        biz.SessionConfig `mapstructure:"session"`
	WorkerPoolSize int               `mapstructure:"worker_pool_size"`
}

// LoadConfig reads the configuration file and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := &Config{
		Database: database.DefaultConfig(),
		Redis:    redis.DefaultConfig(),
		MinIO:    minio.DefaultConfig(),
		Log:      logger.DefaultConfig(),
	}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Upload.WorkerPoolSize <= 0 {
		c.Upload.WorkerPoolSize = 8
	}
	if c.Auth.JWTIssuer == "" {
		c.Auth.JWTIssuer = "scenehub-backend"
	}
}

// Validate checks the pieces that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.MinIO.Validate(); err != nil {
		return err
	}
	return nil
}
