package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"inbox/internal/constants"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Messaging MessagingConfig `yaml:"messaging"`
	Redis     RedisConfig     `yaml:"redis"`
	Polling   PollingConfig   `yaml:"polling"`
}

type ServerConfig struct {
	Name           string   `yaml:"name"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	CORSOrigins    []string `yaml:"cors_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret"`
	Issuer         string        `yaml:"issuer"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

type StorageConfig struct {
	Driver         string   `yaml:"driver"`
	BlobRoot       string   `yaml:"blob_root"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	S3             S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PublicURL string `yaml:"public_url"`
	Prefix    string `yaml:"prefix"`
}

type MessagingConfig struct {
	MaxContentLength   int           `yaml:"max_content_length"`
	MaxAttachmentBytes int64         `yaml:"max_attachment_bytes"`
	SendRateLimit      int           `yaml:"send_rate_limit"`
	SendRateWindow     time.Duration `yaml:"send_rate_window"`
}

// RedisConfig enables the shared send quota. Empty Addr keeps the quota in
// process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PollingConfig struct {
	ConversationInterval time.Duration `yaml:"conversation_interval"`
	ThreadInterval       time.Duration `yaml:"thread_interval"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INBOX_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("INBOX_S3_SECRET_KEY"); v != "" {
		c.Storage.S3.SecretKey = v
	}
	if v := os.Getenv("INBOX_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}

	switch c.Storage.Driver {
	case "", StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
		if c.Storage.S3.PublicURL == "" {
			return fmt.Errorf("storage.s3.public_url is required")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q", StorageLocal, StorageS3)
	}

	if c.Messaging.MaxAttachmentBytes < 0 || c.Storage.MaxUploadBytes < 0 {
		return fmt.Errorf("upload limits must not be negative")
	}
	if c.Messaging.MaxAttachmentBytes > constants.MaxAttachmentBytes {
		return fmt.Errorf("messaging.max_attachment_bytes must not exceed %d", constants.MaxAttachmentBytes)
	}
	if c.Polling.ConversationInterval < 0 || c.Polling.ThreadInterval < 0 {
		return fmt.Errorf("polling intervals must not be negative")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "Inbox"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/inbox.db"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "inbox"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageLocal
	}
	if c.Storage.BlobRoot == "" {
		c.Storage.BlobRoot = "./data/blobs"
	}
	if c.Messaging.MaxContentLength == 0 {
		c.Messaging.MaxContentLength = constants.MaxMessageContentLength
	}
	if c.Messaging.MaxAttachmentBytes == 0 {
		c.Messaging.MaxAttachmentBytes = constants.MaxAttachmentBytes
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = c.Messaging.MaxAttachmentBytes
	}
	if c.Messaging.SendRateLimit == 0 {
		c.Messaging.SendRateLimit = 30
	}
	if c.Messaging.SendRateWindow == 0 {
		c.Messaging.SendRateWindow = time.Minute
	}
	if c.Polling.ConversationInterval == 0 {
		c.Polling.ConversationInterval = constants.DefaultConversationPollInterval
	}
	if c.Polling.ThreadInterval == 0 {
		c.Polling.ThreadInterval = constants.DefaultThreadPollInterval
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
