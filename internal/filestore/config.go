package filestore

import (
	"time"

	"github.com/koustreak/unisql/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO  Provider = "minio"
	ProviderMemory Provider = "memory" // process-local, for tests and single-node setups
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `yaml:"endpoint"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket receives exported large objects when a request names none.
	Bucket string `yaml:"bucket"`

	// PartSize is the multipart chunk used for uploads of unknown length.
	PartSize uint64 `yaml:"part_size"`

	// PresignTTL bounds the validity of download URLs handed out after an export.
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

const (
	DefaultPartSize   = 16 << 20
	DefaultPresignTTL = 15 * time.Minute
)

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:   ProviderMinIO,
		Endpoint:   endpoint,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		Bucket:     "unisql-lobs",
		PartSize:   DefaultPartSize,
		PresignTTL: DefaultPresignTTL,
	}
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderMinIO
	}
	if c.Bucket == "" {
		c.Bucket = "unisql-lobs"
	}
	if c.PartSize == 0 {
		c.PartSize = DefaultPartSize
	}
	if c.PresignTTL == 0 {
		c.PresignTTL = DefaultPresignTTL
	}
}

// Validate reports missing settings for the configured provider.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderMemory:
		return nil
	case ProviderMinIO:
		if c.Endpoint == "" {
			return errs.New(errs.ErrKindInvalidInput, "filestore: endpoint is required")
		}
		if c.AccessKey == "" || c.SecretKey == "" {
			return errs.New(errs.ErrKindInvalidInput, "filestore: access_key and secret_key are required")
		}
		return nil
	}
	return errs.Newf(errs.ErrKindInvalidInput, "filestore: unknown provider %q", c.Provider)
}
