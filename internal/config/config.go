package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMinio  = "minio"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendMemory = "memory"

	PolicyStrict = "strict"
	PolicyCDN    = "cdn"

	minSecretKeyLength = 32
)

// Config holds the application configuration. It is loaded once at startup
// and must pass Validate before the server accepts traffic.
type Config struct {
	ServerAddr string
	SecretKey  string

	StorageBackend string
	Bucket         string
	CreateBucket   bool
	StoreTimeout   time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	AWSRegion  string
	S3Endpoint string

	GCSCredentialsFile string
	GCSEndpoint        string

	MaxUploadBytes int64

	SecurityPolicy string
	CDNOrigin      string
	ForceHTTPS     bool
	TrustProxy     bool

	RateLimitDaily           int
	RateLimitHourly          int
	RateLimitUploadPerMinute int

	MetricsEnabled bool

	LogLevel  string
	LogFormat string
	LogFile   string

	// parseErrs collects malformed numeric, boolean and duration values so
	// Validate can report them together with the semantic checks.
	parseErrs []error
}

// ConfigError is returned by Validate when the configuration cannot be used.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// LoadDotEnv loads variables from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables with defaults.
// Secrets and the bucket name have no defaults.
func LoadConfig() *Config {
	c := &Config{
		ServerAddr: GetEnv("SERVER_ADDR", ":5001"),
		SecretKey:  os.Getenv("SECRET_KEY"),

		StorageBackend: strings.ToLower(GetEnv("STORAGE_BACKEND", BackendMinio)),
		Bucket:         os.Getenv("BUCKET_NAME"),

		MinioEndpoint:  GetEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),

		AWSRegion:  GetEnv("AWS_REGION", "us-east-1"),
		S3Endpoint: os.Getenv("S3_ENDPOINT"),

		GCSCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		GCSEndpoint:        os.Getenv("GCS_ENDPOINT"),

		SecurityPolicy: strings.ToLower(GetEnv("SECURITY_POLICY", PolicyStrict)),
		CDNOrigin:      GetEnv("CSP_CDN_ORIGIN", "https://your-cdn.com"),

		LogLevel:  strings.ToLower(GetEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(GetEnv("LOG_FORMAT", "text")),
		LogFile:   os.Getenv("LOG_FILE"),
	}

	c.CreateBucket = c.boolEnv("CREATE_BUCKET", false)
	c.MinioUseSSL = c.boolEnv("MINIO_USE_SSL", false)
	c.ForceHTTPS = c.boolEnv("FORCE_HTTPS", false)
	c.TrustProxy = c.boolEnv("TRUST_PROXY", false)
	c.MetricsEnabled = c.boolEnv("METRICS_ENABLED", true)

	c.StoreTimeout = c.durationEnv("STORE_TIMEOUT", 30*time.Second)
	c.MaxUploadBytes = int64(c.intEnv("MAX_UPLOAD_BYTES", 16<<20))

	c.RateLimitDaily = c.intEnv("RATE_LIMIT_DAILY", 200)
	c.RateLimitHourly = c.intEnv("RATE_LIMIT_HOURLY", 50)
	c.RateLimitUploadPerMinute = c.intEnv("RATE_LIMIT_UPLOAD_PER_MINUTE", 10)

	return c
}

// Validate checks the configuration eagerly and returns a *ConfigError
// describing every problem found.
func (c *Config) Validate() error {
	var problems []string
	for _, err := range c.parseErrs {
		problems = append(problems, err.Error())
	}

	if c.ServerAddr == "" {
		problems = append(problems, "SERVER_ADDR must not be empty")
	}
	if c.SecretKey == "" {
		problems = append(problems, "SECRET_KEY is required")
	} else if len(c.SecretKey) < minSecretKeyLength {
		problems = append(problems, fmt.Sprintf("SECRET_KEY must be at least %d bytes", minSecretKeyLength))
	}

	problems = append(problems, c.storageProblems()...)

	if c.StoreTimeout <= 0 {
		problems = append(problems, "STORE_TIMEOUT must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_UPLOAD_BYTES must be positive")
	}

	switch c.SecurityPolicy {
	case PolicyStrict:
	case PolicyCDN:
		if !strings.HasPrefix(c.CDNOrigin, "https://") {
			problems = append(problems, "CSP_CDN_ORIGIN must be an https origin")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown SECURITY_POLICY %q", c.SecurityPolicy))
	}

	if c.RateLimitDaily <= 0 || c.RateLimitHourly <= 0 || c.RateLimitUploadPerMinute <= 0 {
		problems = append(problems, "rate limits must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown LOG_LEVEL %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// ValidateStorage checks only what is needed to open the object store. It
// is used by commands that never serve HTTP.
func (c *Config) ValidateStorage() error {
	var problems []string
	for _, err := range c.parseErrs {
		problems = append(problems, err.Error())
	}
	problems = append(problems, c.storageProblems()...)
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func (c *Config) storageProblems() []string {
	var problems []string
	switch c.StorageBackend {
	case BackendMinio:
		if c.MinioEndpoint == "" {
			problems = append(problems, "MINIO_ENDPOINT is required for the minio backend")
		}
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			problems = append(problems, "MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend")
		}
	case BackendS3:
		if c.AWSRegion == "" {
			problems = append(problems, "AWS_REGION is required for the s3 backend")
		}
	case BackendGCS:
		if c.GCSCredentialsFile != "" {
			if _, err := os.Stat(c.GCSCredentialsFile); err != nil {
				problems = append(problems, fmt.Sprintf("GOOGLE_APPLICATION_CREDENTIALS: %v", err))
			}
		}
		if c.GCSEndpoint != "" && !strings.HasPrefix(c.GCSEndpoint, "http://") && !strings.HasPrefix(c.GCSEndpoint, "https://") {
			problems = append(problems, "GCS_ENDPOINT must be an http or https URL")
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.Bucket == "" && c.StorageBackend != BackendMemory {
		problems = append(problems, "BUCKET_NAME is required")
	}
	return problems
}

// GetEnv gets environment variable with default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) boolEnv(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return defaultValue
	}
	return v
}

func (c *Config) intEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return defaultValue
	}
	return v
}

func (c *Config) durationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return defaultValue
	}
	return v
}
