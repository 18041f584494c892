// Package config loads the crawler configuration from an optional YAML file,
// applies defaults, and lets the credential and project settings be overridden
// from the environment so secrets stay out of config files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "30s" / "2m" style strings in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the full crawler configuration.
type Config struct {
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Storage    StorageConfig    `yaml:"storage"`
	Crawl      CrawlConfig      `yaml:"crawl"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Progress   ProgressConfig   `yaml:"progress"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// WarehouseConfig holds the project connection settings. The AccessKey pair
// and the project/endpoint can also come from ODPS_* environment variables,
// which win over the file.
type WarehouseConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Project         string        `yaml:"project"`
	AccessKeyID     string        `yaml:"access_key_id"`
	AccessKeySecret string   `yaml:"access_key_secret"`
	FetchTimeout    Duration `yaml:"fetch_timeout"`
	MaxConns        int32    `yaml:"max_conns"`
}

// StorageConfig selects where snapshot artifacts are published.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // "local" | "s3" | "gcs"
	LocalDir   string `yaml:"local_dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	GCSBucket  string `yaml:"gcs_bucket"`
	Prefix     string `yaml:"prefix"`
	Compress   bool   `yaml:"compress"`
	Parquet    bool   `yaml:"parquet"`
}

// CrawlConfig tunes the crawl itself.
type CrawlConfig struct {
	Concurrency   int      `yaml:"concurrency"`
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
}

// CheckpointConfig controls mid-run progress persistence.
type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Every   int    `yaml:"every"` // save after this many processed tables
}

// ProgressConfig controls periodic progress reporting.
type ProgressConfig struct {
	Interval Duration `yaml:"interval"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Warehouse: WarehouseConfig{
			FetchTimeout: Duration(30 * time.Second),
			MaxConns:     5,
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "odps_metadata",
		},
		Crawl: CrawlConfig{
			Concurrency:   1,
			RetryAttempts: 2,
			RetryBackoff:  Duration(2 * time.Second),
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Dir:     ".odps-crawler",
			Every:   50,
		},
		Progress: ProgressConfig{
			Interval: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets the connection identity come from the environment. Matching
// the warehouse SDK's conventional variable names keeps credentials out of
// config files in CI.
func (c *Config) applyEnv() {
	if v := os.Getenv("ODPS_ACCESS_KEY_ID"); v != "" {
		c.Warehouse.AccessKeyID = v
	}
	if v := os.Getenv("ODPS_ACCESS_KEY_SECRET"); v != "" {
		c.Warehouse.AccessKeySecret = v
	}
	if v := os.Getenv("ODPS_PROJECT"); v != "" {
		c.Warehouse.Project = v
	}
	if v := os.Getenv("ODPS_ENDPOINT"); v != "" {
		c.Warehouse.Endpoint = v
	}
}

func (c *Config) validate() error {
	if c.Warehouse.Endpoint == "" {
		return fmt.Errorf("warehouse endpoint is required (config or ODPS_ENDPOINT)")
	}
	if c.Warehouse.Project == "" {
		return fmt.Errorf("warehouse project is required (config or ODPS_PROJECT)")
	}
	if c.Warehouse.AccessKeyID == "" || c.Warehouse.AccessKeySecret == "" {
		return fmt.Errorf("access key credentials are required (config or ODPS_ACCESS_KEY_ID / ODPS_ACCESS_KEY_SECRET)")
	}
	if c.Crawl.Concurrency < 1 {
		return fmt.Errorf("crawl concurrency must be at least 1, got %d", c.Crawl.Concurrency)
	}
	if c.Crawl.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Crawl.RetryAttempts)
	}
	if c.Checkpoint.Every < 1 {
		return fmt.Errorf("checkpoint interval must be at least 1 table, got %d", c.Checkpoint.Every)
	}
	if c.Progress.Interval <= 0 {
		return fmt.Errorf("progress interval must be positive, got %s", c.Progress.Interval)
	}
	switch c.Storage.Backend {
	case "local", "s3", "gcs":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
