package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Asset storage and image pipeline configuration
	Assets AssetConfig `yaml:"assets"`

	// Metadata enrichment configuration
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// Maintenance job configuration
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" env:"HARMONIA_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" env:"HARMONIA_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HARMONIA_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HARMONIA_WRITE_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type            string        `yaml:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Host            string        `yaml:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port            int           `yaml:"port" env:"POSTGRES_PORT" default:"5432"`
	Username        string        `yaml:"username" env:"POSTGRES_USER" default:"harmonia"`
	Password        string        `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" env:"POSTGRES_DB" default:"harmonia"`
	DataDir         string        `yaml:"data_dir" env:"HARMONIA_DATA_DIR" default:"./harmonia-data"`
	DatabasePath    string        `yaml:"database_path" env:"HARMONIA_DATABASE_PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"2h"`
	LogQueries      bool          `yaml:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// AssetConfig holds asset storage and image pipeline configuration
type AssetConfig struct {
	DataDir              string        `yaml:"data_dir" env:"HARMONIA_ASSETS_DIR"`
	MaxDownloadSize      int64         `yaml:"max_download_size" env:"HARMONIA_MAX_DOWNLOAD_SIZE" default:"10485760"`
	DownloadTimeout      time.Duration `yaml:"download_timeout" env:"HARMONIA_DOWNLOAD_TIMEOUT" default:"30s"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout" env:"HARMONIA_PROBE_TIMEOUT" default:"20s"`
	DownloadConcurrency  int           `yaml:"download_concurrency" env:"HARMONIA_DOWNLOAD_CONCURRENCY" default:"3"`
	WebPQuality          int           `yaml:"webp_quality" env:"HARMONIA_WEBP_QUALITY" default:"95"`
	HighQualityMinWidth  int           `yaml:"high_quality_min_width" env:"HARMONIA_HQ_MIN_WIDTH" default:"1000"`
	HighQualityMinHeight int           `yaml:"high_quality_min_height" env:"HARMONIA_HQ_MIN_HEIGHT" default:"1000"`
	ImprovementThreshold float64       `yaml:"improvement_threshold" env:"HARMONIA_IMPROVEMENT_THRESHOLD" default:"0.5"`
}

// EnrichmentConfig holds metadata enrichment configuration
type EnrichmentConfig struct {
	UserAgent               string        `yaml:"user_agent" env:"HARMONIA_USER_AGENT" default:"Harmonia/1.0 (+https://github.com/harmonia-media/harmonia)"`
	CacheTTLDays            int           `yaml:"cache_ttl_days" env:"HARMONIA_CACHE_TTL_DAYS" default:"30"`
	AutoApplyThreshold      float64       `yaml:"auto_apply_threshold" env:"HARMONIA_AUTO_APPLY_THRESHOLD" default:"90"`
	TrackAutoApplyThreshold float64       `yaml:"track_auto_apply_threshold" env:"HARMONIA_TRACK_AUTO_APPLY_THRESHOLD" default:"95"`
	ReviewThreshold         float64       `yaml:"review_threshold" env:"HARMONIA_REVIEW_THRESHOLD" default:"70"`
	MinTagCount             int           `yaml:"min_tag_count" env:"HARMONIA_MIN_TAG_COUNT" default:"3"`
	MaxGenres               int           `yaml:"max_genres" env:"HARMONIA_MAX_GENRES" default:"10"`
	PreferredTagSource      string        `yaml:"preferred_tag_source" env:"HARMONIA_PREFERRED_TAG_SOURCE" default:"audiodb"`
	SweepEnabled            bool          `yaml:"sweep_enabled" env:"HARMONIA_SWEEP_ENABLED" default:"true"`
	SweepInterval           time.Duration `yaml:"sweep_interval" env:"HARMONIA_SWEEP_INTERVAL" default:"1h"`
	SweepBatchSize          int           `yaml:"sweep_batch_size" env:"HARMONIA_SWEEP_BATCH_SIZE" default:"25"`
}

// MaintenanceConfig holds maintenance job configuration
type MaintenanceConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" env:"HARMONIA_JOB_MAX_ATTEMPTS" default:"3"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" env:"HARMONIA_JOB_RETRY_BACKOFF" default:"60s"`
	ManualBackoff    time.Duration `yaml:"manual_backoff" env:"HARMONIA_JOB_MANUAL_BACKOFF" default:"10s"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"HARMONIA_JOB_POLL_INTERVAL" default:"15s"`
	CleanupDryRun    bool          `yaml:"cleanup_dry_run" env:"HARMONIA_CLEANUP_DRY_RUN" default:"false"`
	CachePurgeTime   string        `yaml:"cache_purge_time" env:"HARMONIA_CACHE_PURGE_TIME" default:"daily@03:00"`
	FullCleanupTime  string        `yaml:"full_cleanup_time" env:"HARMONIA_FULL_CLEANUP_TIME" default:"weekly@sun@04:00"`
	WatcherEnabled   bool          `yaml:"watcher_enabled" env:"HARMONIA_STORAGE_WATCHER" default:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" env:"HARMONIA_LOG_LEVEL" default:"info"`
}

// Manager manages application configuration
type Manager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	configOnce    sync.Once
)

// GetManager returns the global configuration manager instance
func GetManager() *Manager {
	configOnce.Do(func() {
		globalManager = &Manager{config: DefaultConfig()}
	})
	return globalManager
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type:            "sqlite",
			DataDir:         "./harmonia-data",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 2 * time.Hour,
		},
		Assets: AssetConfig{
			MaxDownloadSize:      10 * 1024 * 1024,
			DownloadTimeout:      30 * time.Second,
			ProbeTimeout:         20 * time.Second,
			DownloadConcurrency:  3,
			WebPQuality:          95,
			HighQualityMinWidth:  1000,
			HighQualityMinHeight: 1000,
			ImprovementThreshold: 0.5,
		},
		Enrichment: EnrichmentConfig{
			UserAgent:               "Harmonia/1.0 (+https://github.com/harmonia-media/harmonia)",
			CacheTTLDays:            30,
			AutoApplyThreshold:      90,
			TrackAutoApplyThreshold: 95,
			ReviewThreshold:         70,
			MinTagCount:             3,
			MaxGenres:               10,
			PreferredTagSource:      "audiodb",
			SweepEnabled:            true,
			SweepInterval:           1 * time.Hour,
			SweepBatchSize:          25,
		},
		Maintenance: MaintenanceConfig{
			MaxAttempts:     3,
			RetryBackoff:    60 * time.Second,
			ManualBackoff:   10 * time.Second,
			PollInterval:    15 * time.Second,
			CachePurgeTime:  "daily@03:00",
			FullCleanupTime: "weekly@sun@04:00",
			WatcherEnabled:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (m *Manager) LoadConfig(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.configPath = configPath
	newConfig := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, newConfig); err != nil {
				return fmt.Errorf("failed to parse config file: %w", err)
			}
			log.Printf("Configuration loaded from file: %s", configPath)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validate(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerived(newConfig)

	m.config = newConfig
	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	return &configCopy
}

// loadStructFromEnv overrides struct fields from env vars declared in tags.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(value, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(values))
		}
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}
	if config.Assets.MaxDownloadSize <= 0 {
		return fmt.Errorf("invalid max download size: %d", config.Assets.MaxDownloadSize)
	}
	if config.Enrichment.ReviewThreshold > config.Enrichment.AutoApplyThreshold {
		return fmt.Errorf("review threshold %.1f above auto-apply threshold %.1f",
			config.Enrichment.ReviewThreshold, config.Enrichment.AutoApplyThreshold)
	}
	if config.Maintenance.MaxAttempts < 1 {
		return fmt.Errorf("invalid job max attempts: %d", config.Maintenance.MaxAttempts)
	}
	return nil
}

func applyDerived(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "harmonia.db")
	}
	if config.Assets.DataDir == "" {
		config.Assets.DataDir = filepath.Join(config.Database.DataDir, "assets")
	}
}

// Get returns the current global configuration
func Get() *Config {
	return GetManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetManager().LoadConfig(configPath)
}
