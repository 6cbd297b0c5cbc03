package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	GLM      GLMConfig      `mapstructure:"glm"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Anomaly  AnomalyConfig  `mapstructure:"anomaly"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// GLMConfig holds recognition provider configuration. An empty API key puts
// the recognizer in mock mode.
type GLMConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// UploadConfig bounds upload batches and locates stored images.
type UploadConfig struct {
	Dir              string `mapstructure:"dir"`
	MaxFilesPerBatch int    `mapstructure:"max_files_per_batch"`
	MaxFileSize      int64  `mapstructure:"max_file_size"`
	Workers          int    `mapstructure:"workers"`
}

// AnomalyConfig holds the business rule thresholds.
type AnomalyConfig struct {
	AmountThreshold     float64 `mapstructure:"amount_threshold"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	DateMaxAgeDays      int     `mapstructure:"date_max_age_days"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from .env, the config file and environment
// variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	// Credentials live in .env during development; absence is fine.
	_ = gotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)

	viper.SetDefault("database.path", "data/invoices.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("glm.base_url", "https://open.bigmodel.cn/api/paas/v4")
	viper.SetDefault("glm.model", "glm-4v")
	viper.SetDefault("glm.timeout", 60*time.Second)

	viper.SetDefault("upload.dir", "uploads")
	viper.SetDefault("upload.max_files_per_batch", 200)
	viper.SetDefault("upload.max_file_size", 10*1024*1024)
	viper.SetDefault("upload.workers", 4)

	viper.SetDefault("anomaly.amount_threshold", 5000)
	viper.SetDefault("anomaly.confidence_threshold", 0.9)
	viper.SetDefault("anomaly.date_max_age_days", 180)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	// Sensitive credentials come from the environment.
	viper.BindEnv("glm.api_key", "GLM_API_KEY")
	viper.BindEnv("glm.base_url", "GLM_BASE_URL")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("upload.dir", "UPLOAD_DIR")
}

// Validate checks configuration consistency. The GLM API key is deliberately
// not required: without it the recognizer runs in mock mode.
func (c *Config) Validate() error {
	if c.Upload.MaxFilesPerBatch <= 0 {
		return fmt.Errorf("upload.max_files_per_batch must be positive")
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload.max_file_size must be positive")
	}
	if c.Anomaly.ConfidenceThreshold < 0 || c.Anomaly.ConfidenceThreshold > 1 {
		return fmt.Errorf("anomaly.confidence_threshold must be in [0,1]")
	}
	if c.Anomaly.DateMaxAgeDays < 0 {
		return fmt.Errorf("anomaly.date_max_age_days must not be negative")
	}
	return nil
}
