// Package config loads the service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"auditrisk/logging"
	"auditrisk/ml"
	"auditrisk/predlog"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	EnvPort       = "AUDITRISK_PORT"
	EnvModelPath  = "AUDITRISK_MODEL_PATH"
	EnvOutputsDir = "AUDITRISK_OUTPUTS_DIR"
	EnvLogLevel   = "AUDITRISK_LOG_LEVEL"
)

type Config struct {
	HTTP    HTTPConfig     `yaml:"http"`
	Model   ModelConfig    `yaml:"model"`
	Outputs OutputsConfig  `yaml:"outputs"`
	Dataset DatasetConfig  `yaml:"dataset"`
	Log     logging.Config `yaml:"log"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type ModelConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
	// CacheSize > 0 memoises predictions for repeated inputs.
	CacheSize int  `yaml:"cache_size"`
	Watch     bool `yaml:"watch"`
}

type OutputsConfig struct {
	Dir        string `yaml:"dir"`
	LogFile    string `yaml:"log_file"`
	ReportFile string `yaml:"report_file"`
	Backend    string `yaml:"backend"`
	// SQLitePath overrides the database location; empty places it in Dir.
	SQLitePath string `yaml:"sqlite_path"`
}

type DatasetConfig struct {
	Path string `yaml:"path"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           5000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Type: ml.ModelTypeRandomForest,
			Path: filepath.Join("models", "risk_model.json"),
		},
		Outputs: OutputsConfig{
			Dir:        "outputs",
			LogFile:    predlog.DefaultFileName,
			ReportFile: "basic_eda_report.txt",
			Backend:    predlog.BackendXLSX,
		},
		Dataset: DatasetConfig{
			Path: "audit_data.csv",
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults. A missing file or .env is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.HTTP.Port = port
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv(EnvOutputsDir); v != "" {
		cfg.Outputs.Dir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	switch c.Model.Type {
	case ml.ModelTypeDecisionTree, ml.ModelTypeRandomForest:
	default:
		return fmt.Errorf("model.type %q: %w", c.Model.Type, ml.ErrUnsupportedModel)
	}
	if c.Model.CacheSize < 0 {
		return errors.New("model.cache_size must not be negative")
	}
	switch c.Outputs.Backend {
	case predlog.BackendXLSX, predlog.BackendSQLite:
	default:
		return fmt.Errorf("outputs.backend %q is not supported", c.Outputs.Backend)
	}
	return nil
}

// LogStore is the prediction log configuration derived from the outputs section.
func (c Config) LogStore() predlog.Config {
	return predlog.Config{
		Backend:    c.Outputs.Backend,
		Dir:        c.Outputs.Dir,
		FileName:   c.Outputs.LogFile,
		SQLitePath: c.Outputs.SQLitePath,
	}
}

// ReportPath is where the EDA report is written.
func (c Config) ReportPath() string {
	return filepath.Join(c.Outputs.Dir, c.Outputs.ReportFile)
}
