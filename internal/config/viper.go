package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"coremeter/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by viper
const EnvPrefix = "COREMETER"

// DefaultConfigContent is the starter config.yaml
const DefaultConfigContent = `# coremeter configuration file

# AWS Configuration (only used for s3:// inputs and --output s3)
aws:
  profile: default  # AWS profile to use (supports SSO profiles)
  role: ""  # Optional role name or ARN to assume for S3 access

# Application Configuration
app:
  max_workers: 1  # Workers aggregating hour buckets (1 = sequential)
  log_format: text  # Log output format (text or json)
  log_level: INFO  # Set logging level (DEBUG, INFO, WARN, ERROR)

# Analyze Command Configuration
analyze:
  output: filesystem  # Output type (filesystem or s3)
  output_format: csv  # Report format (csv or json)
  output_dir: ""  # Directory for reports (default: next to the input file)
  bucket: ""  # S3 bucket name (required when output=s3)
  bucket_region: ""  # S3 bucket region (required when output=s3)
  prefix: ""  # S3 key prefix for reports
  chart: false  # Print an ASCII chart of billable cores per hour
  progress: true  # Show a progress bar while aggregating
`

// DefaultEnvContent is the starter .env file
const DefaultEnvContent = `# coremeter environment overrides
COREMETER_AWS_PROFILE=default
COREMETER_AWS_ROLE=
COREMETER_APP_MAX_WORKERS=1
COREMETER_APP_LOG_FORMAT=text
COREMETER_APP_LOG_LEVEL=INFO
COREMETER_ANALYZE_OUTPUT=filesystem
COREMETER_ANALYZE_OUTPUT_FORMAT=csv
COREMETER_ANALYZE_BUCKET=
COREMETER_ANALYZE_BUCKET_REGION=
`

// flagNames maps config keys to the flag that overrides them
var flagNames = map[string]string{
	"aws.profile":           "profile",
	"aws.role":              "role",
	"app.max_workers":       "max-workers",
	"app.log_format":        "log-format",
	"app.log_level":         "log-level",
	"analyze.output":        "output",
	"analyze.output_format": "output-format",
	"analyze.output_dir":    "output-dir",
	"analyze.bucket":        "bucket",
	"analyze.bucket_region": "bucket-region",
	"analyze.prefix":        "prefix",
	"analyze.chart":         "chart",
	"analyze.progress":      "progress",
}

// parameterSource tracks where each parameter value came from
type parameterSource struct {
	Key    string
	Value  interface{}
	Source string
}

// getParameterSource determines where a parameter value came from (config file, env var, flag, or default)
func getParameterSource(key string, cmd *cobra.Command) parameterSource {
	value := viper.Get(key)
	envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))

	flagName := flagNames[key]
	if flagName == "" {
		flagName = strings.ReplaceAll(key, ".", "-")
	}

	if cmd != nil {
		if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
			return parameterSource{key, value, "command line flag"}
		}

		for current := cmd; current != nil; current = current.Parent() {
			if f := current.PersistentFlags().Lookup(flagName); f != nil && f.Changed {
				return parameterSource{key, value, "command line flag"}
			}
		}
	}

	if _, exists := os.LookupEnv(envKey); exists {
		return parameterSource{key, value, "environment variable"}
	}

	if viper.GetViper().InConfig(key) {
		return parameterSource{key, value, "config file"}
	}

	return parameterSource{key, value, "default value"}
}

// LogConfigurationSources logs the source of each configuration parameter
func LogConfigurationSources(shouldLog bool, cmd *cobra.Command) {
	if !shouldLog {
		return
	}

	logging.Debug("Configuration parameter sources:", nil)
	for _, param := range []string{
		"aws.profile",
		"aws.role",
		"app.max_workers",
		"app.log_format",
		"app.log_level",
		"analyze.output",
		"analyze.output_format",
		"analyze.output_dir",
		"analyze.bucket",
		"analyze.bucket_region",
		"analyze.prefix",
		"analyze.chart",
		"analyze.progress",
	} {
		source := getParameterSource(param, cmd)
		logging.Debug(fmt.Sprintf("  %s = %v (from %s)", source.Key, source.Value, source.Source), nil)
	}
}

// SetDefaults registers the default value of every configuration key
func SetDefaults() {
	viper.SetDefault("aws.profile", "default")
	viper.SetDefault("aws.role", "")
	viper.SetDefault("app.max_workers", 1)
	viper.SetDefault("app.log_format", "text")
	viper.SetDefault("app.log_level", "INFO")
	viper.SetDefault("analyze.output", "filesystem")
	viper.SetDefault("analyze.output_format", "csv")
	viper.SetDefault("analyze.output_dir", "")
	viper.SetDefault("analyze.bucket", "")
	viper.SetDefault("analyze.bucket_region", "")
	viper.SetDefault("analyze.prefix", "")
	viper.SetDefault("analyze.chart", false)
	viper.SetDefault("analyze.progress", true)
}

// InitConfig initializes the Viper configuration. A .env file in the current
// directory is loaded first; variables already set in the environment win.
// config.yaml is read from the current directory, else from ~/.coremeter.
func InitConfig(shouldLog bool) error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if shouldLog {
			logging.Debug("Loaded .env file", nil)
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if dir, err := ConfigDir(); err == nil {
		viper.AddConfigPath(dir)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if shouldLog {
			logging.Debug("No config file found, using defaults and environment variables", nil)
		}
	} else if shouldLog {
		logging.Debug("Loaded config file", map[string]interface{}{
			"path": viper.ConfigFileUsed(),
		})
	}

	return nil
}

// SetConfigFile sets a custom config file path and reloads the configuration
func SetConfigFile(configFile string) error {
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Load copies the global settings from viper into Config
func Load() *GlobalConfig {
	Config = &GlobalConfig{
		Profile:    viper.GetString("aws.profile"),
		Role:       viper.GetString("aws.role"),
		MaxWorkers: viper.GetInt("app.max_workers"),
		LogFormat:  viper.GetString("app.log_format"),
		LogLevel:   viper.GetString("app.log_level"),
	}
	if Config.MaxWorkers < 1 {
		Config.MaxWorkers = 1
	}
	return Config
}

// LoadAnalyze reads the analyze command settings from viper
func LoadAnalyze() AnalyzeConfig {
	return AnalyzeConfig{
		Output:       viper.GetString("analyze.output"),
		OutputFormat: viper.GetString("analyze.output_format"),
		OutputDir:    viper.GetString("analyze.output_dir"),
		Bucket:       viper.GetString("analyze.bucket"),
		BucketRegion: viper.GetString("analyze.bucket_region"),
		Prefix:       viper.GetString("analyze.prefix"),
		Chart:        viper.GetBool("analyze.chart"),
		Progress:     viper.GetBool("analyze.progress"),
	}
}

// Validate checks the analyze settings for consistency
func (c AnalyzeConfig) Validate() error {
	switch c.Output {
	case "filesystem", "s3":
	default:
		return fmt.Errorf("invalid output type: %s", c.Output)
	}

	switch c.OutputFormat {
	case "csv", "json":
	default:
		return fmt.Errorf("invalid output format: %s", c.OutputFormat)
	}

	if c.Output == "s3" {
		if c.Bucket == "" {
			return fmt.Errorf("--bucket is required when --output=s3")
		}
		if c.BucketRegion == "" {
			return fmt.Errorf("--bucket-region is required when --output=s3")
		}
	}
	return nil
}

// ConfigDir returns ~/.coremeter, searched after the current directory
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".coremeter"), nil
}

// CreateDefaultConfig creates ~/.coremeter/config.yaml if it doesn't exist
func CreateDefaultConfig() error {
	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(DefaultConfigContent), 0644); err != nil {
			return fmt.Errorf("error writing default config file: %w", err)
		}
	}

	return nil
}
