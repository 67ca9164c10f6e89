package config

// GlobalConfig holds the global configuration for the application
type GlobalConfig struct {
	// Profile is the AWS profile used for s3:// inputs and S3 report output
	Profile string

	// Role is an optional IAM role ARN or name assumed for S3 access
	Role string

	// MaxWorkers is the number of workers aggregating hour buckets.
	// One keeps the analysis on a single goroutine.
	MaxWorkers int

	// LogFormat is the format for logging
	LogFormat string

	// LogLevel is the minimum level that is logged
	LogLevel string
}

// Config is the global configuration instance
var Config = &GlobalConfig{
	Profile:    "default",
	MaxWorkers: 1,
}

// AnalyzeConfig holds the settings of the analyze command
type AnalyzeConfig struct {
	Output       string // filesystem or s3
	OutputFormat string // csv or json
	OutputDir    string
	Bucket       string
	BucketRegion string
	Prefix       string
	Chart        bool
	Progress     bool
}
