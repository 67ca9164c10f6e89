package analyze

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coremeter/internal/activity"
	awsinternal "coremeter/internal/aws"
	"coremeter/internal/config"
	"coremeter/internal/loader"
	"coremeter/internal/logging"
	"coremeter/internal/output"
)

const (
	chartWidth  = 72
	chartHeight = 12
)

// analyzeBindings maps config keys to the analyze flags
var analyzeBindings = map[string]string{
	"analyze.output":        "output",
	"analyze.output_format": "output-format",
	"analyze.output_dir":    "output-dir",
	"analyze.bucket":        "bucket",
	"analyze.bucket_region": "bucket-region",
	"analyze.prefix":        "prefix",
	"analyze.chart":         "chart",
	"analyze.progress":      "progress",
}

// The S3 client constructors are variables so tests can replace them.
var (
	// s3Downloader builds a downloader in the region the source bucket lives in
	s3Downloader = func(ctx context.Context, profile, role, bucket string) (s3manageriface.DownloaderAPI, error) {
		base, err := awsinternal.NewSession(profile, "")
		if err != nil {
			return nil, err
		}
		region, err := awsinternal.BucketRegion(ctx, base, bucket)
		if err != nil {
			return nil, err
		}
		sess, err := awsinternal.SessionFor(profile, region, role)
		if err != nil {
			return nil, err
		}
		return s3manager.NewDownloader(sess), nil
	}

	// s3Uploader builds an uploader for the report bucket
	s3Uploader = func(profile, region, role string) (s3manageriface.UploaderAPI, error) {
		sess, err := awsinternal.SessionFor(profile, region, role)
		if err != nil {
			return nil, err
		}
		return output.NewS3Uploader(sess, nil), nil
	}
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <input>",
		Short: "Report billable cores per hour",
		Long: `Analyze a VM activity log and report, for every hour of the billing period,
the active hosts and their billable cores.

The input is a delimited file (tab, space or comma) with the columns
hostName, startTime, endTime and hostBillableCores. It may be a local path
or an s3://bucket/key URI. The region of an input bucket is looked up, so
--bucket-region only applies to the report bucket.

Two CSV reports are written next to the input: <input>_detailed.csv with one
row per host and hour, and <input>_summary.csv with one row per hour.

Examples:
  # Analyze a local log
  coremeter analyze activity.tsv

  # Also write a JSON report and print a chart of cores per hour
  coremeter analyze activity.tsv --output-format json --chart

  # Read the log from S3 and upload the reports to another bucket
  coremeter analyze s3://logs/2024-03/activity.tsv --output s3 --bucket reports --bucket-region us-west-2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for key, flag := range analyzeBindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}

			opts := config.LoadAnalyze()
			if err := opts.Validate(); err != nil {
				return err
			}
			return runAnalyze(cmd, args[0], opts)
		},
	}

	cmd.Flags().String("output", "filesystem", "Output type (filesystem, s3)")
	cmd.Flags().StringP("output-format", "o", "csv", "Report format (csv, json); json adds an hourly JSON report")
	cmd.Flags().String("output-dir", "", "Directory for the reports (default: next to the input)")
	cmd.Flags().String("bucket", "", "S3 bucket name (required when --output=s3)")
	cmd.Flags().String("bucket-region", "", "S3 bucket region (required when --output=s3)")
	cmd.Flags().String("prefix", "", "S3 key prefix for the reports")
	cmd.Flags().Bool("chart", false, "Print an ASCII chart of billable cores per hour")
	cmd.Flags().Bool("progress", true, "Show a progress bar while aggregating")

	return cmd
}

func runAnalyze(cmd *cobra.Command, input string, opts config.AnalyzeConfig) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	loaded, err := load(ctx, input)
	if err != nil {
		logging.Error("Failed to load activity log", err, map[string]interface{}{
			"input": input,
		})
		return err
	}
	logging.AnalysisStart(input, len(loaded.Records), loaded.Strategy)

	window := activity.ComputeWindow(loaded.Records)
	hours := activity.EnumerateHours(window)
	logging.WindowComputed(window.MonthStart, window.MonthEnd, hours.Len())

	aggregator := &activity.Aggregator{Workers: config.Config.MaxWorkers}
	var bar *progressbar.ProgressBar
	if opts.Progress && hours.Len() > 0 {
		if config.Config.LogFormat == "json" {
			aggregator.Progress = logHourProgress
		} else {
			bar = newHourBar(cmd.ErrOrStderr(), hours.Len())
			aggregator.Progress = func(done, total int) {
				_ = bar.Set(done)
			}
		}
	}

	results, err := aggregator.Analyze(ctx, loaded.Records)
	if err != nil {
		if bar != nil {
			_ = bar.Exit()
		}
		return fmt.Errorf("failed to aggregate hours: %w", err)
	}
	for _, r := range results {
		logging.HourAggregated(r.Hour, r.TotalHostnames, r.TotalBillableCores)
	}

	reports, err := output.BuildReports(input, results, opts.OutputFormat)
	if err != nil {
		return err
	}

	outputConfig := output.Config{
		Type:      output.Type(opts.Output),
		OutputDir: opts.OutputDir,
		S3Bucket:  opts.Bucket,
		Prefix:    opts.Prefix,
	}
	if opts.Output == string(output.S3) && opts.Progress && config.Config.LogFormat != "json" {
		outputConfig.ProgressOut = cmd.ErrOrStderr()
	}
	writer := output.NewWriter(outputConfig)
	if opts.Output == string(output.S3) {
		uploader, err := s3Uploader(config.Config.Profile, opts.BucketRegion, config.Config.Role)
		if err != nil {
			logging.Error("Failed to create S3 uploader", err, map[string]interface{}{
				"profile": config.Config.Profile,
				"bucket":  opts.Bucket,
			})
			return err
		}
		writer.WithUploader(uploader)
	}
	if err := writer.WriteReports(ctx, reports); err != nil {
		logging.Error("Failed to write reports", err, nil)
		return err
	}

	if opts.Chart && len(results) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), output.RenderCoresChart(results, chartWidth, chartHeight))
	}

	peakHosts, peakCores := peaks(results)
	logging.AnalysisComplete(len(results), peakHosts, peakCores, time.Since(started))
	return nil
}

// load reads the activity log from a local path or an s3:// URI
func load(ctx context.Context, input string) (*loader.Result, error) {
	if !awsinternal.IsS3URI(input) {
		return loader.LoadFile(input)
	}

	loc, err := awsinternal.ParseS3URI(input)
	if err != nil {
		return nil, err
	}
	downloader, err := s3Downloader(ctx, config.Config.Profile, config.Config.Role, loc.Bucket)
	if err != nil {
		return nil, err
	}
	data, err := awsinternal.Download(ctx, downloader, loc)
	if err != nil {
		return nil, err
	}
	return loader.Parse(data, input, loader.DefaultStrategies)
}

// newHourBar draws aggregation progress on out, one step per hour bucket
func newHourBar(out io.Writer, hours int) *progressbar.ProgressBar {
	return progressbar.NewOptions64(int64(hours),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Aggregating"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("hours"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
	)
}

// logHourProgress emits PROGRESS log lines at every tenth of the run, for
// JSON logs where a console bar would corrupt the output
func logHourProgress(done, total int) {
	step := max(total/10, 1)
	if done%step != 0 && done != total {
		return
	}
	logging.Progress("Aggregating hours", map[string]interface{}{
		"done":    done,
		"total":   total,
		"percent": done * 100 / total,
	})
}

func peaks(results []activity.HourResult) (int, int64) {
	var hosts int
	var cores int64
	for _, r := range results {
		hosts = max(hosts, r.TotalHostnames)
		cores = max(cores, r.TotalBillableCores)
	}
	return hosts, cores
}
