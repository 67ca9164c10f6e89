package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/schollz/progressbar/v3"

	awsinternal "coremeter/internal/aws"
	"coremeter/internal/logging"
)

const (
	defaultMaxRetries        = 3
	defaultRetryDelay        = 2 * time.Second
	defaultPartSize          = 5 * 1024 * 1024 // 5MB
	defaultConcurrentUploads = 5
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// UploadConfig holds upload configuration
type UploadConfig struct {
	PartSize        int64
	ConcurrentParts int
}

// Type represents the output type
type Type string

const (
	// FileSystem represents local filesystem output
	FileSystem Type = "filesystem"
	// S3 represents S3 bucket output
	S3 Type = "s3"
)

// Config holds output configuration
type Config struct {
	Type Type

	// OutputDir, when set, receives the reports under their base names.
	// Otherwise reports are written at the path derived from the input.
	OutputDir string

	S3Bucket string
	Prefix   string

	Retry *RetryConfig

	// ProgressOut receives the upload progress bar; nil disables it
	ProgressOut io.Writer
}

// Writer writes report artifacts to the configured destination
type Writer struct {
	config   Config
	uploader s3manageriface.UploaderAPI
}

// NewWriter creates a new output writer with default settings
func NewWriter(config Config) *Writer {
	if config.Retry == nil {
		config.Retry = &RetryConfig{
			MaxRetries: defaultMaxRetries,
			RetryDelay: defaultRetryDelay,
		}
	}

	if config.Type == "" {
		config.Type = FileSystem
	}
	return &Writer{config: config}
}

// NewS3Uploader creates a multipart uploader for sess. A nil config uses the
// default part size and concurrency.
func NewS3Uploader(sess *session.Session, config *UploadConfig) s3manageriface.UploaderAPI {
	if config == nil {
		config = &UploadConfig{
			PartSize:        defaultPartSize,
			ConcurrentParts: defaultConcurrentUploads,
		}
	}
	return s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		u.PartSize = config.PartSize
		u.Concurrency = config.ConcurrentParts
	})
}

// WithUploader sets the uploader used for S3 output
func (w *Writer) WithUploader(uploader s3manageriface.UploaderAPI) *Writer {
	w.uploader = uploader
	return w
}

// Location returns where a report with the given name ends up
func (w *Writer) Location(name string) string {
	switch w.config.Type {
	case S3:
		return awsinternal.S3Location{Bucket: w.config.S3Bucket, Key: w.s3Key(name)}.String()
	default:
		return w.filePath(name)
	}
}

func (w *Writer) filePath(name string) string {
	if w.config.OutputDir == "" {
		return name
	}
	return filepath.Join(w.config.OutputDir, filepath.Base(name))
}

func (w *Writer) s3Key(name string) string {
	return path.Join(w.config.Prefix, filepath.Base(name))
}

// WriteReports writes every report and logs each location
func (w *Writer) WriteReports(ctx context.Context, reports []Report) error {
	for _, r := range reports {
		location, err := w.Write(ctx, r.Name, r.Data)
		if err != nil {
			return fmt.Errorf("failed to write %s report: %w", r.Kind, err)
		}
		logging.ReportWritten(r.Kind, location, r.Rows)
	}
	return nil
}

// Write stores data under name and returns its location
func (w *Writer) Write(ctx context.Context, name string, data []byte) (string, error) {
	switch w.config.Type {
	case FileSystem:
		p := w.filePath(name)
		return p, w.writeToFileSystem(p, data)
	case S3:
		key := w.s3Key(name)
		return w.Location(name), w.writeToS3WithRetry(ctx, key, data)
	default:
		return "", fmt.Errorf("unsupported output type: %s", w.config.Type)
	}
}

// writeToFileSystem writes data to the local filesystem
func (w *Writer) writeToFileSystem(p string, data []byte) error {
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", p, err)
	}
	return nil
}

// writeToS3WithRetry writes data to an S3 bucket with retry logic
func (w *Writer) writeToS3WithRetry(ctx context.Context, key string, data []byte) error {
	if w.config.S3Bucket == "" {
		return fmt.Errorf("S3 bucket not specified")
	}

	if w.uploader == nil {
		return fmt.Errorf("S3 uploader not configured")
	}

	var lastErr error
	for attempt := 0; attempt < w.config.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.Warn("Retrying S3 upload", map[string]interface{}{
				"attempt": attempt + 1,
				"max":     w.config.Retry.MaxRetries,
				"key":     key,
				"error":   lastErr.Error(),
			})
			select {
			case <-time.After(w.config.Retry.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := w.writeToS3(ctx, key, data); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to upload to S3 after %d attempts: %w",
		w.config.Retry.MaxRetries, lastErr)
}

// writeToS3 uploads data with optional progress tracking
func (w *Writer) writeToS3(ctx context.Context, key string, data []byte) error {
	var body io.Reader = bytes.NewReader(data)
	if w.config.ProgressOut != nil {
		body = &progressReader{
			reader: body,
			bar: progressbar.NewOptions64(
				int64(len(data)),
				progressbar.OptionSetWriter(w.config.ProgressOut),
				progressbar.OptionSetDescription("Uploading "+path.Base(key)),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(15),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w.config.ProgressOut)
				}),
			),
		}
	}

	_, err := w.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:               aws.String(w.config.S3Bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ContentType:          aws.String(contentType(key)),
		ServerSideEncryption: aws.String("aws:kms"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func contentType(key string) string {
	if path.Ext(key) == ".json" {
		return "application/json"
	}
	return "text/csv"
}

// progressReader wraps an io.Reader to track progress
type progressReader struct {
	reader io.Reader
	bar    *progressbar.ProgressBar
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if addErr := r.bar.Add(n); addErr != nil {
		fmt.Fprintf(os.Stderr, "Error updating progress bar: %v\n", addErr)
	}
	return n, err
}
