package analyze

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coremeter/internal/config"
	"coremeter/internal/logging"
)

const activityLog = "hostName\tstartTime\tendTime\thostBillableCores\n" +
	"vm-a\t2024-03-01T00:00:00Z\t2024-03-01T01:30:00Z\t4\n" +
	"vm-b\t2024-03-01T00:15:00Z\t2024-03-01T00:45:00Z\t2\n"

const (
	wantDetailed = "hour,day_of_month,hour_of_day,hostname,hostBillableCores\n" +
		"2024-03-01 00:00:00 UTC,1,0,vm-a,4\n" +
		"2024-03-01 00:00:00 UTC,1,0,vm-b,2\n" +
		"2024-03-01 01:00:00 UTC,1,1,vm-a,4\n"
	wantSummary = "hour,day_of_month,hour_of_day,total_hosts,total_hostBillableCores\n" +
		"2024-03-01 00:00:00 UTC,1,0,2,6\n" +
		"2024-03-01 01:00:00 UTC,1,1,1,4\n"
)

type mockDownloader struct {
	mock.Mock
}

func (m *mockDownloader) Download(w io.WriterAt, input *s3.GetObjectInput, opts ...func(*s3manager.Downloader)) (int64, error) {
	return m.DownloadWithContext(context.Background(), w, input, opts...)
}

func (m *mockDownloader) DownloadWithContext(ctx aws.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*s3manager.Downloader)) (int64, error) {
	args := m.Called(aws.StringValue(input.Bucket), aws.StringValue(input.Key))
	body := args.String(0)
	if _, err := w.WriteAt([]byte(body), 0); err != nil {
		return 0, err
	}
	return int64(len(body)), args.Error(1)
}

type mockUploader struct {
	mock.Mock
	bodies map[string]string
}

func (m *mockUploader) Upload(input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return m.UploadWithContext(context.Background(), input, opts...)
}

func (m *mockUploader) UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	if m.bodies == nil {
		m.bodies = make(map[string]string)
	}
	m.bodies[aws.StringValue(input.Key)] = string(body)

	args := m.Called(aws.StringValue(input.Bucket), aws.StringValue(input.Key))
	return &s3manager.UploadOutput{}, args.Error(0)
}

func setup(t *testing.T) {
	t.Helper()
	viper.Reset()
	config.SetDefaults()
	config.Config = &config.GlobalConfig{Profile: "default", MaxWorkers: 1, LogFormat: "text"}
	logging.SetOutput(io.Discard)
	t.Cleanup(func() {
		viper.Reset()
		logging.SetOutput(os.Stdout)
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewAnalyzeCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.tsv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestAnalyzeWritesReports(t *testing.T) {
	setup(t)
	input := writeLog(t, activityLog)

	_, err := execute(t, input, "--progress=false")
	require.NoError(t, err)

	assert.Equal(t, wantDetailed, readFile(t, input+"_detailed.csv"))
	assert.Equal(t, wantSummary, readFile(t, input+"_summary.csv"))
	assert.NoFileExists(t, input+"_hourly.json")
}

func TestAnalyzeParallelWorkers(t *testing.T) {
	setup(t)
	config.Config.MaxWorkers = 4
	input := writeLog(t, activityLog)

	_, err := execute(t, input)
	require.NoError(t, err)

	assert.Equal(t, wantDetailed, readFile(t, input+"_detailed.csv"))
	assert.Equal(t, wantSummary, readFile(t, input+"_summary.csv"))
}

func TestAnalyzeJSONAndChart(t *testing.T) {
	setup(t)
	input := writeLog(t, activityLog)
	outDir := filepath.Join(t.TempDir(), "reports")

	out, err := execute(t, input, "--output-format", "json", "--output-dir", outDir, "--chart", "--progress=false")
	require.NoError(t, err)

	assert.Equal(t, wantSummary, readFile(t, filepath.Join(outDir, "activity.tsv_summary.csv")))
	assert.Contains(t, readFile(t, filepath.Join(outDir, "activity.tsv_hourly.json")), `"total_hostBillableCores": 6`)
	assert.Contains(t, out, "(billable cores)")
}

func TestAnalyzeEmptyLog(t *testing.T) {
	setup(t)
	input := writeLog(t, "hostName\tstartTime\tendTime\thostBillableCores\n")

	_, err := execute(t, input)
	require.NoError(t, err)

	assert.Equal(t, "hour,day_of_month,hour_of_day,hostname,hostBillableCores\n", readFile(t, input+"_detailed.csv"))
	assert.Equal(t, "hour,day_of_month,hour_of_day,total_hosts,total_hostBillableCores\n", readFile(t, input+"_summary.csv"))
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    func(t *testing.T) []string
		wantErr string
	}{
		{
			name:    "missing input argument",
			args:    func(t *testing.T) []string { return nil },
			wantErr: "accepts 1 arg(s)",
		},
		{
			name: "missing file",
			args: func(t *testing.T) []string {
				return []string{filepath.Join(t.TempDir(), "missing.tsv")}
			},
			wantErr: "missing.tsv",
		},
		{
			name: "missing column",
			args: func(t *testing.T) []string {
				return []string{writeLog(t, "hostName\tstartTime\tendTime\nvm-a\t2024-03-01T00:00:00Z\t2024-03-01T01:00:00Z\n")}
			},
			wantErr: "hostBillableCores",
		},
		{
			name: "invalid output format",
			args: func(t *testing.T) []string {
				return []string{writeLog(t, activityLog), "--output-format", "xml"}
			},
			wantErr: "invalid output format",
		},
		{
			name: "s3 output without bucket",
			args: func(t *testing.T) []string {
				return []string{writeLog(t, activityLog), "--output", "s3"}
			},
			wantErr: "--bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t)
			_, err := execute(t, tt.args(t)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func stubDownloader(t *testing.T, downloader s3manageriface.DownloaderAPI, err error) *[]string {
	t.Helper()
	var buckets []string
	original := s3Downloader
	s3Downloader = func(ctx context.Context, profile, role, bucket string) (s3manageriface.DownloaderAPI, error) {
		buckets = append(buckets, bucket)
		return downloader, err
	}
	t.Cleanup(func() { s3Downloader = original })
	return &buckets
}

func stubUploader(t *testing.T, uploader s3manageriface.UploaderAPI, err error) *[]string {
	t.Helper()
	var regions []string
	original := s3Uploader
	s3Uploader = func(profile, region, role string) (s3manageriface.UploaderAPI, error) {
		regions = append(regions, region)
		return uploader, err
	}
	t.Cleanup(func() { s3Uploader = original })
	return &regions
}

func TestAnalyzeS3InputAndOutput(t *testing.T) {
	setup(t)
	downloader := &mockDownloader{}
	downloader.On("DownloadWithContext", "logs", "2024-03/activity.tsv").Return(activityLog, nil)
	uploader := &mockUploader{}
	uploader.On("UploadWithContext", "reports", "march/activity.tsv_detailed.csv").Return(nil)
	uploader.On("UploadWithContext", "reports", "march/activity.tsv_summary.csv").Return(nil)
	buckets := stubDownloader(t, downloader, nil)
	regions := stubUploader(t, uploader, nil)

	_, err := execute(t, "s3://logs/2024-03/activity.tsv",
		"--output", "s3", "--bucket", "reports", "--bucket-region", "us-west-2", "--prefix", "march", "--progress=false")
	require.NoError(t, err)

	downloader.AssertExpectations(t)
	uploader.AssertExpectations(t)
	assert.Equal(t, []string{"logs"}, *buckets)
	assert.Equal(t, []string{"us-west-2"}, *regions)
	assert.Equal(t, wantDetailed, uploader.bodies["march/activity.tsv_detailed.csv"])
	assert.Equal(t, wantSummary, uploader.bodies["march/activity.tsv_summary.csv"])
}

func TestAnalyzeS3InputToFilesystem(t *testing.T) {
	setup(t)
	downloader := &mockDownloader{}
	downloader.On("DownloadWithContext", "logs", "2024-03/activity.tsv").Return(activityLog, nil)
	buckets := stubDownloader(t, downloader, nil)
	regions := stubUploader(t, nil, errors.New("uploader must not be built"))
	outDir := t.TempDir()

	// no --bucket-region: the input bucket's region is resolved by the downloader
	_, err := execute(t, "s3://logs/2024-03/activity.tsv", "--output-dir", outDir, "--progress=false")
	require.NoError(t, err)

	assert.Equal(t, []string{"logs"}, *buckets)
	assert.Empty(t, *regions)
	assert.Equal(t, wantDetailed, readFile(t, filepath.Join(outDir, "activity.tsv_detailed.csv")))
	assert.Equal(t, wantSummary, readFile(t, filepath.Join(outDir, "activity.tsv_summary.csv")))
}

func TestAnalyzeS3DownloadFails(t *testing.T) {
	setup(t)
	downloader := &mockDownloader{}
	downloader.On("DownloadWithContext", "logs", "activity.tsv").Return("", errors.New("access denied"))
	stubDownloader(t, downloader, nil)

	_, err := execute(t, "s3://logs/activity.tsv", "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestAnalyzeS3ClientErrors(t *testing.T) {
	t.Run("downloader", func(t *testing.T) {
		setup(t)
		stubDownloader(t, nil, errors.New("failed to find region of bucket logs"))

		_, err := execute(t, "s3://logs/activity.tsv")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to find region of bucket logs")
	})

	t.Run("uploader", func(t *testing.T) {
		setup(t)
		stubUploader(t, nil, errors.New("no credentials"))

		_, err := execute(t, writeLog(t, activityLog), "--output", "s3", "--bucket", "reports", "--bucket-region", "us-west-2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no credentials")
	})
}

func TestAnalyzeProgressBar(t *testing.T) {
	setup(t)
	input := writeLog(t, activityLog)

	cmd := NewAnalyzeCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{input})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), "Aggregating")
	assert.Contains(t, errOut.String(), "2/2")
	assert.Empty(t, out.String())
}

func TestAnalyzeProgressLogsInJSONMode(t *testing.T) {
	setup(t)
	config.Config.LogFormat = "json"
	var logs bytes.Buffer
	logging.SetOutput(&logs)
	logging.Configure(logging.LogConfig{Level: logging.INFO, Format: logging.JSON})
	t.Cleanup(func() {
		logging.Configure(logging.LogConfig{Level: logging.INFO, Format: logging.Text})
	})
	input := writeLog(t, activityLog)

	cmd := NewAnalyzeCmd()
	var errOut bytes.Buffer
	cmd.SetOut(io.Discard)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{input})
	require.NoError(t, cmd.Execute())

	assert.Empty(t, errOut.String(), "no console bar with JSON logs")
	assert.Contains(t, logs.String(), `"level":"PROGRESS","message":"Aggregating hours"`)
	assert.Contains(t, logs.String(), `"percent":100`)
}
