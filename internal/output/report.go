package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"

	"github.com/bytedance/sonic"

	"coremeter/internal/activity"
	awsinternal "coremeter/internal/aws"
)

// Report file suffixes appended to the input path
const (
	DetailedSuffix = "_detailed.csv"
	SummarySuffix  = "_summary.csv"
	JSONSuffix     = "_hourly.json"
)

// Report kinds
const (
	KindDetailed = "detailed"
	KindSummary  = "summary"
	KindJSON     = "json"
)

var (
	detailedHeader = []string{"hour", "day_of_month", "hour_of_day", "hostname", "hostBillableCores"}
	summaryHeader  = []string{"hour", "day_of_month", "hour_of_day", "total_hosts", "total_hostBillableCores"}
)

// Report is one serialized artifact ready to be written
type Report struct {
	Kind string
	Name string
	Rows int
	Data []byte
}

// ReportName derives the artifact name from the input location. Local inputs
// keep their full path; s3:// inputs use the object's base name.
func ReportName(input, suffix string) string {
	if loc, err := awsinternal.ParseS3URI(input); err == nil {
		return path.Base(loc.Key) + suffix
	}
	return input + suffix
}

// BuildReports serializes results into the detailed and summary CSV reports,
// plus the JSON report when format is "json".
func BuildReports(input string, results []activity.HourResult, format string) ([]Report, error) {
	detailed, detailedRows, err := EncodeDetailed(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detailed report: %w", err)
	}
	summary, err := EncodeSummary(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary report: %w", err)
	}

	reports := []Report{
		{Kind: KindDetailed, Name: ReportName(input, DetailedSuffix), Rows: detailedRows, Data: detailed},
		{Kind: KindSummary, Name: ReportName(input, SummarySuffix), Rows: len(results), Data: summary},
	}

	if format == "json" {
		data, err := EncodeJSON(results)
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON report: %w", err)
		}
		reports = append(reports, Report{Kind: KindJSON, Name: ReportName(input, JSONSuffix), Rows: len(results), Data: data})
	}
	return reports, nil
}

// EncodeDetailed writes one row per (hour, hostname) pair and returns the
// number of data rows.
func EncodeDetailed(results []activity.HourResult) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(detailedHeader); err != nil {
		return nil, 0, err
	}

	rows := 0
	for _, r := range results {
		for _, h := range r.Hostnames {
			if err := w.Write([]string{
				r.Hour,
				strconv.Itoa(r.DayOfMonth),
				strconv.Itoa(r.HourOfDay),
				h.Hostname,
				strconv.FormatInt(h.BillableCores, 10),
			}); err != nil {
				return nil, 0, err
			}
			rows++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), rows, nil
}

// EncodeSummary writes one row per hour
func EncodeSummary(results []activity.HourResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(summaryHeader); err != nil {
		return nil, err
	}
	for _, r := range results {
		if err := w.Write([]string{
			r.Hour,
			strconv.Itoa(r.DayOfMonth),
			strconv.Itoa(r.HourOfDay),
			strconv.Itoa(r.TotalHostnames),
			strconv.FormatInt(r.TotalBillableCores, 10),
		}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJSON renders the full hourly results, host breakdown included
func EncodeJSON(results []activity.HourResult) ([]byte, error) {
	if results == nil {
		results = []activity.HourResult{}
	}
	return sonic.MarshalIndent(results, "", "  ")
}
