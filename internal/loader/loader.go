package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"coremeter/internal/activity"
)

// Required column names
const (
	ColumnHostName  = "hostName"
	ColumnStartTime = "startTime"
	ColumnEndTime   = "endTime"
	ColumnCores     = "hostBillableCores"
)

var requiredColumns = []string{ColumnHostName, ColumnStartTime, ColumnEndTime, ColumnCores}

// Strategy describes one way of splitting the input into fields
type Strategy struct {
	Name             string
	Delimiter        rune
	TrimLeadingSpace bool
}

// DefaultStrategies are tried in order; the first that yields a well formed
// table with every required column wins.
var DefaultStrategies = []Strategy{
	{Name: "tab", Delimiter: '\t'},
	{Name: "space", Delimiter: ' ', TrimLeadingSpace: true},
	{Name: "comma", Delimiter: ','},
}

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Result holds the parsed records and the strategy that produced them
type Result struct {
	Records  []activity.ActivityRecord
	Strategy string
}

type table struct {
	header []string
	rows   [][]string
	lines  []int
}

// LoadFile reads and parses the activity log at path
func LoadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Attempts: []error{err}}
	}
	defer f.Close()

	return Load(f, path)
}

// Load parses an activity log read from r. name is only used in errors.
func Load(r io.Reader, name string) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Path: name, Attempts: []error{err}}
	}
	return Parse(data, name, DefaultStrategies)
}

// Parse tries each strategy against data and converts the first table that
// carries every required column. Timestamp and core count failures in that
// table are fatal and do not fall through to later strategies.
func Parse(data []byte, name string, strategies []Strategy) (*Result, error) {
	var attempts []error
	for _, s := range strategies {
		t, err := readTable(data, s)
		if err != nil {
			attempts = append(attempts, fmt.Errorf("%s separated: %w", s.Name, err))
			continue
		}

		records, err := t.records()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return &Result{Records: records, Strategy: s.Name}, nil
	}

	return nil, &LoadError{Path: name, Attempts: attempts}
}

// utf8BOM prefixes some spreadsheet exports
var utf8BOM = []byte("\ufeff")

func readTable(data []byte, s Strategy) (*table, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	reader.Comma = s.Delimiter
	reader.Comment = '#'
	reader.TrimLeadingSpace = s.TrimLeadingSpace
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no header row")
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &table{header: header}
	for _, col := range requiredColumns {
		if t.column(col) < 0 {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func (t *table) column(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	return -1
}

func (t *table) records() ([]activity.ActivityRecord, error) {
	var (
		hostIdx  = t.column(ColumnHostName)
		startIdx = t.column(ColumnStartTime)
		endIdx   = t.column(ColumnEndTime)
		coresIdx = t.column(ColumnCores)
	)

	records := make([]activity.ActivityRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := t.lines[i]

		start, err := ParseTimestamp(row[startIdx])
		if err != nil {
			return nil, &TimestampError{Line: line, Column: ColumnStartTime, Value: row[startIdx]}
		}
		end, err := ParseTimestamp(row[endIdx])
		if err != nil {
			return nil, &TimestampError{Line: line, Column: ColumnEndTime, Value: row[endIdx]}
		}
		cores, err := activity.ParseCores(row[coresIdx])
		if err != nil {
			return nil, &CoresError{Line: line, Value: row[coresIdx], Err: err}
		}

		records = append(records, activity.ActivityRecord{
			HostName:          strings.TrimSpace(row[hostIdx]),
			StartTime:         start,
			EndTime:           end,
			HostBillableCores: cores,
		})
	}
	return records, nil
}

// ParseTimestamp parses value with the supported layouts and returns it in UTC
func ParseTimestamp(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	v = strings.TrimSpace(strings.TrimSuffix(v, "UTC"))

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
