package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	PROGRESS // Special level that always displays
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case PROGRESS:
		return "PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// Format represents the log output format
type Format int

const (
	Text Format = iota
	JSON
)

// Logger handles structured logging
type Logger struct {
	out      io.Writer
	level    Level
	format   Format
	logMutex sync.Mutex
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level  Level
	Format Format
}

var (
	defaultLogger = &Logger{
		out:    os.Stdout,
		level:  INFO,
		format: Text,
	}

	// Color definitions
	debugColor    = color.New(color.FgCyan)
	infoColor     = color.New(color.FgGreen)
	warnColor     = color.New(color.FgYellow)
	errorColor    = color.New(color.FgRed)
	progressColor = color.New(color.FgBlue, color.Bold)
)

// Configure sets up the default logger
func Configure(config LogConfig) {
	defaultLogger.level = config.Level
	defaultLogger.format = config.Format
}

// SetOutput redirects the default logger
func SetOutput(w io.Writer) {
	defaultLogger.out = w
}

// ParseLevel maps a level name to a Level, defaulting to INFO
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// ParseFormat maps a format name to a Format, defaulting to Text
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return JSON
	}
	return Text
}

type logEntry struct {
	Timestamp string      `json:"timestamp"`
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

func (l *Logger) log(level Level, msg string, data interface{}) {
	// Always show PROGRESS level, otherwise respect level setting
	if level != PROGRESS && level < l.level {
		return
	}

	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	timestamp := time.Now().Format("2006/01/02 15:04:05")

	if l.format == JSON {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Message:   msg,
			Data:      data,
		}
		if err := json.NewEncoder(l.out).Encode(entry); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode log entry: %v\n", err)
		}
		return
	}

	// Text format
	var levelColor *color.Color
	switch level {
	case DEBUG:
		levelColor = debugColor
	case INFO:
		levelColor = infoColor
	case WARN:
		levelColor = warnColor
	case ERROR:
		levelColor = errorColor
	case PROGRESS:
		levelColor = progressColor
	default:
		levelColor = infoColor
	}

	levelStr := levelColor.Sprintf("%-5s", level.String())
	fmt.Fprintf(l.out, "%s %s: %s", timestamp, levelStr, msg)
	if data != nil {
		fmt.Fprintf(l.out, " %+v", data)
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string, data ...interface{}) {
	l.log(DEBUG, msg, firstOrNil(data))
}

func (l *Logger) Info(msg string, data ...interface{}) {
	l.log(INFO, msg, firstOrNil(data))
}

func (l *Logger) Warn(msg string, data ...interface{}) {
	l.log(WARN, msg, firstOrNil(data))
}

func (l *Logger) Error(msg string, err error, data ...interface{}) {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	l.log(ERROR, msg, firstOrNil(data))
}

func (l *Logger) Progress(msg string, data interface{}) {
	l.log(PROGRESS, msg, data)
}

// firstOrNil returns the first element of data if present, nil otherwise
func firstOrNil(data []interface{}) interface{} {
	if len(data) > 0 {
		return data[0]
	}
	return nil
}

// AnalysisStart logs the start of an analysis run
func (l *Logger) AnalysisStart(input string, records int, strategy string) {
	l.Info("Loaded activity records", map[string]interface{}{
		"input":     input,
		"records":   records,
		"delimiter": strategy,
	})
}

// WindowComputed logs the analysis window and the number of hours it spans
func (l *Logger) WindowComputed(start, end time.Time, hours int) {
	l.Info("Analysis window computed", map[string]interface{}{
		"month_start": start.Format(time.RFC3339),
		"month_end":   end.Format(time.RFC3339),
		"hours":       hours,
	})
}

// HourAggregated logs a single hour result at DEBUG level
func (l *Logger) HourAggregated(hour string, hosts int, cores int64) {
	if l.level > DEBUG {
		return
	}
	l.Debug("Hour aggregated", map[string]interface{}{
		"hour":        hour,
		"total_hosts": hosts,
		"total_cores": cores,
	})
}

// ReportWritten logs where a report artifact was written
func (l *Logger) ReportWritten(kind, location string, rows int) {
	l.Info("Report written", map[string]interface{}{
		"report":   kind,
		"location": location,
		"rows":     rows,
	})
}

// AnalysisComplete logs the completion of an analysis run
func (l *Logger) AnalysisComplete(hours int, peakHosts int, peakCores int64, elapsed time.Duration) {
	l.Info("Analysis complete", map[string]interface{}{
		"hours":       hours,
		"peak_hosts":  peakHosts,
		"peak_cores":  peakCores,
		"duration_ms": elapsed.Milliseconds(),
	})
}

// Default logger methods
func Debug(msg string, data ...interface{}) {
	defaultLogger.Debug(msg, data...)
}

func Info(msg string, data ...interface{}) {
	defaultLogger.Info(msg, data...)
}

func Warn(msg string, data ...interface{}) {
	defaultLogger.Warn(msg, data...)
}

func Error(msg string, err error, data ...interface{}) {
	defaultLogger.Error(msg, err, data...)
}

func Progress(msg string, data ...interface{}) {
	defaultLogger.Progress(msg, firstOrNil(data))
}

func AnalysisStart(input string, records int, strategy string) {
	defaultLogger.AnalysisStart(input, records, strategy)
}

func WindowComputed(start, end time.Time, hours int) {
	defaultLogger.WindowComputed(start, end, hours)
}

func HourAggregated(hour string, hosts int, cores int64) {
	defaultLogger.HourAggregated(hour, hosts, cores)
}

func ReportWritten(kind, location string, rows int) {
	defaultLogger.ReportWritten(kind, location, rows)
}

func AnalysisComplete(hours int, peakHosts int, peakCores int64, elapsed time.Duration) {
	defaultLogger.AnalysisComplete(hours, peakHosts, peakCores, elapsed)
}
