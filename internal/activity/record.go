package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// HourLabelFormat is the layout used for the hour column of the reports.
// Minutes and seconds are always rendered as zero, even when the analysis
// window does not start on a clock hour.
const HourLabelFormat = "2006-01-02 15:00:00 UTC"

// ActivityRecord is one row of the VM activity log
type ActivityRecord struct {
	HostName          string
	StartTime         time.Time
	EndTime           time.Time
	HostBillableCores int64
}

// HostCores pairs a hostname with the billable cores it accumulated in one hour
type HostCores struct {
	Hostname      string `json:"hostname"`
	BillableCores int64  `json:"hostBillableCores"`
}

// HourResult is the aggregated activity for a single hour bucket
type HourResult struct {
	Hour               string      `json:"hour"`
	DayOfMonth         int         `json:"day_of_month"`
	HourOfDay          int         `json:"hour_of_day"`
	TotalHostnames     int         `json:"total_hostnames"`
	TotalBillableCores int64       `json:"total_hostBillableCores"`
	Hostnames          []HostCores `json:"hostnames"`
}

// ParseCores converts a core count into an integer, truncating any fractional
// part toward zero. Values such as "4", "4.0", "4.9" and "4e0" are accepted.
func ParseCores(s string) (int64, error) {
	s = strings.TrimSpace(s)

	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return 0, fmt.Errorf("invalid core count %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return 0, fmt.Errorf("invalid core count %q: not a finite number", s)
	}

	var truncated apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundDown
	if _, err := ctx.RoundToIntegralValue(&truncated, &d); err != nil {
		return 0, fmt.Errorf("invalid core count %q: %w", s, err)
	}
	if truncated.Negative && !truncated.IsZero() {
		return 0, fmt.Errorf("invalid core count %q: must not be negative", s)
	}

	n, err := truncated.Int64()
	if err != nil {
		return 0, fmt.Errorf("invalid core count %q: %w", s, err)
	}
	return n, nil
}
