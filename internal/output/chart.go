package output

import (
	"github.com/guptarohit/asciigraph"

	"coremeter/internal/activity"
)

// RenderCoresChart plots total billable cores per hour. Returns an empty
// string when there is nothing to plot.
func RenderCoresChart(results []activity.HourResult, width, height int) string {
	if len(results) == 0 {
		return ""
	}
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	data := make([]float64, len(results))
	for i, r := range results {
		data[i] = float64(r.TotalBillableCores)
	}

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(0),
		asciigraph.Caption(results[0].Hour+" .. "+results[len(results)-1].Hour+" (billable cores)"),
	)
}
