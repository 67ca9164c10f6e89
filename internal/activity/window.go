package activity

import (
	"iter"
	"time"
)

// AnalysisWindow spans from the earliest start to the latest end of a record set
type AnalysisWindow struct {
	MonthStart time.Time
	MonthEnd   time.Time
}

// Empty reports whether the window yields no hours
func (w AnalysisWindow) Empty() bool {
	return !w.MonthStart.Before(w.MonthEnd)
}

// HourBucket is the half-open interval [Start, End) of one analysed hour
type HourBucket struct {
	Start time.Time
	End   time.Time
}

// ComputeWindow derives the analysis window from records. An empty record set
// yields the zero window, which enumerates no hours.
func ComputeWindow(records []ActivityRecord) AnalysisWindow {
	if len(records) == 0 {
		return AnalysisWindow{}
	}

	window := AnalysisWindow{
		MonthStart: records[0].StartTime,
		MonthEnd:   records[0].EndTime,
	}
	for _, r := range records[1:] {
		if r.StartTime.Before(window.MonthStart) {
			window.MonthStart = r.StartTime
		}
		if r.EndTime.After(window.MonthEnd) {
			window.MonthEnd = r.EndTime
		}
	}
	return window
}

// HourSequence is a restartable, finite sequence of hour buckets
type HourSequence struct {
	start time.Time
	count int
}

// EnumerateHours steps from MonthStart in one hour increments for as long as
// the bucket start lies strictly before MonthEnd. The last bucket may extend
// past MonthEnd; a bucket starting exactly at MonthEnd is never produced.
func EnumerateHours(w AnalysisWindow) HourSequence {
	if w.Empty() {
		return HourSequence{}
	}

	span := w.MonthEnd.Sub(w.MonthStart)
	count := int(span / time.Hour)
	if span%time.Hour != 0 {
		count++
	}
	return HourSequence{start: w.MonthStart, count: count}
}

// Len returns the number of buckets in the sequence
func (s HourSequence) Len() int {
	return s.count
}

// At returns the i-th bucket
func (s HourSequence) At(i int) HourBucket {
	start := s.start.Add(time.Duration(i) * time.Hour)
	return HourBucket{Start: start, End: start.Add(time.Hour)}
}

// All iterates the buckets in chronological order
func (s HourSequence) All() iter.Seq2[int, HourBucket] {
	return func(yield func(int, HourBucket) bool) {
		for i := 0; i < s.count; i++ {
			if !yield(i, s.At(i)) {
				return
			}
		}
	}
}
