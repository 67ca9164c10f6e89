package activity

import (
	"context"
	"fmt"
	"sync"

	"coremeter/internal/logging"
	"coremeter/internal/worker"
)

// ActiveRecordsFor returns the records overlapping bucket. Overlap is open on
// both sides: a record ending exactly at bucket.Start or starting exactly at
// bucket.End is not active. When several records of one host overlap the
// bucket only the first one in input order is kept.
func ActiveRecordsFor(bucket HourBucket, records []ActivityRecord) []ActivityRecord {
	var active []ActivityRecord
	seen := make(map[string]struct{})

	for _, r := range records {
		if !r.StartTime.Before(bucket.End) || !r.EndTime.After(bucket.Start) {
			continue
		}
		if _, dup := seen[r.HostName]; dup {
			continue
		}
		seen[r.HostName] = struct{}{}
		active = append(active, r)
	}
	return active
}

// AggregateHour sums the billable cores of active per hostname, keeping hosts
// in first-seen order.
func AggregateHour(bucket HourBucket, active []ActivityRecord) HourResult {
	start := bucket.Start.UTC()
	result := HourResult{
		Hour:       start.Format(HourLabelFormat),
		DayOfMonth: start.Day(),
		HourOfDay:  start.Hour(),
		Hostnames:  []HostCores{},
	}

	index := make(map[string]int)
	for _, r := range active {
		i, ok := index[r.HostName]
		if !ok {
			i = len(result.Hostnames)
			index[r.HostName] = i
			result.Hostnames = append(result.Hostnames, HostCores{Hostname: r.HostName})
		}
		result.Hostnames[i].BillableCores += r.HostBillableCores
	}

	result.TotalHostnames = len(result.Hostnames)
	for _, h := range result.Hostnames {
		result.TotalBillableCores += h.BillableCores
	}
	return result
}

// Analyze produces one result per hour of the analysis window, in
// chronological order. No records means no hours.
func Analyze(records []ActivityRecord) []HourResult {
	hours := EnumerateHours(ComputeWindow(records))
	results := make([]HourResult, 0, hours.Len())
	for _, bucket := range hours.All() {
		results = append(results, AggregateHour(bucket, ActiveRecordsFor(bucket, records)))
	}
	return results
}

// Aggregator runs the hourly analysis, optionally spreading hour buckets
// across a worker pool.
type Aggregator struct {
	// Workers is the number of concurrent workers. Values below 2 run inline.
	Workers int

	// Progress, when set, is called after each hour with the number of
	// completed hours and the total. Calls are serialized.
	Progress func(done, total int)

	metrics worker.PoolMetrics
}

// Metrics returns the pool metrics of the last parallel run. Inline runs
// leave them zero.
func (a *Aggregator) Metrics() worker.PoolMetrics {
	return a.metrics
}

// Analyze returns the same results as the package level Analyze.
func (a *Aggregator) Analyze(ctx context.Context, records []ActivityRecord) ([]HourResult, error) {
	hours := EnumerateHours(ComputeWindow(records))
	results := make([]HourResult, hours.Len())
	total := hours.Len()
	a.metrics = worker.PoolMetrics{}

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		if a.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		a.Progress(done, total)
	}

	if a.Workers < 2 || total < 2 {
		for i, bucket := range hours.All() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = AggregateHour(bucket, ActiveRecordsFor(bucket, records))
			report()
		}
		return results, nil
	}

	pool, err := worker.NewPool(a.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	pool.Start()
	defer pool.Stop()

	tasks := make([]worker.Task, 0, total)
	for i, bucket := range hours.All() {
		tasks = append(tasks, func(ctx context.Context) error {
			results[i] = AggregateHour(bucket, ActiveRecordsFor(bucket, records))
			report()
			return nil
		})
	}

	err = pool.ExecuteTasks(ctx, tasks)
	a.metrics = pool.GetMetrics()
	logging.Debug("Worker pool metrics", map[string]interface{}{
		"workers":         a.Workers,
		"peak_workers":    a.metrics.PeakWorkers,
		"total_tasks":     a.metrics.TotalTasks,
		"completed_tasks": a.metrics.CompletedTasks,
		"failed_tasks":    a.metrics.FailedTasks,
		"avg_task_ms":     a.metrics.AverageExecutionMs,
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
