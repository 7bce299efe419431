package calsync

import (
	"fmt"
	"time"

	"meal-planner/internal/metrics"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerInitial   Trigger = "initial"
	TriggerManual    Trigger = "manual"
)

// Background reports whether the cycle ran without a user waiting on it.
func (t Trigger) Background() bool {
	return t != TriggerManual
}

// Stage is the step of a cycle where an item failed.
type Stage string

const (
	StageImport    Stage = "import"
	StageCreate    Stage = "create_meal"
	StageUnmatched Stage = "store_unmatched"
	StageExport    Stage = "export"
	StageLink      Stage = "link"
)

// ItemFailure is a failure confined to one event or meal.
type ItemFailure struct {
	ExternalEventID string
	MealID          int64
	Stage           Stage
	Err             error
}

func (f ItemFailure) Error() string {
	switch {
	case f.ExternalEventID != "":
		return fmt.Sprintf("%s %s: %v", f.Stage, f.ExternalEventID, f.Err)
	case f.MealID != 0:
		return fmt.Sprintf("%s meal %d: %v", f.Stage, f.MealID, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Stage, f.Err)
}

func (f ItemFailure) Unwrap() error {
	return f.Err
}

// CycleReport is the rollup of one sync cycle.
type CycleReport struct {
	CycleID     string
	Trigger     Trigger
	StartedAt   time.Time
	Duration    time.Duration
	WindowStart string
	WindowEnd   string

	Created     int
	Skipped     int
	Unmatched   int
	ParseErrors int
	Failed      int
	Exported    int

	Failures []ItemFailure
	// Fatal holds the error that aborted the cycle, if any.
	Fatal string
}

func (r *CycleReport) addFailure(f ItemFailure) {
	r.Failures = append(r.Failures, f)
	r.Failed = len(r.Failures)
}

func (r *CycleReport) addFailures(fs []ItemFailure) {
	for _, f := range fs {
		r.addFailure(f)
	}
}

// Summary is the one-line rollup shown to users. It never includes error text.
func (r CycleReport) Summary() string {
	return fmt.Sprintf("created %d, skipped %d, unmatched %d, failed %d, exported %d",
		r.Created, r.Skipped, r.Unmatched, r.Failed+r.ParseErrors, r.Exported)
}

// Metric converts the report for the metrics store.
func (r CycleReport) Metric() metrics.CycleMetric {
	return metrics.CycleMetric{
		ID:          r.CycleID,
		Trigger:     string(r.Trigger),
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
		Created:     r.Created,
		Skipped:     r.Skipped,
		Unmatched:   r.Unmatched,
		ParseErrors: r.ParseErrors,
		Failed:      r.Failed,
		Exported:    r.Exported,
		Fatal:       r.Fatal,
	}
}
