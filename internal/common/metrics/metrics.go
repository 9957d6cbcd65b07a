// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	StageAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_stage_advance_total",
			Help: "Stage advance attempts by outcome",
		},
		[]string{"outcome"},
	)

	RequirementCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_requirement_completions_total",
			Help: "Requirements newly marked complete",
		},
		[]string{"requirement_id"},
	)

	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_access_decisions_total",
			Help: "Access guard decisions by action and result",
		},
		[]string{"action", "result"},
	)

	InspectorMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_inspector_matches_total",
			Help: "Inspector match lookups by result",
		},
		[]string{"result"},
	)

	InspectionBookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_inspection_bookings_total",
			Help: "Inspection schedule transitions by resulting status",
		},
		[]string{"status"},
	)

	BookingRematches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "permit_inspection_rematches_total",
			Help: "Bookings that lost a slot race and were re-matched",
		},
	)
)
