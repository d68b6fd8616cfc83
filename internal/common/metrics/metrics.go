// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_publisher_runs_total",
			Help: "Total number of publisher invocations by mode and status code",
		},
		[]string{"mode", "status_code"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "template_publisher_run_duration_seconds",
			Help: "Duration of publisher invocations in seconds",
		},
		[]string{"mode"},
	)

	RunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "template_publisher_runs_active",
			Help: "Number of publisher invocations in flight",
		},
		[]string{"mode"},
	)

	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_publisher_records_total",
			Help: "Template records handled by outcome",
		},
		[]string{"mode", "outcome"},
	)

	CategoriesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "template_publisher_categories_created_total",
			Help: "Layer categories created",
		},
	)

	FieldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "template_publisher_fields_created_total",
			Help: "Layer fields created",
		},
	)

	CategoryChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_publisher_category_checks_total",
			Help: "Validation-mode category outcomes",
		},
		[]string{"outcome"},
	)

	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_publisher_remote_calls_total",
			Help: "Calls to Airtable and Layer by operation and outcome",
		},
		[]string{"service", "operation", "outcome"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "template_publisher_remote_call_duration_seconds",
			Help: "Latency of calls to Airtable and Layer",
		},
		[]string{"service", "operation"},
	)
)
