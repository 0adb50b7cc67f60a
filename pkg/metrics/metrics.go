// Package metrics provides Prometheus metrics for the fieldgate pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay bounded: processor IDs and output types only, never record content.

// Drop reasons for BufferDroppedTotal.
const (
	DropBufferFull = "buffer_full"
	DropOversize   = "oversize"
)

var (
	// IngestedTotal counts records accepted into the buffer, by transport.
	IngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_ingested_total",
		Help: "Total number of records pushed into the buffer, by transport.",
	}, []string{"transport"})

	// BufferDroppedTotal counts records dropped before entering the buffer.
	BufferDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_buffer_dropped_total",
		Help: "Total number of records dropped at ingest, by transport and reason (buffer_full, oversize).",
	}, []string{"transport", "reason"})

	// ProcessedTotal counts records that went through the processor chain.
	ProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_processed_total",
		Help: "Total number of records run through the processor chain.",
	})

	// FilteredTotal counts records dropped by a processor.
	FilteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_filtered_total",
		Help: "Total number of records dropped by processors.",
	})

	// BypassedTotal counts records forwarded unprocessed in fail-open mode.
	BypassedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_bypassed_total",
		Help: "Total number of records forwarded without processing because the buffer was above the fail-open threshold.",
	})

	// ProcessErrorsTotal counts processor chain errors.
	ProcessErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_process_errors_total",
		Help: "Total number of records discarded because a processor returned an error.",
	})

	// OutputErrorsTotal counts failed batch writes.
	OutputErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_output_errors_total",
		Help: "Total number of failed batch writes.",
	})

	// FieldsAttachedTotal counts static fields written into records, by processor.
	FieldsAttachedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_static_fields_attached_total",
		Help: "Total number of static fields attached to records, by processor.",
	}, []string{"processor"})

	// LookupFailuresTotal counts field values that fell back to their raw text.
	LookupFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_lookup_failures_total",
		Help: "Total number of field value lookups that failed and used the raw value, by processor.",
	}, []string{"processor"})

	// ConfigReloadsTotal counts control plane and file reloads, by source and result.
	ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_config_reloads_total",
		Help: "Total number of configuration reloads, by source and result.",
	}, []string{"source", "result"})

	// BufferUsage tracks current buffer occupancy.
	BufferUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldgate_buffer_usage",
		Help: "Current number of records waiting in the buffer.",
	})
)
