package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatementsTotal counts warehouse statement executions by outcome
	StatementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixels_warehouse_statements_total",
		Help: "Warehouse SQL statement executions by outcome",
	}, []string{"outcome"})

	// ChunksFollowed counts continuation pages fetched beyond the first
	ChunksFollowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixels_warehouse_chunks_followed_total",
		Help: "Continuation pages fetched while assembling results",
	})

	// RowsReturned counts rows handed back by the executor
	RowsReturned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixels_warehouse_rows_returned_total",
		Help: "Rows returned by warehouse statements",
	})

	// OperationsTotal counts viewer-facing data source operations
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixels_datasource_operations_total",
		Help: "Data source operations by kind and outcome",
	}, []string{"operation", "outcome"})

	// OperationDuration observes viewer-facing operation latency
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pixels_datasource_operation_duration_seconds",
		Help:    "Data source operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// WriteBacksTotal counts write-back pipeline runs by outcome
	WriteBacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixels_writebacks_total",
		Help: "Write-back pipeline runs by outcome",
	}, []string{"outcome"})

	// UploadBytes counts bytes uploaded to the storage filesystem
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixels_upload_bytes_total",
		Help: "Bytes uploaded to the storage filesystem",
	})
)
