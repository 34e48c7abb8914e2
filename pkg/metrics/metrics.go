// Package metrics holds the Prometheus collectors of the ingestion engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_persisted_total",
		Help: "Number of chat records committed by the batch writer",
	}, []string{"platform"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_dropped_total",
		Help: "Number of chat events that produced no record",
	}, []string{"platform", "reason"})

	Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_batch_flushes_total",
		Help: "Number of batch flushes by outcome",
	}, []string{"outcome"})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_batch_flush_duration_seconds",
		Help:    "Batch flush duration seconds, including lock retries",
		Buckets: prometheus.DefBuckets,
	})

	LockRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_storage_lock_retries_total",
		Help: "Number of storage operations retried because the store was locked",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_workers",
		Help: "Number of stream workers currently registered",
	})

	WorkerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_worker_exits_total",
		Help: "Number of worker exits by final state",
	}, []string{"state"})
)
