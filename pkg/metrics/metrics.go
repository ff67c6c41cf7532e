package metrics

import (
  "github.com/prometheus/client_golang/prometheus"
)

var (
  // Fetch metrics
  FetchCounter = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_fetch_samples_total",
      Help: "Total market samples fetched and recorded",
    })
  FetchErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_fetch_errors_total",
      Help: "Market sample fetch errors",
    })
  FetchLatency = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "pipeline_fetch_latency_seconds",
      Help:    "Time to fetch one market sample",
      Buckets: prometheus.DefBuckets,
    })

  // Push metrics
  PushCounter = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_push_records_total",
      Help: "Total durable records upserted into the graph store",
    })
  PushErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_push_errors_total",
      Help: "Durable records that failed to push",
    })
  PushPending = prometheus.NewGauge(
    prometheus.GaugeOpts{
      Name: "pipeline_push_pending_records",
      Help: "Records not yet present in the ledger at the start of the last push",
    })
  PushLatency = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "pipeline_push_latency_seconds",
      Help:    "Time to push one durable record",
      Buckets: prometheus.DefBuckets,
    })

  // Simulate metrics
  SimulateCounter = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_simulate_links_total",
      Help: "Total transactions linked to wallets",
    })
  SimulateErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_simulate_errors_total",
      Help: "Wallet link errors",
    })
  SimulateLatency = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "pipeline_simulate_latency_seconds",
      Help:    "Time to link one transaction",
      Buckets: prometheus.DefBuckets,
    })

  // Sweep metrics
  SweepDeleted = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_sweep_deleted_total",
      Help: "Total durable records deleted by retention",
    })
  SweepPruned = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_sweep_pruned_total",
      Help: "Total ledger entries pruned by reconciliation",
    })
  SweepErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_sweep_errors_total",
      Help: "Retention sweep errors",
    })

  // Scheduler metrics
  TaskRuns = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "pipeline_task_runs_total",
      Help: "Scheduled task executions",
    },
    []string{"task", "status"},
  )
  TaskDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "pipeline_task_duration_seconds",
      Help:    "Duration of one scheduled unit of work",
      Buckets: prometheus.DefBuckets,
    },
    []string{"task"},
  )

  // Graph store metrics
  GraphOperationDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "graphstore_operation_duration_seconds",
      Help:    "Graph store operation duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"operation", "status"},
  )
  GraphErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "graphstore_errors_total",
      Help: "Total graph store errors",
    },
    []string{"operation"},
  )

  // Redis metrics
  RedisOperationDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "redis_operation_duration_seconds",
      Help:    "Redis operation duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"operation", "status"},
  )
  RedisErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "redis_errors_total",
      Help: "Total Redis errors",
    },
    []string{"operation"},
  )
)

func init() {
  // MustRegister panics if registration fails (e.g. duplicate)
  prometheus.MustRegister(
    FetchCounter, FetchErrors, FetchLatency,
    PushCounter, PushErrors, PushPending, PushLatency,
    SimulateCounter, SimulateErrors, SimulateLatency,
    SweepDeleted, SweepPruned, SweepErrors,
    TaskRuns, TaskDuration,
    GraphOperationDuration, GraphErrors,
    RedisOperationDuration, RedisErrors,
  )
}

// Status returns "success" or "error" for label values.
func Status(err error) string {
  if err != nil {
    return "error"
  }
  return "success"
}
