// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capacity metrics
	targetCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterman_target_capacity",
		Help: "Target capacity of the pool (last autoscaling run)",
	}, []string{"cluster", "pool"})

	fulfilledCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterman_fulfilled_capacity",
		Help: "Fulfilled weighted capacity of the pool (last reload)",
	}, []string{"cluster", "pool"})

	nonOrphanCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterman_non_orphan_fulfilled_capacity",
		Help: "Fulfilled capacity visible to the scheduler (last reload)",
	}, []string{"cluster", "pool"})

	resourceAllocation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterman_resource_allocation_ratio",
		Help: "Allocated over total per resource (last reload)",
	}, []string{"cluster", "pool", "resource"})

	resourceGroupsBroken = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterman_resource_groups_broken",
		Help: "Resource groups that failed their last reload",
	}, []string{"cluster", "pool"})

	// Autoscaler metrics
	autoscaleRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clusterman_autoscale_runs_total",
		Help: "Autoscaling runs by outcome",
	}, []string{"cluster", "pool", "outcome"}) // outcome=scaled|hold|error

	signalResourceRequest = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterman_signal_resource_request",
		Help: "Resources requested by the active signal (last run)",
	}, []string{"cluster", "pool", "resource"})

	pendingPodsBoosted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterman_pending_pods_boosted",
		Help: "Unschedulable pods counted by the pending pods signal",
	}, []string{"cluster", "pool"})

	autoscaleDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clusterman_autoscale_duration_seconds",
		Help:    "Time spent per autoscaling run",
		Buckets: prometheus.DefBuckets,
	}, []string{"cluster", "pool"})

	// Termination metrics
	instancesTerminatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clusterman_instances_terminated_total",
		Help: "Instances terminated while pruning excess capacity",
	}, []string{"cluster", "pool"})

	// Price collector metrics
	spotPricesCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clusterman_spot_prices_collected_total",
		Help: "Spot price observations written to the store",
	})

	spotPriceCollectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clusterman_spot_price_collection_errors_total",
		Help: "Spot price collection failures",
	})
)

func RecordPoolCapacity(cluster, pool string, target, fulfilled, nonOrphan float64) {
	targetCapacity.WithLabelValues(cluster, pool).Set(target)
	fulfilledCapacity.WithLabelValues(cluster, pool).Set(fulfilled)
	nonOrphanCapacity.WithLabelValues(cluster, pool).Set(nonOrphan)
}

func RecordResourceAllocation(cluster, pool, resource string, ratio float64) {
	resourceAllocation.WithLabelValues(cluster, pool, resource).Set(ratio)
}

func RecordBrokenGroups(cluster, pool string, n int) {
	resourceGroupsBroken.WithLabelValues(cluster, pool).Set(float64(n))
}

func IncAutoscaleRun(cluster, pool, outcome string) {
	autoscaleRunsTotal.WithLabelValues(cluster, pool, outcome).Inc()
}

func RecordSignalRequest(cluster, pool, resource string, value float64) {
	signalResourceRequest.WithLabelValues(cluster, pool, resource).Set(value)
}

func RecordPendingPods(cluster, pool string, n int) {
	pendingPodsBoosted.WithLabelValues(cluster, pool).Set(float64(n))
}

func ObserveAutoscaleDuration(cluster, pool string, seconds float64) {
	autoscaleDurationSeconds.WithLabelValues(cluster, pool).Observe(seconds)
}

func AddInstancesTerminated(cluster, pool string, n int) {
	instancesTerminatedTotal.WithLabelValues(cluster, pool).Add(float64(n))
}

func AddSpotPricesCollected(n int) { spotPricesCollectedTotal.Add(float64(n)) }
func IncSpotPriceCollectionError() { spotPriceCollectionErrors.Inc() }
