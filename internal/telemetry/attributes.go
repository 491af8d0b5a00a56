// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// Pool attributes
	ClusterKey   = attribute.Key("pool.cluster")
	PoolKey      = attribute.Key("pool.name")
	SchedulerKey = attribute.Key("pool.scheduler")

	// Scaling attributes
	ScaleRequestedKey = attribute.Key("scale.requested_capacity")
	ScaleAppliedKey   = attribute.Key("scale.applied_capacity")
	ScaleDryRunKey    = attribute.Key("scale.dry_run")
	ScaleGroupsKey    = attribute.Key("scale.resource_groups")

	// Signal attributes
	SignalNameKey = attribute.Key("signal.name")

	// Group attributes
	GroupIDKey   = attribute.Key("group.id")
	GroupTypeKey = attribute.Key("group.type")

	// Error attributes
	ErrorKey     = attribute.Key("error")
	ErrorTypeKey = attribute.Key("error.type")
)

// PoolAttributes identifies the pool a span operates on.
func PoolAttributes(cluster, pool, scheduler string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if cluster != "" {
		attrs = append(attrs, ClusterKey.String(cluster))
	}
	if pool != "" {
		attrs = append(attrs, PoolKey.String(pool))
	}
	if scheduler != "" {
		attrs = append(attrs, SchedulerKey.String(scheduler))
	}
	return attrs
}

// ScaleAttributes describes a capacity change.
func ScaleAttributes(requested, applied float64, groups int, dryRun bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		ScaleRequestedKey.Float64(requested),
		ScaleAppliedKey.Float64(applied),
		ScaleGroupsKey.Int(groups),
		ScaleDryRunKey.Bool(dryRun),
	}
}

// GroupAttributes describes a single resource group.
func GroupAttributes(id, groupType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		GroupIDKey.String(id),
		GroupTypeKey.String(groupType),
	}
}

// ErrorAttributes marks a span as failed with a classified error type.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		ErrorKey.Bool(true),
		ErrorTypeKey.String(errorType),
	}
}
