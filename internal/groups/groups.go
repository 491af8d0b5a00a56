// SPDX-License-Identifier: Apache-2.0

// Package groups implements the AWS resource groups a pool is built from:
// spot fleet requests and auto scaling groups. Groups are discovered by a
// configured tag whose JSON value names the pool and cluster they belong
// to.
package groups

import (
	"context"
	"errors"

	"github.com/clusterman/clusterman/internal/markets"
)

// ErrResourceGroup wraps failures manipulating a resource group; callers
// treat a broken group as degraded rather than fatal.
var ErrResourceGroup = errors.New("resource group error")

// ErrStaleGroup is returned when a stale group is asked to change capacity.
var ErrStaleGroup = errors.New("resource group is stale")

// InstanceMetadata describes one instance owned by a resource group.
type InstanceMetadata struct {
	GroupID    string                 `json:"group_id"`
	InstanceID string                 `json:"instance_id"`
	IPAddress  string                 `json:"ip_address"`
	Hostname   string                 `json:"hostname"`
	Market     markets.InstanceMarket `json:"market"`
	State      string                 `json:"state"`
	Weight     float64                `json:"weight"`
	IsStale    bool                   `json:"is_stale"`
}

// NodeOption is one way a group can add or remove capacity: an instance
// market with its weight and per-instance resources.
type NodeOption struct {
	Market    markets.InstanceMarket
	Weight    float64
	Resources markets.InstanceResources
}

// ResourceGroup is a homogeneous collection of instances whose capacity
// clusterman can change as a unit.
type ResourceGroup interface {
	// ID returns the group identifier (spot fleet request ID or ASG name).
	ID() string

	// Reload refreshes the group's cached AWS state. Must be called before
	// the read accessors on every autoscaling run.
	Reload(ctx context.Context) error

	// TargetCapacity is the capacity the group is configured to reach.
	// Stale groups report 0 so replacement capacity is scheduled in the
	// remaining groups.
	TargetCapacity() float64

	// FulfilledCapacity is the weighted capacity actually running.
	FulfilledCapacity() float64

	// InstanceIDs lists the instances the group currently owns.
	InstanceIDs() []string

	// StaleInstanceIDs lists instances belonging to a stale incarnation of
	// the group.
	StaleInstanceIDs() []string

	// IsStale reports whether the group has been marked stale.
	IsStale() bool

	// MarkStale marks the group stale. The group stops accepting capacity
	// changes and its instances become candidates for pruning.
	MarkStale(ctx context.Context) error

	// Status returns the backend's status string for the group.
	Status() string

	// MarketCapacities returns the weighted capacity per instance market.
	MarketCapacities() map[markets.InstanceMarket]float64

	// ModifyTargetCapacity sets the group's target capacity. With dryRun
	// the computation happens but nothing is applied.
	ModifyTargetCapacity(ctx context.Context, target float64, dryRun bool) error

	// TerminateInstancesByID terminates the given instances in batches and
	// returns the IDs AWS confirmed terminating. Instances not owned by
	// the group are never terminated.
	TerminateInstancesByID(ctx context.Context, ids []string, batchSize int) ([]string, error)

	// InstanceMetadatas returns metadata for the group's instances,
	// optionally filtered to the given instance states.
	InstanceMetadatas(ctx context.Context, stateFilter []string) ([]InstanceMetadata, error)

	// ScaleUpOptions enumerates the markets the group can grow in.
	ScaleUpOptions() []NodeOption

	// ScaleDownOptions enumerates the markets currently running, i.e. what
	// scaling down could remove.
	ScaleDownOptions() []NodeOption
}

// GroupTag is the parsed JSON document found under the discovery tag on a
// resource group.
type GroupTag struct {
	Pool    string `json:"pool"`
	Cluster string `json:"paasta_cluster"`
}
