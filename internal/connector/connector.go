// SPDX-License-Identifier: Apache-2.0

// Package connector abstracts the cluster scheduler behind a common
// interface. A connector knows how to enumerate the agents belonging to a
// pool, how much of each resource they hold and have allocated, and how to
// stop new work from landing on an agent.
package connector

import (
	"context"
	"fmt"

	"github.com/clusterman/clusterman/internal/config"
)

// Resource names recognized across clusterman.
const (
	ResourceCPUs = "cpus"
	ResourceMem  = "mem"
	ResourceDisk = "disk"
	ResourceGPUs = "gpus"
)

// ResourceNames lists all recognized resources in canonical order.
var ResourceNames = []string{ResourceCPUs, ResourceMem, ResourceDisk, ResourceGPUs}

// Resources is a bundle of the four resource dimensions clusterman scales
// on. Mem and Disk are in MB.
type Resources struct {
	CPUs float64 `json:"cpus"`
	Mem  float64 `json:"mem"`
	Disk float64 `json:"disk"`
	GPUs float64 `json:"gpus"`
}

// Get returns the named resource dimension; unknown names return 0.
func (r Resources) Get(name string) float64 {
	switch name {
	case ResourceCPUs:
		return r.CPUs
	case ResourceMem:
		return r.Mem
	case ResourceDisk:
		return r.Disk
	case ResourceGPUs:
		return r.GPUs
	}
	return 0
}

// Add returns the element-wise sum of two bundles.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUs: r.CPUs + other.CPUs,
		Mem:  r.Mem + other.Mem,
		Disk: r.Disk + other.Disk,
		GPUs: r.GPUs + other.GPUs,
	}
}

// Any reports whether any dimension is non-zero.
func (r Resources) Any() bool {
	return r.CPUs != 0 || r.Mem != 0 || r.Disk != 0 || r.GPUs != 0
}

// AgentState classifies an agent from the scheduler's point of view.
type AgentState string

const (
	AgentUnknown  AgentState = "unknown"
	AgentOrphaned AgentState = "orphaned"
	AgentIdle     AgentState = "idle"
	AgentRunning  AgentState = "running"
)

// AgentMetadata is what the connector can determine about one agent.
type AgentMetadata struct {
	AgentID        string     `json:"agent_id"`
	State          AgentState `json:"state"`
	TaskCount      int        `json:"task_count"`
	BatchTaskCount int        `json:"batch_task_count"`
	Allocated      Resources  `json:"allocated"`
	Total          Resources  `json:"total"`
}

// ClusterConnector is the scheduler-facing interface used by the pool
// manager and the autoscaler.
type ClusterConnector interface {
	// ReloadState refreshes all cached cluster state. It must be called at
	// the start of every autoscaling run before any other query.
	ReloadState(ctx context.Context) error

	// AgentMetadataByIP returns metadata for the agent at the given IP. An
	// empty IP yields metadata in the unknown state; an IP the scheduler
	// does not know yields the orphaned state.
	AgentMetadataByIP(ip string) AgentMetadata

	// AllocatedResources returns the pool's currently allocated resources.
	AllocatedResources() Resources

	// TotalResources returns the pool's total resources.
	TotalResources() Resources

	// FreezeAgent stops new tasks from scheduling onto the agent.
	FreezeAgent(ctx context.Context, agentID string) error
}

// PercentAllocation computes the allocated fraction of one resource,
// returning 0 when the pool has none of it.
func PercentAllocation(c ClusterConnector, resource string) float64 {
	total := c.TotalResources().Get(resource)
	if total == 0 {
		return 0
	}
	return c.AllocatedResources().Get(resource) / total
}

// New builds the cluster connector for the configured scheduler.
func New(cfg config.Config, holder *config.Holder) (ClusterConnector, error) {
	switch cfg.Scheduler {
	case config.SchedulerMesos:
		return NewMesosConnector(cfg, holder), nil
	case config.SchedulerKubernetes:
		return NewKubernetesConnector(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownScheduler, cfg.Scheduler)
	}
}
