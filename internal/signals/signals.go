// SPDX-License-Identifier: Apache-2.0

// Package signals computes resource requests for the autoscaler. A signal
// looks at cluster state and answers "how much CPU, memory, disk, and GPU
// does this pool need right now"; the autoscaler converts that into a
// target capacity.
package signals

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
)

// ResourceRequest is a signal's answer. Nil fields mean "no opinion" for
// that resource; the autoscaler skips them.
type ResourceRequest struct {
	CPUs *float64 `json:"cpus,omitempty"`
	Mem  *float64 `json:"mem,omitempty"`
	Disk *float64 `json:"disk,omitempty"`
	GPUs *float64 `json:"gpus,omitempty"`
}

// Get returns the request for a named resource and whether it is set.
func (r ResourceRequest) Get(name string) (float64, bool) {
	var p *float64
	switch name {
	case connector.ResourceCPUs:
		p = r.CPUs
	case connector.ResourceMem:
		p = r.Mem
	case connector.ResourceDisk:
		p = r.Disk
	case connector.ResourceGPUs:
		p = r.GPUs
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Signal produces resource requests for one pool.
type Signal interface {
	Name() string
	Evaluate(ctx context.Context) (ResourceRequest, error)
}

// Factory builds a signal bound to a pool's connector and config holder.
type Factory func(cfg config.Config, holder *config.Holder, conn connector.ClusterConnector) (Signal, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a signal factory under the given name. Duplicate names
// panic during init so collisions surface immediately.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("signals: duplicate registration for %q", name))
	}
	registry[name] = f
}

// Names lists the registered signal names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the named signal. An empty name picks the default for the
// configured scheduler: pending pods on Kubernetes, utilization on Mesos.
func New(name string, cfg config.Config, holder *config.Holder, conn connector.ClusterConnector) (Signal, error) {
	if name == "" {
		if cfg.Scheduler == config.SchedulerKubernetes {
			name = "pending_pods"
		} else {
			name = "utilization"
		}
	}

	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown signal %q (registered: %v)", name, Names())
	}
	return factory(cfg, holder, conn)
}

func ptr(v float64) *float64 { return &v }
