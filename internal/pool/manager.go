// SPDX-License-Identifier: Apache-2.0

// Package pool ties a cluster connector and a set of AWS resource groups
// together into one managed pool. The manager distributes target capacity
// evenly across groups, enforces the configured scaling limits, and prunes
// instances when fulfilled capacity overshoots the target.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
	"github.com/clusterman/clusterman/internal/groups"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/metrics"
)

// ErrNoResourceGroups is returned when a capacity change has no healthy
// group to land on.
var ErrNoResourceGroups = errors.New("no healthy resource groups")

// ErrUnknownGroup is returned for operations on a group id the pool does
// not manage.
var ErrUnknownGroup = errors.New("unknown resource group")

// GroupLoader discovers the resource groups for the pool; satisfied by
// groups.Loader and by test fakes.
type GroupLoader interface {
	Load(ctx context.Context, pc config.PoolConfig) ([]groups.ResourceGroup, error)
}

// GroupStatus is a point-in-time report for one resource group.
type GroupStatus struct {
	ID                string  `json:"id"`
	TargetCapacity    float64 `json:"target_capacity"`
	FulfilledCapacity float64 `json:"fulfilled_capacity"`
	Status            string  `json:"status"`
	Stale             bool    `json:"stale"`
	Broken            bool    `json:"broken,omitempty"`
}

// Manager owns all capacity decisions for one pool.
type Manager struct {
	cluster string
	pool    string
	conn    connector.ClusterConnector
	holder  *config.Holder
	loader  GroupLoader
	logger  zerolog.Logger

	mu     sync.RWMutex
	groups []groups.ResourceGroup
	broken map[string]error
}

// NewManager builds a pool manager. Call ReloadState before any capacity
// operation.
func NewManager(cfg config.Config, holder *config.Holder, conn connector.ClusterConnector, loader GroupLoader) *Manager {
	return &Manager{
		cluster: cfg.Cluster,
		pool:    cfg.Pool,
		conn:    conn,
		holder:  holder,
		loader:  loader,
		logger:  log.WithPool("pool-manager", cfg.Cluster, cfg.Pool),
		broken:  map[string]error{},
	}
}

// ReloadState re-discovers resource groups and refreshes their state and
// the scheduler's view of the pool, in parallel. A group that fails its
// reload is kept but marked broken; it is excluded from capacity changes
// until it recovers.
func (m *Manager) ReloadState(ctx context.Context) error {
	pc := m.holder.Get()
	discovered, err := m.loader.Load(ctx, pc)
	if err != nil {
		return fmt.Errorf("load resource groups: %w", err)
	}

	broken := make(map[string]error)
	var brokenMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.conn.ReloadState(gctx)
	})
	for _, rg := range discovered {
		g.Go(func() error {
			if err := rg.Reload(gctx); err != nil {
				m.logger.Warn().
					Str("event", "pool.group_reload_failed").
					Str("group_id", rg.ID()).
					Err(err).
					Msg("resource group failed to reload, excluding from scaling")
				brokenMu.Lock()
				broken[rg.ID()] = err
				brokenMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("reload pool state: %w", err)
	}

	m.mu.Lock()
	m.groups = discovered
	m.broken = broken
	m.mu.Unlock()

	metrics.RecordBrokenGroups(m.cluster, m.pool, len(broken))
	metrics.RecordPoolCapacity(m.cluster, m.pool, m.TargetCapacity(), m.FulfilledCapacity(), 0)
	return nil
}

// Connector exposes the underlying cluster connector.
func (m *Manager) Connector() connector.ClusterConnector { return m.conn }

// WatchConfig re-resolves the pool after every configuration change, so
// discovery tag or scaling limit updates take effect without waiting for
// the next scheduled run. Runs until the context is cancelled; subscribe
// the channel to a config.Holder.
func (m *Manager) WatchConfig(ctx context.Context, updates <-chan config.PoolConfig) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updates:
			if err := m.ReloadState(ctx); err != nil {
				m.logger.Warn().
					Str("event", "pool.config_resync_failed").
					Err(err).
					Msg("state reload after config change failed")
			}
		}
	}
}

// healthyGroups returns the groups capacity changes may touch.
func (m *Manager) healthyGroups() []groups.ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]groups.ResourceGroup, 0, len(m.groups))
	for _, rg := range m.groups {
		if _, bad := m.broken[rg.ID()]; bad {
			continue
		}
		out = append(out, rg)
	}
	return out
}

// TargetCapacity sums the healthy groups' targets. Stale groups report 0
// on their own.
func (m *Manager) TargetCapacity() float64 {
	var sum float64
	for _, rg := range m.healthyGroups() {
		sum += rg.TargetCapacity()
	}
	return sum
}

// FulfilledCapacity sums running weighted capacity across all groups,
// broken ones included: their instances are still real.
func (m *Manager) FulfilledCapacity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum float64
	for _, rg := range m.groups {
		sum += rg.FulfilledCapacity()
	}
	return sum
}

// NonOrphanFulfilledCapacity counts only capacity the scheduler can see.
func (m *Manager) NonOrphanFulfilledCapacity(ctx context.Context) (float64, error) {
	var sum float64
	for _, rg := range m.healthyGroups() {
		metas, err := rg.InstanceMetadatas(ctx, nil)
		if err != nil {
			return 0, err
		}
		for _, meta := range metas {
			state := m.conn.AgentMetadataByIP(meta.IPAddress).State
			if state == connector.AgentOrphaned || state == connector.AgentUnknown {
				continue
			}
			sum += meta.Weight
		}
	}
	return sum, nil
}

// MarketCapacities merges per-market capacity over all groups.
func (m *Manager) MarketCapacities() map[markets.InstanceMarket]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	merged := make(map[markets.InstanceMarket]float64)
	for _, rg := range m.groups {
		for market, capacity := range rg.MarketCapacities() {
			merged[market] += capacity
		}
	}
	return merged
}

// GroupStatuses reports all groups, broken ones flagged.
func (m *Manager) GroupStatuses() []GroupStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GroupStatus, 0, len(m.groups))
	for _, rg := range m.groups {
		_, bad := m.broken[rg.ID()]
		out = append(out, GroupStatus{
			ID:                rg.ID(),
			TargetCapacity:    rg.TargetCapacity(),
			FulfilledCapacity: rg.FulfilledCapacity(),
			Status:            rg.Status(),
			Stale:             rg.IsStale(),
			Broken:            bad,
		})
	}
	return out
}

// MarkGroupStale marks one resource group stale. Its instances keep
// running but the group stops counting toward the pool target, so
// replacement capacity lands on the other groups and the stale instances
// become prunable.
func (m *Manager) MarkGroupStale(ctx context.Context, groupID string) error {
	m.mu.RLock()
	var target groups.ResourceGroup
	for _, rg := range m.groups {
		if rg.ID() == groupID {
			target = rg
			break
		}
	}
	m.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}

	if err := target.MarkStale(ctx); err != nil {
		return fmt.Errorf("mark group %s stale: %w", groupID, err)
	}
	m.logger.Info().
		Str("event", "pool.group_marked_stale").
		Str("group_id", groupID).
		Msg("marked resource group stale")
	return nil
}

// ModifyTargetCapacity moves the pool to the desired target, constrained
// by the scaling limits unless force is set, and distributes the new
// target as evenly as possible across non-stale healthy groups. It
// returns the constrained target actually applied.
func (m *Manager) ModifyTargetCapacity(ctx context.Context, desired float64, dryRun, force bool) (float64, error) {
	usable := make([]groups.ResourceGroup, 0)
	for _, rg := range m.healthyGroups() {
		if rg.IsStale() {
			continue
		}
		usable = append(usable, rg)
	}
	if len(usable) == 0 {
		return 0, ErrNoResourceGroups
	}

	current := m.TargetCapacity()
	constrained := m.constrainTargetCapacity(desired, current, force)
	newTargets := distributeTargets(usable, int(math.Round(constrained)))

	// A group that refuses its new target must not block the others; the
	// pool keeps as much of the requested change as the healthy groups can
	// carry and retries the failed group next run.
	var failed int
	for _, rg := range usable {
		target := newTargets[rg.ID()]
		if target == rg.TargetCapacity() {
			continue
		}
		if err := rg.ModifyTargetCapacity(ctx, target, dryRun); err != nil {
			failed++
			m.logger.Warn().
				Str("event", "pool.group_modify_failed").
				Str("group_id", rg.ID()).
				Float64("target", target).
				Err(err).
				Msg("could not modify group target capacity")
		}
	}

	m.logger.Info().
		Str("event", "pool.modified_target").
		Float64("requested", desired).
		Float64("applied", constrained).
		Int("failed_groups", failed).
		Bool("dry_run", dryRun).
		Msg("modified pool target capacity")
	return constrained, nil
}

// constrainTargetCapacity clamps the desired target to the configured
// bounds and the per-run weight change limits.
func (m *Manager) constrainTargetCapacity(desired, current float64, force bool) float64 {
	limits := m.holder.Get().ScalingLimits
	constrained := desired

	if !force {
		if constrained > limits.MaxCapacity {
			constrained = limits.MaxCapacity
		}
		if constrained < limits.MinCapacity {
			constrained = limits.MinCapacity
		}
		if constrained-current > limits.MaxWeightToAdd {
			constrained = current + limits.MaxWeightToAdd
		}
		if current-constrained > limits.MaxWeightToRemove {
			constrained = current - limits.MaxWeightToRemove
		}
	}

	if constrained != desired {
		m.logger.Warn().
			Str("event", "pool.target_constrained").
			Float64("requested", desired).
			Float64("constrained", constrained).
			Msg("requested target capacity exceeds scaling limits")
	}
	return constrained
}

// distributeTargets spreads newTarget over the groups one weight unit at a
// time, always topping up the lowest group (or draining the highest), so
// targets end up as even as the totals allow without churning capacity
// between groups.
func distributeTargets(usable []groups.ResourceGroup, newTarget int) map[string]float64 {
	n := len(usable)
	ids := make([]string, n)
	targets := make([]int, n)
	total := 0
	for i, rg := range usable {
		ids[i] = rg.ID()
		targets[i] = int(math.Round(rg.TargetCapacity()))
		total += targets[i]
	}

	for total < newTarget {
		lowest := 0
		for i := 1; i < n; i++ {
			if targets[i] < targets[lowest] {
				lowest = i
			}
		}
		targets[lowest]++
		total++
	}
	for total > newTarget {
		highest := 0
		for i := 1; i < n; i++ {
			if targets[i] > targets[highest] {
				highest = i
			}
		}
		if targets[highest] == 0 {
			break
		}
		targets[highest]--
		total--
	}

	out := make(map[string]float64, n)
	for i, id := range ids {
		out[id] = float64(targets[i])
	}
	return out
}

// killableNode is a termination candidate with enough context to order it
// against the others.
type killableNode struct {
	groupID    string
	instanceID string
	weight     float64
	stale      bool
	state      connector.AgentState
	taskCount  int
	batchTasks int
}

// PruneExcessFulfilledCapacity terminates instances until fulfilled
// capacity is back at the target. Stale instances go first, then orphaned
// and idle agents, then the agents running the fewest tasks. Agents with
// batch workloads survive unless the pool explicitly allows killing them.
// It returns the terminated instance IDs.
func (m *Manager) PruneExcessFulfilledCapacity(ctx context.Context) ([]string, error) {
	pc := m.holder.Get()
	target := m.TargetCapacity()
	excess := m.FulfilledCapacity() - target
	if excess <= 0 {
		return nil, nil
	}

	candidates, err := m.killableNodes(ctx, pc)
	if err != nil {
		return nil, err
	}

	tasksBudget := pc.ScalingLimits.MaxTasksToKill
	marked := make(map[string][]string)
	var markedCount int
	for _, node := range candidates {
		if node.weight > excess {
			continue
		}
		if node.taskCount > tasksBudget {
			continue
		}
		marked[node.groupID] = append(marked[node.groupID], node.instanceID)
		markedCount++
		excess -= node.weight
		tasksBudget -= node.taskCount
		if excess <= 0 {
			break
		}
	}
	if markedCount == 0 {
		return nil, nil
	}

	m.mu.RLock()
	groupsByID := make(map[string]groups.ResourceGroup, len(m.groups))
	for _, rg := range m.groups {
		groupsByID[rg.ID()] = rg
	}
	m.mu.RUnlock()

	var terminated []string
	for groupID, ids := range marked {
		rg, ok := groupsByID[groupID]
		if !ok {
			continue
		}
		done, err := rg.TerminateInstancesByID(ctx, ids, pc.TerminateBatchSize)
		if err != nil {
			m.logger.Warn().
				Str("event", "pool.prune_failed").
				Str("group_id", groupID).
				Err(err).
				Msg("could not terminate excess instances")
			continue
		}
		terminated = append(terminated, done...)
	}

	metrics.AddInstancesTerminated(m.cluster, m.pool, len(terminated))
	m.logger.Info().
		Str("event", "pool.pruned").
		Int("terminated", len(terminated)).
		Float64("target", target).
		Msg("pruned excess fulfilled capacity")
	return terminated, nil
}

// killableNodes gathers and orders termination candidates.
func (m *Manager) killableNodes(ctx context.Context, pc config.PoolConfig) ([]killableNode, error) {
	var nodes []killableNode
	m.mu.RLock()
	all := make([]groups.ResourceGroup, len(m.groups))
	copy(all, m.groups)
	m.mu.RUnlock()

	for _, rg := range all {
		metas, err := rg.InstanceMetadatas(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("instance metadata for group %s: %w", rg.ID(), err)
		}
		for _, meta := range metas {
			agent := m.conn.AgentMetadataByIP(meta.IPAddress)
			if agent.BatchTaskCount > 0 && !pc.KillBatchTasks {
				continue
			}
			nodes = append(nodes, killableNode{
				groupID:    meta.GroupID,
				instanceID: meta.InstanceID,
				weight:     meta.Weight,
				stale:      meta.IsStale,
				state:      agent.State,
				taskCount:  agent.TaskCount,
				batchTasks: agent.BatchTaskCount,
			})
		}
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].stale != nodes[j].stale {
			return nodes[i].stale
		}
		pi, pj := statePriority(nodes[i].state), statePriority(nodes[j].state)
		if pi != pj {
			return pi < pj
		}
		return nodes[i].taskCount < nodes[j].taskCount
	})
	return nodes, nil
}

func statePriority(s connector.AgentState) int {
	switch s {
	case connector.AgentOrphaned:
		return 0
	case connector.AgentIdle:
		return 1
	case connector.AgentUnknown:
		return 2
	default:
		return 3
	}
}
