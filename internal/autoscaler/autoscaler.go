// SPDX-License-Identifier: Apache-2.0

// Package autoscaler runs the periodic scaling loop: evaluate the pool's
// signal, convert the resource request into capacity units, and move the
// pool's target capacity, holding still when the change falls inside the
// setpoint margin.
package autoscaler

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/clusterman/clusterman/internal/audit"
	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/metrics"
	"github.com/clusterman/clusterman/internal/pool"
	"github.com/clusterman/clusterman/internal/signals"
	"github.com/clusterman/clusterman/internal/store"
	"github.com/clusterman/clusterman/internal/telemetry"
)

const actor = "autoscaler"

// CapacityWriter persists capacity snapshots; satisfied by *store.Store.
type CapacityWriter interface {
	PutCapacity(ctx context.Context, rec store.CapacityRecord) error
}

// Autoscaler owns the scaling loop for one pool.
type Autoscaler struct {
	cfg     config.Config
	holder  *config.Holder
	manager *pool.Manager
	signal  signals.Signal
	writer  CapacityWriter
	auditor *audit.Logger
	logger  zerolog.Logger
	dryRun  bool

	// lastRequest backs the failure fallback: when the signal breaks we
	// keep scaling on its last answer instead of freezing the pool.
	lastRequest *signals.ResourceRequest

	mu          sync.Mutex
	lastSuccess time.Time
	lastError   string
}

// New builds an autoscaler. writer may be nil when capacity history is not
// wanted (e.g. dry runs).
func New(cfg config.Config, holder *config.Holder, manager *pool.Manager, signal signals.Signal, writer CapacityWriter, auditor *audit.Logger, dryRun bool) *Autoscaler {
	return &Autoscaler{
		cfg:     cfg,
		holder:  holder,
		manager: manager,
		signal:  signal,
		writer:  writer,
		auditor: auditor,
		logger:  log.WithPool("autoscaler", cfg.Cluster, cfg.Pool),
		dryRun:  dryRun,
	}
}

func (a *Autoscaler) resource() string {
	return a.cfg.Cluster + "/" + a.cfg.Pool
}

// Run executes the scaling loop until the context is cancelled. Each
// daemon's runs are splayed within the interval by a hash of the cluster
// and pool so many pools do not hammer AWS at the same instant.
func (a *Autoscaler) Run(ctx context.Context) error {
	interval := a.cfg.AutoscaleInterval
	offset := splayOffset(a.cfg.Cluster+a.cfg.Pool, interval)
	a.logger.Info().
		Str("event", "autoscaler.start").
		Dur("interval", interval).
		Dur("splay", offset).
		Msg("starting autoscaling loop")

	timer := time.NewTimer(untilNextRun(time.Now(), interval, offset))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Error().
					Str("event", "autoscaler.run_failed").
					Err(err).
					Msg("autoscaling run failed")
			}
			timer.Reset(untilNextRun(time.Now(), interval, offset))
		}
	}
}

// RunOnce performs one complete autoscaling pass.
func (a *Autoscaler) RunOnce(ctx context.Context) error {
	err := a.runOnce(ctx)

	a.mu.Lock()
	if err != nil {
		a.lastError = err.Error()
	} else {
		a.lastSuccess = time.Now()
		a.lastError = ""
	}
	a.mu.Unlock()
	return err
}

// LastRun reports the time of the last successful run and the error of the
// last failed one; consumed by the readiness check.
func (a *Autoscaler) LastRun() (time.Time, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSuccess, a.lastError
}

func (a *Autoscaler) runOnce(ctx context.Context) error {
	start := time.Now()
	ctx, span := telemetry.Tracer("autoscaler").Start(ctx, "autoscaler.run",
		trace.WithAttributes(telemetry.PoolAttributes(a.cfg.Cluster, a.cfg.Pool, a.cfg.Scheduler)...))
	defer span.End()
	defer func() {
		metrics.ObserveAutoscaleDuration(a.cfg.Cluster, a.cfg.Pool, time.Since(start).Seconds())
	}()

	if err := a.manager.ReloadState(ctx); err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(err, "reload_state")...)
		metrics.IncAutoscaleRun(a.cfg.Cluster, a.cfg.Pool, "error")
		a.auditor.ScaleError(actor, a.resource(), err.Error())
		return fmt.Errorf("reload pool state: %w", err)
	}

	request, err := a.signal.Evaluate(ctx)
	if err != nil {
		if a.lastRequest == nil {
			span.SetAttributes(telemetry.ErrorAttributes(err, "signal")...)
			metrics.IncAutoscaleRun(a.cfg.Cluster, a.cfg.Pool, "error")
			a.auditor.ScaleError(actor, a.resource(), err.Error())
			return fmt.Errorf("evaluate signal %s: %w", a.signal.Name(), err)
		}
		a.logger.Warn().
			Str("event", "autoscaler.signal_fallback").
			Err(err).
			Msg("signal evaluation failed, reusing last resource request")
		request = *a.lastRequest
	} else {
		a.lastRequest = &request
	}
	a.recordRequest(request)

	pc := a.holder.Get()
	proposed, ok := capacityFromRequest(request, pc.Autoscaling)
	current := a.manager.TargetCapacity()
	if !ok {
		a.logger.Warn().
			Str("event", "autoscaler.no_request").
			Msg("signal produced no usable resource request, holding target")
		metrics.IncAutoscaleRun(a.cfg.Cluster, a.cfg.Pool, "hold")
		return a.finishRun(ctx, current)
	}

	if withinSetpointMargin(current, proposed, pc.Autoscaling.SetpointMargin) {
		a.logger.Info().
			Str("event", "autoscaler.hold").
			Float64("current", current).
			Float64("proposed", proposed).
			Msg("proposed target within setpoint margin, holding")
		metrics.IncAutoscaleRun(a.cfg.Cluster, a.cfg.Pool, "hold")
		a.auditor.TargetHeld(actor, a.resource(), current, proposed)
		return a.finishRun(ctx, current)
	}

	applied, err := a.manager.ModifyTargetCapacity(ctx, proposed, a.dryRun, false)
	if err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(err, "modify_capacity")...)
		metrics.IncAutoscaleRun(a.cfg.Cluster, a.cfg.Pool, "error")
		a.auditor.ScaleError(actor, a.resource(), err.Error())
		return fmt.Errorf("modify target capacity: %w", err)
	}
	span.SetAttributes(telemetry.ScaleAttributes(proposed, applied, len(a.manager.GroupStatuses()), a.dryRun)...)
	metrics.IncAutoscaleRun(a.cfg.Cluster, a.cfg.Pool, "scaled")
	a.auditor.TargetChanged(actor, a.resource(), proposed, applied, a.dryRun)

	return a.finishRun(ctx, applied)
}

// finishRun prunes overshoot and persists the capacity snapshot.
func (a *Autoscaler) finishRun(ctx context.Context, target float64) error {
	if !a.dryRun {
		pruned, err := a.manager.PruneExcessFulfilledCapacity(ctx)
		if err != nil {
			a.logger.Warn().
				Str("event", "autoscaler.prune_failed").
				Err(err).
				Msg("could not prune excess capacity")
		} else if len(pruned) > 0 {
			a.auditor.Pruned(actor, a.resource(), pruned)
		}
	}

	nonOrphan, err := a.manager.NonOrphanFulfilledCapacity(ctx)
	if err != nil {
		a.logger.Warn().
			Str("event", "autoscaler.capacity_check_failed").
			Err(err).
			Msg("could not compute non-orphan capacity")
	}
	cpuAlloc := connector.PercentAllocation(a.manager.Connector(), connector.ResourceCPUs)
	metrics.RecordPoolCapacity(a.cfg.Cluster, a.cfg.Pool, target, a.manager.FulfilledCapacity(), nonOrphan)
	metrics.RecordResourceAllocation(a.cfg.Cluster, a.cfg.Pool, connector.ResourceCPUs, cpuAlloc)

	if a.writer == nil {
		return nil
	}
	rec := store.CapacityRecord{
		Cluster:           a.cfg.Cluster,
		Pool:              a.cfg.Pool,
		TargetCapacity:    target,
		FulfilledCapacity: a.manager.FulfilledCapacity(),
		NonOrphanCapacity: nonOrphan,
		CPUAllocation:     cpuAlloc,
		Timestamp:         time.Now().UTC(),
	}
	if err := a.writer.PutCapacity(ctx, rec); err != nil {
		a.logger.Warn().
			Str("event", "autoscaler.store_failed").
			Err(err).
			Msg("could not persist capacity snapshot")
	}
	return nil
}

func (a *Autoscaler) recordRequest(request signals.ResourceRequest) {
	for _, name := range connector.ResourceNames {
		if v, ok := request.Get(name); ok {
			metrics.RecordSignalRequest(a.cfg.Cluster, a.cfg.Pool, name, v)
		}
	}
}

// capacityFromRequest converts a resource request into capacity units: for
// each requested resource, the units needed to serve it at the setpoint,
// taking the maximum so every resource fits. Returns false when no
// resource produces a usable bound.
func capacityFromRequest(request signals.ResourceRequest, ac config.AutoscalingConfig) (float64, bool) {
	perWeight := map[string]float64{
		connector.ResourceCPUs: ac.CPUsPerWeight,
		connector.ResourceMem:  ac.MemPerWeight,
		connector.ResourceDisk: ac.DiskPerWeight,
		connector.ResourceGPUs: ac.GPUsPerWeight,
	}

	best := 0.0
	usable := false
	for _, name := range connector.ResourceNames {
		value, ok := request.Get(name)
		if !ok || perWeight[name] <= 0 {
			continue
		}
		usable = true
		units := math.Ceil(value / (ac.Setpoint * perWeight[name]))
		if units > best {
			best = units
		}
	}
	return best, usable
}

// withinSetpointMargin reports whether the proposed target is close enough
// to the current one that scaling is not worth the churn.
func withinSetpointMargin(current, proposed float64, margin float64) bool {
	if current <= 0 {
		return proposed <= 0
	}
	return math.Abs(proposed-current)/current <= margin
}

// splayOffset derives a stable per-pool offset inside the run interval.
func splayOffset(key string, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return time.Duration(h.Sum32()) % interval
}

// untilNextRun computes the wait until the next splayed interval boundary.
func untilNextRun(now time.Time, interval, offset time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	next := now.Truncate(interval).Add(offset)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next.Sub(now)
}
