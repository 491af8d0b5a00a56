// SPDX-License-Identifier: Apache-2.0

package groups

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.opentelemetry.io/otel/trace"

	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/telemetry"
)

// Spot fleet request states that still count as active for discovery.
var activeFleetStates = map[ec2types.BatchState]bool{
	ec2types.BatchStateSubmitted:        true,
	ec2types.BatchStateActive:           true,
	ec2types.BatchStateModifying:        true,
	ec2types.BatchStateCancelledRunning: true,
}

// SpotFleetResourceGroup manages capacity through an EC2 spot fleet
// request. Weights come from the fleet's launch specifications, so a
// single fleet can span several instance markets.
type SpotFleetResourceGroup struct {
	awsGroupBase
	fleetID string

	mu            sync.RWMutex
	state         ec2types.BatchState
	target        float64
	fulfilled     float64
	marketWeights map[string]float64
	instanceIDs   []string
	capacities    map[markets.InstanceMarket]float64
}

// NewSpotFleetResourceGroup wires a group for an existing spot fleet
// request. Call Reload before reading any capacity accessors.
func NewSpotFleetResourceGroup(api EC2API, resolver *markets.Resolver, cluster, pool, fleetID string) *SpotFleetResourceGroup {
	logger := log.WithPool("spot-fleet-group", cluster, pool).With().
		Str("group_id", fleetID).Logger()
	return &SpotFleetResourceGroup{
		awsGroupBase: newAWSGroupBase(api, resolver, logger),
		fleetID:      fleetID,
	}
}

// DiscoverSpotFleetResourceGroups finds all spot fleet requests tagged for
// the given cluster and pool.
func DiscoverSpotFleetResourceGroups(ctx context.Context, api EC2API, resolver *markets.Resolver, cluster, pool, tagName string) ([]ResourceGroup, error) {
	var out []ResourceGroup
	input := &ec2.DescribeSpotFleetRequestsInput{}
	for {
		resp, err := api.DescribeSpotFleetRequests(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe spot fleet requests: %w", err)
		}
		for _, cfg := range resp.SpotFleetRequestConfigs {
			if !activeFleetStates[cfg.SpotFleetRequestState] {
				continue
			}
			if !fleetMatchesTag(cfg, tagName, cluster, pool) {
				continue
			}
			out = append(out, NewSpotFleetResourceGroup(api, resolver, cluster, pool, aws.ToString(cfg.SpotFleetRequestId)))
		}
		if resp.NextToken == nil {
			return out, nil
		}
		input.NextToken = resp.NextToken
	}
}

func fleetMatchesTag(cfg ec2types.SpotFleetRequestConfig, tagName, cluster, pool string) bool {
	if cfg.SpotFleetRequestConfig == nil {
		return false
	}
	for _, spec := range cfg.SpotFleetRequestConfig.LaunchSpecifications {
		for _, tagSpec := range spec.TagSpecifications {
			for _, tag := range tagSpec.Tags {
				if aws.ToString(tag.Key) == tagName && parseGroupTag(aws.ToString(tag.Value), cluster, pool) {
					return true
				}
			}
		}
	}
	for _, tag := range cfg.Tags {
		if aws.ToString(tag.Key) == tagName && parseGroupTag(aws.ToString(tag.Value), cluster, pool) {
			return true
		}
	}
	return false
}

// ID implements ResourceGroup.
func (g *SpotFleetResourceGroup) ID() string { return g.fleetID }

// Reload implements ResourceGroup.
func (g *SpotFleetResourceGroup) Reload(ctx context.Context) error {
	resp, err := g.ec2.DescribeSpotFleetRequests(ctx, &ec2.DescribeSpotFleetRequestsInput{
		SpotFleetRequestIds: []string{g.fleetID},
	})
	if err != nil {
		return fmt.Errorf("%w: describe fleet %s: %v", ErrResourceGroup, g.fleetID, err)
	}
	if len(resp.SpotFleetRequestConfigs) == 0 {
		return fmt.Errorf("%w: fleet %s not found", ErrResourceGroup, g.fleetID)
	}
	cfg := resp.SpotFleetRequestConfigs[0]

	weights := make(map[string]float64)
	var target, fulfilled float64
	if cfg.SpotFleetRequestConfig != nil {
		target = float64(aws.ToInt32(cfg.SpotFleetRequestConfig.TargetCapacity))
		fulfilled = aws.ToFloat64(cfg.SpotFleetRequestConfig.FulfilledCapacity)
		for _, spec := range cfg.SpotFleetRequestConfig.LaunchSpecifications {
			weight := 1.0
			if spec.WeightedCapacity != nil {
				weight = *spec.WeightedCapacity
			}
			weights[string(spec.InstanceType)] = weight
		}
	}

	fleetInstances, err := g.ec2.DescribeSpotFleetInstances(ctx, &ec2.DescribeSpotFleetInstancesInput{
		SpotFleetRequestId: aws.String(g.fleetID),
	})
	if err != nil {
		return fmt.Errorf("%w: describe fleet instances %s: %v", ErrResourceGroup, g.fleetID, err)
	}
	ids := make([]string, 0, len(fleetInstances.ActiveInstances))
	for _, ai := range fleetInstances.ActiveInstances {
		ids = append(ids, aws.ToString(ai.InstanceId))
	}

	instances, err := g.describeInstances(ctx, ids, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResourceGroup, err)
	}
	capacities := g.marketCapacities(ctx, instances, func(instanceType string) float64 {
		if w, ok := weights[instanceType]; ok {
			return w
		}
		return 1
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = cfg.SpotFleetRequestState
	g.target = target
	g.fulfilled = fulfilled
	g.marketWeights = weights
	g.instanceIDs = ids
	g.capacities = capacities
	return nil
}

// TargetCapacity implements ResourceGroup. Cancelled-but-running fleets
// report 0 so the pool schedules replacement capacity elsewhere.
func (g *SpotFleetResourceGroup) TargetCapacity() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.isStaleLocked() {
		return 0
	}
	return g.target
}

// FulfilledCapacity implements ResourceGroup.
func (g *SpotFleetResourceGroup) FulfilledCapacity() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fulfilled
}

// InstanceIDs implements ResourceGroup.
func (g *SpotFleetResourceGroup) InstanceIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.instanceIDs))
	copy(out, g.instanceIDs)
	return out
}

// StaleInstanceIDs implements ResourceGroup. For spot fleets an instance
// is stale exactly when its fleet is.
func (g *SpotFleetResourceGroup) StaleInstanceIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.isStaleLocked() {
		return nil
	}
	out := make([]string, len(g.instanceIDs))
	copy(out, g.instanceIDs)
	return out
}

// IsStale implements ResourceGroup.
func (g *SpotFleetResourceGroup) IsStale() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isStaleLocked()
}

func (g *SpotFleetResourceGroup) isStaleLocked() bool {
	switch g.state {
	case ec2types.BatchStateCancelled, ec2types.BatchStateCancelledRunning, ec2types.BatchStateCancelledTerminatingInstances:
		return true
	}
	return false
}

// MarkStale cancels the fleet request without terminating its instances;
// the fleet moves to cancelled_running and its instances become prunable.
func (g *SpotFleetResourceGroup) MarkStale(ctx context.Context) error {
	ctx, span := telemetry.Tracer("groups").Start(ctx, "groups.mark_stale",
		trace.WithAttributes(telemetry.GroupAttributes(g.fleetID, "spot_fleet_request")...))
	defer span.End()

	_, err := g.ec2.CancelSpotFleetRequests(ctx, &ec2.CancelSpotFleetRequestsInput{
		SpotFleetRequestIds: []string{g.fleetID},
		TerminateInstances:  aws.Bool(false),
	})
	if err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(err, "aws")...)
		return fmt.Errorf("%w: cancel fleet %s: %v", ErrResourceGroup, g.fleetID, err)
	}
	g.mu.Lock()
	g.state = ec2types.BatchStateCancelledRunning
	g.mu.Unlock()
	g.logger.Info().Str("event", "groups.marked_stale").Msg("cancelled spot fleet request, instances kept running")
	return nil
}

// Status implements ResourceGroup.
func (g *SpotFleetResourceGroup) Status() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return string(g.state)
}

// MarketCapacities implements ResourceGroup.
func (g *SpotFleetResourceGroup) MarketCapacities() map[markets.InstanceMarket]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[markets.InstanceMarket]float64, len(g.capacities))
	for k, v := range g.capacities {
		out[k] = v
	}
	return out
}

// ModifyTargetCapacity implements ResourceGroup.
func (g *SpotFleetResourceGroup) ModifyTargetCapacity(ctx context.Context, target float64, dryRun bool) error {
	if g.IsStale() {
		return fmt.Errorf("%w: fleet %s", ErrStaleGroup, g.fleetID)
	}
	if dryRun {
		g.logger.Info().
			Str("event", "groups.modify_target_dry_run").
			Float64("target", target).
			Msg("dry run, not modifying fleet target capacity")
		return nil
	}

	_, err := g.ec2.ModifySpotFleetRequest(ctx, &ec2.ModifySpotFleetRequestInput{
		SpotFleetRequestId: aws.String(g.fleetID),
		TargetCapacity:     aws.Int32(int32(target)),
	})
	if err != nil {
		return fmt.Errorf("%w: modify fleet %s: %v", ErrResourceGroup, g.fleetID, err)
	}

	g.mu.Lock()
	g.target = float64(int32(target))
	g.mu.Unlock()
	g.logger.Info().
		Str("event", "groups.modified_target").
		Float64("target", target).
		Msg("modified fleet target capacity")
	return nil
}

// TerminateInstancesByID implements ResourceGroup.
func (g *SpotFleetResourceGroup) TerminateInstancesByID(ctx context.Context, ids []string, batchSize int) ([]string, error) {
	return g.terminateInstancesByID(ctx, ids, g.InstanceIDs(), batchSize)
}

// InstanceMetadatas implements ResourceGroup.
func (g *SpotFleetResourceGroup) InstanceMetadatas(ctx context.Context, stateFilter []string) ([]InstanceMetadata, error) {
	return g.instanceMetadatas(ctx, g.fleetID, g.InstanceIDs(), stateFilter, g.IsStale(), g.weightFor)
}

// weightFor reports the launch-spec weight for an instance type; types not
// in the fleet config weigh 1.
func (g *SpotFleetResourceGroup) weightFor(instanceType string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if w, ok := g.marketWeights[instanceType]; ok {
		return w
	}
	return 1
}

// ScaleUpOptions implements ResourceGroup: one option per launch
// specification in the fleet config.
func (g *SpotFleetResourceGroup) ScaleUpOptions() []NodeOption {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeOption, 0, len(g.marketWeights))
	for instanceType, weight := range g.marketWeights {
		market := markets.InstanceMarket{InstanceType: instanceType}
		res, _ := market.Resources()
		out = append(out, NodeOption{Market: market, Weight: weight, Resources: res})
	}
	return out
}

// ScaleDownOptions implements ResourceGroup: the markets with running
// capacity.
func (g *SpotFleetResourceGroup) ScaleDownOptions() []NodeOption {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeOption, 0, len(g.capacities))
	for market := range g.capacities {
		res, _ := market.Resources()
		weight := 1.0
		if w, ok := g.marketWeights[market.InstanceType]; ok {
			weight = w
		}
		out = append(out, NodeOption{Market: market, Weight: weight, Resources: res})
	}
	return out
}
