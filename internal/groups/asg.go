// SPDX-License-Identifier: Apache-2.0

package groups

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"go.opentelemetry.io/otel/trace"

	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/telemetry"
)

// launchProcess is the ASG scaling process suspended to mark a group
// stale.
const launchProcess = "Launch"

// AutoScalingResourceGroup manages capacity through an EC2 auto scaling
// group. Every instance carries a weight of 1, so capacity equals the
// instance count.
type AutoScalingResourceGroup struct {
	awsGroupBase
	asg  AutoScalingAPI
	name string

	mu           sync.RWMutex
	stale        bool
	target       float64
	instanceIDs  []string
	instanceType string
	capacities   map[markets.InstanceMarket]float64
}

// NewAutoScalingResourceGroup wires a group for an existing ASG. Call
// Reload before reading any capacity accessors.
func NewAutoScalingResourceGroup(asgAPI AutoScalingAPI, ec2API EC2API, resolver *markets.Resolver, cluster, pool, name string) *AutoScalingResourceGroup {
	logger := log.WithPool("asg-group", cluster, pool).With().
		Str("group_id", name).Logger()
	return &AutoScalingResourceGroup{
		awsGroupBase: newAWSGroupBase(ec2API, resolver, logger),
		asg:          asgAPI,
		name:         name,
	}
}

// DiscoverAutoScalingResourceGroups finds all ASGs tagged for the given
// cluster and pool.
func DiscoverAutoScalingResourceGroups(ctx context.Context, asgAPI AutoScalingAPI, ec2API EC2API, resolver *markets.Resolver, cluster, pool, tagName string) ([]ResourceGroup, error) {
	var out []ResourceGroup
	input := &autoscaling.DescribeAutoScalingGroupsInput{}
	for {
		resp, err := asgAPI.DescribeAutoScalingGroups(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe auto scaling groups: %w", err)
		}
		for _, group := range resp.AutoScalingGroups {
			for _, tag := range group.Tags {
				if aws.ToString(tag.Key) == tagName && parseGroupTag(aws.ToString(tag.Value), cluster, pool) {
					out = append(out, NewAutoScalingResourceGroup(asgAPI, ec2API, resolver, cluster, pool, aws.ToString(group.AutoScalingGroupName)))
					break
				}
			}
		}
		if resp.NextToken == nil {
			return out, nil
		}
		input.NextToken = resp.NextToken
	}
}

// ID implements ResourceGroup.
func (g *AutoScalingResourceGroup) ID() string { return g.name }

// Reload implements ResourceGroup.
func (g *AutoScalingResourceGroup) Reload(ctx context.Context) error {
	resp, err := g.asg.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{g.name},
	})
	if err != nil {
		return fmt.Errorf("%w: describe asg %s: %v", ErrResourceGroup, g.name, err)
	}
	if len(resp.AutoScalingGroups) == 0 {
		return fmt.Errorf("%w: asg %s not found", ErrResourceGroup, g.name)
	}
	group := resp.AutoScalingGroups[0]

	ids := make([]string, 0, len(group.Instances))
	for _, instance := range group.Instances {
		ids = append(ids, aws.ToString(instance.InstanceId))
	}

	instances, err := g.describeInstances(ctx, ids, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResourceGroup, err)
	}
	capacities := g.marketCapacities(ctx, instances, func(string) float64 { return 1 })

	// ASGs here are homogeneous; take the type from any running instance.
	instanceType := ""
	if len(instances) > 0 {
		instanceType = string(instances[0].InstanceType)
	}

	// Staleness lives in the ASG itself as a suspended launch process, so
	// it survives rediscovery.
	stale := false
	for _, proc := range group.SuspendedProcesses {
		if aws.ToString(proc.ProcessName) == launchProcess {
			stale = true
			break
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.target = float64(aws.ToInt32(group.DesiredCapacity))
	g.instanceIDs = ids
	g.instanceType = instanceType
	g.capacities = capacities
	g.stale = stale
	return nil
}

// TargetCapacity implements ResourceGroup.
func (g *AutoScalingResourceGroup) TargetCapacity() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.stale {
		return 0
	}
	return g.target
}

// FulfilledCapacity implements ResourceGroup. ASG instances all weigh 1,
// so fulfilled capacity is the instance count.
func (g *AutoScalingResourceGroup) FulfilledCapacity() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return float64(len(g.instanceIDs))
}

// InstanceIDs implements ResourceGroup.
func (g *AutoScalingResourceGroup) InstanceIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.instanceIDs))
	copy(out, g.instanceIDs)
	return out
}

// StaleInstanceIDs implements ResourceGroup.
func (g *AutoScalingResourceGroup) StaleInstanceIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.stale {
		return nil
	}
	out := make([]string, len(g.instanceIDs))
	copy(out, g.instanceIDs)
	return out
}

// IsStale implements ResourceGroup.
func (g *AutoScalingResourceGroup) IsStale() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stale
}

// MarkStale implements ResourceGroup. ASGs have no cancelled-running
// state, so staleness is recorded by suspending the launch process:
// running instances stay up, no replacements launch, and the suspension
// survives rediscovery.
func (g *AutoScalingResourceGroup) MarkStale(ctx context.Context) error {
	ctx, span := telemetry.Tracer("groups").Start(ctx, "groups.mark_stale",
		trace.WithAttributes(telemetry.GroupAttributes(g.name, "auto_scaling_group")...))
	defer span.End()

	_, err := g.asg.SuspendProcesses(ctx, &autoscaling.SuspendProcessesInput{
		AutoScalingGroupName: aws.String(g.name),
		ScalingProcesses:     []string{launchProcess},
	})
	if err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(err, "aws")...)
		return fmt.Errorf("%w: suspend launch for %s: %v", ErrResourceGroup, g.name, err)
	}
	g.mu.Lock()
	g.stale = true
	g.mu.Unlock()
	g.logger.Info().Str("event", "groups.marked_stale").Msg("suspended asg launch process, instances kept running")
	return nil
}

// Status implements ResourceGroup.
func (g *AutoScalingResourceGroup) Status() string {
	if g.IsStale() {
		return "stale"
	}
	return "active"
}

// MarketCapacities implements ResourceGroup.
func (g *AutoScalingResourceGroup) MarketCapacities() map[markets.InstanceMarket]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[markets.InstanceMarket]float64, len(g.capacities))
	for k, v := range g.capacities {
		out[k] = v
	}
	return out
}

// ModifyTargetCapacity implements ResourceGroup.
func (g *AutoScalingResourceGroup) ModifyTargetCapacity(ctx context.Context, target float64, dryRun bool) error {
	if g.IsStale() {
		return fmt.Errorf("%w: asg %s", ErrStaleGroup, g.name)
	}
	if dryRun {
		g.logger.Info().
			Str("event", "groups.modify_target_dry_run").
			Float64("target", target).
			Msg("dry run, not modifying asg desired capacity")
		return nil
	}

	_, err := g.asg.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(g.name),
		DesiredCapacity:      aws.Int32(int32(target)),
		HonorCooldown:        aws.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("%w: set desired capacity for %s: %v", ErrResourceGroup, g.name, err)
	}

	g.mu.Lock()
	g.target = float64(int32(target))
	g.mu.Unlock()
	g.logger.Info().
		Str("event", "groups.modified_target").
		Float64("target", target).
		Msg("modified asg desired capacity")
	return nil
}

// TerminateInstancesByID implements ResourceGroup. Terminations go through
// the ASG API so the desired capacity shrinks with each instance instead
// of triggering replacements.
func (g *AutoScalingResourceGroup) TerminateInstancesByID(ctx context.Context, ids []string, batchSize int) ([]string, error) {
	ownedSet := make(map[string]bool)
	for _, id := range g.InstanceIDs() {
		ownedSet[id] = true
	}

	var terminated []string
	for _, id := range ids {
		if !ownedSet[id] {
			g.logger.Warn().
				Str("event", "groups.terminate_unowned").
				Str("instance_id", id).
				Msg("refusing to terminate instance not owned by this group")
			continue
		}
		_, err := g.asg.TerminateInstanceInAutoScalingGroup(ctx, &autoscaling.TerminateInstanceInAutoScalingGroupInput{
			InstanceId:                     aws.String(id),
			ShouldDecrementDesiredCapacity: aws.Bool(true),
		})
		if err != nil {
			g.logger.Warn().
				Str("event", "groups.terminate_failed").
				Str("instance_id", id).
				Err(err).
				Msg("could not terminate instance")
			continue
		}
		terminated = append(terminated, id)
	}

	if len(terminated) < len(ids) {
		g.logger.Warn().
			Str("event", "groups.terminate_partial").
			Int("requested", len(ids)).
			Int("terminated", len(terminated)).
			Msg("some instances could not be terminated")
	}
	return terminated, nil
}

// InstanceMetadatas implements ResourceGroup.
func (g *AutoScalingResourceGroup) InstanceMetadatas(ctx context.Context, stateFilter []string) ([]InstanceMetadata, error) {
	return g.instanceMetadatas(ctx, g.name, g.InstanceIDs(), stateFilter, g.IsStale(), func(string) float64 { return 1 })
}

// ScaleUpOptions implements ResourceGroup: the ASG's single configured
// instance type.
func (g *AutoScalingResourceGroup) ScaleUpOptions() []NodeOption {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.instanceType == "" {
		return nil
	}
	market := markets.InstanceMarket{InstanceType: g.instanceType}
	res, _ := market.Resources()
	return []NodeOption{{Market: market, Weight: 1, Resources: res}}
}

// ScaleDownOptions implements ResourceGroup.
func (g *AutoScalingResourceGroup) ScaleDownOptions() []NodeOption {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeOption, 0, len(g.capacities))
	for market := range g.capacities {
		res, _ := market.Resources()
		out = append(out, NodeOption{Market: market, Weight: 1, Resources: res})
	}
	return out
}
