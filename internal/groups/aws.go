// SPDX-License-Identifier: Apache-2.0

package groups

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/clusterman/clusterman/internal/markets"
)

// EC2API is the slice of the EC2 client the resource groups use.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeSpotFleetRequests(ctx context.Context, params *ec2.DescribeSpotFleetRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotFleetRequestsOutput, error)
	DescribeSpotFleetInstances(ctx context.Context, params *ec2.DescribeSpotFleetInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotFleetInstancesOutput, error)
	ModifySpotFleetRequest(ctx context.Context, params *ec2.ModifySpotFleetRequestInput, optFns ...func(*ec2.Options)) (*ec2.ModifySpotFleetRequestOutput, error)
	CancelSpotFleetRequests(ctx context.Context, params *ec2.CancelSpotFleetRequestsInput, optFns ...func(*ec2.Options)) (*ec2.CancelSpotFleetRequestsOutput, error)
}

// AutoScalingAPI is the slice of the Auto Scaling client the resource
// groups use.
type AutoScalingAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	SetDesiredCapacity(ctx context.Context, params *autoscaling.SetDesiredCapacityInput, optFns ...func(*autoscaling.Options)) (*autoscaling.SetDesiredCapacityOutput, error)
	SuspendProcesses(ctx context.Context, params *autoscaling.SuspendProcessesInput, optFns ...func(*autoscaling.Options)) (*autoscaling.SuspendProcessesOutput, error)
	TerminateInstanceInAutoScalingGroup(ctx context.Context, params *autoscaling.TerminateInstanceInAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.TerminateInstanceInAutoScalingGroupOutput, error)
}

// parseGroupTag decodes the discovery tag value and reports whether it
// matches the given cluster and pool.
func parseGroupTag(value, cluster, pool string) bool {
	var tag GroupTag
	if err := json.Unmarshal([]byte(value), &tag); err != nil {
		return false
	}
	return tag.Cluster == cluster && tag.Pool == pool
}

// awsGroupBase holds the pieces shared by the spot fleet and ASG group
// implementations: instance lookup, hostname resolution, and batched
// termination.
type awsGroupBase struct {
	ec2      EC2API
	resolver *markets.Resolver
	logger   zerolog.Logger

	// lookupAddr is net.LookupAddr; swapped out by tests.
	lookupAddr func(addr string) ([]string, error)
}

func newAWSGroupBase(api EC2API, resolver *markets.Resolver, logger zerolog.Logger) awsGroupBase {
	return awsGroupBase{
		ec2:        api,
		resolver:   resolver,
		logger:     logger,
		lookupAddr: net.LookupAddr,
	}
}

// describeInstances fetches the given instances, optionally filtered to
// the provided instance states.
func (b *awsGroupBase) describeInstances(ctx context.Context, ids []string, stateFilter []string) ([]ec2types.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	input := &ec2.DescribeInstancesInput{InstanceIds: ids}
	if len(stateFilter) > 0 {
		input.Filters = []ec2types.Filter{{
			Name:   aws.String("instance-state-name"),
			Values: stateFilter,
		}}
	}

	var instances []ec2types.Instance
	for {
		out, err := b.ec2.DescribeInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range out.Reservations {
			instances = append(instances, reservation.Instances...)
		}
		if out.NextToken == nil {
			return instances, nil
		}
		input.NextToken = out.NextToken
	}
}

// instanceMetadatas builds InstanceMetadata records for the given
// instances. The hostname comes from a reverse DNS lookup on the private
// IP; lookup failures leave the hostname empty. Weights come from the
// group's weight function so prune accounting matches fulfilled capacity.
func (b *awsGroupBase) instanceMetadatas(ctx context.Context, groupID string, ids []string, stateFilter []string, stale bool, weightFor func(instanceType string) float64) ([]InstanceMetadata, error) {
	instances, err := b.describeInstances(ctx, ids, stateFilter)
	if err != nil {
		return nil, err
	}

	out := make([]InstanceMetadata, 0, len(instances))
	for _, instance := range instances {
		market, err := b.resolver.FromInstance(ctx, instance)
		if err != nil {
			b.logger.Warn().
				Str("event", "groups.market_lookup_failed").
				Str("instance_id", aws.ToString(instance.InstanceId)).
				Err(err).
				Msg("could not resolve instance market")
		}

		ip := aws.ToString(instance.PrivateIpAddress)
		hostname := ""
		if ip != "" {
			if names, err := b.lookupAddr(ip); err == nil && len(names) > 0 {
				hostname = strings.TrimSuffix(names[0], ".")
			}
		}

		state := ""
		if instance.State != nil {
			state = string(instance.State.Name)
		}

		out = append(out, InstanceMetadata{
			GroupID:    groupID,
			InstanceID: aws.ToString(instance.InstanceId),
			IPAddress:  ip,
			Hostname:   hostname,
			Market:     market,
			State:      state,
			Weight:     weightFor(string(instance.InstanceType)),
			IsStale:    stale,
		})
	}
	return out, nil
}

// terminateInstancesByID terminates the intersection of ids and owned in
// batches. Instances whose market cannot be resolved are skipped so the
// caller never loses track of running capacity.
func (b *awsGroupBase) terminateInstancesByID(ctx context.Context, ids, owned []string, batchSize int) ([]string, error) {
	ownedSet := make(map[string]bool, len(owned))
	for _, id := range owned {
		ownedSet[id] = true
	}

	var toTerminate []string
	for _, id := range ids {
		if !ownedSet[id] {
			b.logger.Warn().
				Str("event", "groups.terminate_unowned").
				Str("instance_id", id).
				Msg("refusing to terminate instance not owned by this group")
			continue
		}
		toTerminate = append(toTerminate, id)
	}
	if len(toTerminate) == 0 {
		b.logger.Warn().
			Str("event", "groups.terminate_empty").
			Msg("no instances to terminate")
		return nil, nil
	}

	// Instances without AZ information are mid-launch or already gone;
	// leave them for the next run instead of racing AWS.
	instances, err := b.describeInstances(ctx, toTerminate, nil)
	if err != nil {
		return nil, err
	}
	var terminable []string
	for _, instance := range instances {
		market, err := b.resolver.FromInstance(ctx, instance)
		if err != nil || market.AvailabilityZone == "" {
			b.logger.Warn().
				Str("event", "groups.terminate_skip").
				Str("instance_id", aws.ToString(instance.InstanceId)).
				Msg("instance has no availability zone info, skipping termination")
			continue
		}
		terminable = append(terminable, aws.ToString(instance.InstanceId))
	}

	if batchSize <= 0 {
		batchSize = len(terminable)
	}
	var terminated []string
	for start := 0; start < len(terminable); start += batchSize {
		end := start + batchSize
		if end > len(terminable) {
			end = len(terminable)
		}
		out, err := b.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: terminable[start:end],
		})
		if err != nil {
			return terminated, fmt.Errorf("%w: terminate instances: %v", ErrResourceGroup, err)
		}
		for _, ti := range out.TerminatingInstances {
			terminated = append(terminated, aws.ToString(ti.InstanceId))
		}
	}

	if len(terminated) < len(toTerminate) {
		b.logger.Warn().
			Str("event", "groups.terminate_partial").
			Int("requested", len(toTerminate)).
			Int("terminated", len(terminated)).
			Msg("some instances could not be terminated")
	}
	b.logger.Info().
		Str("event", "groups.terminated").
		Strs("instance_ids", terminated).
		Msg("terminated instances")
	return terminated, nil
}

// marketCapacities sums per-market weights over the given instances.
func (b *awsGroupBase) marketCapacities(ctx context.Context, instances []ec2types.Instance, weightFor func(instanceType string) float64) map[markets.InstanceMarket]float64 {
	capacities := make(map[markets.InstanceMarket]float64)
	for _, instance := range instances {
		market, err := b.resolver.FromInstance(ctx, instance)
		if err != nil || market.AvailabilityZone == "" {
			continue
		}
		capacities[market] += weightFor(string(instance.InstanceType))
	}
	return capacities
}
