// SPDX-License-Identifier: Apache-2.0

package markets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/clusterman/clusterman/internal/cache"
)

// SubnetAPI is the slice of the EC2 API needed to resolve subnets.
type SubnetAPI interface {
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
}

// Resolver resolves subnet IDs to availability zones, memoizing results.
// Subnet-to-AZ mappings never change, so a long TTL is safe.
type Resolver struct {
	api   SubnetAPI
	cache cache.Cache
	ttl   time.Duration
}

// NewResolver creates a subnet resolver backed by the given cache.
func NewResolver(api SubnetAPI, c cache.Cache) *Resolver {
	return &Resolver{api: api, cache: c, ttl: 24 * time.Hour}
}

// SubnetToAZ returns the availability zone of the given subnet.
func (r *Resolver) SubnetToAZ(ctx context.Context, subnetID string) (string, error) {
	key := "az:" + subnetID
	if v, ok := r.cache.Get(key); ok {
		if az, ok := v.(string); ok {
			return az, nil
		}
	}

	out, err := r.api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{subnetID}})
	if err != nil {
		return "", fmt.Errorf("describe subnet %s: %w", subnetID, err)
	}
	if len(out.Subnets) == 0 || out.Subnets[0].AvailabilityZone == nil {
		return "", fmt.Errorf("subnet %s has no availability zone", subnetID)
	}
	az := *out.Subnets[0].AvailabilityZone
	r.cache.Set(key, az, r.ttl)
	return az, nil
}

// FromInstance derives the market for a described EC2 instance. The subnet
// is preferred; when it is missing the placement AZ is used, and when both
// are missing the market has an empty zone.
func (r *Resolver) FromInstance(ctx context.Context, inst ec2types.Instance) (InstanceMarket, error) {
	instanceType := string(inst.InstanceType)

	if inst.SubnetId != nil && *inst.SubnetId != "" {
		az, err := r.SubnetToAZ(ctx, *inst.SubnetId)
		if err != nil {
			return InstanceMarket{}, err
		}
		return New(instanceType, az)
	}

	az := ""
	if inst.Placement != nil && inst.Placement.AvailabilityZone != nil {
		az = *inst.Placement.AvailabilityZone
	}
	return New(instanceType, az)
}
