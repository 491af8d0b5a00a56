// SPDX-License-Identifier: Apache-2.0

package groups

import (
	"context"
	"fmt"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/markets"
)

// Loader discovers the resource groups configured for a pool.
type Loader struct {
	ec2      EC2API
	asg      AutoScalingAPI
	resolver *markets.Resolver
	cluster  string
	pool     string
}

// NewLoader builds a loader over the given AWS clients.
func NewLoader(ec2API EC2API, asgAPI AutoScalingAPI, resolver *markets.Resolver, cluster, pool string) *Loader {
	return &Loader{ec2: ec2API, asg: asgAPI, resolver: resolver, cluster: cluster, pool: pool}
}

// Load discovers all resource groups for each configured group type and
// tag. Unknown group types are an error so config typos fail loudly.
func (l *Loader) Load(ctx context.Context, pc config.PoolConfig) ([]ResourceGroup, error) {
	logger := log.WithPool("group-loader", l.cluster, l.pool)

	var out []ResourceGroup
	for _, rg := range pc.ResourceGroups {
		var (
			found []ResourceGroup
			err   error
		)
		switch rg.Type {
		case config.GroupTypeSpotFleet:
			found, err = DiscoverSpotFleetResourceGroups(ctx, l.ec2, l.resolver, l.cluster, l.pool, rg.Tag)
		case config.GroupTypeAutoScalingGroup:
			found, err = DiscoverAutoScalingResourceGroups(ctx, l.asg, l.ec2, l.resolver, l.cluster, l.pool, rg.Tag)
		default:
			return nil, fmt.Errorf("unknown resource group type %q", rg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("discover %s groups: %w", rg.Type, err)
		}
		logger.Info().
			Str("event", "groups.discovered").
			Str("type", rg.Type).
			Str("tag", rg.Tag).
			Int("count", len(found)).
			Msg("discovered resource groups")
		out = append(out, found...)
	}
	return out, nil
}
