// SPDX-License-Identifier: Apache-2.0

package signals

import (
	"context"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
)

func init() {
	Register("utilization", func(cfg config.Config, holder *config.Holder, conn connector.ClusterConnector) (Signal, error) {
		return &UtilizationSignal{conn: conn}, nil
	})
}

// UtilizationSignal requests exactly what the scheduler has allocated.
// Combined with the autoscaler's setpoint this keeps a fixed headroom
// above current usage, which is the default behavior for Mesos pools.
type UtilizationSignal struct {
	conn connector.ClusterConnector
}

func (s *UtilizationSignal) Name() string { return "utilization" }

func (s *UtilizationSignal) Evaluate(ctx context.Context) (ResourceRequest, error) {
	if err := s.conn.ReloadState(ctx); err != nil {
		return ResourceRequest{}, err
	}
	allocated := s.conn.AllocatedResources()
	return ResourceRequest{
		CPUs: ptr(allocated.CPUs),
		Mem:  ptr(allocated.Mem),
		Disk: ptr(allocated.Disk),
		GPUs: ptr(allocated.GPUs),
	}, nil
}
