// SPDX-License-Identifier: Apache-2.0

package signals

import (
	"context"
	"fmt"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/metrics"
	"github.com/rs/zerolog"
)

func init() {
	Register("pending_pods", func(cfg config.Config, holder *config.Holder, conn connector.ClusterConnector) (Signal, error) {
		kube, ok := conn.(*connector.KubernetesConnector)
		if !ok {
			return nil, fmt.Errorf("pending_pods signal requires a kubernetes connector")
		}
		return &PendingPodsSignal{
			cluster: cfg.Cluster,
			pool:    cfg.Pool,
			conn:    kube,
			holder:  holder,
			logger:  log.WithPool("pending-pods-signal", cfg.Cluster, cfg.Pool),
		}, nil
	})
}

// PendingPodsSignal requests the currently allocated resources plus a
// boosted share for every pod the scheduler could not place for lack of
// capacity. The boost over-provisions so a burst of pending pods clears
// in one scaling step instead of several.
type PendingPodsSignal struct {
	cluster string
	pool    string
	conn    *connector.KubernetesConnector
	holder  *config.Holder
	logger  zerolog.Logger
}

func (s *PendingPodsSignal) Name() string { return "pending_pods" }

func (s *PendingPodsSignal) Evaluate(ctx context.Context) (ResourceRequest, error) {
	if err := s.conn.ReloadState(ctx); err != nil {
		return ResourceRequest{}, err
	}

	boost := s.holder.Get().Autoscaling.PendingPodsBoost
	if boost <= 0 {
		boost = 2
	}

	total := s.conn.AllocatedResources()
	pendingCount := 0
	for _, pending := range s.conn.UnschedulablePods() {
		if pending.Reason != connector.ReasonInsufficientResources {
			continue
		}
		pendingCount++
		request := connector.PodResourceRequest(pending.Pod)
		total.CPUs += boost * request.CPUs
		total.Mem += boost * request.Mem
		total.Disk += boost * request.Disk
		total.GPUs += boost * request.GPUs
	}

	metrics.RecordPendingPods(s.cluster, s.pool, pendingCount)
	if pendingCount > 0 {
		s.logger.Info().
			Str("event", "signals.pending_pods").
			Int("pending", pendingCount).
			Float64("boost", boost).
			Msg("boosting resource request for unschedulable pods")
	}

	return ResourceRequest{
		CPUs: ptr(total.CPUs),
		Mem:  ptr(total.Mem),
		Disk: ptr(total.Disk),
		GPUs: ptr(total.GPUs),
	}, nil
}
