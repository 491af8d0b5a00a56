// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv("test")
	assert.Equal(t, "default", cfg.Pool)
	assert.Equal(t, SchedulerMesos, cfg.Scheduler)
	assert.Equal(t, 10*time.Minute, cfg.AutoscaleInterval)
	assert.Equal(t, ":7031", cfg.APIListenAddr)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CMAN_CLUSTER", "westeros-prod")
	t.Setenv("CMAN_SCHEDULER", "kubernetes")
	t.Setenv("CMAN_AUTOSCALE_INTERVAL", "5m")

	cfg := FromEnv("test")
	assert.Equal(t, "westeros-prod", cfg.Cluster)
	assert.Equal(t, SchedulerKubernetes, cfg.Scheduler)
	assert.Equal(t, 5*time.Minute, cfg.AutoscaleInterval)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Cluster:           "westeros-prod",
			Pool:              "default",
			Scheduler:         SchedulerMesos,
			MesosMasterFQDN:   "mesos.example.com",
			AutoscaleInterval: time.Minute,
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Validate(base()))
	})

	t.Run("missing cluster", func(t *testing.T) {
		cfg := base()
		cfg.Cluster = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown scheduler", func(t *testing.T) {
		cfg := base()
		cfg.Scheduler = "nomad"
		err := Validate(cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownScheduler)
	})

	t.Run("mesos requires master fqdn", func(t *testing.T) {
		cfg := base()
		cfg.MesosMasterFQDN = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("kubernetes allows empty kubeconfig", func(t *testing.T) {
		cfg := base()
		cfg.Scheduler = SchedulerKubernetes
		cfg.MesosMasterFQDN = ""
		assert.NoError(t, Validate(cfg))
	})
}

func TestLoadPoolConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	doc := `
resource_groups:
  - type: sfr
    tag: "puppet:role::paasta"
scaling_limits:
  min_capacity: 1
  max_capacity: 101
  max_weight_to_add: 50
  max_weight_to_remove: 10
non_batch_framework_prefixes: ["marathon", "chronos-nb"]
autoscaling:
  signal: pending_pods
  setpoint: 0.7
  setpoint_margin: 0.1
  pending_pods_boost: 2
  cpus_per_weight: 8
  mem_per_weight: 32
terminate_batch_size: 200
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadPoolConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 101.0, cfg.ScalingLimits.MaxCapacity)
	assert.Equal(t, 10.0, cfg.ScalingLimits.MaxWeightToRemove)
	assert.Equal(t, []string{"marathon", "chronos-nb"}, cfg.NonBatchFrameworkPrefixes)
	require.Len(t, cfg.ResourceGroups, 1)
	assert.Equal(t, GroupTypeSpotFleet, cfg.ResourceGroups[0].Type)
	assert.Equal(t, 200, cfg.TerminateBatchSize)
}

func TestLoadPoolConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadPoolConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPoolConfig(), cfg)
}

func TestValidatePoolConfig(t *testing.T) {
	t.Run("bad setpoint", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.Autoscaling.Setpoint = 1.5
		assert.Error(t, ValidatePoolConfig(cfg))
	})

	t.Run("inverted limits", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.ScalingLimits.MinCapacity = 10
		cfg.ScalingLimits.MaxCapacity = 5
		assert.Error(t, ValidatePoolConfig(cfg))
	})

	t.Run("unknown group type", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.ResourceGroups = []ResourceGroupConfig{{Type: "emr", Tag: "t"}}
		assert.Error(t, ValidatePoolConfig(cfg))
	})

	t.Run("missing tag", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.ResourceGroups = []ResourceGroupConfig{{Type: GroupTypeSpotFleet}}
		assert.Error(t, ValidatePoolConfig(cfg))
	})
}

func TestHolderReloadKeepsOldConfigOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scaling_limits:\n  max_capacity: 50\n  max_weight_to_add: 5\n  max_weight_to_remove: 5\n"), 0o644))

	initial, err := LoadPoolConfig(path)
	require.NoError(t, err)
	holder := NewHolder(initial, path)

	// Break the file; reload must fail and keep the old config.
	require.NoError(t, os.WriteFile(path, []byte("scaling_limits: [broken"), 0o644))
	require.Error(t, holder.Reload(context.Background()))
	assert.Equal(t, 50.0, holder.Get().ScalingLimits.MaxCapacity)
}

func TestHolderNotifiesSubscribers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scaling_limits:\n  max_capacity: 50\n  max_weight_to_add: 5\n  max_weight_to_remove: 5\n"), 0o644))

	initial, err := LoadPoolConfig(path)
	require.NoError(t, err)
	holder := NewHolder(initial, path)

	ch := make(chan PoolConfig, 1)
	holder.Subscribe(ch)

	require.NoError(t, os.WriteFile(path, []byte("scaling_limits:\n  max_capacity: 75\n  max_weight_to_add: 5\n  max_weight_to_remove: 5\n"), 0o644))
	require.NoError(t, holder.Reload(context.Background()))

	select {
	case got := <-ch:
		assert.Equal(t, 75.0, got.ScalingLimits.MaxCapacity)
	case <-time.After(time.Second):
		t.Fatal("no config notification received")
	}
}
