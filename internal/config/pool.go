// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Resource group types recognized in pool configuration.
const (
	GroupTypeSpotFleet        = "sfr"
	GroupTypeAutoScalingGroup = "asg"
)

// ResourceGroupConfig selects which AWS resource groups belong to the pool.
// Groups are discovered by a tag whose JSON value names the pool and
// cluster.
type ResourceGroupConfig struct {
	Type string `yaml:"type"`
	Tag  string `yaml:"tag"`
}

// ScalingLimits bound what a single autoscaling run may do to the pool.
type ScalingLimits struct {
	MinCapacity       float64 `yaml:"min_capacity"`
	MaxCapacity       float64 `yaml:"max_capacity"`
	MaxWeightToAdd    float64 `yaml:"max_weight_to_add"`
	MaxWeightToRemove float64 `yaml:"max_weight_to_remove"`

	// MaxTasksToKill bounds how many running tasks a single prune pass may
	// disrupt. Zero means only idle or orphaned agents may be terminated.
	MaxTasksToKill int `yaml:"max_tasks_to_kill"`
}

// AutoscalingConfig tunes the signal evaluation and capacity conversion.
type AutoscalingConfig struct {
	Signal           string  `yaml:"signal"`
	Setpoint         float64 `yaml:"setpoint"`
	SetpointMargin   float64 `yaml:"setpoint_margin"`
	PendingPodsBoost float64 `yaml:"pending_pods_boost"`

	// Per-capacity-unit resources, used to convert a resource request into
	// capacity units.
	CPUsPerWeight float64 `yaml:"cpus_per_weight"`
	MemPerWeight  float64 `yaml:"mem_per_weight"`
	DiskPerWeight float64 `yaml:"disk_per_weight"`
	GPUsPerWeight float64 `yaml:"gpus_per_weight"`
}

// PoolConfig is the per-pool configuration document, loaded from YAML and
// hot-reloadable while the daemon runs.
type PoolConfig struct {
	ResourceGroups            []ResourceGroupConfig `yaml:"resource_groups"`
	ScalingLimits             ScalingLimits         `yaml:"scaling_limits"`
	NonBatchFrameworkPrefixes []string              `yaml:"non_batch_framework_prefixes"`
	Autoscaling               AutoscalingConfig     `yaml:"autoscaling"`
	KillBatchTasks            bool                  `yaml:"kill_batch_tasks"`
	TerminateBatchSize        int                   `yaml:"terminate_batch_size"`
}

// DefaultPoolConfig returns the pool configuration used when no pool config
// file is given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		ScalingLimits: ScalingLimits{
			MinCapacity:       0,
			MaxCapacity:       100,
			MaxWeightToAdd:    100,
			MaxWeightToRemove: 100,
		},
		NonBatchFrameworkPrefixes: []string{"marathon"},
		Autoscaling: AutoscalingConfig{
			Signal:           "pending_pods",
			Setpoint:         0.7,
			SetpointMargin:   0.1,
			PendingPodsBoost: 2.0,
			CPUsPerWeight:    8,
			MemPerWeight:     32,
			DiskPerWeight:    0,
			GPUsPerWeight:    0,
		},
		TerminateBatchSize: 500,
	}
}

// LoadPoolConfig reads and validates a pool configuration file, applying
// defaults for anything the document leaves unset.
func LoadPoolConfig(path string) (PoolConfig, error) {
	cfg := DefaultPoolConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PoolConfig{}, fmt.Errorf("read pool config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PoolConfig{}, fmt.Errorf("parse pool config: %w", err)
	}
	if err := ValidatePoolConfig(cfg); err != nil {
		return PoolConfig{}, err
	}
	return cfg, nil
}

// ValidatePoolConfig rejects pool configurations the pool manager cannot
// act on safely.
func ValidatePoolConfig(cfg PoolConfig) error {
	if cfg.ScalingLimits.MinCapacity < 0 {
		return errors.New("min_capacity must not be negative")
	}
	if cfg.ScalingLimits.MaxCapacity < cfg.ScalingLimits.MinCapacity {
		return errors.New("max_capacity must not be below min_capacity")
	}
	if cfg.ScalingLimits.MaxWeightToAdd <= 0 || cfg.ScalingLimits.MaxWeightToRemove <= 0 {
		return errors.New("max weight limits must be positive")
	}
	if cfg.ScalingLimits.MaxTasksToKill < 0 {
		return errors.New("max_tasks_to_kill must not be negative")
	}
	if cfg.Autoscaling.Setpoint <= 0 || cfg.Autoscaling.Setpoint > 1 {
		return errors.New("setpoint must be in (0, 1]")
	}
	if cfg.Autoscaling.SetpointMargin < 0 || cfg.Autoscaling.SetpointMargin >= 1 {
		return errors.New("setpoint_margin must be in [0, 1)")
	}
	if cfg.Autoscaling.PendingPodsBoost < 1 {
		return errors.New("pending_pods_boost must be at least 1")
	}
	for _, rg := range cfg.ResourceGroups {
		switch rg.Type {
		case GroupTypeSpotFleet, GroupTypeAutoScalingGroup:
		default:
			return fmt.Errorf("unknown resource group type %q", rg.Type)
		}
		if rg.Tag == "" {
			return fmt.Errorf("resource group of type %q is missing its discovery tag", rg.Type)
		}
	}
	if cfg.TerminateBatchSize <= 0 {
		return errors.New("terminate_batch_size must be positive")
	}
	return nil
}
