// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the clusterman daemon configuration.
// Precedence is ENV > pool config file > defaults; the pool config file is
// hot-reloadable through Holder.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Scheduler names accepted by the connector dispatch.
const (
	SchedulerMesos      = "mesos"
	SchedulerKubernetes = "kubernetes"
)

// ErrUnknownScheduler is returned when the configured scheduler is not one
// of the supported values.
var ErrUnknownScheduler = errors.New("unknown scheduler type")

// Config is the daemon-level configuration, sourced from CMAN_* environment
// variables.
type Config struct {
	Cluster   string
	Pool      string
	Scheduler string

	AWSRegion       string
	MesosMasterFQDN string
	KubeconfigPath  string

	PoolConfigPath string
	DataDir        string

	APIListenAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AutoscaleInterval time.Duration

	PriceCollectorEnabled        bool
	PriceCollectorRunInterval    time.Duration
	PriceCollectorDedupeInterval time.Duration

	TelemetryEnabled      bool
	TelemetryExporterType string
	TelemetryEndpoint     string
	TelemetrySamplingRate float64

	LogLevel   string
	LogService string
	Version    string
}

// FromEnv builds a Config from CMAN_* environment variables with defaults
// suitable for local development.
func FromEnv(version string) Config {
	return Config{
		Cluster:   ParseString("CMAN_CLUSTER", ""),
		Pool:      ParseString("CMAN_POOL", "default"),
		Scheduler: ParseString("CMAN_SCHEDULER", SchedulerMesos),

		AWSRegion:       ParseString("CMAN_AWS_REGION", "us-west-2"),
		MesosMasterFQDN: ParseString("CMAN_MESOS_MASTER_FQDN", ""),
		KubeconfigPath:  ParseString("CMAN_KUBECONFIG", ""),

		PoolConfigPath: ParseString("CMAN_POOL_CONFIG", ""),
		DataDir:        ParseString("CMAN_DATA", "/var/lib/clusterman"),

		APIListenAddr: ParseString("CMAN_LISTEN", ":7031"),

		RedisAddr:     ParseString("CMAN_REDIS_ADDR", ""),
		RedisPassword: ParseString("CMAN_REDIS_PASSWORD", ""),
		RedisDB:       ParseInt("CMAN_REDIS_DB", 0),

		AutoscaleInterval: ParseDuration("CMAN_AUTOSCALE_INTERVAL", 10*time.Minute),

		PriceCollectorEnabled:        ParseBool("CMAN_PRICE_COLLECTOR", false),
		PriceCollectorRunInterval:    ParseDuration("CMAN_PRICE_RUN_INTERVAL", 2*time.Minute),
		PriceCollectorDedupeInterval: ParseDuration("CMAN_PRICE_DEDUPE_INTERVAL", time.Minute),

		TelemetryEnabled:      ParseBool("CMAN_TELEMETRY", false),
		TelemetryExporterType: ParseString("CMAN_TELEMETRY_EXPORTER", "http"),
		TelemetryEndpoint:     ParseString("CMAN_TELEMETRY_ENDPOINT", "localhost:4318"),
		TelemetrySamplingRate: ParseFloat("CMAN_TELEMETRY_SAMPLING", 0.1),

		LogLevel:   ParseString("CMAN_LOG_LEVEL", "info"),
		LogService: ParseString("CMAN_LOG_SERVICE", "clusterman"),
		Version:    version,
	}
}

// Validate checks the daemon configuration for fatal misconfiguration.
func Validate(cfg Config) error {
	if cfg.Cluster == "" {
		return errors.New("cluster name is required (CMAN_CLUSTER)")
	}
	if cfg.Pool == "" {
		return errors.New("pool name is required (CMAN_POOL)")
	}
	switch cfg.Scheduler {
	case SchedulerMesos:
		if cfg.MesosMasterFQDN == "" {
			return errors.New("mesos master fqdn is required for the mesos scheduler (CMAN_MESOS_MASTER_FQDN)")
		}
	case SchedulerKubernetes:
		// An empty kubeconfig path means in-cluster config.
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScheduler, cfg.Scheduler)
	}
	if cfg.AutoscaleInterval <= 0 {
		return errors.New("autoscale interval must be positive")
	}
	if cfg.PriceCollectorEnabled && cfg.PriceCollectorRunInterval <= 0 {
		return errors.New("price run interval must be positive")
	}
	return nil
}
