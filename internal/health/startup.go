// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts
// managing capacity: a broken data directory or config should fail fast,
// not on the first autoscaling run.
func PerformStartupChecks(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkListenAddr(logger, cfg.APIListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if cfg.PoolConfigPath != "" {
		if _, err := config.LoadPoolConfig(cfg.PoolConfigPath); err != nil {
			return fmt.Errorf("pool config check failed: %w", err)
		}
		logger.Info().Str("path", cfg.PoolConfigPath).Msg("pool config is loadable")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(path, 0o750); mkErr != nil {
				return fmt.Errorf("could not create data directory %s: %w", path, mkErr)
			}
			logger.Info().Str("path", path).Msg("created data directory")
			if info, err = os.Stat(path); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Verify write permissions with a throwaway file.
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("api listen address is valid")
	return nil
}
