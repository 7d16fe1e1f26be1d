package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/hostagent/internal/config"
	"github.com/vitaliisemenov/hostagent/internal/supervisor"
	"github.com/vitaliisemenov/hostagent/pkg/logger"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Load configuration and run the agent until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	return cmd
}

func runStart(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: exitConfigError, err: fmt.Errorf("configuration error: %w", err)}
	}

	log, level := logger.NewDynamicLogger(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Filename:   cfg.Logging.Filename,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	sup := supervisor.New(cfg, log, level)

	reload := supervisor.NewReloadHandler(sup)
	reload.Start()
	defer reload.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	info := sup.AgentInfo()
	log.Info("agent starting", "agent_id", info.ID, "hostname", info.Hostname)

	if err := sup.Run(ctx); err != nil {
		return &exitError{code: exitRuntimeError, err: fmt.Errorf("agent exited with error: %w", err)}
	}

	log.Info("agent stopped")
	return nil
}
