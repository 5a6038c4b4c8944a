package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/config"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/controller"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/corelog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Start the control core and block until terminated",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	log := corelog.New(corelog.Options{Level: level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl, err := controller.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building controller: %w", err)
	}

	log.Info().Str("virtual_operator", cfg.Tenant.VirtualOperator).Msg("controller: starting")
	if err := ctl.Start(ctx); err != nil {
		return fmt.Errorf("controller run: %w", err)
	}
	log.Info().Msg("controller: stopped")
	return nil
}
