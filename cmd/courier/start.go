package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vgrishin/courier/internal/bridge/telegram"
	"github.com/vgrishin/courier/internal/config"
	"github.com/vgrishin/courier/internal/daemon"
	"github.com/vgrishin/courier/internal/dashboard"
	"github.com/vgrishin/courier/internal/db"
	"github.com/vgrishin/courier/internal/fetch"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot service",
		Long:  "Connects to Telegram and the database, then serves download requests until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: environment only)")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := fetch.NewYTDLP(ctx)
	if err != nil {
		return err
	}

	adapter, err := telegram.New(telegram.AdapterOpts{BotToken: cfg.BotToken})
	if err != nil {
		return err
	}

	d, err := daemon.New(daemon.Opts{
		DB:      gormDB,
		Config:  cfg,
		Adapter: adapter,
		Fetcher: fetcher,
		Out:     out,
	})
	if err != nil {
		return err
	}

	if cfg.Dashboard.ListenAddr != "" {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:         gormDB,
				Registry:   d.Registry(),
				ActiveJobs: d.ActiveJobs,
				Addr:       cfg.Dashboard.ListenAddr,
				Out:        out,
			})
			if err != nil {
				fmt.Fprintf(out, "dashboard error: %v\n", err)
			}
		}()
	}

	return d.Run(ctx)
}
