package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/svcwrap/internal/control"
	"github.com/smazurov/svcwrap/internal/dispatch"
	"github.com/smazurov/svcwrap/internal/events"
	"github.com/smazurov/svcwrap/internal/logging"
	"github.com/smazurov/svcwrap/internal/metrics"
	"github.com/smazurov/svcwrap/internal/service"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:    "run <config>",
		Short:  "Run the service in the foreground (what the service manager launches)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			// The event log may be unavailable; the remaining sinks still work.
			if err := initLogging(cfg.Logging, flags); err != nil {
				logging.GetLogger("main").Warn("Logging sink unavailable", "error", err)
			}
			logger := logging.GetLogger("main")

			bus := events.New()
			if path := cfg.Wrapper.MetricsTextfile; path != "" {
				exporter := metrics.NewTextfileExporter(metrics.New(), path, logging.GetLogger("metrics"))
				exporter.Subscribe(bus)
				defer func() {
					if err := exporter.Close(); err != nil {
						logger.Warn("Failed to write final metrics", "path", path, "error", err)
					}
				}()
			}

			entry := func(ctx context.Context, ctl control.Controller) error {
				rt := service.New(service.Options{
					Config:     cfg,
					Controller: ctl,
					Logger:     logging.GetLogger("service"),
					Bus:        bus,
				})
				return rt.Run(ctx)
			}
			if err := dispatch.Bind(cfg.Registration.Name, entry); err != nil {
				return err
			}

			logger.Info("Starting service", "service", cfg.Registration.Name, "binary", cfg.Process.Binary)
			if err := dispatch.Start(cmd.Context()); err != nil {
				return fmt.Errorf("run %s: %w", cfg.Registration.Name, err)
			}
			return nil
		},
	}
}
