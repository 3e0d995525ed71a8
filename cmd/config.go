package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/svcwrap/internal/config"
	"github.com/smazurov/svcwrap/internal/logging"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}
	cmd.AddCommand(newConfigDefaultCmd())
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Print an example configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Marshal(config.Default())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigCheckCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "check <config>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.Load(args[0])
			if !watch {
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: ok (service %q)\n", args[0], cfg.Registration.Name)
				return nil
			}

			report := func(cfg *config.Config, err error) {
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", args[0], err)
					return
				}
				fmt.Fprintf(out, "%s: ok (service %q)\n", args[0], cfg.Registration.Name)
			}
			report(cfg, err)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchConfig(ctx, args[0], report)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep checking the file whenever it changes")
	return cmd
}

func watchConfig(ctx context.Context, path string, report func(*config.Config, error)) error {
	return config.NewWatcher(path, report, logging.GetLogger("config")).Run(ctx)
}
