// Package cmd implements the svcwrap command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/svcwrap/internal/config"
	"github.com/smazurov/svcwrap/internal/logging"
)

type globalFlags struct {
	logLevel string
	logJSON  bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "svcwrap",
		Short: "Run any program as a system service",
		Long: `svcwrap registers a program with the operating system's service manager and
supervises it: the program and every process it starts are stopped together
when the service stops.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if flags.logLevel != "" && !logging.ValidLevel(flags.logLevel) {
				return fmt.Errorf("invalid --log-level %q", flags.logLevel)
			}
			// run re-initializes from its config file.
			return initLogging(logging.Config{Level: "info", Format: "text"}, flags)
		},
	}

	flags.register(root.PersistentFlags())

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newRegisterCmd())
	root.AddCommand(newUnregisterCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true
	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "svcwrap:", err)
		os.Exit(1)
	}
}

func (f *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	fs.BoolVar(&f.logJSON, "log-json", false, "Log as JSON")
}

func initLogging(cfg logging.Config, flags *globalFlags) error {
	if flags.logLevel != "" {
		cfg.Level = flags.logLevel
	}
	if flags.logJSON {
		cfg.Format = "json"
	}
	return logging.Initialize(cfg)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.GetLogger("config").Debug("Config loaded", "path", path, "service", cfg.Registration.Name)
	return cfg, nil
}
