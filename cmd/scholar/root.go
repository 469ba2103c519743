package main

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/logger"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	logLevel   string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "scholar",
		Short: "Scholar - student records warehouse ETL",
		Long: `Scholar extracts student records from the registrar and LMS databases and
the payment and grade extracts, stages them as Bronze snapshots, conforms them
into Silver entities and rebuilds the Gold star schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to the YAML configuration file (default scholar.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0, "Cancel a run after this long (0 means no timeout)")

	root.AddCommand(
		newRunCmd(flags),
		newReplayCmd(flags),
		newScheduleCmd(flags),
		newCalendarCmd(flags),
		newFeaturesCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration, applies flag overrides and initializes the
// global logger.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.timeout > 0 {
		cfg.Run.Timeout = f.timeout
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scholar v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
