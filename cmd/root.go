package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mangadl/cf"
	"mangadl/config"
	"mangadl/logging"
)

var (
	configPath string
	verbose    bool

	// settings is loaded once per invocation by the root pre-run hook.
	settings  config.Settings
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "mangadl",
	Short: "mangadl keeps a local CBZ library in sync with manga sites.",
	Long: `mangadl reads a list of manga URLs, finds the chapters that are not
archived yet and downloads them as CBZ files. Without --run it keeps
running and repeats every "schedule" minutes.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
	Run: func(cmd *cobra.Command, args []string) {
		// When no command is specified, display help
		if err := cmd.Help(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	},
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		teardown()
		logging.Error("Oops. mangadl failed: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default $XDG_CONFIG_HOME/mangadl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "mirror the log to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(cfCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the settings and opens the log files.
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	s, err := config.Load(path)
	if err != nil {
		return err
	}
	settings = s

	closer, err := logging.Setup(settings.LogDir, verbose)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logCloser = closer

	if err := cf.InitCFLogger(settings.LogDir); err != nil {
		logging.Warn("Cloudflare debug log disabled: %v", err)
	}
	return nil
}

func teardown() {
	cf.CloseCFLogger()
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}
