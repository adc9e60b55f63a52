package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mangadl/cf"
	"mangadl/config"
	"mangadl/downloader"
	"mangadl/logging"
	"mangadl/progress"
	"mangadl/sites"
)

var (
	runMangas     string
	runSave       string
	runWorkers    int
	runSequential bool
	runOnce       bool
)

var runCmd = &cobra.Command{
	Use:   "run [urls...]",
	Short: "Download every missing chapter of the configured mangas",
	Long: `Download every chapter that is not archived yet. URLs given as
arguments replace the source list from the settings file. Without --run
the download repeats every "schedule" minutes until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, &settings)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		if runOnce || settings.Schedule == 0 {
			logging.Warn("Run Mode: mangadl will exit after completion.")
			return ignoreCancel(download(ctx, out, settings, args))
		}

		interval := settings.ScheduleInterval()
		for {
			logging.Warn("Schedule Mode: mangadl will run every %d minutes.", settings.Schedule)
			if err := download(ctx, out, settings, args); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				// A broken source list is retried on the next run
				logging.Error("Run failed: %v", err)
				log.Printf("[Schedule] Run failed: %v", err)
			}

			msg := nextRunMessage(time.Now(), interval)
			logging.Info("%s", msg)
			log.Printf("[Schedule] %s", msg)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runMangas, "mangas", "", "source list file (overrides settings)")
	runCmd.Flags().StringVar(&runSave, "save", "", "library directory (overrides settings)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "parallel chapter downloads (overrides settings)")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "download one chapter at a time")
	runCmd.Flags().BoolVar(&runOnce, "run", false, "run once and exit instead of following the schedule")
}

// applyRunFlags lets explicitly set flags win over file and environment.
func applyRunFlags(cmd *cobra.Command, s *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("mangas") {
		s.Mangas = runMangas
	}
	if flags.Changed("save") {
		s.SaveLocation = runSave
	}
	if flags.Changed("workers") && runWorkers > 0 {
		s.NumThreads = runWorkers
		s.MultiThreaded = true
	}
	if runSequential {
		s.MultiThreaded = false
	}
}

// download performs one pass over the sources and prints its summary.
func download(ctx context.Context, out io.Writer, s config.Settings, urls []string) error {
	sources := urls
	if len(sources) == 0 {
		loaded, err := config.LoadSources(s.Mangas)
		if err != nil {
			return err
		}
		sources = loaded
	}
	if len(sources) == 0 {
		logging.Warn("No mangas configured in %s", s.Mangas)
		return nil
	}

	mgr, err := newManager(s, out)
	if err != nil {
		return err
	}

	logging.Info("Checking %d mangas, saving to %s", len(sources), s.SaveLocation)
	summary, err := mgr.Run(ctx, sources)
	printSummary(out, summary)
	return err
}

// newManager wires the HTTP clients, site adapters and progress views.
func newManager(s config.Settings, out io.Writer) (*downloader.Manager, error) {
	store, err := cf.DefaultStore()
	if err != nil {
		logging.Warn("Cloudflare bypass disabled: %v", err)
	}

	opts := s.ClientOptions()
	opts.Store = store

	client, err := downloader.NewHTTPClient("images", opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var reporter *downloader.Reporter
	if s.MangaDexReport {
		reporter = downloader.NewReporter(downloader.MangaDexReportURL, downloader.NewAPIClient("mangadex-report", opts))
	}

	deps := sites.Deps{
		Client:   opts,
		Browser:  &downloader.BrowserTransport{Name: "browser", Store: store},
		Language: s.Language,
	}

	tracker := progress.NewTracker(
		progress.NewTerminal(out, out == io.Writer(os.Stdout) && !color.NoColor),
		progress.Log{},
	)

	return downloader.NewManager(
		s.ManagerOptions(),
		sites.Resolver(deps),
		downloader.NewImageFetcher(client, reporter),
		tracker,
	), nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
