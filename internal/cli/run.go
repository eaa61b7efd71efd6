package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/outagewatch/internal/metrics"
	"github.com/ogulcanaydogan/outagewatch/internal/runner"
	"github.com/ogulcanaydogan/outagewatch/pkg/budget"
	"github.com/ogulcanaydogan/outagewatch/pkg/notify"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check the outage page once and post notifications",
	Long: `Fetch the outage list, compare it with the stored state, post new
outages and status changes within the monthly budget, and save the state.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("dry-run", false, "Log notifications instead of posting them")
	runCmd.Flags().Bool("force-save", false, "Write state even when nothing changed")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.Notify.DryRun = true
	}
	forceSave, _ := cmd.Flags().GetBool("force-save")

	logger := newLogger(cfg).With("run_id", uuid.NewString())
	logger.Info("run started", "dry_run", cfg.Notify.DryRun, "backend", cfg.Storage.Backend)

	policy, err := budget.NewPolicy(cfg.Notify.MonthlyLimit)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	backend, err := initBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	channels := initChannels(cfg, logger)
	if len(channels) == 0 {
		logger.Warn("no notification channels configured")
	}
	dispatcher := notify.NewDispatcher(channels, logger)

	recorder := metrics.New()
	r := runner.New(initScraper(cfg, logger), dispatcher, policy, logger,
		runner.WithRecorder(recorder),
		runner.WithForceSave(forceSave),
	)

	_, runErr := r.Run(ctx, backend)

	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Error("write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		return runErr
	}
	return nil
}
