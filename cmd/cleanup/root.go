package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/internal/service"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
	"github.com/noah-isme/rc-quote-api/pkg/logger"
	"github.com/noah-isme/rc-quote-api/pkg/mailer"
	"github.com/noah-isme/rc-quote-api/pkg/storage"
	"github.com/noah-isme/rc-quote-api/pkg/webhook"
)

type cleanupFlags struct {
	dryRun  bool
	force   bool
	verbose bool
}

// newRootCmd builds the cleanup command. load supplies the configuration so tests can skip the environment.
func newRootCmd(load func() (*config.Config, error), out io.Writer) *cobra.Command {
	var flags cleanupFlags
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Enforce retention budgets on uploads, logs and backups",
		Long: `Removes files older than each directory's age limit, evicts the oldest files of
directories over their size budget and trims oversized log files.

Use --dry-run to see what would be removed without touching anything.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, load, flags, out)
		},
	}
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "d", false, "report what would be removed without changing any file")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "run even when free disk space is below the configured floor")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log every file action")
	return cmd
}

func runCleanup(cmd *cobra.Command, load func() (*config.Config, error), flags cleanupFlags, out io.Writer) error {
	cfg, err := load()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "failed to load config")
	}
	if err := cfg.ValidateRetention(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "invalid retention settings")
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}
	// The log file usually sits in a watched directory; a dry run must leave it untouched.
	if flags.dryRun {
		cfg.Log.File = ""
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	deps := service.RetentionDeps{
		Files:   storage.NewOSFileStore(cfg.Retention.Root),
		Disk:    storage.StatfsProbe{},
		Metrics: metricsSvc,
		Logger:  logr.Named("retention"),
	}
	if cfg.Retention.NotifyEnabled && !flags.dryRun {
		hook := webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.Timeout, webhook.NewSigner(cfg.Webhook.Secret, 0), logr)
		if notifier := service.NewRetentionNotifier(cfg.Mail, mailer.NewSMTPTransport(cfg.Mail), hook); notifier.Enabled() {
			deps.Notifier = notifier
		}
	}

	retention, err := service.NewRetentionService(cfg.Retention, deps)
	if err != nil {
		return err
	}

	summary, runErr := retention.Run(cmd.Context(), service.RunOptions{DryRun: flags.dryRun, Force: flags.force})
	if summary != nil {
		printSummary(out, summary)
	}
	if err := metricsSvc.WriteTextfile(cfg.Retention.MetricsFile); err != nil {
		logr.Warn("metrics textfile not written", zap.Error(err))
	}
	return runErr
}

func printSummary(out io.Writer, s *models.RetentionSummary) {
	verb := "removed"
	if s.Mode == models.RunModeDryRun {
		verb = "would remove"
	}
	fmt.Fprintf(out, "[%s] %s %d files, %s freed, %d log lines trimmed\n",
		s.Mode, verb, s.FilesRemoved, humanize.IBytes(uint64(s.BytesFreed)), s.LinesTrimmed)
	for _, r := range s.Reports {
		fmt.Fprintf(out, "  %-8s %4d files %10s\n", r.Name, r.FilesRemoved, humanize.IBytes(uint64(r.BytesFreed)))
	}
	for _, e := range s.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}
