package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	"github.com/noah-isme/rc-quote-api/pkg/mailer"
	"github.com/noah-isme/rc-quote-api/pkg/webhook"
)

// EventRetentionFinished is the webhook event sent after a large cleanup.
const EventRetentionFinished = "limpeza_concluida"

type retentionNotifier interface {
	NotifyRetention(ctx context.Context, summary models.RetentionSummary) error
}

// RetentionReporter collects the reports of one run and notifies operators about large cleanups.
type RetentionReporter struct {
	mode      models.RunMode
	threshold int64
	notifier  retentionNotifier
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	startedAt time.Time
	reports   []models.CleanupReport
	errors    []string
	disk      *models.DiskSpaceStatus
}

// NewRetentionReporter starts a report for a run in the given mode. A nil notifier disables notifications.
func NewRetentionReporter(mode models.RunMode, threshold int64, notifier retentionNotifier, metrics *MetricsService, logger *zap.Logger) *RetentionReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionReporter{
		mode:      mode,
		threshold: threshold,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// SetDisk attaches the disk status measured at the start of the run.
func (r *RetentionReporter) SetDisk(status models.DiskSpaceStatus) {
	r.disk = &status
}

// AddError records a run-level error not tied to a directory.
func (r *RetentionReporter) AddError(msg string) {
	r.errors = append(r.errors, msg)
}

// Record logs and keeps one directory report.
func (r *RetentionReporter) Record(report models.CleanupReport) {
	r.reports = append(r.reports, report)
	r.metrics.ObserveRetentionReport(report)

	fields := []zap.Field{
		zap.String("directory", report.Name),
		zap.String("path", report.Directory),
		zap.String("mode", string(report.Mode)),
		zap.Int("files_removed", report.FilesRemoved),
		zap.String("bytes_freed", humanize.IBytes(uint64(report.BytesFreed))),
		zap.Int("lines_trimmed", report.LinesTrimmed),
	}
	if len(report.Errors) > 0 {
		r.logger.Warn("directory cleaned with errors", append(fields, zap.Strings("errors", report.Errors))...)
		return
	}
	r.logger.Info("directory cleaned", fields...)
}

// Finalize aggregates the recorded reports. Applied runs that freed more than the threshold
// trigger the notifier; a notification failure is logged only.
func (r *RetentionReporter) Finalize(ctx context.Context) models.RetentionSummary {
	summary := models.RetentionSummary{
		Mode:       r.mode,
		StartedAt:  r.startedAt,
		FinishedAt: r.now(),
		Errors:     append([]string(nil), r.errors...),
		Reports:    append([]models.CleanupReport(nil), r.reports...),
		Disk:       r.disk,
	}
	for _, rep := range r.reports {
		summary.FilesRemoved += rep.FilesRemoved
		summary.BytesFreed += rep.BytesFreed
		summary.LinesTrimmed += rep.LinesTrimmed
		for _, e := range rep.Errors {
			summary.Errors = append(summary.Errors, rep.Name+": "+e)
		}
	}

	if r.shouldNotify(summary) {
		if err := r.notifier.NotifyRetention(ctx, summary); err != nil {
			r.logger.Error("retention notification failed", zap.Error(err))
		} else {
			summary.Notified = true
		}
	}

	r.metrics.ObserveRetentionRun(r.mode, summary.FinishedAt)
	r.logger.Info("retention run finished",
		zap.String("mode", string(summary.Mode)),
		zap.Int("files_removed", summary.FilesRemoved),
		zap.String("bytes_freed", humanize.IBytes(uint64(summary.BytesFreed))),
		zap.Int("lines_trimmed", summary.LinesTrimmed),
		zap.Int("errors", len(summary.Errors)),
		zap.Bool("notified", summary.Notified),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary
}

func (r *RetentionReporter) shouldNotify(summary models.RetentionSummary) bool {
	return r.notifier != nil && r.mode == models.RunModeApplied && summary.BytesFreed > r.threshold
}

// RetentionNotifier tells operators about a cleanup by mail and/or webhook.
type RetentionNotifier struct {
	transport mailer.Transport
	mail      config.MailConfig
	hook      webhookSender
}

// NewRetentionNotifier builds a notifier over the available channels.
func NewRetentionNotifier(mail config.MailConfig, transport mailer.Transport, hook webhookSender) *RetentionNotifier {
	return &RetentionNotifier{transport: transport, mail: mail, hook: hook}
}

// Enabled reports whether at least one channel is configured.
func (n *RetentionNotifier) Enabled() bool {
	return n != nil && (n.mailEnabled() || n.hookEnabled())
}

func (n *RetentionNotifier) mailEnabled() bool {
	return n.transport != nil && n.mail.Admin != ""
}

func (n *RetentionNotifier) hookEnabled() bool {
	return n.hook != nil && n.hook.Enabled()
}

// NotifyRetention implements retentionNotifier.
func (n *RetentionNotifier) NotifyRetention(ctx context.Context, summary models.RetentionSummary) error {
	var errs []error
	if n.mailEnabled() {
		if err := n.transport.Send(ctx, n.message(summary)); err != nil {
			errs = append(errs, fmt.Errorf("mail: %w", err))
		}
	}
	if n.hookEnabled() {
		alert := dto.RetentionAlert{
			Mode:         string(summary.Mode),
			FilesRemoved: summary.FilesRemoved,
			BytesFreed:   summary.BytesFreed,
			BytesHuman:   humanize.IBytes(uint64(summary.BytesFreed)),
			Errors:       summary.Errors,
			FinishedAt:   summary.FinishedAt,
		}
		event := webhook.Event{Event: EventRetentionFinished, Timestamp: summary.FinishedAt, Data: alert}
		if err := n.hook.Send(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (n *RetentionNotifier) message(summary models.RetentionSummary) mailer.Message {
	freed := humanize.IBytes(uint64(summary.BytesFreed))
	var body strings.Builder
	fmt.Fprintf(&body, "Limpeza automática concluída em %s\n\n", summary.FinishedAt.Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&body, "Arquivos removidos: %d\n", summary.FilesRemoved)
	fmt.Fprintf(&body, "Espaço liberado: %s\n", freed)
	fmt.Fprintf(&body, "Linhas de log removidas: %d\n", summary.LinesTrimmed)
	if summary.Disk != nil {
		fmt.Fprintf(&body, "Espaço livre: %s (%.1f%%)\n", humanize.IBytes(uint64(summary.Disk.FreeBytes)), summary.Disk.PercentFree)
	}
	body.WriteString("\nPor diretório:\n")
	for _, rep := range summary.Reports {
		fmt.Fprintf(&body, "- %s: %d arquivos, %s\n", rep.Name, rep.FilesRemoved, humanize.IBytes(uint64(rep.BytesFreed)))
	}
	if len(summary.Errors) > 0 {
		body.WriteString("\nErros:\n")
		for _, e := range summary.Errors {
			fmt.Fprintf(&body, "- %s\n", e)
		}
	}
	return mailer.Message{
		From:     n.mail.From,
		FromName: n.mail.FromName,
		To:       []string{n.mail.Admin},
		Subject:  fmt.Sprintf("🧹 Limpeza automática - %s liberados", freed),
		TextBody: body.String(),
	}
}
