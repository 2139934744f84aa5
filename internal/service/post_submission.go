package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/jobs"
	"github.com/noah-isme/rc-quote-api/pkg/webhook"
)

// Follow-up job types scheduled after a quote email is delivered.
const (
	JobEmailBackup   = "email_backup"
	JobQuoteWebhook  = "quote_webhook"
	JobSubmissionLog = "submission_log"

	// EventNewQuote is the webhook event name for a delivered quote.
	EventNewQuote = "novo_orcamento"
)

// PostSubmission is the payload shared by all follow-up jobs of one submission.
type PostSubmission struct {
	Record  models.SubmissionRecord
	Backup  dto.EmailBackup
	Webhook dto.WebhookQuoteData
}

// PostSubmissionOptions selects which follow-ups run.
type PostSubmissionOptions struct {
	Backup  bool
	Webhook bool
	Log     bool
}

// Types lists the job types enabled by the options.
func (o PostSubmissionOptions) Types() []string {
	var types []string
	if o.Backup {
		types = append(types, JobEmailBackup)
	}
	if o.Webhook {
		types = append(types, JobQuoteWebhook)
	}
	if o.Log {
		types = append(types, JobSubmissionLog)
	}
	return types
}

type backupWriter interface {
	EnsureDir(dir string) error
	WriteFileAtomic(name string, data []byte, perm os.FileMode) error
}

type webhookSender interface {
	Enabled() bool
	Send(ctx context.Context, event webhook.Event) error
}

type submissionLogger interface {
	Insert(ctx context.Context, record *models.SubmissionRecord) error
}

// PostSubmissionHandlers executes follow-up jobs. Any collaborator may be nil to disable its job.
type PostSubmissionHandlers struct {
	files     backupWriter
	backupDir string
	hook      webhookSender
	log       submissionLogger
	logger    *zap.Logger
}

// NewPostSubmissionHandlers wires the follow-up collaborators.
func NewPostSubmissionHandlers(files backupWriter, backupDir string, hook webhookSender, log submissionLogger, logger *zap.Logger) *PostSubmissionHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostSubmissionHandlers{files: files, backupDir: backupDir, hook: hook, log: log, logger: logger}
}

// Options reports the follow-ups these handlers can serve.
func (h *PostSubmissionHandlers) Options() PostSubmissionOptions {
	return PostSubmissionOptions{
		Backup:  h.files != nil,
		Webhook: h.hook != nil && h.hook.Enabled(),
		Log:     h.log != nil,
	}
}

// Register installs the enabled handlers on mux.
func (h *PostSubmissionHandlers) Register(mux *jobs.Mux) {
	opts := h.Options()
	if opts.Backup {
		mux.Handle(JobEmailBackup, h.WriteBackup)
	}
	if opts.Webhook {
		mux.Handle(JobQuoteWebhook, h.NotifyWebhook)
	}
	if opts.Log {
		mux.Handle(JobSubmissionLog, h.LogSubmission)
	}
}

// WriteBackup stores the JSON copy of the sent email.
func (h *PostSubmissionHandlers) WriteBackup(_ context.Context, job jobs.Job) error {
	p, err := payloadOf(job)
	if err != nil {
		return err
	}
	if err := h.files.EnsureDir(h.backupDir); err != nil {
		return fmt.Errorf("ensure backup dir: %w", err)
	}
	data, err := json.MarshalIndent(p.Backup, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	name := path.Join(h.backupDir, BackupFileName(p.Backup.Timestamp, p.Backup.ID))
	if err := h.files.WriteFileAtomic(name, data, 0o640); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	h.logger.Debug("email backup written", zap.String("file", name))
	return nil
}

// NotifyWebhook posts the novo_orcamento event.
func (h *PostSubmissionHandlers) NotifyWebhook(ctx context.Context, job jobs.Job) error {
	p, err := payloadOf(job)
	if err != nil {
		return err
	}
	event := webhook.Event{Event: EventNewQuote, Timestamp: p.Record.CreatedAt, Data: p.Webhook}
	if err := h.hook.Send(ctx, event); err != nil {
		h.logger.Warn("quote webhook failed", zap.String("submission_id", p.Record.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		return err
	}
	return nil
}

// LogSubmission persists the submission trace.
func (h *PostSubmissionHandlers) LogSubmission(ctx context.Context, job jobs.Job) error {
	p, err := payloadOf(job)
	if err != nil {
		return err
	}
	record := p.Record
	return h.log.Insert(ctx, &record)
}

// BackupFileName names the backup of a submission sent at ts.
func BackupFileName(ts time.Time, id string) string {
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("email_backup_%s_%s.json", ts.Format("2006-01-02_15-04-05"), suffix)
}

func payloadOf(job jobs.Job) (PostSubmission, error) {
	switch p := job.Payload.(type) {
	case PostSubmission:
		return p, nil
	case *PostSubmission:
		if p != nil {
			return *p, nil
		}
	}
	return PostSubmission{}, fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
}
