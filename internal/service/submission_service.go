package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/internal/models"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
	"github.com/noah-isme/rc-quote-api/pkg/jobs"
	"github.com/noah-isme/rc-quote-api/pkg/mailer"
)

type admitter interface {
	Admit(ctx context.Context, key string, now time.Time) (models.AdmissionDecision, error)
}

type cityResolver interface {
	Resolve(address string) string
}

type attachmentValidator interface {
	Validate(ctx context.Context, candidates []models.UploadCandidate) models.UploadOutcome
	Discard(files []models.StoredFile) error
	DiscardCandidates(candidates []models.UploadCandidate)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SubmissionService runs a quote request from admission to delivery.
type SubmissionService struct {
	spam      *SpamGuard
	limiter   admitter
	form      *QuoteFormValidator
	cities    cityResolver
	uploads   attachmentValidator
	composer  *QuoteComposer
	transport mailer.Transport
	jobs      jobEnqueuer
	followUps PostSubmissionOptions
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// SubmissionDeps groups the collaborators of the pipeline.
type SubmissionDeps struct {
	Spam      *SpamGuard
	Limiter   admitter
	Form      *QuoteFormValidator
	Cities    cityResolver
	Uploads   attachmentValidator
	Composer  *QuoteComposer
	Transport mailer.Transport
	Jobs      jobEnqueuer
	FollowUps PostSubmissionOptions
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// NewSubmissionService constructs the pipeline.
func NewSubmissionService(deps SubmissionDeps) *SubmissionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Form == nil {
		deps.Form = NewQuoteFormValidator(nil)
	}
	if deps.Cities == nil {
		deps.Cities = NewCityResolver(nil, "")
	}
	return &SubmissionService{
		spam:      deps.Spam,
		limiter:   deps.Limiter,
		form:      deps.Form,
		cities:    deps.Cities,
		uploads:   deps.Uploads,
		composer:  deps.Composer,
		transport: deps.Transport,
		jobs:      deps.Jobs,
		followUps: deps.FollowUps,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Submit validates, stores attachments, sends the quote email and schedules follow-ups.
// Nothing is stored or sent when the request is refused; attachments are removed when delivery fails.
func (s *SubmissionService) Submit(ctx context.Context, req dto.QuoteRequest, uploads []models.UploadCandidate, client models.ClientInfo) (*models.SubmissionResult, error) {
	now := s.now()
	req.Normalize()
	logger := s.logger.With(zap.String("ip", client.IP))

	if s.spam != nil && s.spam.IPBlocked(client.IP) {
		s.refuse(uploads, "blocked")
		logger.Warn("submission from blocked ip")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}

	if s.limiter != nil {
		decision, err := s.limiter.Admit(ctx, client.IP, now)
		switch {
		case err != nil:
			logger.Error("rate limiter unavailable, admitting request", zap.Error(err))
		case !decision.Allowed:
			s.refuse(uploads, "rate_limited")
			return nil, appErrors.Clone(appErrors.ErrRateLimited, "too many requests, please try again later")
		}
	}

	if err := s.form.Validate(req); err != nil {
		s.refuse(uploads, "invalid")
		logger.Warn("submission validation failed", zap.Error(err))
		return nil, err
	}
	if s.spam != nil {
		if reasons := s.spam.Inspect(req); len(reasons) > 0 {
			s.refuse(uploads, "spam")
			logger.Warn("submission flagged as spam", zap.Strings("reasons", reasons))
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, reasons[0]), reasons...)
		}
	}

	quote := models.Quote{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		City:        req.City,
		ProjectType: req.ProjectType,
		Budget:      req.BudgetRange,
		Deadline:    req.StartDate,
		Message:     req.Message,
	}
	if quote.City == "" {
		quote.City = s.cities.Resolve(quote.Address)
	}

	outcome := models.UploadOutcome{Accepted: []models.StoredFile{}}
	if s.uploads != nil && len(uploads) > 0 {
		outcome = s.uploads.Validate(ctx, uploads)
	}

	composed, err := s.composer.Compose(quote, req, outcome.Accepted, outcome.Warnings, client, now)
	if err != nil {
		s.rollback(outcome.Accepted, logger)
		s.metrics.ObserveSubmission("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare your request")
	}

	sendStart := time.Now()
	err = s.transport.Send(ctx, composed.Message)
	s.metrics.ObserveMailSend(time.Since(sendStart))
	if err != nil {
		s.rollback(outcome.Accepted, logger)
		s.metrics.ObserveSubmission("transport_failed")
		logger.Error("quote email delivery failed", zap.Error(err), zap.Int("attachments", len(outcome.Accepted)))
		return nil, appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, appErrors.ErrTransport.Message)
	}

	result := &models.SubmissionResult{
		ID:          uuid.NewString(),
		City:        quote.City,
		Priority:    composed.Priority,
		Attachments: outcome.Accepted,
		Warnings:    outcome.Warnings,
		SentAt:      now.UTC(),
	}
	s.metrics.ObserveSubmission("sent")
	logger.Info("quote email sent",
		zap.String("submission_id", result.ID),
		zap.String("email", quote.Email),
		zap.String("subject", composed.Message.Subject),
		zap.Int("attachments", len(outcome.Accepted)),
		zap.Int("warnings", len(outcome.Warnings)),
	)

	s.scheduleFollowUps(result, quote, req, composed, outcome, client)
	return result, nil
}

func (s *SubmissionService) refuse(uploads []models.UploadCandidate, outcome string) {
	if s.uploads != nil && len(uploads) > 0 {
		s.uploads.DiscardCandidates(uploads)
	}
	s.metrics.ObserveSubmission(outcome)
}

func (s *SubmissionService) rollback(files []models.StoredFile, logger *zap.Logger) {
	if len(files) == 0 || s.uploads == nil {
		return
	}
	if err := s.uploads.Discard(files); err != nil {
		logger.Error("attachment rollback incomplete", zap.Error(err))
		return
	}
	logger.Info("attachments rolled back", zap.Int("count", len(files)))
}

func (s *SubmissionService) scheduleFollowUps(result *models.SubmissionResult, quote models.Quote, req dto.QuoteRequest, composed *ComposedQuote, outcome models.UploadOutcome, client models.ClientInfo) {
	if s.jobs == nil {
		return
	}
	payload := PostSubmission{
		Record: models.SubmissionRecord{
			ID:              result.ID,
			Name:            quote.Name,
			Email:           quote.Email,
			Phone:           quote.Phone,
			City:            quote.City,
			ProjectType:     quote.ProjectType,
			Budget:          quote.Budget,
			AttachmentCount: len(outcome.Accepted),
			AttachmentBytes: outcome.TotalSize(),
			WarningCount:    len(outcome.Warnings),
			ClientIP:        client.IP,
			UserAgent:       client.UserAgent,
			CreatedAt:       result.SentAt,
		},
		Backup: newEmailBackup(result, quote, req, composed, outcome, client),
		Webhook: dto.WebhookQuoteData{
			Nome:        quote.Name,
			Email:       quote.Email,
			Telefone:    quote.Phone,
			Cidade:      quote.City,
			TipoProjeto: quote.ProjectType,
			Orcamento:   orDefault(quote.Budget, notInformed),
		},
	}

	var errs []error
	for _, jobType := range s.followUps.Types() {
		err := s.jobs.Enqueue(jobs.Job{ID: result.ID + ":" + jobType, Type: jobType, Payload: payload})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", jobType, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("follow-up scheduling failed", zap.String("submission_id", result.ID), zap.Error(err))
	}
}

func newEmailBackup(result *models.SubmissionResult, quote models.Quote, req dto.QuoteRequest, composed *ComposedQuote, outcome models.UploadOutcome, client models.ClientInfo) dto.EmailBackup {
	names := make([]string, 0, len(outcome.Accepted))
	for _, f := range outcome.Accepted {
		names = append(names, f.StoredName)
	}
	return dto.EmailBackup{
		ID:        result.ID,
		Timestamp: result.SentAt,
		ClientData: map[string]string{
			"name":         quote.Name,
			"email":        quote.Email,
			"phone":        quote.Phone,
			"city":         quote.City,
			"address":      quote.Address,
			"project_type": quote.ProjectType,
			"start_date":   formatStartDate(req.StartDate),
			"budget_range": orDefault(quote.Budget, notInformed),
			"message":      quote.Message,
			"user_agent":   client.UserAgent,
		},
		EmailHTML:   composed.HTML,
		Attachments: names,
		IPAddress:   client.IP,
	}
}
