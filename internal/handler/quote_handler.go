package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
	"github.com/noah-isme/rc-quote-api/pkg/response"
)

// attachmentFields are the multipart keys carrying files.
var attachmentFields = []string{"attachments", "attachments[]"}

// formTextLimit bounds the combined size of the non-file fields.
const formTextLimit = 1 << 20

type quoteSubmitter interface {
	Submit(ctx context.Context, req dto.QuoteRequest, uploads []models.UploadCandidate, client models.ClientInfo) (*models.SubmissionResult, error)
}

type uploadSpool interface {
	EnsureDir(dir string) error
	SaveStream(name string, r io.Reader) (int64, error)
	Remove(name string) error
}

// QuoteHandler receives the quote form.
type QuoteHandler struct {
	service quoteSubmitter
	spool   uploadSpool
	upload  config.UploadConfig
	form    config.FormConfig
	logger  *zap.Logger
}

// NewQuoteHandler constructs the handler.
func NewQuoteHandler(service quoteSubmitter, spool uploadSpool, upload config.UploadConfig, form config.FormConfig, logger *zap.Logger) *QuoteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteHandler{service: service, spool: spool, upload: upload, form: form, logger: logger}
}

// Submit godoc
// @Summary Submit a quote request
// @Description Browsers are redirected to the success or error page; clients sending Accept: application/json receive the envelope.
// @Tags Quotes
// @Accept multipart/form-data
// @Produce json
// @Param name formData string true "Full name"
// @Param email formData string true "E-mail"
// @Param phone formData string true "Phone"
// @Param address formData string true "Address"
// @Param message formData string true "Project description"
// @Param project-type formData string true "Project type"
// @Param start-date formData string false "Desired start date (YYYY-MM-DD)"
// @Param budget-range formData string false "Budget range"
// @Param city formData string false "City"
// @Param services[] formData []string false "Requested services"
// @Param attachments[] formData file false "Photos, videos or PDFs"
// @Success 200 {object} response.Envelope
// @Success 303 "Redirect to the success page"
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /quotes [post]
func (h *QuoteHandler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestSize())

	req, candidates, err := h.readForm(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	client := models.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}

	result, err := h.service.Submit(c.Request.Context(), req, candidates, client)
	if err != nil {
		h.fail(c, err)
		return
	}

	uploaded := make([]string, 0, len(result.Attachments))
	for _, f := range result.Attachments {
		uploaded = append(uploaded, f.OriginalName)
	}
	if response.WantsJSON(c) {
		response.JSON(c, http.StatusOK, dto.QuoteResponse{
			ID:       result.ID,
			Sent:     true,
			Files:    len(result.Attachments),
			Uploaded: uploaded,
			Warnings: result.Warnings,
			City:     result.City,
		})
		return
	}

	query := url.Values{}
	query.Set("sent", "true")
	query.Set("files", strconv.Itoa(len(result.Attachments)))
	if len(result.Warnings) > 0 {
		query.Set("warnings", strings.Join(result.Warnings, ". "))
	}
	if len(uploaded) > 0 {
		query.Set("uploaded", strings.Join(uploaded, ", "))
	}
	response.SeeOther(c, h.form.SuccessURL, query)
}

// Reject sends non-POST visits back to the home page.
func (h *QuoteHandler) Reject(c *gin.Context) {
	response.SeeOther(c, h.form.HomeURL, nil)
}

func (h *QuoteHandler) fail(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("quote submission failed", zap.String("code", appErr.Code), zap.Error(err))
	}
	if response.WantsJSON(c) {
		response.Error(c, appErr)
		return
	}
	query := url.Values{}
	query.Set("error", appErr.Message)
	response.SeeOther(c, h.form.ErrorURL, query)
}

func (h *QuoteHandler) maxRequestSize() int64 {
	if h.upload.MaxRequestSize > 0 {
		return h.upload.MaxRequestSize
	}
	return h.upload.MaxFileSize*int64(2*max(h.upload.MaxFiles, 1)) + formTextLimit
}

// readForm walks the multipart body in posted order. File parts are spooled one at a time
// under a per-file limit, so an oversized attachment turns into a warning downstream instead
// of failing the submission.
func (h *QuoteHandler) readForm(c *gin.Context) (dto.QuoteRequest, []models.UploadCandidate, error) {
	var req dto.QuoteRequest
	reader, err := c.Request.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		if err := c.ShouldBind(&req); err != nil {
			return req, nil, invalidForm(err)
		}
		return req, nil, nil
	}
	if err != nil {
		return req, nil, invalidForm(err)
	}

	values := url.Values{}
	textLeft := int64(formTextLimit)
	var candidates []models.UploadCandidate
	tempChecked, tempReady := false, false
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.logger.Warn("multipart body ended early", zap.Int("files", len(candidates)), zap.Error(err))
			break
		}

		field := part.FormName()
		if part.FileName() == "" {
			if isAttachmentField(field) {
				continue
			}
			data, err := io.ReadAll(io.LimitReader(part, textLeft+1))
			if err != nil {
				h.discardSpooled(candidates)
				return req, nil, invalidForm(err)
			}
			if int64(len(data)) > textLeft {
				h.discardSpooled(candidates)
				return req, nil, appErrors.Clone(appErrors.ErrValidation, "the submission is too large")
			}
			textLeft -= int64(len(data))
			values.Add(field, string(data))
			continue
		}
		if !isAttachmentField(field) {
			continue
		}

		if !tempChecked {
			tempChecked, tempReady = true, h.spool.EnsureDir(h.upload.TempDir) == nil
		}
		candidates = append(candidates, h.spoolPart(part, tempReady))
	}

	if err := binding.MapFormWithTag(&req, values, "form"); err != nil {
		h.discardSpooled(candidates)
		return req, nil, invalidForm(err)
	}
	return req, candidates, nil
}

// spoolPart copies one file part to the temp directory, reading at most one byte past the file limit.
func (h *QuoteHandler) spoolPart(part *multipart.Part, tempReady bool) models.UploadCandidate {
	candidate := models.UploadCandidate{
		OriginalName: part.FileName(),
		DeclaredType: part.Header.Get("Content-Type"),
		Status:       models.TransferOK,
	}
	if !tempReady {
		candidate.Status = models.TransferNoTempDir
		return candidate
	}

	candidate.TempPath = path.Join(h.upload.TempDir, "upload-"+uuid.NewString())
	src := &readErrRecorder{r: io.LimitReader(part, h.upload.MaxFileSize+1)}
	written, err := h.spool.SaveStream(candidate.TempPath, src)
	candidate.Size = written

	var bodyLimit *http.MaxBytesError
	switch {
	case errors.As(src.err, &bodyLimit):
		h.logger.Warn("request body limit reached", zap.String("file", candidate.OriginalName), zap.Int64("limit", bodyLimit.Limit))
		candidate.Status = models.TransferPartial
	case src.err != nil:
		candidate.Status = models.TransferPartial
	case err != nil:
		h.logger.Warn("attachment spool failed", zap.String("file", candidate.OriginalName), zap.Error(err))
		candidate.Status = models.TransferWriteFailed
	case written > h.upload.MaxFileSize:
		candidate.Status = models.TransferTooLarge
	}
	if candidate.Status != models.TransferOK {
		_ = h.spool.Remove(candidate.TempPath)
		candidate.TempPath = ""
	}
	return candidate
}

func (h *QuoteHandler) discardSpooled(candidates []models.UploadCandidate) {
	for _, c := range candidates {
		if c.TempPath != "" {
			_ = h.spool.Remove(c.TempPath)
		}
	}
}

func invalidForm(err error) error {
	message := "invalid form submission"
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		message = "the submission is too large"
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func isAttachmentField(name string) bool {
	for _, field := range attachmentFields {
		if name == field {
			return true
		}
	}
	return false
}

// readErrRecorder keeps the source error so a truncated upload can be told apart from a failed write.
type readErrRecorder struct {
	r   io.Reader
	err error
}

func (r *readErrRecorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		r.err = err
	}
	return n, err
}
