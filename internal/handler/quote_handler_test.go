package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
	"github.com/noah-isme/rc-quote-api/pkg/storage"
)

type quoteSubmitterStub struct {
	req        dto.QuoteRequest
	candidates []models.UploadCandidate
	client     models.ClientInfo
	result     *models.SubmissionResult
	err        error
}

func (s *quoteSubmitterStub) Submit(_ context.Context, req dto.QuoteRequest, uploads []models.UploadCandidate, client models.ClientInfo) (*models.SubmissionResult, error) {
	s.req, s.candidates, s.client = req, uploads, client
	return s.result, s.err
}

type multipartFile struct {
	field, name, contentType string
	content                  []byte
}

func multipartBody(t *testing.T, fields url.Values, files ...multipartFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for key, values := range fields {
		for _, v := range values {
			require.NoError(t, w.WriteField(key, v))
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func quoteFormFields() url.Values {
	return url.Values{
		"name":         {"Maria Souza"},
		"email":        {"maria@example.com"},
		"phone":        {"27999998888"},
		"address":      {"Rua das Palmeiras, 45, Praia do Canto"},
		"message":      {"Gostaria de um orçamento para o banheiro."},
		"project-type": {"reforma-parcial"},
		"services[]":   {"Hidráulica", "Elétrica"},
	}
}

func newQuoteHandlerFixture(svc quoteSubmitter) (*QuoteHandler, *storage.FileStore, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	files := storage.NewFileStore(afero.NewMemMapFs(), "/site")
	upload := config.UploadConfig{TempDir: "temp", MaxFileSize: 1024, MaxFiles: 5}
	form := config.FormConfig{HomeURL: "index.html", ErrorURL: "orcamento.html", SuccessURL: "obrigado.html"}
	h := NewQuoteHandler(svc, files, upload, form, nil)
	r := gin.New()
	r.POST("/enviar-email", h.Submit)
	r.GET("/enviar-email", h.Reject)
	return h, files, r
}

func TestQuoteHandlerSpoolsAttachmentsAndRedirects(t *testing.T) {
	svc := &quoteSubmitterStub{result: &models.SubmissionResult{
		ID:          "s-1",
		City:        "Vitória",
		Attachments: []models.StoredFile{{OriginalName: "foto.jpg"}},
		Warnings:    []string{"video.exe: file type not allowed"},
	}}
	_, files, r := newQuoteHandlerFixture(svc)

	body, contentType := multipartBody(t, quoteFormFields(),
		multipartFile{field: "attachments[]", name: "foto.jpg", contentType: "image/jpeg", content: []byte("jpeg-bytes")},
		multipartFile{field: "attachments", name: "video.exe", contentType: "application/octet-stream", content: []byte("MZ")},
	)
	req := httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "obrigado.html", location.Path)
	require.Equal(t, "true", location.Query().Get("sent"))
	require.Equal(t, "1", location.Query().Get("files"))
	require.Equal(t, "foto.jpg", location.Query().Get("uploaded"))
	require.Equal(t, "video.exe: file type not allowed", location.Query().Get("warnings"))

	require.Equal(t, "Maria Souza", svc.req.Name)
	require.Equal(t, "reforma-parcial", svc.req.ProjectType)
	require.Equal(t, []string{"Hidráulica", "Elétrica"}, svc.req.Services)
	require.Equal(t, "test-agent", svc.client.UserAgent)

	require.Len(t, svc.candidates, 2)
	require.Equal(t, "foto.jpg", svc.candidates[0].OriginalName)
	require.Equal(t, "video.exe", svc.candidates[1].OriginalName)
	for _, c := range svc.candidates {
		require.Equal(t, models.TransferOK, c.Status)
		exists, err := files.Exists(c.TempPath)
		require.NoError(t, err)
		require.True(t, exists)
	}
	spooled, err := files.ReadFile(svc.candidates[0].TempPath)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(spooled))
	require.Equal(t, "image/jpeg", svc.candidates[0].DeclaredType)
	require.Equal(t, int64(len("jpeg-bytes")), svc.candidates[0].Size)
}

func TestQuoteHandlerKeepsPostedOrderAcrossFieldNames(t *testing.T) {
	svc := &quoteSubmitterStub{result: &models.SubmissionResult{ID: "s-3"}}
	_, _, r := newQuoteHandlerFixture(svc)

	body, contentType := multipartBody(t, quoteFormFields(),
		multipartFile{field: "attachments", name: "a.jpg", contentType: "image/jpeg", content: []byte("a")},
		multipartFile{field: "attachments[]", name: "b.jpg", contentType: "image/jpeg", content: []byte("b")},
		multipartFile{field: "attachments", name: "c.jpg", contentType: "image/jpeg", content: []byte("c")},
		multipartFile{field: "other", name: "ignored.jpg", contentType: "image/jpeg", content: []byte("x")},
	)
	req := httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	names := make([]string, 0, len(svc.candidates))
	for _, c := range svc.candidates {
		names = append(names, c.OriginalName)
	}
	require.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, names)
}

func TestQuoteHandlerOversizedFilesDoNotFailSubmission(t *testing.T) {
	svc := &quoteSubmitterStub{result: &models.SubmissionResult{
		ID:       "s-4",
		Warnings: []string{"f.pdf: file limit exceeded (max 5 files)"},
	}}
	_, files, r := newQuoteHandlerFixture(svc)

	atLimit := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{'0'}, 1024-9)...)
	var parts []multipartFile
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf"} {
		parts = append(parts, multipartFile{field: "attachments[]", name: name, contentType: "application/pdf", content: atLimit})
	}
	parts = append(parts, multipartFile{field: "attachments[]", name: "obra.mp4", contentType: "video/mp4", content: bytes.Repeat([]byte{1}, 4096)})

	body, contentType := multipartBody(t, quoteFormFields(), parts...)
	req := httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Maria Souza", svc.req.Name)
	require.Len(t, svc.candidates, 7)
	for _, c := range svc.candidates[:6] {
		require.Equal(t, models.TransferOK, c.Status)
		require.Equal(t, int64(1024), c.Size)
		exists, err := files.Exists(c.TempPath)
		require.NoError(t, err)
		require.True(t, exists)
	}
	require.Equal(t, "f.pdf", svc.candidates[5].OriginalName)

	oversized := svc.candidates[6]
	require.Equal(t, "obra.mp4", oversized.OriginalName)
	require.Equal(t, models.TransferTooLarge, oversized.Status)
	require.Empty(t, oversized.TempPath)
	temp, err := files.Walk("temp")
	require.NoError(t, err)
	require.Len(t, temp, 6)
}

func TestQuoteHandlerRequestLimitKeepsEarlierParts(t *testing.T) {
	svc := &quoteSubmitterStub{result: &models.SubmissionResult{ID: "s-5"}}
	h, _, r := newQuoteHandlerFixture(svc)

	var parts []multipartFile
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		parts = append(parts, multipartFile{field: "attachments[]", name: name, contentType: "image/jpeg", content: bytes.Repeat([]byte{byte('a' + i)}, 1000)})
	}
	body, contentType := multipartBody(t, quoteFormFields(), parts...)
	third := bytes.Index(body.Bytes(), bytes.Repeat([]byte{'c'}, 1000))
	require.Positive(t, third)
	h.upload.MaxRequestSize = int64(third + 500)

	req := httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Maria Souza", svc.req.Name)
	require.Len(t, svc.candidates, 3)
	require.Equal(t, models.TransferOK, svc.candidates[0].Status)
	require.Equal(t, models.TransferOK, svc.candidates[1].Status)
	require.Equal(t, models.TransferPartial, svc.candidates[2].Status)
	require.Empty(t, svc.candidates[2].TempPath)
}

func TestQuoteHandlerFormTooLarge(t *testing.T) {
	svc := &quoteSubmitterStub{result: &models.SubmissionResult{ID: "s-6"}}
	_, _, r := newQuoteHandlerFixture(svc)

	fields := quoteFormFields()
	fields.Set("message", strings.Repeat("x", formTextLimit+1))
	body, contentType := multipartBody(t, fields)
	req := httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "the submission is too large")
	require.Empty(t, svc.req.Name)
}

func TestQuoteHandlerJSONClients(t *testing.T) {
	svc := &quoteSubmitterStub{result: &models.SubmissionResult{ID: "s-2", City: "Serra"}}
	_, _, r := newQuoteHandlerFixture(svc)

	body, contentType := multipartBody(t, quoteFormFields())
	req := httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data dto.QuoteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Data.Sent)
	require.Equal(t, "s-2", envelope.Data.ID)
	require.Equal(t, "Serra", envelope.Data.City)
	require.Empty(t, svc.candidates)
}

func TestQuoteHandlerErrors(t *testing.T) {
	svc := &quoteSubmitterStub{err: appErrors.Clone(appErrors.ErrRateLimited, "too many requests, please try again later")}
	_, _, r := newQuoteHandlerFixture(svc)

	body, contentType := multipartBody(t, quoteFormFields())
	req := httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "orcamento.html", location.Path)
	require.Equal(t, "too many requests, please try again later", location.Query().Get("error"))

	body, contentType = multipartBody(t, quoteFormFields())
	req = httptest.NewRequest(http.MethodPost, "/enviar-email", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")
}

func TestQuoteHandlerRejectsGet(t *testing.T) {
	_, _, r := newQuoteHandlerFixture(&quoteSubmitterStub{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/enviar-email", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "index.html", w.Header().Get("Location"))
}
