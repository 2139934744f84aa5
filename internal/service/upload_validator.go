package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/config"
)

const (
	maxStoredBaseLength = 50
	storedTimeLayout    = "20060102_150405"
	storedNameAttempts  = 3
)

type uploadFileStore interface {
	EnsureDir(dir string) error
	Open(name string) (afero.File, error)
	Exists(name string) (bool, error)
	Move(src, dst string) error
	Remove(name string) error
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// typeAliases maps legacy or browser-specific MIME names onto the registered ones.
var typeAliases = map[string]string{
	"image/jpg":         "image/jpeg",
	"image/pjpeg":       "image/jpeg",
	"video/mov":         "video/quicktime",
	"video/avi":         "video/x-msvideo",
	"video/msvideo":     "video/x-msvideo",
	"video/wmv":         "video/x-ms-wmv",
	"application/x-pdf": "application/pdf",
}

// typeExtensions lists the extensions expected for each canonical type.
var typeExtensions = map[string][]string{
	"image/jpeg":      {"jpg", "jpeg"},
	"image/png":       {"png"},
	"image/gif":       {"gif"},
	"image/webp":      {"webp"},
	"video/mp4":       {"mp4"},
	"video/quicktime": {"mov"},
	"video/x-msvideo": {"avi"},
	"video/x-ms-wmv":  {"wmv"},
	"application/pdf": {"pdf"},
}

// UploadValidator filters submitted attachments and moves accepted ones into the upload directory.
type UploadValidator struct {
	files        uploadFileStore
	cfg          config.UploadConfig
	allowedTypes map[string]struct{}
	allowedExts  map[string]struct{}
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
	token        func() string
}

// NewUploadValidator builds a validator from the upload configuration.
func NewUploadValidator(files uploadFileStore, cfg config.UploadConfig, metrics *MetricsService, logger *zap.Logger) *UploadValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	types := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		types[canonicalType(t)] = struct{}{}
	}
	exts := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, e := range cfg.AllowedExtensions {
		exts[strings.TrimPrefix(strings.ToLower(e), ".")] = struct{}{}
	}
	return &UploadValidator{
		files:        files,
		cfg:          cfg,
		allowedTypes: types,
		allowedExts:  exts,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
		token:        func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:16] },
	}
}

// Validate applies the checks to each candidate in submission order. A rejected file
// becomes a warning; the method never fails the submission.
func (v *UploadValidator) Validate(ctx context.Context, candidates []models.UploadCandidate) models.UploadOutcome {
	outcome := models.UploadOutcome{Accepted: []models.StoredFile{}}
	if len(candidates) == 0 {
		return outcome
	}

	if err := v.files.EnsureDir(v.cfg.Dir); err != nil {
		v.logger.Error("upload directory unavailable", zap.String("dir", v.cfg.Dir), zap.Error(err))
		outcome.Warnings = append(outcome.Warnings, "attachments could not be stored, the request was sent without them")
		v.discardCandidates(candidates)
		v.metrics.ObserveUploads(0, len(candidates))
		return outcome
	}

	rejected := 0
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			outcome.Warnings = append(outcome.Warnings, "attachment processing was interrupted")
			rejected += len(candidates) - i
			v.discardCandidates(candidates[i:])
			break
		}

		name := displayName(candidate.OriginalName)
		stored, reason := v.accept(candidate, name, len(outcome.Accepted))
		if reason != "" {
			rejected++
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%s: %s", name, reason))
			v.logger.Warn("attachment rejected", zap.String("file", name), zap.String("reason", reason))
			v.discardCandidate(candidate)
			continue
		}
		outcome.Accepted = append(outcome.Accepted, stored)
		v.logger.Info("attachment stored",
			zap.String("file", name),
			zap.String("stored_name", stored.StoredName),
			zap.String("size", humanize.IBytes(uint64(stored.Size))),
		)
	}

	v.metrics.ObserveUploads(len(outcome.Accepted), rejected)
	return outcome
}

// Discard deletes stored files, used to roll back a failed submission.
func (v *UploadValidator) Discard(files []models.StoredFile) error {
	var errs []error
	for _, f := range files {
		if err := v.files.Remove(f.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		v.logger.Info("attachment rolled back", zap.String("stored_name", f.StoredName))
	}
	return errors.Join(errs...)
}

// DiscardCandidates removes the temporary files of candidates that will not be validated.
func (v *UploadValidator) DiscardCandidates(candidates []models.UploadCandidate) {
	v.discardCandidates(candidates)
}

func (v *UploadValidator) accept(c models.UploadCandidate, name string, acceptedSoFar int) (models.StoredFile, string) {
	if c.Status == models.TransferTooLarge {
		return models.StoredFile{}, fmt.Sprintf("file too large (max %s)", humanize.IBytes(uint64(v.cfg.MaxFileSize)))
	}
	if c.Status != models.TransferOK {
		return models.StoredFile{}, "upload failed (" + c.Status.String() + ")"
	}
	if c.Size > v.cfg.MaxFileSize {
		return models.StoredFile{}, fmt.Sprintf("file too large (%s, max %s)",
			humanize.IBytes(uint64(c.Size)), humanize.IBytes(uint64(v.cfg.MaxFileSize)))
	}
	if acceptedSoFar >= v.cfg.MaxFiles {
		return models.StoredFile{}, fmt.Sprintf("file limit exceeded (max %d files)", v.cfg.MaxFiles)
	}

	declared := canonicalType(c.DeclaredType)
	if _, ok := v.allowedTypes[declared]; !ok {
		return models.StoredFile{}, fmt.Sprintf("file type not allowed (%s)", c.DeclaredType)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if _, ok := v.allowedExts[ext]; !ok {
		return models.StoredFile{}, fmt.Sprintf("file extension not allowed (.%s)", ext)
	}
	if expected, known := typeExtensions[declared]; known && !contains(expected, ext) {
		return models.StoredFile{}, fmt.Sprintf("file extension .%s does not match type %s", ext, declared)
	}

	sniffed, err := v.sniff(c.TempPath)
	if err != nil {
		v.logger.Warn("attachment unreadable", zap.String("file", name), zap.Error(err))
		return models.StoredFile{}, "file content could not be read"
	}
	if !v.typeAllowed(sniffed) {
		return models.StoredFile{}, fmt.Sprintf("file content not allowed (%s)", sniffed.String())
	}
	if !matches(sniffed, declared) {
		return models.StoredFile{}, fmt.Sprintf("file content (%s) does not match declared type %s", sniffed.String(), declared)
	}

	stored, err := v.store(c, name, ext, declared)
	if err != nil {
		v.logger.Error("attachment move failed", zap.String("file", name), zap.Error(err))
		return models.StoredFile{}, "file could not be saved"
	}
	return stored, ""
}

func (v *UploadValidator) sniff(path string) (*mimetype.MIME, error) {
	f, err := v.files.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return mimetype.DetectReader(f)
}

func (v *UploadValidator) typeAllowed(m *mimetype.MIME) bool {
	for t := range v.allowedTypes {
		if matches(m, t) {
			return true
		}
	}
	return false
}

func (v *UploadValidator) store(c models.UploadCandidate, name, ext, contentType string) (models.StoredFile, error) {
	now := v.now()
	var storedName, dest string
	for attempt := 0; ; attempt++ {
		if attempt == storedNameAttempts {
			return models.StoredFile{}, fmt.Errorf("no free stored name for %s after %d attempts", name, storedNameAttempts)
		}
		storedName = v.storedName(name, ext, now)
		dest = filepath.Join(v.cfg.Dir, storedName)
		exists, err := v.files.Exists(dest)
		if err != nil {
			return models.StoredFile{}, err
		}
		if !exists {
			break
		}
	}
	if err := v.files.Move(c.TempPath, dest); err != nil {
		return models.StoredFile{}, err
	}
	return models.StoredFile{
		StoredName:   storedName,
		OriginalName: name,
		Size:         c.Size,
		ContentType:  contentType,
		CreatedAt:    now.UTC(),
		Directory:    v.cfg.Dir,
		Path:         dest,
	}, nil
}

func (v *UploadValidator) storedName(original, ext string, now time.Time) string {
	base := strings.TrimSuffix(original, filepath.Ext(original))
	return fmt.Sprintf("%s%s_%s_%s.%s", v.cfg.NamePrefix, now.Format(storedTimeLayout), v.token(), sanitizeBaseName(base), ext)
}

func (v *UploadValidator) discardCandidates(candidates []models.UploadCandidate) {
	for _, c := range candidates {
		v.discardCandidate(c)
	}
}

func (v *UploadValidator) discardCandidate(c models.UploadCandidate) {
	if c.TempPath == "" {
		return
	}
	if err := v.files.Remove(c.TempPath); err != nil {
		v.logger.Debug("temp upload cleanup failed", zap.String("path", c.TempPath), zap.Error(err))
	}
}

// sanitizeBaseName keeps [A-Za-z0-9._-], replaces everything else with '_' and bounds the length.
func sanitizeBaseName(base string) string {
	safe := unsafeNameChars.ReplaceAllString(base, "_")
	if len(safe) > maxStoredBaseLength {
		safe = safe[:maxStoredBaseLength]
	}
	if safe == "" {
		safe = "file"
	}
	return safe
}

func displayName(original string) string {
	name := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

func canonicalType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	return t
}

// matches reports whether the sniffed type, or one of its parents, is the given type.
func matches(m *mimetype.MIME, contentType string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(contentType) {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
