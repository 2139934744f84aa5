package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
	"github.com/noah-isme/rc-quote-api/pkg/storage"
)

// Removal reasons reported per file.
const (
	RemovalReasonAge  = "age"
	RemovalReasonSize = "size"
)

const logBackupDateLayout = "2006-01-02"

type retentionFileStore interface {
	Path(name string) string
	Exists(name string) (bool, error)
	Glob(dir, pattern string) ([]storage.FileInfo, error)
	Walk(dir string) ([]storage.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFileAtomic(name string, data []byte, perm os.FileMode) error
	Remove(name string) error
}

// RunOptions controls one retention run.
type RunOptions struct {
	DryRun bool
	Force  bool
}

// RetentionDeps groups the collaborators of the retention engine.
type RetentionDeps struct {
	Files    retentionFileStore
	Disk     storage.DiskProbe
	Notifier retentionNotifier
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// RetentionService enforces per-directory age and size budgets and rotates logs.
type RetentionService struct {
	files     retentionFileStore
	disk      storage.DiskProbe
	notifier  retentionNotifier
	metrics   *MetricsService
	logger    *zap.Logger
	policies  []models.RetentionPolicy
	minFree   int64
	threshold int64
	now       func() time.Time
}

// BuildRetentionPolicies turns the retention configuration into validated policies,
// one per enabled directory.
func BuildRetentionPolicies(cfg config.RetentionConfig) ([]models.RetentionPolicy, error) {
	policies := make([]models.RetentionPolicy, 0, len(cfg.Directories))
	for _, d := range cfg.Directories {
		if !d.Enabled {
			continue
		}
		p, err := models.NewRetentionPolicy(models.RetentionPolicy{
			Name:             d.Name,
			Directory:        d.Dir,
			Pattern:          d.Pattern,
			AgeThresholdDays: d.Days,
			MaxSizeBytes:     d.MaxSizeBytes,
			MaxFilesPerRun:   cfg.MaxFilesPerRun,
			Enabled:          true,
			RotateLogs:       d.RotateLogs,
			MaxLines:         cfg.LogMaxLines,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, err.Error())
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// NewRetentionService validates the configuration and builds the engine.
func NewRetentionService(cfg config.RetentionConfig, deps RetentionDeps) (*RetentionService, error) {
	policies, err := BuildRetentionPolicies(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &RetentionService{
		files:     deps.Files,
		disk:      deps.Disk,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		policies:  policies,
		minFree:   cfg.MinFreeBytes,
		threshold: cfg.NotificationThresholdBytes,
		now:       time.Now,
	}, nil
}

// Policies returns the policies the engine applies, in order.
func (s *RetentionService) Policies() []models.RetentionPolicy {
	return append([]models.RetentionPolicy(nil), s.policies...)
}

// Run processes every policy once. A failing directory is recorded in its report and the
// run continues; the returned error is non-nil only when ctx ends the run early.
func (s *RetentionService) Run(ctx context.Context, opts RunOptions) (*models.RetentionSummary, error) {
	mode := models.RunModeApplied
	if opts.DryRun {
		mode = models.RunModeDryRun
	}
	now := s.now()
	reporter := NewRetentionReporter(mode, s.threshold, s.notifier, s.metrics, s.logger)
	reporter.now = s.now
	reporter.startedAt = now

	s.logger.Info("retention run started",
		zap.String("mode", string(mode)),
		zap.Bool("force", opts.Force),
		zap.Int("directories", len(s.policies)),
	)

	blocked := s.checkDiskSpace(reporter, opts)
	for _, p := range s.policies {
		if blocked != "" {
			reporter.Record(models.NewCleanupReport(p, mode, nil, nil, []string{blocked}))
			continue
		}
		if ctx.Err() != nil {
			reporter.Record(models.NewCleanupReport(p, mode, nil, nil, []string{"run cancelled before directory was processed"}))
			continue
		}
		reporter.Record(s.cleanDirectory(ctx, p, mode, now))
	}

	summary := reporter.Finalize(ctx)
	return &summary, ctx.Err()
}

// checkDiskSpace records the disk status and returns the blocking reason, if any.
func (s *RetentionService) checkDiskSpace(reporter *RetentionReporter, opts RunOptions) string {
	if s.disk == nil {
		return ""
	}
	usage, err := s.disk.Usage(s.files.Path("."))
	if err != nil {
		s.logger.Warn("disk space unavailable", zap.Error(err))
		reporter.AddError(fmt.Sprintf("disk space check failed: %v", err))
		return ""
	}
	status := models.NewDiskSpaceStatus(usage.Available, usage.Total)
	reporter.SetDisk(status)
	s.logger.Info("disk space",
		zap.String("free", humanize.IBytes(uint64(status.FreeBytes))),
		zap.String("total", humanize.IBytes(uint64(status.TotalBytes))),
		zap.Float64("percent_free", status.PercentFree),
	)
	if s.minFree <= 0 || status.FreeBytes >= s.minFree || opts.Force || opts.DryRun {
		return ""
	}
	reason := fmt.Sprintf("insufficient disk space: %s free, %s required (use --force to override)",
		humanize.IBytes(uint64(status.FreeBytes)), humanize.IBytes(uint64(s.minFree)))
	s.logger.Error("retention blocked", zap.String("reason", reason))
	return reason
}

// cleanupPass holds the state of one directory within a run.
type cleanupPass struct {
	ctx     context.Context
	files   retentionFileStore
	policy  models.RetentionPolicy
	dryRun  bool
	now     time.Time
	logger  *zap.Logger
	gone    map[string]struct{}
	removed []models.RemovedFile
	rotated []models.RotatedLog
	errs    []string
}

func (s *RetentionService) cleanDirectory(ctx context.Context, p models.RetentionPolicy, mode models.RunMode, now time.Time) models.CleanupReport {
	pass := &cleanupPass{
		ctx:    ctx,
		files:  s.files,
		policy: p,
		dryRun: mode == models.RunModeDryRun,
		now:    now,
		logger: s.logger.With(zap.String("directory", p.Name), zap.String("mode", string(mode))),
		gone:   make(map[string]struct{}),
	}

	exists, err := s.files.Exists(p.Directory)
	switch {
	case err != nil:
		pass.fail("cannot access directory %s: %v", p.Directory, err)
	case !exists:
		pass.fail("directory does not exist: %s", p.Directory)
	default:
		pass.agePurge()
		pass.sizeEvict()
		if p.RotateLogs {
			pass.rotateLogs()
		}
	}
	return models.NewCleanupReport(p, mode, pass.removed, pass.rotated, pass.errs)
}

func (p *cleanupPass) fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errs = append(p.errs, msg)
	p.logger.Error("retention step failed", zap.String("error", msg))
}

func (p *cleanupPass) cancelled() bool {
	if err := p.ctx.Err(); err != nil {
		p.fail("run interrupted: %v", err)
		return true
	}
	return false
}

// remove deletes f, or only records it in dry-run mode.
func (p *cleanupPass) remove(f storage.FileInfo, reason string) bool {
	if !p.dryRun {
		if err := p.files.Remove(f.Path); err != nil {
			p.fail("remove %s: %v", f.Name, err)
			return false
		}
	}
	p.gone[f.Path] = struct{}{}
	p.removed = append(p.removed, models.RemovedFile{Path: f.Path, Size: f.Size, ModTime: f.ModTime, Reason: reason})
	p.logger.Info("file removed",
		zap.String("file", f.Name),
		zap.String("size", humanize.IBytes(uint64(f.Size))),
		zap.String("reason", reason),
		zap.Bool("dry_run", p.dryRun),
	)
	return true
}

// agePurge removes files matching the pattern that are older than the age threshold.
// A zero threshold disables the step.
func (p *cleanupPass) agePurge() {
	if p.policy.AgeThresholdDays <= 0 {
		return
	}
	files, err := p.files.Glob(p.policy.Directory, p.policy.Pattern)
	if err != nil {
		p.fail("list %s: %v", p.policy.Directory, err)
		return
	}
	cutoff := p.policy.AgeCutoff(p.now)
	processed := 0
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if processed >= p.policy.MaxFilesPerRun {
			p.logger.Warn("file limit reached, remaining files left for the next run", zap.Int("limit", p.policy.MaxFilesPerRun))
			return
		}
		if p.cancelled() {
			return
		}
		p.remove(f, RemovalReasonAge)
		processed++
	}
}

// sizeEvict removes the oldest files until the directory fits its size cap.
// A zero cap disables the step.
func (p *cleanupPass) sizeEvict() {
	if p.policy.MaxSizeBytes <= 0 {
		return
	}
	all, err := p.files.Walk(p.policy.Directory)
	if err != nil {
		p.fail("walk %s: %v", p.policy.Directory, err)
		return
	}
	candidates := make([]storage.FileInfo, 0, len(all))
	var total int64
	for _, f := range all {
		if _, ok := p.gone[f.Path]; ok {
			continue
		}
		candidates = append(candidates, f)
		total += f.Size
	}
	if total <= p.policy.MaxSizeBytes {
		return
	}
	p.logger.Info("directory over size cap",
		zap.String("size", humanize.IBytes(uint64(total))),
		zap.String("cap", humanize.IBytes(uint64(p.policy.MaxSizeBytes))),
	)

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].ModTime.Equal(candidates[j].ModTime) {
			return candidates[i].ModTime.Before(candidates[j].ModTime)
		}
		return candidates[i].Path < candidates[j].Path
	})
	for _, f := range candidates {
		if total <= p.policy.MaxSizeBytes {
			return
		}
		if p.cancelled() {
			return
		}
		if p.remove(f, RemovalReasonSize) {
			total -= f.Size
		}
	}
}

// rotateLogs trims every *.log file above the line limit, keeping its newest lines.
// The first rotation of a calendar day snapshots the full log to <log>.backup.YYYY-MM-DD.
func (p *cleanupPass) rotateLogs() {
	logs, err := p.files.Glob(p.policy.Directory, "*.log")
	if err != nil {
		p.fail("list logs in %s: %v", p.policy.Directory, err)
		return
	}
	for _, f := range logs {
		if _, ok := p.gone[f.Path]; ok {
			continue
		}
		if p.cancelled() {
			return
		}
		p.rotate(f)
	}
}

func (p *cleanupPass) rotate(f storage.FileInfo) {
	data, err := p.files.ReadFile(f.Path)
	if err != nil {
		p.fail("read %s: %v", f.Name, err)
		return
	}
	lines := splitLines(string(data))
	limit := p.policy.MaxLines
	if len(lines) <= limit {
		return
	}

	backup := LogBackupName(f.Path, p.now)
	backupExists, err := p.files.Exists(backup)
	if err != nil {
		p.fail("stat %s: %v", path.Base(backup), err)
		return
	}
	rotation := models.RotatedLog{Path: f.Path, LinesBefore: len(lines), LinesTrimmed: len(lines) - limit}
	if !backupExists {
		rotation.Backup = backup
	}

	if !p.dryRun {
		if !backupExists {
			if err := p.files.WriteFileAtomic(backup, data, 0o640); err != nil {
				p.fail("backup %s: %v", f.Name, err)
				return
			}
		}
		kept := strings.Join(lines[len(lines)-limit:], "\n") + "\n"
		if err := p.files.WriteFileAtomic(f.Path, []byte(kept), 0o644); err != nil {
			p.fail("rewrite %s: %v", f.Name, err)
			return
		}
	}
	p.rotated = append(p.rotated, rotation)
	p.logger.Info("log rotated",
		zap.String("file", f.Name),
		zap.Int("lines_trimmed", rotation.LinesTrimmed),
		zap.Bool("backup_created", rotation.Backup != ""),
		zap.Bool("dry_run", p.dryRun),
	)
}

// LogBackupName is the dated snapshot name of a log on the day of now.
func LogBackupName(logPath string, now time.Time) string {
	return logPath + ".backup." + now.Format(logBackupDateLayout)
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
