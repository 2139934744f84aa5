package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
	"github.com/noah-isme/rc-quote-api/pkg/storage"
)

var retentionNow = time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC)

type diskProbeStub struct {
	usage storage.DiskUsage
	err   error
}

func (d diskProbeStub) Usage(string) (storage.DiskUsage, error) {
	return d.usage, d.err
}

type retentionNotifierStub struct {
	calls []models.RetentionSummary
	err   error
}

func (n *retentionNotifierStub) NotifyRetention(_ context.Context, summary models.RetentionSummary) error {
	n.calls = append(n.calls, summary)
	return n.err
}

func retentionTestConfig() config.RetentionConfig {
	return config.RetentionConfig{
		Root:                       "/srv",
		MinFreeBytes:               100,
		MaxFilesPerRun:             1000,
		LogMaxLines:                5,
		NotificationThresholdBytes: 10,
		Directories: []config.DirectoryRetention{
			{Name: "uploads", Dir: "uploads", Pattern: "*", Days: 7, MaxSizeBytes: 300, Enabled: true},
			{Name: "logs", Dir: "logs", Pattern: "*", Days: 30, Enabled: true, RotateLogs: true},
			{Name: "cache", Dir: "cache", Pattern: "*", Days: 7, Enabled: false},
		},
	}
}

func newRetentionFixture(t *testing.T, fsys afero.Fs, cfg config.RetentionConfig, disk storage.DiskProbe, notifier retentionNotifier) *RetentionService {
	t.Helper()
	svc, err := NewRetentionService(cfg, RetentionDeps{
		Files:    storage.NewFileStore(fsys, cfg.Root),
		Disk:     disk,
		Notifier: notifier,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return retentionNow }
	return svc
}

func plentyOfDisk() diskProbeStub {
	return diskProbeStub{usage: storage.DiskUsage{Total: 1 << 30, Available: 1 << 29}}
}

func writeAged(t *testing.T, fsys afero.Fs, path string, content []byte, age time.Duration) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, content, 0o644))
	mtime := retentionNow.Add(-age)
	require.NoError(t, fsys.Chtimes(path, mtime, mtime))
}

func numberedLines(from, to int) string {
	var b strings.Builder
	for i := from; i <= to; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

const day = 24 * time.Hour

func seedRetentionTree(t *testing.T, fsys afero.Fs) {
	t.Helper()
	block := func(n int) []byte { return []byte(strings.Repeat("x", n)) }
	writeAged(t, fsys, "/srv/uploads/a.bin", block(100), 10*day)
	writeAged(t, fsys, "/srv/uploads/b.bin", block(50), 8*day)
	writeAged(t, fsys, "/srv/uploads/c.bin", block(100), 3*day)
	writeAged(t, fsys, "/srv/uploads/d.bin", block(100), 2*day)
	writeAged(t, fsys, "/srv/uploads/e.bin", block(100), 1*day)
	writeAged(t, fsys, "/srv/uploads/sub/f.bin", block(100), 2*day)
	writeAged(t, fsys, "/srv/logs/app.log", []byte(numberedLines(1, 8)), time.Hour)
	writeAged(t, fsys, "/srv/logs/old.txt", block(10), 40*day)
}

func snapshotTree(t *testing.T, fsys afero.Fs) map[string]string {
	t.Helper()
	state := make(map[string]string)
	require.NoError(t, afero.Walk(fsys, "/srv", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		state[path] = fmt.Sprintf("%s|%d", data, info.ModTime().UnixNano())
		return nil
	}))
	return state
}

func reportByName(t *testing.T, summary *models.RetentionSummary, name string) models.CleanupReport {
	t.Helper()
	for _, r := range summary.Reports {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no report for %s", name)
	return models.CleanupReport{}
}

func removedPaths(report models.CleanupReport) []string {
	paths := make([]string, 0, len(report.Removed))
	for _, f := range report.Removed {
		paths = append(paths, f.Path)
	}
	return paths
}

func TestRetentionDryRunIsPureAndMatchesRealRun(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedRetentionTree(t, fsys)
	svc := newRetentionFixture(t, fsys, retentionTestConfig(), plentyOfDisk(), nil)

	before := snapshotTree(t, fsys)
	dry, err := svc.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, before, snapshotTree(t, fsys))
	require.Equal(t, models.RunModeDryRun, dry.Mode)
	require.Len(t, dry.Reports, 2)

	applied, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, models.RunModeApplied, applied.Mode)

	for _, name := range []string{"uploads", "logs"} {
		d, r := reportByName(t, dry, name), reportByName(t, applied, name)
		require.Equal(t, d.FilesRemoved, r.FilesRemoved, name)
		require.Equal(t, d.BytesFreed, r.BytesFreed, name)
		require.Equal(t, d.LinesTrimmed, r.LinesTrimmed, name)
		require.Equal(t, removedPaths(d), removedPaths(r), name)
		require.Equal(t, d.Rotated, r.Rotated, name)
	}
	require.Equal(t, dry.FilesRemoved, applied.FilesRemoved)
	require.Equal(t, dry.BytesFreed, applied.BytesFreed)

	uploads := reportByName(t, applied, "uploads")
	require.Equal(t, []string{"/srv/uploads/a.bin", "/srv/uploads/b.bin", "/srv/uploads/c.bin"}, removedPaths(uploads))
	require.Equal(t, RemovalReasonAge, uploads.Removed[0].Reason)
	require.Equal(t, RemovalReasonSize, uploads.Removed[2].Reason)
	require.Equal(t, int64(250), uploads.BytesFreed)

	logs := reportByName(t, applied, "logs")
	require.Equal(t, []string{"/srv/logs/old.txt"}, removedPaths(logs))
	require.Equal(t, 3, logs.LinesTrimmed)
}

func TestRetentionSizeEvictionConverges(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for i, name := range []string{"z.bin", "y.bin", "x.bin", "w.bin", "v.bin"} {
		age := time.Duration(5-i/2) * time.Hour
		writeAged(t, fsys, "/srv/uploads/"+name, []byte(strings.Repeat("x", 100)), age)
	}
	cfg := retentionTestConfig()
	cfg.Directories = cfg.Directories[:1]
	cfg.Directories[0].MaxSizeBytes = 250
	svc := newRetentionFixture(t, fsys, cfg, plentyOfDisk(), nil)

	summary, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	report := reportByName(t, summary, "uploads")
	require.Equal(t, []string{"/srv/uploads/y.bin", "/srv/uploads/z.bin", "/srv/uploads/w.bin"}, removedPaths(report))

	remaining, err := storage.NewFileStore(fsys, "/srv").DirSize("uploads")
	require.NoError(t, err)
	require.LessOrEqual(t, remaining, int64(250))
}

func TestRetentionLogRotationKeepsNewestLines(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeAged(t, fsys, "/srv/logs/app.log", []byte(numberedLines(1, 12)), time.Hour)
	cfg := retentionTestConfig()
	cfg.Directories = cfg.Directories[1:2]
	svc := newRetentionFixture(t, fsys, cfg, plentyOfDisk(), nil)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	rotated, err := afero.ReadFile(fsys, "/srv/logs/app.log")
	require.NoError(t, err)
	require.Equal(t, numberedLines(8, 12), string(rotated))

	backupPath := LogBackupName("/srv/logs/app.log", retentionNow)
	backup, err := afero.ReadFile(fsys, backupPath)
	require.NoError(t, err)
	require.Equal(t, numberedLines(1, 12), string(backup))

	// Same day, log grows again: trimmed again, but the day's backup is kept as is.
	require.NoError(t, afero.WriteFile(fsys, "/srv/logs/app.log", []byte(numberedLines(8, 20)), 0o644))
	summary, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	logs := reportByName(t, summary, "logs")
	require.Len(t, logs.Rotated, 1)
	require.Empty(t, logs.Rotated[0].Backup)

	rotated, err = afero.ReadFile(fsys, "/srv/logs/app.log")
	require.NoError(t, err)
	require.Equal(t, numberedLines(16, 20), string(rotated))
	backup, err = afero.ReadFile(fsys, backupPath)
	require.NoError(t, err)
	require.Equal(t, numberedLines(1, 12), string(backup))

	backups, err := afero.Glob(fsys, "/srv/logs/app.log.backup.*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestRetentionBlockedByLowDiskSpace(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedRetentionTree(t, fsys)
	lowDisk := diskProbeStub{usage: storage.DiskUsage{Total: 1000, Available: 50}}
	svc := newRetentionFixture(t, fsys, retentionTestConfig(), lowDisk, nil)
	before := snapshotTree(t, fsys)

	summary, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, before, snapshotTree(t, fsys))
	require.Zero(t, summary.FilesRemoved)
	require.NotNil(t, summary.Disk)
	require.InDelta(t, 5.0, summary.Disk.PercentFree, 0.001)
	for _, r := range summary.Reports {
		require.Len(t, r.Errors, 1)
		require.Contains(t, r.Errors[0], "insufficient disk space")
	}

	dry, err := svc.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	require.Positive(t, dry.FilesRemoved)

	forced, err := svc.Run(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)
	require.Equal(t, dry.FilesRemoved, forced.FilesRemoved)
}

func TestRetentionIsolatesDirectoryFailures(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeAged(t, fsys, "/srv/logs/old.txt", []byte("x"), 40*day)
	svc := newRetentionFixture(t, fsys, retentionTestConfig(), diskProbeStub{err: errors.New("statfs failed")}, nil)

	summary, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Nil(t, summary.Disk)

	uploads := reportByName(t, summary, "uploads")
	require.Len(t, uploads.Errors, 1)
	require.Contains(t, uploads.Errors[0], "does not exist")
	require.Equal(t, 1, reportByName(t, summary, "logs").FilesRemoved)
	require.Contains(t, summary.Errors, "uploads: "+uploads.Errors[0])
	require.Contains(t, summary.Errors[0], "disk space check failed")
}

func TestRetentionCapsFilesPerRun(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, name := range []string{"a", "b", "c"} {
		writeAged(t, fsys, "/srv/uploads/"+name, []byte("x"), 10*day)
	}
	cfg := retentionTestConfig()
	cfg.MaxFilesPerRun = 2
	cfg.Directories = cfg.Directories[:1]
	svc := newRetentionFixture(t, fsys, cfg, plentyOfDisk(), nil)

	summary, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, summary.FilesRemoved)

	summary, err = svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.FilesRemoved)
}

func TestRetentionHonoursCancellation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedRetentionTree(t, fsys)
	svc := newRetentionFixture(t, fsys, retentionTestConfig(), plentyOfDisk(), nil)
	before := snapshotTree(t, fsys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := svc.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, summary.FilesRemoved)
	require.Equal(t, before, snapshotTree(t, fsys))
}

func TestRetentionNotifiesOnlyAppliedRunsAboveThreshold(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedRetentionTree(t, fsys)
	notifier := &retentionNotifierStub{}
	svc := newRetentionFixture(t, fsys, retentionTestConfig(), plentyOfDisk(), notifier)

	dry, err := svc.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	require.False(t, dry.Notified)
	require.Empty(t, notifier.calls)

	applied, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.True(t, applied.Notified)
	require.Len(t, notifier.calls, 1)
	require.Equal(t, applied.BytesFreed, notifier.calls[0].BytesFreed)

	// Nothing left to free: below threshold.
	again, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.False(t, again.Notified)
	require.Len(t, notifier.calls, 1)
}

func TestRetentionNotificationFailureIsNotFatal(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedRetentionTree(t, fsys)
	notifier := &retentionNotifierStub{err: errors.New("smtp down")}
	svc := newRetentionFixture(t, fsys, retentionTestConfig(), plentyOfDisk(), notifier)

	summary, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.False(t, summary.Notified)
	require.Len(t, notifier.calls, 1)
}

func TestBuildRetentionPoliciesRejectsInvalidConfig(t *testing.T) {
	cfg := retentionTestConfig()
	cfg.MaxFilesPerRun = 0
	_, err := BuildRetentionPolicies(cfg)
	require.True(t, appErrors.IsCategory(err, appErrors.ErrConfiguration))

	policies, err := BuildRetentionPolicies(retentionTestConfig())
	require.NoError(t, err)
	require.Len(t, policies, 2)
	require.True(t, policies[1].RotateLogs)
	require.Equal(t, 5, policies[1].MaxLines)
}
