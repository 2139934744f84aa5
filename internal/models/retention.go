package models

import (
	"fmt"
	"time"
)

// RunMode tells whether a retention run mutated the filesystem.
type RunMode string

const (
	RunModeDryRun  RunMode = "dry-run"
	RunModeApplied RunMode = "applied"
)

// RetentionPolicy is the immutable per-directory budget for one run.
type RetentionPolicy struct {
	Name             string `json:"name"`
	Directory        string `json:"directory"`
	Pattern          string `json:"pattern"`
	AgeThresholdDays int    `json:"ageThresholdDays"`
	MaxSizeBytes     int64  `json:"maxSizeBytes"`
	MaxFilesPerRun   int    `json:"maxFilesPerRun"`
	Enabled          bool   `json:"enabled"`
	RotateLogs       bool   `json:"rotateLogs"`
	MaxLines         int    `json:"maxLines"`
}

// NewRetentionPolicy validates required fields.
func NewRetentionPolicy(p RetentionPolicy) (RetentionPolicy, error) {
	if p.Name == "" {
		return RetentionPolicy{}, fmt.Errorf("retention policy name is required")
	}
	if p.Directory == "" {
		return RetentionPolicy{}, fmt.Errorf("retention policy %s: directory is required", p.Name)
	}
	if p.AgeThresholdDays < 0 || p.MaxSizeBytes < 0 {
		return RetentionPolicy{}, fmt.Errorf("retention policy %s: thresholds must not be negative", p.Name)
	}
	if p.MaxFilesPerRun <= 0 {
		return RetentionPolicy{}, fmt.Errorf("retention policy %s: max files per run must be positive", p.Name)
	}
	if p.RotateLogs && p.MaxLines <= 0 {
		return RetentionPolicy{}, fmt.Errorf("retention policy %s: max lines must be positive", p.Name)
	}
	if p.Pattern == "" {
		p.Pattern = "*"
	}
	return p, nil
}

// AgeCutoff returns the instant before which files are considered expired.
func (p RetentionPolicy) AgeCutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(p.AgeThresholdDays) * 24 * time.Hour)
}

// RemovedFile describes one file a run removed or would remove.
type RemovedFile struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	Reason  string    `json:"reason"`
}

// RotatedLog describes one log rotation.
type RotatedLog struct {
	Path         string `json:"path"`
	Backup       string `json:"backup,omitempty"`
	LinesBefore  int    `json:"linesBefore"`
	LinesTrimmed int    `json:"linesTrimmed"`
}

// CleanupReport is the outcome of one directory pass. Use NewCleanupReport to build one.
type CleanupReport struct {
	Name         string        `json:"name"`
	Directory    string        `json:"directory"`
	Mode         RunMode       `json:"mode"`
	FilesRemoved int           `json:"filesRemoved"`
	BytesFreed   int64         `json:"bytesFreed"`
	LinesTrimmed int           `json:"linesTrimmed"`
	Removed      []RemovedFile `json:"removed,omitempty"`
	Rotated      []RotatedLog  `json:"rotated,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
}

// NewCleanupReport builds a report from the collected actions and derives the totals.
func NewCleanupReport(policy RetentionPolicy, mode RunMode, removed []RemovedFile, rotated []RotatedLog, errs []string) CleanupReport {
	report := CleanupReport{
		Name:      policy.Name,
		Directory: policy.Directory,
		Mode:      mode,
		Removed:   append([]RemovedFile(nil), removed...),
		Rotated:   append([]RotatedLog(nil), rotated...),
		Errors:    append([]string(nil), errs...),
	}
	report.FilesRemoved = len(removed)
	for _, f := range removed {
		report.BytesFreed += f.Size
	}
	for _, r := range rotated {
		report.LinesTrimmed += r.LinesTrimmed
	}
	return report
}

// DiskSpaceStatus is the capacity of the filesystem at the start of a run.
type DiskSpaceStatus struct {
	FreeBytes   int64   `json:"freeBytes"`
	TotalBytes  int64   `json:"totalBytes"`
	PercentFree float64 `json:"percentFree"`
}

// NewDiskSpaceStatus derives the free percentage.
func NewDiskSpaceStatus(free, total int64) DiskSpaceStatus {
	status := DiskSpaceStatus{FreeBytes: free, TotalBytes: total}
	if total > 0 {
		status.PercentFree = float64(free) / float64(total) * 100
	}
	return status
}

// RetentionSummary aggregates the reports of a run.
type RetentionSummary struct {
	Mode         RunMode          `json:"mode"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt"`
	FilesRemoved int              `json:"filesRemoved"`
	BytesFreed   int64            `json:"bytesFreed"`
	LinesTrimmed int              `json:"linesTrimmed"`
	Errors       []string         `json:"errors,omitempty"`
	Reports      []CleanupReport  `json:"reports"`
	Disk         *DiskSpaceStatus `json:"disk,omitempty"`
	Notified     bool             `json:"notified"`
}
