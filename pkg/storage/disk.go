package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskUsage is the capacity of the filesystem holding a path.
type DiskUsage struct {
	Total     int64
	Available int64
}

// DiskProbe reports filesystem capacity for a path.
type DiskProbe interface {
	Usage(path string) (DiskUsage, error)
}

// StatfsProbe reads capacity with statfs(2).
type StatfsProbe struct{}

// Usage implements DiskProbe.
func (StatfsProbe) Usage(path string) (DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := int64(stat.Bsize) //nolint:unconvert
	return DiskUsage{
		Total:     int64(stat.Blocks) * bsize,
		Available: int64(stat.Bavail) * bsize,
	}, nil
}
