package logger

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// reopenScheme routes a log path through reopenFile so that a rotated log file is picked up
// again instead of writing to the replaced inode.
const reopenScheme = "reopen"

var registerSinkOnce sync.Once

func registerReopenSink() error {
	var err error
	registerSinkOnce.Do(func() {
		err = zap.RegisterSink(reopenScheme, func(u *url.URL) (zap.Sink, error) {
			return openReopenFile(u.Path)
		})
	})
	return err
}

// reopenURL builds the sink URL for path. Relative paths are resolved first.
func reopenURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: reopenScheme, Path: filepath.ToSlash(abs)}).String(), nil
}

// reopenFile appends to path and reopens it whenever the path stops naming the open file,
// which is what a rename-over rotation leaves behind.
type reopenFile struct {
	mu   sync.Mutex
	path string
	file *os.File
	info os.FileInfo
}

func openReopenFile(path string) (*reopenFile, error) {
	f := &reopenFile{path: path}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *reopenFile) open() error {
	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", f.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file %s: %w", f.path, err)
	}
	if f.file != nil {
		_ = f.file.Close()
	}
	f.file, f.info = file, info
	return nil
}

func (f *reopenFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, err := os.Stat(f.path); err != nil || !os.SameFile(current, f.info) {
		if err := f.open(); err != nil {
			return 0, err
		}
	}
	return f.file.Write(p)
}

func (f *reopenFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Sync()
}

func (f *reopenFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
