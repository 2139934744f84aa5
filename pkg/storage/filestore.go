package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// FileInfo describes a regular file found by a listing call.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// FileStore wraps an afero filesystem rooted at a base directory.
// Relative paths are resolved against the base directory; absolute paths are used as-is.
type FileStore struct {
	fs      afero.Fs
	baseDir string
}

// NewFileStore returns a store over the given filesystem.
func NewFileStore(fsys afero.Fs, baseDir string) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if baseDir == "" {
		baseDir = "."
	}
	return &FileStore{fs: fsys, baseDir: baseDir}
}

// NewOSFileStore returns a store over the host filesystem.
func NewOSFileStore(baseDir string) *FileStore {
	return NewFileStore(afero.NewOsFs(), baseDir)
}

// Fs exposes the underlying filesystem.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

// Path resolves name against the base directory.
func (s *FileStore) Path(name string) string {
	return s.resolve(name)
}

// EnsureDir creates dir and its parents.
func (s *FileStore) EnsureDir(dir string) error {
	if err := s.fs.MkdirAll(s.resolve(dir), 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether the path exists.
func (s *FileStore) Exists(name string) (bool, error) {
	ok, err := afero.Exists(s.fs, s.resolve(name))
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
	return ok, nil
}

// Stat returns metadata for a single path.
func (s *FileStore) Stat(name string) (FileInfo, error) {
	path := s.resolve(name)
	info, err := s.fs.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return toFileInfo(path, info), nil
}

// Glob lists the regular files directly inside dir whose name matches pattern.
// A missing directory yields an empty listing.
func (s *FileStore) Glob(dir, pattern string) ([]FileInfo, error) {
	root := s.resolve(dir)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := afero.Glob(s.fs, filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(matches)
	files := make([]FileInfo, 0, len(matches))
	for _, path := range matches {
		info, err := s.fs.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, toFileInfo(path, info))
	}
	return files, nil
}

// Walk lists every regular file below dir, recursively, in lexical order.
// A missing directory yields an empty listing.
func (s *FileStore) Walk(dir string) ([]FileInfo, error) {
	root := s.resolve(dir)
	ok, err := afero.DirExists(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !ok {
		return []FileInfo{}, nil
	}
	files := make([]FileInfo, 0)
	err = afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, toFileInfo(path, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

// DirSize sums the sizes of every regular file below dir.
func (s *FileStore) DirSize(dir string) (int64, error) {
	files, err := s.Walk(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// Open returns a read-only handle for the file.
func (s *FileStore) Open(name string) (afero.File, error) {
	file, err := s.fs.Open(s.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return file, nil
}

// ReadFile returns the whole content of the file.
func (s *FileStore) ReadFile(name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// WriteFileAtomic writes data to a temporary sibling, syncs it and renames it over name.
// Readers observe either the old content or the new content, never a partial file.
func (s *FileStore) WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	path := s.resolve(name)
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare directory %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", name, err)
	}
	if perm != 0 {
		_ = s.fs.Chmod(tmpName, perm)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file to %s: %w", name, err)
	}
	return nil
}

// SaveStream copies r into name and returns the number of bytes written.
func (s *FileStore) SaveStream(name string, r io.Reader) (int64, error) {
	path := s.resolve(name)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("prepare directory for %s: %w", name, err)
	}
	file, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	n, err := io.Copy(file, r)
	if err != nil {
		_ = file.Close()
		_ = s.fs.Remove(path)
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", name, err)
	}
	return n, nil
}

// Move renames src to dst, falling back to copy and delete across devices.
func (s *FileStore) Move(src, dst string) error {
	from, to := s.resolve(src), s.resolve(dst)
	if err := s.fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("prepare directory for %s: %w", dst, err)
	}
	if err := s.fs.Rename(from, to); err == nil {
		return nil
	}
	in, err := s.fs.Open(from)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close() //nolint:errcheck
	if _, err := s.SaveStream(to, in); err != nil {
		return err
	}
	if err := s.fs.Remove(from); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", src, err)
	}
	return nil
}

// Remove deletes a file. Missing files are not an error.
func (s *FileStore) Remove(name string) error {
	if err := s.fs.Remove(s.resolve(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.baseDir, name)
}

func toFileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
