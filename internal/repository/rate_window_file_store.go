package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sys/unix"

	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/storage"
)

const lockRetryInterval = 5 * time.Millisecond

// RateWindowUpdateFunc mutates a record; the record is persisted only when it returns commit=true.
type RateWindowUpdateFunc func(rec *models.RateWindowRecord) (commit bool, err error)

// RateWindowFileStore keeps one JSON record per key in a state directory.
// Updates for a key are serialised with flock(2) on a sibling lock file, which also
// excludes other processes sharing the directory.
type RateWindowFileStore struct {
	dir    string
	files  *storage.FileStore
	logger *zap.Logger
}

// NewRateWindowFileStore ensures dir exists and returns the store.
func NewRateWindowFileStore(dir string, logger *zap.Logger) (*RateWindowFileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("rate window state directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create rate window dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateWindowFileStore{dir: dir, files: storage.NewOSFileStore(dir), logger: logger}, nil
}

// Update runs fn on the record for key while holding the key's lock.
func (s *RateWindowFileStore) Update(ctx context.Context, key string, fn RateWindowUpdateFunc) error {
	name := recordName(key)
	unlock, err := s.lock(ctx, filepath.Join(s.dir, name+".lock"))
	if err != nil {
		return err
	}
	defer unlock()

	rec := s.load(key, name+".json")
	commit, err := fn(rec)
	if err != nil || !commit {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode rate window: %w", err)
	}
	if err := s.files.WriteFileAtomic(name+".json", data, 0o600); err != nil {
		return fmt.Errorf("persist rate window: %w", err)
	}
	return nil
}

// Get returns the stored record without locking; used for inspection.
func (s *RateWindowFileStore) Get(key string) *models.RateWindowRecord {
	return s.load(key, recordName(key)+".json")
}

func (s *RateWindowFileStore) load(key, file string) *models.RateWindowRecord {
	data, err := s.files.ReadFile(file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("rate window unreadable, starting empty", zap.String("file", file), zap.Error(err))
		}
		return models.NewRateWindowRecord(key)
	}
	rec := models.NewRateWindowRecord(key)
	if err := json.Unmarshal(data, rec); err != nil {
		s.logger.Warn("rate window corrupt, starting empty", zap.String("file", file), zap.Error(err))
		return models.NewRateWindowRecord(key)
	}
	rec.Key = key
	if rec.Timestamps == nil {
		rec.Timestamps = []int64{}
	}
	return rec
}

func (s *RateWindowFileStore) lock(ctx context.Context, path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open rate window lock: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("lock rate window: %w", err)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("lock rate window: %w", ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// recordName derives a filesystem-safe name so arbitrary keys (IPv6, proxies) map to one file.
func recordName(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return "rc_rate_" + hex.EncodeToString(sum[:16])
}
