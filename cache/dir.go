package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wippyai/hotpatch/errors"
)

// FormatVersion names the on-disk layout. Stores of other versions live in
// sibling directories and are never read.
const FormatVersion = "v1"

const tempPrefix = ".tmp-"

// DirStore keeps one file per key under a directory.
type DirStore struct {
	root string
	ttl  time.Duration
	now  func() time.Time
}

// DirOption configures a DirStore.
type DirOption func(*DirStore)

// WithTTL expires entries neither read nor written for longer than ttl.
// Zero keeps entries forever.
func WithTTL(ttl time.Duration) DirOption {
	return func(s *DirStore) { s.ttl = ttl }
}

// NewDirStore opens the store rooted at dir, creating it if needed.
func NewDirStore(dir string, opts ...DirOption) (*DirStore, error) {
	s := &DirStore{root: filepath.Join(dir, FormatVersion), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "create cache directory")
	}
	if s.ttl > 0 {
		if _, err := s.GC(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Root is the directory holding the entries.
func (s *DirStore) Root() string { return s.root }

func (s *DirStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, name[:2], name)
}

func (s *DirStore) expired(info fs.FileInfo) bool {
	return s.ttl > 0 && s.now().Sub(info.ModTime()) > s.ttl
}

// touch slides the expiry of an entry that was just read. Entries touched
// within the last hundredth of the TTL are left alone.
func (s *DirStore) touch(p string, info fs.FileInfo) {
	if s.ttl <= 0 {
		return
	}
	now := s.now()
	if now.Sub(info.ModTime()) > s.ttl/100 {
		_ = os.Chtimes(p, now, now)
	}
}

func (s *DirStore) Get(key string) ([]byte, bool, error) {
	p := s.path(key)
	info, err := os.Stat(p)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.PhaseCache, errors.KindNotFound, err, "stat "+p)
	}
	if s.expired(info) {
		_ = os.Remove(p)
		return nil, false, nil
	}
	data, err := os.ReadFile(p)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.PhaseCache, errors.KindNotFound, err, "read "+p)
	}
	s.touch(p, info)
	return data, true, nil
}

// Put writes value atomically. If the stored content is already equal the
// file is only touched, so racing writers of the same payload never
// rewrite it.
func (s *DirStore) Put(key string, value []byte) error {
	p := s.path(key)
	if old, err := os.ReadFile(p); err == nil && bytes.Equal(old, value) {
		now := s.now()
		_ = os.Chtimes(p, now, now)
		return nil
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "create "+dir)
	}
	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "create temp file")
	}
	tmp := f.Name()
	_, werr := f.Write(value)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, werr, "write "+tmp)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "rename "+tmp)
	}
	return nil
}

func (s *DirStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "delete cache entry")
	}
	return nil
}

// GC removes expired entries and temp files left by interrupted writes. It
// returns the number of files removed.
func (s *DirStore) GC() (int, error) {
	removed := 0
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stale := strings.HasPrefix(d.Name(), tempPrefix) && s.now().Sub(info.ModTime()) > time.Hour
		if stale || s.expired(info) {
			if err := os.Remove(p); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "collect cache garbage")
	}
	return removed, nil
}

// Clear removes every entry.
func (s *DirStore) Clear() error {
	if err := os.RemoveAll(s.root); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "clear cache")
	}
	return os.MkdirAll(s.root, 0o755)
}
