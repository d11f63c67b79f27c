// Package fs stores import records as files under a root directory. Each
// record <key> has a <key>.meta sidecar with its content type, metadata and
// sha256 digest.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"emxloader/internal/archive/core"
)

const (
	defaultRoot = "./imports-archive"
	sidecarExt  = ".meta"
	tmpPattern  = ".record-*"
)

// Store implements core.Store on the local filesystem.
type Store struct {
	root string
}

// New returns a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = defaultRoot
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store writes under.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) (string, error) {
	if err := core.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SHA256      string            `json:"sha256"`
	Size        int64             `json:"size"`
	WrittenAt   time.Time         `json:"written_at"`
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.SHA256,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.WrittenAt,
	}
}

// Put hard-links the body into place, which fails when the key is taken even
// under concurrent writers, and then writes the sidecar.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	target, err := s.path(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Lstat(target); err == nil {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrExists)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return core.Info{}, fmt.Errorf("create record dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return core.Info{}, fmt.Errorf("create temp record: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("write record %s: %w", key, err)
	}

	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		SHA256:      hex.EncodeToString(digest.Sum(nil)),
		Size:        size,
		WrittenAt:   time.Now().UTC(),
	}
	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrExists)
		}
		return core.Info{}, fmt.Errorf("publish record %s: %w", key, err)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(target+sidecarExt, b, 0o600); err != nil {
		return core.Info{}, fmt.Errorf("write sidecar %s: %w", key, err)
	}
	return meta.info(key), nil
}

// Get opens the record for reading.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	target, err := s.path(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, nil, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	info, err := s.stat(key, target)
	if err != nil {
		_ = f.Close()
		return core.Info{}, nil, err
	}
	return info, f, nil
}

// List walks only the directory that prefix names, so listing one day does
// not read the whole archive. Temp files and sidecars are skipped.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	start := s.root
	if dir := path.Dir(prefix + "x"); dir != "." {
		start = filepath.Join(s.root, filepath.FromSlash(dir))
	}
	var infos []core.Info
	err := filepath.WalkDir(start, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) && p == start {
				return iofs.SkipAll
			}
			return err
		}
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, core.RecordExt) || strings.HasPrefix(name, ".record-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.stat(key, p)
		if err != nil {
			return err
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// stat reads the sidecar of a record. A record whose sidecar is missing is
// described from the file itself.
func (s *Store) stat(key, target string) (core.Info, error) {
	b, err := os.ReadFile(target + sidecarExt)
	if errors.Is(err, iofs.ErrNotExist) {
		fi, serr := os.Stat(target)
		if serr != nil {
			return core.Info{}, serr
		}
		return core.Info{Key: key, Size: fi.Size(), LastModified: fi.ModTime().UTC()}, nil
	}
	if err != nil {
		return core.Info{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(b, &meta); err != nil {
		return core.Info{}, fmt.Errorf("decode sidecar of %s: %w", key, err)
	}
	return meta.info(key), nil
}
