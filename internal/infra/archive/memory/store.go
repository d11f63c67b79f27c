// Package memory keeps import records in process memory. Records are held
// in key order so listing a day is a range scan.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"emxloader/internal/archive/core"
)

type record struct {
	info core.Info
	body []byte
}

// Store implements core.Store. keys is kept sorted alongside records.
type Store struct {
	mu      sync.RWMutex
	keys    []string
	records map[string]record
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]record), now: time.Now}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Put stores a record. The body must be a JSON document.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := core.ValidateKey(key); err != nil {
		return core.Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read record %s: %w", key, err)
	}
	if !json.Valid(body) {
		return core.Info{}, fmt.Errorf("record %s is not a JSON document", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.SearchStrings(s.keys, key)
	if i < len(s.keys) && s.keys[i] == key {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrExists)
	}
	s.keys = append(s.keys, "")
	copy(s.keys[i+1:], s.keys[i:])
	s.keys[i] = key

	rec := record{
		info: core.Info{
			Key:          key,
			Size:         int64(len(body)),
			ContentType:  opts.ContentType,
			Metadata:     core.CloneMetadata(opts.Metadata),
			LastModified: s.now().UTC(),
		},
		body: body,
	}
	s.records[key] = rec
	return rec.snapshot(), nil
}

// Get returns a record and a reader over a private copy of its body.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	if err := core.ValidateKey(key); err != nil {
		return core.Info{}, nil, err
	}
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return rec.snapshot(), io.NopCloser(bytes.NewReader(bytes.Clone(rec.body))), nil
}

// List scans the keys starting at prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Info
	for i := sort.SearchStrings(s.keys, prefix); i < len(s.keys); i++ {
		if !strings.HasPrefix(s.keys[i], prefix) {
			break
		}
		out = append(out, s.records[s.keys[i]].snapshot())
	}
	return out, nil
}

func (r record) snapshot() core.Info {
	info := r.info
	info.Metadata = core.CloneMetadata(info.Metadata)
	return info
}
