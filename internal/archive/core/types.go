// Package core defines the object store abstraction behind the import archive.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// RecordExt is the suffix of every archived import record.
const RecordExt = ".json"

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored record.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a create-only record store. Records are never rewritten: Put
// fails with ErrExists when the key is taken and Get fails with ErrNotFound
// when it is not.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// List returns records whose key has prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
}

var (
	ErrExists     = errors.New("archive: record already exists")
	ErrNotFound   = errors.New("archive: record not found")
	ErrInvalidKey = errors.New("archive: invalid record key")
)

// ValidateKey accepts relative, slash separated keys naming a .json record.
// Empty segments and dot segments are rejected so a key maps to exactly one
// path on every backend.
func ValidateKey(key string) error {
	if !strings.HasSuffix(key, RecordExt) || len(key) == len(RecordExt) {
		return fmt.Errorf("%q: %w: must name a %s record", key, ErrInvalidKey, RecordExt)
	}
	if strings.ContainsRune(key, '\\') {
		return fmt.Errorf("%q: %w: backslash", key, ErrInvalidKey)
	}
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("%q: %w: segment %q", key, ErrInvalidKey, seg)
		}
	}
	return nil
}

// CloneMetadata copies user metadata.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
