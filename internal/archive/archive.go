// Package archive records every import run as a JSON document in an object
// store. Callers depend on archive.Store; the backends live under
// internal/infra/archive.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"emxloader/internal/archive/core"
	"emxloader/internal/config"
	fsstore "emxloader/internal/infra/archive/fs"
	memorystore "emxloader/internal/infra/archive/memory"
	s3store "emxloader/internal/infra/archive/s3"

	"github.com/google/uuid"
)

type (
	Store      = core.Store
	Info       = core.Info
	PutOptions = core.PutOptions
)

var (
	ErrExists     = core.ErrExists
	ErrNotFound   = core.ErrNotFound
	ErrInvalidKey = core.ErrInvalidKey
)

// Open selects a backend from opts. The none driver yields a nil store.
func Open(ctx context.Context, opts config.ArchiveOptions) (Store, error) {
	switch opts.Driver {
	case config.ArchiveNone:
		return nil, nil
	case config.ArchiveFS, "":
		return fsstore.New(opts.FSRoot)
	case config.ArchiveMemory:
		return memorystore.New(), nil
	case config.ArchiveS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:    opts.S3.Bucket,
			Region:    opts.S3.Region,
			Endpoint:  opts.S3.Endpoint,
			PathStyle: opts.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive driver %s", opts.Driver)
	}
}

// Outcomes of an import run.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

// Record is the archived summary of one import run.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	User       string          `json:"user,omitempty"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  string          `json:"errorKind,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Report     json.RawMessage `json:"report,omitempty"`
	Ledger     json.RawMessage `json:"ledger,omitempty"`
	Reindexed  []string        `json:"reindexed,omitempty"`
}

// Key returns the object key of r: imports/YYYY/MM/DD/<id>.json.
func (r Record) Key() string {
	started := r.StartedAt.UTC()
	return path.Join("imports", started.Format("2006"), started.Format("01"), started.Format("02"), r.ID.String()+".json")
}

// Archiver writes and reads records.
type Archiver struct {
	store Store
}

// NewArchiver wraps store. A nil store makes every write a no-op.
func NewArchiver(store Store) *Archiver { return &Archiver{store: store} }

// Enabled reports whether records are persisted.
func (a *Archiver) Enabled() bool { return a != nil && a.store != nil }

// Write stores r under r.Key(), assigning an id when r has none.
func (a *Archiver) Write(ctx context.Context, r *Record) (Info, error) {
	if !a.Enabled() {
		return Info{}, nil
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("encode import record: %w", err)
	}
	return a.store.Put(ctx, r.Key(), bytes.NewReader(b), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"outcome": r.Outcome, "action": r.Action},
	})
}

// Read loads the record stored at key.
func (a *Archiver) Read(ctx context.Context, key string) (Record, error) {
	if !a.Enabled() {
		return Record{}, ErrNotFound
	}
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = rc.Close() }()
	var r Record
	if err := json.NewDecoder(rc).Decode(&r); err != nil {
		return Record{}, fmt.Errorf("decode import record %s: %w", key, err)
	}
	return r, nil
}

// List returns the keys of records started on or after since, oldest first.
func (a *Archiver) List(ctx context.Context, since time.Time) ([]Info, error) {
	if !a.Enabled() {
		return nil, nil
	}
	infos, err := a.store.List(ctx, "imports/")
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return infos, nil
	}
	cutoff := path.Join("imports", since.UTC().Format("2006/01/02"))
	out := infos[:0]
	for _, info := range infos {
		if info.Key >= cutoff {
			out = append(out, info)
		}
	}
	return out, nil
}
