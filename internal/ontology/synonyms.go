// Package ontology turns ontology term synonyms into importable rows.
package ontology

import (
	"errors"
	"iter"
	"strings"

	"emxloader/pkg/domain"

	"github.com/google/uuid"
)

// Row and entity names of the synonym stream.
const (
	EntityName        = "ontologyTermSynonym"
	AttrID            = "id"
	AttrSynonym       = "ontologyTermSynonym"
	AttrOntologyTerm  = "ontologyTermIRI"
	defaultSynonymSep = "|"
)

// ErrExhausted is returned by Cursor.Next after the last row.
var ErrExhausted = errors.New("ontology: no more synonyms")

// Class is an ontology term.
type Class struct {
	IRI   string
	Label string
}

// Loader enumerates ontology classes and their synonyms.
type Loader interface {
	Classes() iter.Seq[Class]
	Synonyms(c Class) []string
}

// ReferenceIDs memoizes the id given to every (term IRI, synonym) pair so a
// restarted stream reuses them. The caller owns it.
type ReferenceIDs map[string]map[string]string

// ID returns the memoized id of the pair, minting one with newID when absent.
func (r ReferenceIDs) ID(iri, synonym string, newID func() string) string {
	bySynonym, ok := r[iri]
	if !ok {
		bySynonym = make(map[string]string)
		r[iri] = bySynonym
	}
	id, ok := bySynonym[synonym]
	if !ok {
		id = newID()
		bySynonym[synonym] = id
	}
	return id
}

// Synonyms yields one row per usable (class, synonym) pair. Classes without
// synonyms and blank synonyms are skipped. A nil memo disables id reuse
// across iterations; a nil newID mints UUIDs.
func Synonyms(loader Loader, memo ReferenceIDs, newID func() string) domain.RowStream {
	if newID == nil {
		newID = uuid.NewString
	}
	return func(yield func(domain.Entity, error) bool) {
		ids := memo
		if ids == nil {
			ids = make(ReferenceIDs)
		}
		for class := range loader.Classes() {
			for _, synonym := range loader.Synonyms(class) {
				synonym = strings.TrimSpace(synonym)
				if synonym == "" {
					continue
				}
				row := domain.Entity{
					AttrID:           ids.ID(class.IRI, synonym, newID),
					AttrSynonym:      synonym,
					AttrOntologyTerm: class.IRI,
				}
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

// Cursor pulls synonym rows one at a time. HasNext caches the next row and
// may be called any number of times before Next.
type Cursor struct {
	next    func() (domain.Entity, error, bool)
	stop    func()
	pending bool
	row     domain.Entity
	err     error
	done    bool
}

// NewCursor starts pulling from rows. Close must be called when the cursor
// is abandoned before exhaustion.
func NewCursor(rows domain.RowStream) *Cursor {
	next, stop := iter.Pull2(rows)
	return &Cursor{next: next, stop: stop}
}

// HasNext reports whether Next will return a row.
func (c *Cursor) HasNext() bool {
	if c.pending {
		return true
	}
	if c.done {
		return false
	}
	row, err, ok := c.next()
	if !ok {
		c.done = true
		c.stop()
		return false
	}
	c.row, c.err, c.pending = row, err, true
	return true
}

// Next returns the cached row, or ErrExhausted once the stream is done.
func (c *Cursor) Next() (domain.Entity, error) {
	if !c.HasNext() {
		return nil, ErrExhausted
	}
	c.pending = false
	row, err := c.row, c.err
	c.row, c.err = nil, nil
	return row, err
}

// Close releases the underlying iterator.
func (c *Cursor) Close() {
	c.done = true
	c.pending = false
	c.stop()
}

// SynonymMetaData describes the ontologyTermSynonym entity.
func SynonymMetaData() domain.EntityMetaData {
	return domain.EntityMetaData{
		Name:        EntityName,
		SimpleName:  EntityName,
		Label:       "Ontology term synonym",
		IDAttribute: AttrID,
		Attributes: []domain.AttributeMetaData{
			{Name: AttrID, DataType: domain.FieldString, Auto: true},
			{Name: AttrSynonym, Label: "Synonym", DataType: domain.FieldText},
			{Name: AttrOntologyTerm, Label: "Ontology term IRI", DataType: domain.FieldHyperlink},
		},
	}
}
