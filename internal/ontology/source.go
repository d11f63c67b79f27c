package ontology

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"emxloader/pkg/domain"
)

// TermEntity is the sheet LoadTerms reads terms from by default.
const TermEntity = "ontologyTerm"

// Term is a class with its synonyms.
type Term struct {
	Class
	Synonyms []string
}

// StaticLoader serves a fixed list of terms in order.
type StaticLoader []Term

var _ Loader = StaticLoader(nil)

func (l StaticLoader) Classes() iter.Seq[Class] {
	return func(yield func(Class) bool) {
		for _, t := range l {
			if !yield(t.Class) {
				return
			}
		}
	}
}

func (l StaticLoader) Synonyms(c Class) []string {
	for _, t := range l {
		if t.IRI == c.IRI {
			return slices.Clone(t.Synonyms)
		}
	}
	return nil
}

// LoadTerms reads terms from the entity sheet of src. Each row carries
// ontologyTermIRI, an optional ontologyTermName and ontologyTermSynonym with
// synonyms separated by "|". Rows sharing an IRI are merged.
func LoadTerms(src domain.Source, entity string) (StaticLoader, error) {
	if entity == "" {
		entity = TermEntity
	}
	rows, ok := src.Rows(entity)
	if !ok {
		return nil, fmt.Errorf("ontology: source has no %s sheet", entity)
	}
	var terms StaticLoader
	index := make(map[string]int)
	for row, err := range rows {
		if err != nil {
			return nil, fmt.Errorf("ontology: read %s: %w", entity, err)
		}
		iri := strings.TrimSpace(row.String(AttrOntologyTerm))
		if iri == "" {
			return nil, fmt.Errorf("ontology: %s row without %s", entity, AttrOntologyTerm)
		}
		i, seen := index[iri]
		if !seen {
			i = len(terms)
			index[iri] = i
			terms = append(terms, Term{Class: Class{IRI: iri}})
		}
		if label := row.String("ontologyTermName"); label != "" && terms[i].Label == "" {
			terms[i].Label = label
		}
		for _, s := range strings.Split(row.String(AttrSynonym), defaultSynonymSep) {
			if s = strings.TrimSpace(s); s != "" && !slices.Contains(terms[i].Synonyms, s) {
				terms[i].Synonyms = append(terms[i].Synonyms, s)
			}
		}
	}
	return terms, nil
}

// SynonymSource exposes the synonym stream of a loader as a source with a
// single ontologyTermSynonym sheet. Ids are stable across Rows calls.
type SynonymSource struct {
	loader Loader
	memo   ReferenceIDs
	newID  func() string
}

var _ domain.Source = (*SynonymSource)(nil)

// NewSynonymSource wraps loader. A nil memo is replaced by a fresh one.
func NewSynonymSource(loader Loader, memo ReferenceIDs, newID func() string) *SynonymSource {
	if memo == nil {
		memo = make(ReferenceIDs)
	}
	return &SynonymSource{loader: loader, memo: memo, newID: newID}
}

func (s *SynonymSource) EntityNames() []string { return []string{EntityName} }

func (s *SynonymSource) Rows(name string) (domain.RowStream, bool) {
	if name != EntityName {
		return nil, false
	}
	return Synonyms(s.loader, s.memo, s.newID), true
}

// ReferenceIDs returns the memo shared by every stream of s.
func (s *SynonymSource) ReferenceIDs() ReferenceIDs { return s.memo }
