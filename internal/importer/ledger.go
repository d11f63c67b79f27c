package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// AttributeChange lists the attributes an import added to an existing entity.
type AttributeChange struct {
	Entity     string                     `json:"entity"`
	Attributes []domain.AttributeMetaData `json:"attributes"`
}

// Ledger records the schema changes made during one import so they can be
// undone when the import fails. Creation order is preserved.
type Ledger struct {
	entities   []string
	entitySeen map[string]struct{}
	attrOrder  []string
	attributes map[string][]domain.AttributeMetaData
	attrSeen   map[string]map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entitySeen: make(map[string]struct{}),
		attributes: make(map[string][]domain.AttributeMetaData),
		attrSeen:   make(map[string]map[string]struct{}),
	}
}

// RecordEntityCreated appends name; repeated names are ignored.
func (l *Ledger) RecordEntityCreated(name string) {
	if _, ok := l.entitySeen[name]; ok {
		return
	}
	l.entitySeen[name] = struct{}{}
	l.entities = append(l.entities, name)
}

// RecordAttributesAdded appends attrs under entity. An entity is listed even
// when attrs is empty, since its attribute list was reconciled.
func (l *Ledger) RecordAttributesAdded(entity string, attrs []domain.AttributeMetaData) {
	seen, ok := l.attrSeen[entity]
	if !ok {
		seen = make(map[string]struct{})
		l.attrSeen[entity] = seen
		l.attrOrder = append(l.attrOrder, entity)
	}
	for _, a := range attrs {
		if _, dup := seen[a.Name]; dup {
			continue
		}
		seen[a.Name] = struct{}{}
		l.attributes[entity] = append(l.attributes[entity], a.Clone())
	}
}

// AddedEntities returns created entity names in creation order.
func (l *Ledger) AddedEntities() []string {
	return append([]string(nil), l.entities...)
}

// AddedAttributes returns the added attributes grouped by entity in recording order.
func (l *Ledger) AddedAttributes() []AttributeChange {
	out := make([]AttributeChange, 0, len(l.attrOrder))
	for _, name := range l.attrOrder {
		attrs := make([]domain.AttributeMetaData, len(l.attributes[name]))
		copy(attrs, l.attributes[name])
		out = append(out, AttributeChange{Entity: name, Attributes: attrs})
	}
	return out
}

// MutatedEntities returns entities whose attribute list was reconciled, most recent first.
func (l *Ledger) MutatedEntities() []string {
	out := make([]string, 0, len(l.attrOrder))
	for i := len(l.attrOrder) - 1; i >= 0; i-- {
		out = append(out, l.attrOrder[i])
	}
	return out
}

// Empty reports whether nothing was recorded.
func (l *Ledger) Empty() bool {
	return len(l.entities) == 0 && len(l.attrOrder) == 0
}

// Rollback drops recorded attributes, walking entities in reverse, then drops
// recorded entities in reverse creation order. Every step is attempted; the
// failures are returned joined so the caller can log them.
func (l *Ledger) Rollback(ctx context.Context, meta domain.MetaRegistry, log *logrus.Entry) error {
	var errs []error
	for i := len(l.attrOrder) - 1; i >= 0; i-- {
		entity := l.attrOrder[i]
		for _, attr := range l.attributes[entity] {
			if err := meta.DeleteAttribute(ctx, entity, attr.Name); err != nil {
				log.WithFields(logrus.Fields{"entity": entity, "attribute": attr.Name}).WithError(err).Warn("rollback: drop attribute failed")
				errs = append(errs, fmt.Errorf("drop attribute %s.%s: %w", entity, attr.Name, err))
				continue
			}
			log.WithFields(logrus.Fields{"entity": entity, "attribute": attr.Name}).Debug("rollback: dropped attribute")
		}
	}
	for i := len(l.entities) - 1; i >= 0; i-- {
		entity := l.entities[i]
		if err := meta.DeleteEntityMeta(ctx, entity); err != nil {
			log.WithField("entity", entity).WithError(err).Warn("rollback: drop entity failed")
			errs = append(errs, fmt.Errorf("drop entity %s: %w", entity, err))
			continue
		}
		log.WithField("entity", entity).Debug("rollback: dropped entity")
	}
	return errors.Join(errs...)
}

type ledgerJSON struct {
	AddedEntities   []string          `json:"addedEntities"`
	AddedAttributes []AttributeChange `json:"addedAttributes"`
}

// MarshalJSON renders the ledger for the import archive.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{AddedEntities: l.AddedEntities(), AddedAttributes: l.AddedAttributes()})
}
