// Package annotate copies values from a reference resource onto variant rows.
package annotate

import (
	"context"
	"fmt"

	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// Locus attributes shared by variant rows and VCF resources.
const (
	AttrChrom = "#CHROM"
	AttrPos   = "POS"
	AttrRef   = "REF"
	AttrAlt   = "ALT"
)

// AttributeNameMapper maps an output attribute to the resource attribute its
// value is read from.
type AttributeNameMapper interface {
	ResourceAttributeName(attr domain.AttributeMetaData) string
}

// IdentityMapper reads every output attribute under its own name.
type IdentityMapper struct{}

func (IdentityMapper) ResourceAttributeName(attr domain.AttributeMetaData) string { return attr.Name }

// Info describes an annotator and the attributes it adds.
type Info struct {
	Name        string
	Type        string
	Description string
	Attributes  []domain.AttributeMetaData
}

// Annotator looks up resource rows at the locus of each target row and copies
// the mapped attribute values onto it.
type Annotator struct {
	info     Info
	resource domain.Repository
	mapper   AttributeNameMapper
	log      *logrus.Entry
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithMapper overrides the identity mapping.
func WithMapper(m AttributeNameMapper) Option {
	return func(a *Annotator) {
		if m != nil {
			a.mapper = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(a *Annotator) {
		if log != nil {
			a.log = log
		}
	}
}

// New returns an annotator reading from resource.
func New(info Info, resource domain.Repository, opts ...Option) *Annotator {
	a := &Annotator{
		info:     info,
		resource: resource,
		mapper:   IdentityMapper{},
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithFields(logrus.Fields{"component": "annotate", "annotator": info.Name})
	return a
}

// Info returns the annotator description.
func (a *Annotator) Info() Info { return a.info }

// OutputMetaData extends meta with the annotator attributes it lacks. The
// added attributes are nillable.
func (a *Annotator) OutputMetaData(meta domain.EntityMetaData) domain.EntityMetaData {
	out := meta.Clone()
	for _, attr := range a.info.Attributes {
		if _, ok := out.Attribute(attr.Name); ok {
			continue
		}
		attr = attr.Clone()
		attr.Nillable = true
		out.Attributes = append(out.Attributes, attr)
	}
	return out
}

// Annotate streams copies of the target rows with the annotator attributes
// set. Rows without a matching resource row get nil values.
func (a *Annotator) Annotate(ctx context.Context, targets domain.RowStream) domain.RowStream {
	return domain.MapRows(targets, func(row domain.Entity) (domain.Entity, error) {
		match, err := a.lookup(ctx, row)
		if err != nil {
			return nil, err
		}
		out := row.Clone()
		for _, attr := range a.info.Attributes {
			if match == nil {
				out[attr.Name] = nil
				continue
			}
			out[attr.Name] = match[a.mapper.ResourceAttributeName(attr)]
		}
		return out, nil
	})
}

// lookup returns the resource row at the locus of row. With several rows at
// the locus the one whose ALT matches wins, else the first.
func (a *Annotator) lookup(ctx context.Context, row domain.Entity) (domain.Entity, error) {
	chrom := row.String(AttrChrom)
	pos, err := domain.FieldLong.Convert(row[AttrPos])
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidValue, a.info.Name, err, "invalid %s", AttrPos)
	}
	if pos == nil || chrom == "" {
		return nil, nil
	}
	alt := row.String(AttrAlt)
	var first domain.Entity
	for candidate, err := range a.resource.FindAll(ctx, domain.NewQuery().Eq(AttrPos, pos)) {
		if err != nil {
			return nil, fmt.Errorf("annotate %s: query %s: %w", a.info.Name, a.resource.Name(), err)
		}
		if candidate.String(AttrChrom) != chrom {
			continue
		}
		if alt != "" && candidate.String(AttrAlt) == alt {
			return candidate, nil
		}
		if first == nil {
			first = candidate
		}
	}
	if first == nil {
		a.log.WithFields(logrus.Fields{"chrom": chrom, "pos": pos}).Debug("no resource row at locus")
	}
	return first, nil
}
