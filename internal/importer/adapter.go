package importer

import (
	"emxloader/pkg/domain"
)

// rowAdapter projects raw source rows onto an entity's attributes, converting
// each value with the attribute's semantic type.
type rowAdapter struct {
	meta   domain.EntityMetaData
	refIDs map[string]domain.FieldType
}

// newRowAdapter resolves the id type of every referenced entity up front.
// Self references use the entity's own id type.
func newRowAdapter(meta domain.EntityMetaData, registry domain.MetaRegistry) rowAdapter {
	refIDs := make(map[string]domain.FieldType)
	for _, a := range meta.Attributes {
		if !a.DataType.IsReference() {
			continue
		}
		target, ok := meta, a.RefEntity == meta.Name
		if !ok && registry != nil {
			target, ok = registry.EntityMetaData(a.RefEntity)
		}
		if !ok {
			continue
		}
		if id, ok := target.IDAttributeMeta(); ok {
			refIDs[a.Name] = id.DataType
		}
	}
	return rowAdapter{meta: meta, refIDs: refIDs}
}

func (a rowAdapter) adapt(raw domain.Entity) (domain.Entity, error) {
	out := make(domain.Entity, len(a.meta.Attributes))
	for _, attr := range a.meta.Attributes {
		v, ok := raw[attr.Name]
		if !ok {
			out[attr.Name] = nil
			continue
		}
		converted, err := attr.DataType.ConvertRef(v, a.refIDs[attr.Name])
		if err != nil {
			return nil, &domain.ImportError{
				Kind:    domain.KindInvalidValue,
				Entity:  a.meta.Name,
				Message: "attribute " + attr.Name,
				Err:     err,
			}
		}
		out[attr.Name] = converted
	}
	return out, nil
}

// Stream wraps src lazily; the result is restartable when src is.
func (a rowAdapter) Stream(src domain.RowStream) domain.RowStream {
	return domain.MapRows(src, a.adapt)
}
