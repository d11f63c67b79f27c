package annotate

import "emxloader/pkg/domain"

// DefaultInfoPrefix is the prefix VCF resources give INFO fields.
const DefaultInfoPrefix = "INFO_"

// ClinVar output attributes.
const (
	ClinvarClnsig       = "CLINVAR_CLNSIG"
	ClinvarClnsigLabel  = "ClinVar clinical significance"
	ClinvarClnalle      = "CLINVAR_CLNALLE"
	ClinvarClnalleLabel = "ClinVar clinical significant allele"
)

// ClinvarMapper reads the ClinVar attributes from the prefixed INFO fields of
// the resource. Other attributes keep their name.
type ClinvarMapper struct {
	Prefix string
}

func (m ClinvarMapper) ResourceAttributeName(attr domain.AttributeMetaData) string {
	prefix := m.Prefix
	if prefix == "" {
		prefix = DefaultInfoPrefix
	}
	switch attr.Name {
	case ClinvarClnsig:
		return prefix + "CLNSIG"
	case ClinvarClnalle:
		return prefix + "CLNALLE"
	default:
		return attr.Name
	}
}

// ClinvarInfo describes the ClinVar pathogenicity annotator.
func ClinvarInfo() Info {
	return Info{
		Name: "clinvar",
		Type: "PATHOGENICITY_ESTIMATE",
		Description: "ClinVar is a public archive of reports of the relationships among human variations " +
			"and phenotypes, with supporting evidence.",
		Attributes: []domain.AttributeMetaData{
			{
				Name:        ClinvarClnsig,
				Label:       ClinvarClnsigLabel,
				Description: "Value representing the clinical significance according to ClinVar",
				DataType:    domain.FieldString,
				Nillable:    true,
			},
			{
				Name:        ClinvarClnalle,
				Label:       ClinvarClnalleLabel,
				Description: "Value representing clinical significant allele 0 means ref 1 means first alt allele etc.",
				DataType:    domain.FieldString,
				Nillable:    true,
			},
		},
	}
}

// NewClinvar returns the ClinVar annotator over a VCF resource repository.
func NewClinvar(resource domain.Repository, prefix string, opts ...Option) *Annotator {
	return New(ClinvarInfo(), resource, append([]Option{WithMapper(ClinvarMapper{Prefix: prefix})}, opts...)...)
}
