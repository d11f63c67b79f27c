package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldType is the semantic type of an attribute. Every type owns a converter
// that maps raw source values onto the canonical Go representation used by
// repositories and by id comparison.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldText        FieldType = "text"
	FieldInt         FieldType = "int"
	FieldLong        FieldType = "long"
	FieldDecimal     FieldType = "decimal"
	FieldBool        FieldType = "bool"
	FieldDate        FieldType = "date"
	FieldDateTime    FieldType = "datetime"
	FieldEmail       FieldType = "email"
	FieldHyperlink   FieldType = "hyperlink"
	FieldEnum        FieldType = "enum"
	FieldXref        FieldType = "xref"
	FieldCategorical FieldType = "categorical"
	FieldMref        FieldType = "mref"
)

const (
	dateLayout = "2006-01-02"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Valid reports whether t is a known semantic type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldText, FieldInt, FieldLong, FieldDecimal, FieldBool, FieldDate, FieldDateTime,
		FieldEmail, FieldHyperlink, FieldEnum, FieldXref, FieldCategorical, FieldMref:
		return true
	}
	return false
}

// IsReference reports whether values of t point at rows of another entity.
func (t FieldType) IsReference() bool {
	return t == FieldXref || t == FieldCategorical || t == FieldMref
}

// IsMulti reports whether t holds a list of references.
func (t FieldType) IsMulti() bool { return t == FieldMref }

// AllowedAsID reports whether t may type an entity's identifier.
func (t FieldType) AllowedAsID() bool {
	switch t {
	case FieldString, FieldInt, FieldLong, FieldEmail, FieldHyperlink:
		return true
	}
	return false
}

// Convert coerces v into the canonical representation for t. Nil and empty
// strings convert to nil. Reference types keep the referenced id as a string;
// use ConvertRef when the referenced id type is known.
func (t FieldType) Convert(v any) (any, error) {
	return t.ConvertRef(v, FieldString)
}

// ConvertRef is Convert with the id type of the referenced entity, used for
// xref, categorical and mref values.
func (t FieldType) ConvertRef(v any, refID FieldType) (any, error) {
	if isBlank(v) {
		return nil, nil
	}
	switch t {
	case FieldString, FieldText, FieldEmail, FieldHyperlink, FieldEnum:
		return toString(v), nil
	case FieldInt, FieldLong:
		return toInt64(v)
	case FieldDecimal:
		return toDecimal(v)
	case FieldBool:
		return toBool(v)
	case FieldDate:
		return toTime(v, []string{dateLayout, time.RFC3339Nano})
	case FieldDateTime:
		return toTime(v, dateTimeLayouts)
	case FieldXref, FieldCategorical:
		if refID.IsReference() || refID == "" {
			refID = FieldString
		}
		if e, ok := v.(Entity); ok {
			return nil, fmt.Errorf("reference value must be an id, got row %v", e)
		}
		return refID.Convert(v)
	case FieldMref:
		if refID.IsReference() || refID == "" {
			refID = FieldString
		}
		return toList(v, refID)
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case uuid.UUID:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func toInt64(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		return floatToInt64(x, x)
	case decimal.Decimal:
		if !x.IsInteger() {
			return nil, fmt.Errorf("%s is not an integer", x)
		}
		if x.LessThan(minInt64) || x.GreaterThan(maxInt64) {
			return nil, fmt.Errorf("%s is out of integer range", x)
		}
		return x.IntPart(), nil
	case string:
		s := strings.TrimSpace(x)
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n, nil
		}
		// spreadsheets render integral numbers as "12.0"
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil && !errors.Is(ferr, strconv.ErrRange) {
			return nil, fmt.Errorf("%q is not an integer", x)
		}
		return floatToInt64(f, x)
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", v)
	}
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// floatToInt64 rejects fractions and anything outside [MinInt64, MaxInt64].
// float64(math.MaxInt64) rounds up to 2^63, hence the >= bound.
func floatToInt64(f float64, raw any) (any, error) {
	if math.IsNaN(f) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", raw)
	}
	if math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%v is out of integer range", raw)
	}
	return int64(f), nil
}

func toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("%q is not a decimal", x)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to decimal", v)
	}
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", x)
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", v)
	}
}

func toTime(v any, layouts []string) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return nil, fmt.Errorf("%q is not a valid date", x)
	default:
		return nil, fmt.Errorf("cannot convert %T to date", v)
	}
}

func toList(v any, elem FieldType) (any, error) {
	var raw []any
	switch x := v.(type) {
	case []any:
		raw = x
	case []string:
		raw = make([]any, len(x))
		for i, s := range x {
			raw[i] = s
		}
	case string:
		for _, part := range strings.Split(x, ",") {
			raw = append(raw, strings.TrimSpace(part))
		}
	default:
		raw = []any{v}
	}
	out := make([]any, 0, len(raw))
	for _, r := range raw {
		c, err := elem.Convert(r)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}
