package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFieldTypeConvertScalars(t *testing.T) {
	cases := []struct {
		name string
		typ  FieldType
		in   any
		want any
	}{
		{"string from int", FieldString, int64(7), "7"},
		{"int from string", FieldInt, "42", int64(42)},
		{"int from spreadsheet float text", FieldLong, "12.0", int64(12)},
		{"int from float", FieldInt, float64(3), int64(3)},
		{"bool from yes", FieldBool, "Yes", true},
		{"bool from zero", FieldBool, "0", false},
		{"blank is nil", FieldInt, "  ", nil},
		{"nil is nil", FieldString, nil, nil},
		{"xref keeps id", FieldXref, "A", "A"},
	}
	for _, tc := range cases {
		got, err := tc.typ.Convert(tc.in)
		if err != nil {
			t.Fatalf("%s: convert: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %#v, got %#v", tc.name, tc.want, got)
		}
	}
}

func TestFieldTypeConvertRejectsGarbage(t *testing.T) {
	if _, err := FieldInt.Convert("1.5"); err == nil {
		t.Fatalf("expected fractional integer to be rejected")
	}
	if _, err := FieldBool.Convert("maybe"); err == nil {
		t.Fatalf("expected unknown boolean word to be rejected")
	}
	if _, err := FieldDate.Convert("yesterday"); err == nil {
		t.Fatalf("expected bad date to be rejected")
	}
	if _, err := FieldType("blob").Convert("x"); err == nil {
		t.Fatalf("expected unknown type to be rejected")
	}
}

func TestFieldTypeConvertRejectsIntegersOutOfRange(t *testing.T) {
	huge := decimal.RequireFromString("9223372036854775808")
	for _, raw := range []any{"1e19", "9223372036854775808", "-9223372036854775809", 1e19, -1e19, 2e19, "1e400", huge} {
		if got, err := FieldLong.Convert(raw); err == nil {
			t.Fatalf("expected %v to be rejected, got %v", raw, got)
		}
	}
	got, err := FieldLong.Convert("-9223372036854775808")
	if err != nil || got != int64(math.MinInt64) {
		t.Fatalf("expected MinInt64, got %v (%v)", got, err)
	}
	got, err = FieldLong.Convert(float64(1 << 53))
	if err != nil || got != int64(1<<53) {
		t.Fatalf("expected 2^53, got %v (%v)", got, err)
	}
}

func TestFieldTypeConvertDecimalAndDates(t *testing.T) {
	d, err := FieldDecimal.Convert("1.25")
	if err != nil {
		t.Fatalf("decimal: %v", err)
	}
	if !d.(decimal.Decimal).Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("unexpected decimal %v", d)
	}
	day, err := FieldDate.Convert("2024-02-29")
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	if !day.(time.Time).Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", day)
	}
	ts, err := FieldDateTime.Convert("2024-02-29 10:11:12")
	if err != nil {
		t.Fatalf("datetime: %v", err)
	}
	if ts.(time.Time).Hour() != 10 {
		t.Fatalf("unexpected datetime %v", ts)
	}
}

func TestFieldTypeConvertRefUsesReferencedIDType(t *testing.T) {
	got, err := FieldXref.ConvertRef("5", FieldInt)
	if err != nil {
		t.Fatalf("xref: %v", err)
	}
	if got != int64(5) {
		t.Fatalf("expected int64 ref, got %#v", got)
	}
	list, err := FieldMref.ConvertRef("1, 2,,3", FieldLong)
	if err != nil {
		t.Fatalf("mref: %v", err)
	}
	refs := list.([]any)
	if len(refs) != 3 || refs[0] != int64(1) || refs[2] != int64(3) {
		t.Fatalf("unexpected mref %#v", refs)
	}
}

func TestFieldTypeClassification(t *testing.T) {
	if !FieldMref.IsReference() || !FieldMref.IsMulti() {
		t.Fatalf("mref must be a multi reference")
	}
	if FieldXref.IsMulti() {
		t.Fatalf("xref is single valued")
	}
	for _, typ := range []FieldType{FieldString, FieldInt, FieldLong, FieldEmail, FieldHyperlink} {
		if !typ.AllowedAsID() {
			t.Fatalf("%s should be allowed as id", typ)
		}
	}
	for _, typ := range []FieldType{FieldDecimal, FieldBool, FieldXref, FieldText} {
		if typ.AllowedAsID() {
			t.Fatalf("%s should not be allowed as id", typ)
		}
	}
}
