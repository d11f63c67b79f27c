package domain

import (
	"testing"

	"github.com/google/uuid"
)

func encodeKey(t *testing.T, v any) string {
	t.Helper()
	k, err := EncodeKey(v)
	if err != nil {
		t.Fatalf("encode %v: %v", v, err)
	}
	return k
}

func TestEncodeKeyNormalizesIntegerWidths(t *testing.T) {
	a := encodeKey(t, int(1))
	b := encodeKey(t, int64(1))
	c := encodeKey(t, int32(1))
	if a != b || b != c {
		t.Fatalf("integer keys differ: %s %s %s", a, b, c)
	}
	if encodeKey(t, "1") == a {
		t.Fatalf("string and integer keys must differ")
	}
}

func TestEncodeKeyRoundTrip(t *testing.T) {
	id := uuid.New()
	for _, v := range []any{"abc", int64(-9), true, id} {
		k, err := EncodeKey(v)
		if err != nil {
			t.Fatalf("encode %v: %v", v, err)
		}
		back, err := DecodeKey(k)
		if err != nil {
			t.Fatalf("decode %s: %v", k, err)
		}
		if back != v {
			t.Fatalf("round trip of %#v gave %#v", v, back)
		}
	}
}

func TestEncodeKeyRejectsUnsupported(t *testing.T) {
	if _, err := EncodeKey(nil); err == nil {
		t.Fatalf("expected nil key error")
	}
	if _, err := EncodeKey([]any{1}); err == nil {
		t.Fatalf("expected list key error")
	}
	if _, err := DecodeKey("nocolon"); err == nil {
		t.Fatalf("expected malformed key error")
	}
}
