package domain

import (
	"errors"
	"testing"
)

func TestRowStreamsAreRestartable(t *testing.T) {
	rows := Rows([]Entity{{"id": "a"}, {"id": "b"}})
	for i := 0; i < 2; i++ {
		got, err := Collect(rows)
		if err != nil || len(got) != 2 {
			t.Fatalf("pass %d: got %d rows err=%v", i, len(got), err)
		}
	}
}

func TestMapRowsStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	mapped := MapRows(Rows([]Entity{{"id": "a"}, {"id": "b"}}), func(e Entity) (Entity, error) {
		if e["id"] == "b" {
			return nil, boom
		}
		return e, nil
	})
	got, err := Collect(mapped)
	if !errors.Is(err, boom) || len(got) != 1 {
		t.Fatalf("expected one row then error, got %d %v", len(got), err)
	}
	if _, err := Collect(FailedRows(boom)); !errors.Is(err, boom) {
		t.Fatalf("failed rows must surface error")
	}
}

func TestEntityCloneCopiesLists(t *testing.T) {
	e := Entity{"refs": []any{"a"}}
	cp := e.Clone()
	cp["refs"].([]any)[0] = "b"
	if e["refs"].([]any)[0] != "a" {
		t.Fatalf("clone shares list storage")
	}
	if e.String("missing") != "" || (Entity{"n": int64(4)}).String("n") != "4" {
		t.Fatalf("unexpected string rendering")
	}
}
