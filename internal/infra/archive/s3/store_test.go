package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"emxloader/internal/archive/core"
)

func newMockStore(t *testing.T) (*Store, *MockTransport) {
	t.Helper()
	rt := NewMockTransport()
	store, err := New(context.Background(), Config{
		Bucket:          "archive",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, rt
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newMockStore(t)
	if store.Bucket() != "archive" {
		t.Fatalf("unexpected store identity")
	}
	info, err := store.Put(ctx, "imports/run.json", bytes.NewReader([]byte(`{"id":"1"}`)), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"outcome": "committed"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 10 || info.ContentType != "application/json" || info.ETag != "etag123" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "imports/run.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	got, rc, err := store.Get(ctx, "imports/run.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"id":"1"}` || got.Metadata["outcome"] != "committed" {
		t.Fatalf("unexpected object %+v %q", got, body)
	}
	if _, _, err := store.Get(ctx, "imports/other.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	ctx := context.Background()
	store, rt := newMockStore(t)
	rt.PageSize = 2
	for i := range 5 {
		key := fmt.Sprintf("imports/%d.json", i)
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if _, err := store.Put(ctx, "other/x.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	rt.mu.Lock()
	rt.objects["imports/README.txt"] = mockObject{body: []byte("notes")}
	rt.mu.Unlock()
	list, err := store.List(ctx, "imports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 || list[0].Key != "imports/0.json" || list[4].Key != "imports/4.json" {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestNewMockForTests(t *testing.T) {
	store := NewMockForTests()
	if _, err := store.Put(context.Background(), "imports/k.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(context.Background(), "k", bytes.NewReader([]byte("v")), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}

func TestDecodeChunked(t *testing.T) {
	body, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\n\r\n"))
	if !ok || string(body) != "hello" {
		t.Fatalf("unexpected decode %q %v", body, ok)
	}
	if _, ok := decodeChunked([]byte("plain")); ok {
		t.Fatalf("plain body must not decode")
	}
}
