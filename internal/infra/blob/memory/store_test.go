package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"crosslab/internal/blob/core"
)

func TestMemoryStoreBasic(t *testing.T) {
	s := New()
	ctx := context.Background()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	md := map[string]string{"experiment": "e1"}
	info, err := s.Put(ctx, "reports/e1/counts.csv", strings.NewReader("hello"), core.PutOptions{ContentType: "text/csv", Metadata: md})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	md["experiment"] = "mutated"
	if info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "reports/e1/counts.csv", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "reports/e1/counts.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" || got.Metadata["experiment"] != "e1" {
		t.Fatalf("unexpected blob %q %+v", data, got)
	}
	got.Metadata["experiment"] = "changed"
	head, _ := s.Head(ctx, "reports/e1/counts.csv")
	if head.Metadata["experiment"] != "e1" {
		t.Fatalf("metadata leaked through returned info")
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	first, _ := s.Put(ctx, "k", strings.NewReader("one"), core.PutOptions{})
	second, err := s.Put(ctx, "k", strings.NewReader("three"), core.PutOptions{Overwrite: true, ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if second.Size != 5 || second.ETag == first.ETag || second.ContentType != "text/plain" {
		t.Fatalf("unexpected overwrite info %+v", second)
	}
}

func TestMemoryStoreMissingAndList(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	for _, k := range []string{"b/2", "a/1", "b/1"} {
		if _, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, _ := s.List(ctx, "b/")
	if len(list) != 2 || list[0].Key != "b/1" || list[1].Key != "b/2" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	ok, _ := s.Delete(ctx, "a/1")
	if !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	ok, _ = s.Delete(ctx, "a/1")
	if ok {
		t.Fatalf("expected second delete to report false")
	}
	if _, err := s.PresignURL(ctx, "b/1", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
}

func TestMemoryStoreRejectsEmptyKeyAndCancelledContext(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), " ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
