package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"spherecore/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	meta := map[string]string{"body": "earth"}
	info, err := s.Put(ctx, "checkpoints/a/bodies/earth.json", strings.NewReader(`{"id":"earth"}`), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["body"] = "mutated"
	if info.Size != 14 || info.ETag == "" || info.Metadata["body"] != "earth" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "checkpoints/a/bodies/earth.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, " ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key rejection")
	}
	if _, err := s.Put(ctx, "checkpoints/b/manifest.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, rc, err := s.Get(ctx, "checkpoints/a/bodies/earth.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"id":"earth"}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}

	list, err := s.List(ctx, "checkpoints/a/")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected prefix filter, got %v %v", list, err)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected sorted listing, got %+v", all)
	}

	if ok, _ := s.Delete(ctx, "checkpoints/b/manifest.json"); !ok {
		t.Fatalf("expected delete to report existing key")
	}
	if ok, _ := s.Delete(ctx, "checkpoints/b/manifest.json"); ok {
		t.Fatalf("second delete must report missing key")
	}
	if _, err := s.Head(ctx, "checkpoints/b/manifest.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "x", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
