package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"spherecore/internal/blob/core"
)

func TestS3StoreAgainstFakeEndpoint(t *testing.T) {
	ctx := context.Background()
	s := NewMock()
	if s.Driver() != core.DriverS3 || s.Bucket() != MockBucket {
		t.Fatalf("unexpected driver/bucket %s %s", s.Driver(), s.Bucket())
	}
	key := "checkpoints/nightly/manifest.json"
	info, err := s.Put(ctx, key, strings.NewReader(`{"bodies":2}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"format": "v1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 12 || info.ContentType != "application/json" || info.Metadata["format"] != "v1" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, key, strings.NewReader("{}"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	_, rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"bodies":2}` {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := s.Put(ctx, "checkpoints/nightly/bodies/mars.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put body: %v", err)
	}
	list, err := s.List(ctx, "checkpoints/nightly/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "checkpoints/nightly/bodies/mars.json" {
		t.Fatalf("unexpected listing %+v", list)
	}

	if ok, err := s.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, key); err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestS3PresignAndConfig(t *testing.T) {
	s := NewMock()
	url, err := s.PresignURL(context.Background(), "checkpoints/a/manifest.json", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "X-Amz-Expires=60") || !strings.Contains(url, MockBucket) {
		t.Fatalf("unexpected presigned url %s", url)
	}
	if _, err := s.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket requirement")
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	framed := "5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"
	got, err := decodeAWSChunked([]byte(framed))
	if err != nil || string(got) != "hello world" {
		t.Fatalf("decode: %q %v", got, err)
	}
	if _, err := decodeAWSChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected size parse error")
	}
}
