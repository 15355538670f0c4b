package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestKey_NormalizesWhitespaceAndCase(t *testing.T) {
	a := Key("verify", "Machine  Learning", "0,1")
	b := Key("verify", "machine learning", "0,1")
	if a != b {
		t.Error("keys for trivially different spellings should match")
	}
	if Key("verify", "machine learning") == Key("verify", "deep learning") {
		t.Error("different text must not collide")
	}
}

func TestKey_PartBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not produce the same key.
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("part boundaries leaked across the hash")
	}
}

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("empty cache reported a hit")
	}
	c.Put(ctx, "k", "v")
	if v, ok := c.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("Get = %q, %v; want v, true", v, ok)
	}
}

func TestNoop_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c Noop
	c.Put(ctx, "k", "v")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("noop cache returned a hit")
	}
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "memo.json")

	c, err := NewFile(path, log)
	if err != nil {
		t.Fatal(err)
	}
	c.Put(ctx, "k", "v")

	reopened, err := NewFile(path, log)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reopened.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("reopened Get = %q, %v; want v, true", v, ok)
	}
}

func TestFile_CorruptFileStartsEmpty(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "memo.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	c, err := NewFile(path, log)
	if err != nil {
		t.Fatalf("corrupt cache should not be fatal: %v", err)
	}
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("corrupt cache produced a hit")
	}
}
