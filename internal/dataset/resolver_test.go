package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveUploadedDataset(t *testing.T) {
	dir := t.TempDir()
	csv := "name,age\nAlice,25\nBob,30\n"
	if err := os.WriteFile(filepath.Join(dir, "sess-1.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}

	resolver := NewResolver(dir, t.TempDir(), nil)
	frame := resolver.Resolve(context.Background(), "sess-1")
	if frame.Len() != 2 {
		t.Fatalf("expected uploaded dataset, got %s", frame.Shape())
	}
}

func TestResolveWorkDirFallback(t *testing.T) {
	work := t.TempDir()
	csv := "x\n1\n"
	if err := os.WriteFile(filepath.Join(work, "sess-2.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	resolver := NewResolver(t.TempDir(), work, nil)
	frame := resolver.Resolve(context.Background(), "sess-2")
	if frame.Len() != 1 || frame.Columns()[0] != "x" {
		t.Fatalf("expected workdir dataset, got %v %s", frame.Columns(), frame.Shape())
	}
}

func TestResolveDefaultFallbackNeverFails(t *testing.T) {
	resolver := NewResolver(t.TempDir(), t.TempDir(), nil)
	frame := resolver.Resolve(context.Background(), "never-uploaded")
	if frame == nil || frame.Len() == 0 {
		t.Fatal("expected non-empty default dataset")
	}
}

func TestResolveIdempotent(t *testing.T) {
	resolver := NewResolver(t.TempDir(), t.TempDir(), nil)
	a := resolver.Resolve(context.Background(), "sess-3")
	b := resolver.Resolve(context.Background(), "sess-3")
	if a.Shape() != b.Shape() {
		t.Fatalf("expected identical shapes, got %s vs %s", a.Shape(), b.Shape())
	}
	if a.String() != b.String() {
		t.Fatal("expected identical content on repeated resolution")
	}
}
