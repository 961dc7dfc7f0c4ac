package localfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/memohai/mimic/internal/media"
)

func TestProvider_HostPath(t *testing.T) {
	t.Parallel()
	p := &Provider{root: "/srv/data"}

	tests := []struct {
		key       string
		want      string
		wantErr   bool
		traversal bool
	}{
		{key: "documents/AgAD1/page-001.jpg", want: "/srv/data/documents/AgAD1/page-001.jpg"},
		{key: "/absolute/path", wantErr: true, traversal: true},
		{key: "../escape", wantErr: true, traversal: true},
		{key: "documents/../../escape", wantErr: true, traversal: true},
		{key: "nosubpath", wantErr: true},
		{key: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := p.hostPath(tt.key)
		if tt.wantErr {
			if err == nil {
				t.Errorf("hostPath(%q) expected error", tt.key)
			}
			if tt.traversal && !errors.Is(err, media.ErrPathTraversal) {
				t.Errorf("hostPath(%q) expected ErrPathTraversal, got %v", tt.key, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("hostPath(%q) unexpected error: %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("hostPath(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestProvider_PutOpenDelete(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	p, err := New(tmpDir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	key := "documents/AgAD1/text.txt"
	data := []byte("cached document text")

	if err := p.Put(ctx, key, bytes.NewReader(data)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "documents", "AgAD1", "text.txt")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if got := p.AccessPath(key); got != filepath.Join(tmpDir, "documents", "AgAD1", "text.txt") {
		t.Fatalf("unexpected access path: %s", got)
	}

	rc, err := p.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, data) {
		t.Fatalf("content mismatch: %q", got)
	}

	if err := p.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := p.Open(ctx, key); !errors.Is(err, media.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound after delete, got %v", err)
	}
	if err := p.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
}
