package enhance

import (
	"testing"
	"time"

	"tbcv/internal/types"
)

func TestPreviewStorePutGet(t *testing.T) {
	ps := newPreviewStore(time.Minute)
	ps.put(&types.EnhancementPreview{PreviewID: "p1"})

	got := ps.get("p1")
	if got == nil {
		t.Fatal("get(p1) = nil after put")
	}
	if got.ExpiresAt.Before(got.CreatedAt) {
		t.Fatal("ExpiresAt before CreatedAt")
	}
	if ps.get("absent") != nil {
		t.Fatal("get(absent) returned a preview")
	}
}

func TestPreviewStoreExpiry(t *testing.T) {
	ps := newPreviewStore(10 * time.Millisecond)
	ps.put(&types.EnhancementPreview{PreviewID: "p1"})

	time.Sleep(25 * time.Millisecond)
	if ps.get("p1") != nil {
		t.Fatal("expired preview still served")
	}
	if ps.len() != 0 {
		t.Fatalf("len() = %d after expiry read, want 0", ps.len())
	}
}

func TestPreviewStoreDrop(t *testing.T) {
	ps := newPreviewStore(time.Minute)
	ps.put(&types.EnhancementPreview{PreviewID: "p1"})
	ps.drop("p1")
	if ps.get("p1") != nil {
		t.Fatal("dropped preview still served")
	}
}

func TestPreviewStoreSweepOnPut(t *testing.T) {
	ps := newPreviewStore(10 * time.Millisecond)
	ps.put(&types.EnhancementPreview{PreviewID: "old"})
	time.Sleep(25 * time.Millisecond)
	ps.put(&types.EnhancementPreview{PreviewID: "new"})

	if ps.len() != 1 {
		t.Fatalf("len() = %d after sweep, want 1", ps.len())
	}
}
