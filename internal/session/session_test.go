package session

import (
	"testing"

	"github.com/google/uuid"

	"chat-gateway/internal/storage"
)

func TestIDIsStableAcrossCalls(t *testing.T) {
	store := storage.NewMemoryStore()

	first, err := ID(store)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("id %q is not a UUID: %v", first, err)
	}

	second, err := ID(store)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second != first {
		t.Fatalf("id changed across calls: %q then %q", first, second)
	}
}

func TestIDReplacesMalformedState(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Save("session_id", []byte("not-a-uuid")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	id, err := ID(store)
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("id %q is not a UUID: %v", id, err)
	}
}
