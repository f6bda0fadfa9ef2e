package storage

import (
	"bytes"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if data, err := s.Load("missing"); err != nil || data != nil {
				t.Fatalf("load missing = (%v, %v), want (nil, nil)", data, err)
			}

			if err := s.Save("key", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("save: %v", err)
			}
			data, err := s.Load("key")
			if err != nil || !bytes.Equal(data, []byte(`{"a":1}`)) {
				t.Fatalf("load = (%s, %v)", data, err)
			}

			if err := s.Delete("key"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if data, err := s.Load("key"); err != nil || data != nil {
				t.Fatalf("load after delete = (%v, %v)", data, err)
			}

			// Deleting a missing key is not an error.
			if err := s.Delete("missing"); err != nil {
				t.Fatalf("delete missing: %v", err)
			}
		})
	}
}
