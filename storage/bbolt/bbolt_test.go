package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/kodj/kodjadmin/storage"
	"github.com/kodj/kodjadmin/storage/storagetest"
	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "nested", "tokens.db"), nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltStorage(t *testing.T) {
	storagetest.RunRepositorySuite(t, newTestStore(t))
}

func TestBBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	env := &storage.Envelope{Ver: 1, Scheme: storage.SchemeAESGCM, Nonce: make([]byte, 12), Ciphertext: []byte("cipher")}
	if err := s.Put("default", "refresh_token", env); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	s = NewRepository(db)
	defer s.Close()

	got, err := s.Get("default", "refresh_token")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got.Ciphertext) != "cipher" {
		t.Errorf("expected cipher, got %s", got.Ciphertext)
	}
}
