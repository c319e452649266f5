// Package storagetest holds the behavioral suite every storage.Repository
// implementation must pass.
package storagetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodj/kodjadmin/storage"
)

func envelope(payload string) *storage.Envelope {
	return &storage.Envelope{Ver: 1, Scheme: storage.SchemeAESGCM, Nonce: make([]byte, 12), Ciphertext: []byte(payload)}
}

// RunRepositorySuite exercises repo against the storage.Repository contract.
// repo must be empty.
func RunRepositorySuite(t *testing.T, repo storage.Repository) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, repo.Put("p1", "access_token", envelope("a1")))

		got, err := repo.Get("p1", "access_token")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Ver)
		assert.Equal(t, []byte("a1"), got.Ciphertext)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, repo.Put("p1", "access_token", envelope("a2")))

		got, err := repo.Get("p1", "access_token")
		require.NoError(t, err)
		assert.Equal(t, []byte("a2"), got.Ciphertext)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("missing", "access_token")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

		_, err = repo.Get("p1", "missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("NamespacesAreIsolated", func(t *testing.T) {
		require.NoError(t, repo.Put("p2", "access_token", envelope("other")))

		got, err := repo.Get("p1", "access_token")
		require.NoError(t, err)
		assert.Equal(t, []byte("a2"), got.Ciphertext)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, repo.Put("p1", "refresh_token", envelope("r1")))

		keys, err := repo.List("p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"access_token", "refresh_token"}, keys)

		keys, err = repo.List("nobody")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, repo.Delete("p2", "access_token"))
		require.NoError(t, repo.Delete("p2", "access_token"))
		require.NoError(t, repo.Delete("never-created", "x"))

		_, err := repo.Get("p2", "access_token")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("BatchCommits", func(t *testing.T) {
		err := repo.Batch("p1", func(tx storage.BatchTx) error {
			if err := tx.Put("access_token", envelope("a3")); err != nil {
				return err
			}
			return tx.Put("refresh_token", envelope("r3"))
		})
		require.NoError(t, err)

		a, err := repo.Get("p1", "access_token")
		require.NoError(t, err)
		r, err := repo.Get("p1", "refresh_token")
		require.NoError(t, err)
		assert.Equal(t, []byte("a3"), a.Ciphertext)
		assert.Equal(t, []byte("r3"), r.Ciphertext)
	})

	t.Run("BatchRollsBack", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.Batch("p1", func(tx storage.BatchTx) error {
			if err := tx.Put("access_token", envelope("lost")); err != nil {
				return err
			}
			if err := tx.Delete("refresh_token"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		a, err := repo.Get("p1", "access_token")
		require.NoError(t, err)
		assert.Equal(t, []byte("a3"), a.Ciphertext)
		_, err = repo.Get("p1", "refresh_token")
		assert.NoError(t, err)
	})

	t.Run("BatchDelete", func(t *testing.T) {
		err := repo.Batch("p1", func(tx storage.BatchTx) error {
			if err := tx.Delete("access_token"); err != nil {
				return err
			}
			return tx.Delete("refresh_token")
		})
		require.NoError(t, err)

		keys, err := repo.List("p1")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
