package tokenstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodj/kodjadmin/internal/util"
	"github.com/kodj/kodjadmin/storage"
	"github.com/kodj/kodjadmin/storage/bbolt"
	"github.com/kodj/kodjadmin/storage/memory"
)

func testWrappingKey(t *testing.T) []byte {
	t.Helper()
	key, err := util.NewAESKey()
	require.NoError(t, err)
	return key
}

func newSealed(t *testing.T, repo storage.Repository) *Sealed {
	t.Helper()
	s, err := NewSealed(repo, "default", testWrappingKey(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func runStoreSuite(t *testing.T, s Store) {
	t.Run("EmptyIsAbsent", func(t *testing.T) {
		_, ok := s.Get(AccessToken)
		assert.False(t, ok)
		assert.True(t, Empty(s))
	})

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, s.Set(AccessToken, "a1"))
		v, ok := s.Get(AccessToken)
		assert.True(t, ok)
		assert.Equal(t, "a1", v)
		assert.False(t, Empty(s))
	})

	t.Run("OverwriteIsImmediate", func(t *testing.T) {
		require.NoError(t, s.Set(AccessToken, "a2"))
		v, _ := s.Get(AccessToken)
		assert.Equal(t, "a2", v)
	})

	t.Run("SetPair", func(t *testing.T) {
		require.NoError(t, s.SetPair("X", "Y"))
		a, _ := s.Get(AccessToken)
		r, _ := s.Get(RefreshToken)
		assert.Equal(t, "X", a)
		assert.Equal(t, "Y", r)
	})

	t.Run("ClearIsIdempotent", func(t *testing.T) {
		require.NoError(t, s.Clear(AccessToken))
		require.NoError(t, s.Clear(AccessToken))
		_, ok := s.Get(AccessToken)
		assert.False(t, ok)
		r, ok := s.Get(RefreshToken)
		assert.True(t, ok)
		assert.Equal(t, "Y", r)
	})

	t.Run("ClearAllIsIdempotent", func(t *testing.T) {
		require.NoError(t, s.SetPair("X", "Y"))
		require.NoError(t, s.ClearAll())
		require.NoError(t, s.ClearAll())
		assert.True(t, Empty(s))
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.SetPair("a", "r")
				_, _ = s.Get(AccessToken)
			}()
		}
		wg.Wait()
		v, ok := s.Get(AccessToken)
		assert.True(t, ok)
		assert.Equal(t, "a", v)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemory())
}

func TestSealedStore_Memory(t *testing.T) {
	runStoreSuite(t, newSealed(t, memory.NewRepository()))
}

func TestSealedStore_BBolt(t *testing.T) {
	repo, err := bbolt.NewRepositoryFromFile(filepath.Join(t.TempDir(), "tokens.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	runStoreSuite(t, newSealed(t, repo))
}

func TestSealedStore_CiphertextAtRest(t *testing.T) {
	repo := memory.NewRepository()
	s := newSealed(t, repo)
	require.NoError(t, s.Set(RefreshToken, "very-secret-refresh"))

	env, err := repo.Get("default", string(RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, storage.SchemeAESGCM, env.Scheme)
	assert.NotContains(t, string(env.Ciphertext), "very-secret-refresh")
}

func TestSealedStore_SurvivesReopen(t *testing.T) {
	repo := memory.NewRepository()
	wk := testWrappingKey(t)

	s1, err := NewSealed(repo, "default", wk)
	require.NoError(t, err)
	require.NoError(t, s1.SetPair("X", "Y"))
	s1.Close()

	s2, err := NewSealed(repo, "default", wk)
	require.NoError(t, err)
	defer s2.Close()
	v, ok := s2.Get(RefreshToken)
	assert.True(t, ok)
	assert.Equal(t, "Y", v)
}

func TestSealedStore_WrongWrappingKeyReadsAbsent(t *testing.T) {
	repo := memory.NewRepository()

	s1, err := NewSealed(repo, "default", testWrappingKey(t))
	require.NoError(t, err)
	require.NoError(t, s1.SetPair("X", "Y"))
	s1.Close()

	s2, err := NewSealed(repo, "default", testWrappingKey(t))
	require.NoError(t, err)
	defer s2.Close()
	assert.True(t, Empty(s2))

	require.NoError(t, s2.Set(AccessToken, "fresh"))
	v, ok := s2.Get(AccessToken)
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestSealedStore_TamperedRecordReadsAbsent(t *testing.T) {
	repo := memory.NewRepository()
	s := newSealed(t, repo)
	require.NoError(t, s.Set(AccessToken, "a1"))

	env, err := repo.Get("default", string(AccessToken))
	require.NoError(t, err)
	env.Ciphertext[0] ^= 0xFF
	require.NoError(t, repo.Put("default", string(AccessToken), env))

	_, ok := s.Get(AccessToken)
	assert.False(t, ok)
}

func TestSealedStore_RecordsBoundToKey(t *testing.T) {
	repo := memory.NewRepository()
	s := newSealed(t, repo)
	require.NoError(t, s.Set(RefreshToken, "r1"))

	// Copying the refresh record over the access slot must not validate.
	env, err := repo.Get("default", string(RefreshToken))
	require.NoError(t, err)
	require.NoError(t, repo.Put("default", string(AccessToken), env))

	_, ok := s.Get(AccessToken)
	assert.False(t, ok)
}

func TestSealedStore_ProfilesAreIsolated(t *testing.T) {
	repo := memory.NewRepository()
	wk := testWrappingKey(t)
	ops, err := NewSealed(repo, "ops", wk)
	require.NoError(t, err)
	defer ops.Close()
	dev, err := NewSealed(repo, "dev", wk)
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, ops.Set(AccessToken, "ops-token"))
	assert.True(t, Empty(dev))
	require.NoError(t, dev.ClearAll())
	v, _ := ops.Get(AccessToken)
	assert.Equal(t, "ops-token", v)
}

func TestSealedStore_Closed(t *testing.T) {
	s, err := NewSealed(memory.NewRepository(), "default", testWrappingKey(t))
	require.NoError(t, err)
	require.NoError(t, s.Set(AccessToken, "a1"))
	s.Close()

	_, ok := s.Get(AccessToken)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Set(AccessToken, "a2"), ErrClosed)
}

func TestNewSealed_Validation(t *testing.T) {
	_, err := NewSealed(memory.NewRepository(), "default", []byte("short"))
	assert.Error(t, err)
	_, err = NewSealed(memory.NewRepository(), "", testWrappingKey(t))
	assert.Error(t, err)
}

func TestKeyFromPassphrase(t *testing.T) {
	repo := memory.NewRepository()
	params := util.DefaultArgon2idParams()
	params.MemoryKiB = 1024

	k1, err := KeyFromPassphrase(repo, "default", "correct horse", params)
	require.NoError(t, err)
	k2, err := KeyFromPassphrase(repo, "default", "correct horse", params)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "salt must be reused across calls")

	k3, err := KeyFromPassphrase(repo, "default", "wrong horse", params)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := KeyFromPassphrase(repo, "other", "correct horse", params)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4, "profiles get their own salt")

	_, err = KeyFromPassphrase(repo, "default", "", params)
	assert.Error(t, err)
}

func TestLoadOrCreateKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "store.key")

	k1, err := LoadOrCreateKeyFile(path)
	require.NoError(t, err)
	assert.Len(t, k1, util.AESKeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	k2, err := LoadOrCreateKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	require.NoError(t, os.WriteFile(path, []byte("not-hex"), 0o600))
	_, err = LoadOrCreateKeyFile(path)
	assert.Error(t, err)
}
