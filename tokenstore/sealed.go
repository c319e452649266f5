package tokenstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/internal/util"
	"github.com/kodj/kodjadmin/storage"
)

const (
	storeKeyRecord     = "store_key"
	storeKeyWrapPrefix = "kodjadmin:store_key:v1:"
	tokenAADPrefix     = "kodjadmin:token:"
)

// Sealed stores credentials in a storage.Repository, encrypted at rest using
// AES-256-GCM. Credentials survive process restarts.
//
// The per-profile data key is itself sealed with an externally provided
// wrapping key before being stored, so a copy of the repository alone does
// not reveal the credentials. While open, the data key lives in a memguard
// Enclave.
type Sealed struct {
	repo      storage.Repository
	namespace string
	logger    *slog.Logger

	mu  sync.RWMutex
	key *memguard.Enclave
}

var _ Store = (*Sealed)(nil)

// SealedOption configures a Sealed store.
type SealedOption func(*Sealed)

// WithLogger sets the logger used to report unreadable records.
func WithLogger(logger *slog.Logger) SealedOption {
	return func(s *Sealed) {
		s.logger = logger
	}
}

// NewSealed opens the credential store for namespace. The wrappingKey
// (32 bytes) seals the data key; it is never written to the repository.
func NewSealed(repo storage.Repository, namespace string, wrappingKey []byte, opts ...SealedOption) (*Sealed, error) {
	if len(wrappingKey) != util.AESKeySize {
		return nil, fmt.Errorf("wrapping key must be exactly %d bytes, got %d", util.AESKeySize, len(wrappingKey))
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	s := &Sealed{repo: repo, namespace: namespace}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDefault(s.logger).With("component", "tokenstore", "profile", namespace)

	key, err := s.loadOrCreateStoreKey(wrappingKey)
	if err != nil {
		return nil, err
	}
	s.key = memguard.NewEnclave(key)
	return s, nil
}

// Close drops the data key. Reads report absent and writes fail afterwards.
func (s *Sealed) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
}

func tokenAAD(namespace string, key Key) []byte {
	return []byte(tokenAADPrefix + namespace + ":" + string(key))
}

func (s *Sealed) withKey(fn func(key []byte) error) error {
	s.mu.RLock()
	enclave := s.key
	s.mu.RUnlock()
	if enclave == nil {
		return ErrClosed
	}
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening store key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (s *Sealed) Get(key Key) (string, bool) {
	env, err := s.repo.Get(s.namespace, string(key))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("reading credential failed", "key", string(key), "error", err)
		}
		return "", false
	}
	var value string
	err = s.withKey(func(k []byte) error {
		data, err := storage.OpenRecord(k, env, tokenAAD(s.namespace, key))
		if err != nil {
			return err
		}
		value = string(data)
		util.WipeBytes(data)
		return nil
	})
	if err != nil {
		s.logger.Warn("credential unreadable", "key", string(key), "error", err)
		return "", false
	}
	return value, true
}

func (s *Sealed) seal(key Key, value string) (*storage.Envelope, error) {
	var env *storage.Envelope
	err := s.withKey(func(k []byte) error {
		var err error
		env, err = storage.SealRecord(k, []byte(value), tokenAAD(s.namespace, key))
		return err
	})
	return env, err
}

func (s *Sealed) Set(key Key, value string) error {
	env, err := s.seal(key, value)
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	return s.repo.Put(s.namespace, string(key), env)
}

func (s *Sealed) SetPair(access, refresh string) error {
	accessEnv, err := s.seal(AccessToken, access)
	if err != nil {
		return fmt.Errorf("sealing %s: %w", AccessToken, err)
	}
	refreshEnv, err := s.seal(RefreshToken, refresh)
	if err != nil {
		return fmt.Errorf("sealing %s: %w", RefreshToken, err)
	}
	return s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		if err := tx.Put(string(AccessToken), accessEnv); err != nil {
			return err
		}
		return tx.Put(string(RefreshToken), refreshEnv)
	})
}

func (s *Sealed) Clear(key Key) error {
	return s.repo.Delete(s.namespace, string(key))
}

func (s *Sealed) ClearAll() error {
	return s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		for _, k := range Keys {
			if err := tx.Delete(string(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// loadOrCreateStoreKey loads the data key from the repository, unsealing it
// with the wrapping key. If no key exists, or the wrapping key no longer
// opens it, a new random key is generated, sealed and persisted, and any
// credentials sealed under the old key are removed.
func (s *Sealed) loadOrCreateStoreKey(wrappingKey []byte) ([]byte, error) {
	aad := []byte(storeKeyWrapPrefix + s.namespace)

	env, err := s.repo.Get(s.namespace, storeKeyRecord)
	switch {
	case err == nil:
		key, openErr := storage.OpenRecord(wrappingKey, env, aad)
		if openErr == nil && len(key) == util.AESKeySize {
			return key, nil
		}
		util.WipeBytes(key)
		s.logger.Warn("store key cannot be unsealed; stored credentials are discarded")
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("loading store key: %w", err)
	}

	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wrappingKey, key, aad)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing store key: %w", err)
	}
	err = s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		for _, k := range Keys {
			if err := tx.Delete(string(k)); err != nil {
				return err
			}
		}
		return tx.Put(storeKeyRecord, sealed)
	})
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("persisting store key: %w", err)
	}
	return key, nil
}
