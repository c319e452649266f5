package tokenstore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kodj/kodjadmin/internal/util"
	"github.com/kodj/kodjadmin/storage"
)

const (
	kdfProfileRecord = "kdf_profile"
	kdfSaltLen       = 16
)

type kdfProfile struct {
	Params util.Argon2idParams `json:"params"`
	Salt   []byte              `json:"salt"`
}

// KeyFromPassphrase derives a wrapping key from passphrase with argon2id.
// The salt and cost parameters are kept in the profile namespace as a raw
// record and created on first use.
func KeyFromPassphrase(repo storage.Repository, namespace, passphrase string, params util.Argon2idParams) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	profile, err := loadOrCreateKDFProfile(repo, namespace, params)
	if err != nil {
		return nil, err
	}
	return util.DeriveArgon2idKey(passphrase, profile.Salt, profile.Params)
}

func loadOrCreateKDFProfile(repo storage.Repository, namespace string, params util.Argon2idParams) (*kdfProfile, error) {
	env, err := repo.Get(namespace, kdfProfileRecord)
	if err == nil {
		data, err := storage.OpenRaw(env)
		if err != nil {
			return nil, fmt.Errorf("reading kdf profile: %w", err)
		}
		var p kdfProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding kdf profile: %w", err)
		}
		return &p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading kdf profile: %w", err)
	}

	salt, err := util.RandomBytes(kdfSaltLen)
	if err != nil {
		return nil, err
	}
	p := &kdfProfile{Params: params, Salt: salt}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if err := repo.Put(namespace, kdfProfileRecord, storage.RawRecord(data)); err != nil {
		return nil, fmt.Errorf("persisting kdf profile: %w", err)
	}
	return p, nil
}

// LoadOrCreateKeyFile reads a hex-encoded 32-byte wrapping key from path,
// generating one with mode 0600 if the file does not exist.
func LoadOrCreateKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		util.WipeBytes(data)
		if err != nil || len(key) != util.AESKeySize {
			return nil, fmt.Errorf("key file %s must hold %d hex-encoded bytes", path, util.AESKeySize)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating key dir: %w", err)
	}
	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		util.WipeBytes(key)
		if errors.Is(err, os.ErrExist) {
			// Lost a race with another process; use its key.
			return LoadOrCreateKeyFile(path)
		}
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return key, nil
}
