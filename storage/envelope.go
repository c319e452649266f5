package storage

import (
	"fmt"

	"github.com/kodj/kodjadmin/internal/util"
)

const (
	// SchemeAESGCM marks a record sealed with AES-256-GCM.
	SchemeAESGCM = "aes256gcm"
	// SchemeRaw marks non-secret bookkeeping data (salts, parameters) stored
	// in the clear.
	SchemeRaw = "raw"
)

// Envelope is a stored record, usually AES-256-GCM sealed.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
}

// Clone returns a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	return &Envelope{
		Ver:        e.Ver,
		Scheme:     e.Scheme,
		Nonce:      util.CopyBytes(e.Nonce),
		Ciphertext: util.CopyBytes(e.Ciphertext),
	}
}

// SealRecord encrypts plaintext into an Envelope using the given record key and AAD.
func SealRecord(recordKey, plaintext, aad []byte) (*Envelope, error) {
	sealed, err := util.SealAES(plaintext, recordKey, aad)
	if err != nil {
		return nil, err
	}

	// util.SealAES returns nonce || ciphertext.
	return &Envelope{
		Ver:        1,
		Scheme:     SchemeAESGCM,
		Nonce:      sealed[:12],
		Ciphertext: sealed[12:],
	}, nil
}

// OpenRecord decrypts an Envelope using the given record key and AAD.
func OpenRecord(recordKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope.Ver != 1 {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != SchemeAESGCM {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	// Reconstruct nonce || ciphertext without mutating envelope fields.
	full := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(full, envelope.Nonce)
	copy(full[len(envelope.Nonce):], envelope.Ciphertext)

	return util.OpenAES(full, recordKey, aad)
}

// RawRecord wraps non-secret data in an unsealed Envelope.
func RawRecord(data []byte) *Envelope {
	return &Envelope{Ver: 1, Scheme: SchemeRaw, Ciphertext: util.CopyBytes(data)}
}

// OpenRaw returns the payload of an Envelope produced by RawRecord.
func OpenRaw(envelope *Envelope) ([]byte, error) {
	if envelope.Ver != 1 || envelope.Scheme != SchemeRaw {
		return nil, fmt.Errorf("not a raw record: ver=%d scheme=%s", envelope.Ver, envelope.Scheme)
	}
	return util.CopyBytes(envelope.Ciphertext), nil
}
