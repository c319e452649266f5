// Package storage provides the persistence abstraction for sealed session
// records. Records are grouped into namespaces, one per profile.
package storage

import "errors"

// ErrNotFound is returned by Get when a namespace or key does not exist.
var ErrNotFound = errors.New("record not found")

// BatchTx provides Put and Delete within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Put(key string, envelope *Envelope) error
	Delete(key string) error
}

// Repository defines the interface for sealed record storage.
//
// Delete of a missing key is not an error. List returns keys in ascending
// order and an empty slice for an unknown namespace.
type Repository interface {
	Put(namespace string, key string, envelope *Envelope) error
	Get(namespace string, key string) (*Envelope, error)
	Delete(namespace string, key string) error
	List(namespace string) ([]string, error)
	Batch(namespace string, fn func(tx BatchTx) error) error
}
