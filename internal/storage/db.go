// Package storage provides the key-value stores snapshots are written to.
package storage

import "errors"

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach visits every key with the given prefix in key order.
	// The callback receives copies of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are applied together by Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by stores with native batched writes.
type Batcher interface {
	NewBatch() Batch
}

// NewBatch returns db's native batch when it has one, and a buffered batch
// applied key by key otherwise.
func NewBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &bufferedBatch{db: db}
}

// DeletePrefix removes every key under prefix in one batch.
func DeletePrefix(db DB, prefix []byte) error {
	var keys [][]byte
	err := db.ForEach(prefix, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	b := NewBatch(db)
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return b.Commit()
}

type op struct {
	key   []byte
	value []byte // nil deletes
}

// bufferedBatch applies its writes one at a time on Commit.
type bufferedBatch struct {
	db  DB
	ops []op
}

func (b *bufferedBatch) Put(key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), value: v})
	return nil
}

func (b *bufferedBatch) Delete(key []byte) error {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...)})
	return nil
}

func (b *bufferedBatch) Commit() error {
	for _, o := range b.ops {
		var err error
		if o.value == nil {
			err = b.db.Delete(o.key)
		} else {
			err = b.db.Put(o.key, o.value)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}
