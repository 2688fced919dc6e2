package storage

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
	"sort"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/logging"
)

var (
	CopyBatchSize     = 1000
	CopyBatchMaxBytes = 5 * 1024 * 1024
)

// StorageIterator walks keys in order. Key and Value are only valid until
// the next call to Next.
type StorageIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

type StorageDriver interface {
	Open() error
	Close() error
	Recover() error
	// Get returns one value per key. Missing keys and nil keys yield nil.
	Get(keys [][]byte) ([][]byte, error)
	// GetRange iterates keys in [start, end). A nil end is unbounded.
	GetRange(start []byte, end []byte) (StorageIterator, error)
	Batch(batch *Batch) error
	// Snapshot copies every key into a new store at snapshotDirectory and
	// records metadata under metadataPrefix in the copy
	Snapshot(snapshotDirectory string, metadataPrefix []byte, metadata map[string]string) error
}

type OpType int

const (
	OpPut    OpType = iota
	OpDelete OpType = iota
)

type Op struct {
	Type  OpType
	Key   []byte
	Value []byte
}

// Batch is a set of writes applied atomically. A later write to a key
// replaces an earlier one.
type Batch struct {
	ops map[string]Op
}

func NewBatch() *Batch {
	return &Batch{ops: make(map[string]Op)}
}

func (batch *Batch) Size() int {
	return len(batch.ops)
}

func (batch *Batch) Put(key []byte, value []byte) *Batch {
	batch.ops[string(key)] = Op{Type: OpPut, Key: key, Value: value}

	return batch
}

func (batch *Batch) Delete(key []byte) *Batch {
	batch.ops[string(key)] = Op{Type: OpDelete, Key: key}

	return batch
}

// SortedOps orders operations by key. Both engines write sorted batches
// faster than random ones.
func (batch *Batch) SortedOps() []Op {
	ops := make([]Op, 0, len(batch.ops))

	for _, op := range batch.ops {
		ops = append(ops, op)
	}

	sort.Slice(ops, func(i, j int) bool {
		return string(ops[i].Key) < string(ops[j].Key)
	})

	return ops
}

// Copy streams every key of src into dest in batches bounded by
// CopyBatchSize and CopyBatchMaxBytes
func Copy(dest StorageDriver, src StorageDriver) error {
	iter, err := src.GetRange(nil, nil)

	if err != nil {
		return err
	}

	defer iter.Release()

	batch := NewBatch()
	batchBytes := 0
	copied := 0

	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}

		if err := dest.Batch(batch); err != nil {
			return errors.Wrapf(err, "writing copy chunk after %d keys", copied)
		}

		Log.Debugf("Copied %d keys so far", copied)

		batch = NewBatch()
		batchBytes = 0

		return nil
	}

	for iter.Next() {
		batch.Put(copyBytes(iter.Key()), copyBytes(iter.Value()))
		batchBytes += len(iter.Key()) + len(iter.Value())
		copied++

		if batchBytes >= CopyBatchMaxBytes || batch.Size() >= CopyBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "iterating copy source")
	}

	return flush()
}

// writeSnapshot fills an empty, open store with the contents of src plus
// metadata and closes it
func writeSnapshot(dest StorageDriver, src StorageDriver, metadataPrefix []byte, metadata map[string]string) error {
	defer dest.Close()

	if err := Copy(dest, src); err != nil {
		return err
	}

	meta := NewBatch()

	for key, value := range metadata {
		meta.Put(append(copyBytes(metadataPrefix), key...), []byte(value))
	}

	if err := dest.Batch(meta); err != nil {
		return errors.Wrap(err, "recording snapshot metadata")
	}

	return dest.Close()
}

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)

	return c
}

// prefixUpperBound returns the smallest key greater than every key that
// starts with prefix, or nil when no such key exists
func prefixUpperBound(prefix []byte) []byte {
	end := copyBytes(prefix)

	for i := len(end) - 1; i >= 0; i-- {
		end[i]++

		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil
}
