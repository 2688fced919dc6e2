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

// PrefixedStorageDriver is a namespace of a shared driver. Every key is
// stored under prefix and returned without it. Open and Close leave the
// shared driver alone.
type PrefixedStorageDriver struct {
	prefix []byte
	driver StorageDriver
}

func NewPrefixedStorageDriver(prefix []byte, driver StorageDriver) *PrefixedStorageDriver {
	return &PrefixedStorageDriver{prefix: copyBytes(prefix), driver: driver}
}

func (namespace *PrefixedStorageDriver) Open() error {
	return nil
}

func (namespace *PrefixedStorageDriver) Close() error {
	return nil
}

func (namespace *PrefixedStorageDriver) Recover() error {
	return namespace.driver.Recover()
}

func (namespace *PrefixedStorageDriver) key(k []byte) []byte {
	return append(copyBytes(namespace.prefix), k...)
}

func (namespace *PrefixedStorageDriver) Get(keys [][]byte) ([][]byte, error) {
	namespaced := make([][]byte, len(keys))

	for i, k := range keys {
		if k != nil {
			namespaced[i] = namespace.key(k)
		}
	}

	return namespace.driver.Get(namespaced)
}

// GetRange iterates keys of the namespace in [start, end). A nil end means
// the end of the namespace.
func (namespace *PrefixedStorageDriver) GetRange(start []byte, end []byte) (StorageIterator, error) {
	limit := prefixUpperBound(namespace.prefix)

	if end != nil {
		limit = namespace.key(end)
	}

	iter, err := namespace.driver.GetRange(namespace.key(start), limit)

	if err != nil {
		return nil, err
	}

	return &prefixedIterator{StorageIterator: iter, prefixLength: len(namespace.prefix)}, nil
}

func (namespace *PrefixedStorageDriver) Batch(batch *Batch) error {
	if batch == nil {
		return nil
	}

	namespaced := NewBatch()

	for _, op := range batch.SortedOps() {
		if op.Type == OpDelete {
			namespaced.Delete(namespace.key(op.Key))
		} else {
			namespaced.Put(namespace.key(op.Key), op.Value)
		}
	}

	return namespace.driver.Batch(namespaced)
}

// Snapshot copies the whole shared driver, not only this namespace
func (namespace *PrefixedStorageDriver) Snapshot(snapshotDirectory string, metadataPrefix []byte, metadata map[string]string) error {
	return namespace.driver.Snapshot(snapshotDirectory, metadataPrefix, metadata)
}

type prefixedIterator struct {
	StorageIterator
	prefixLength int
}

func (iter *prefixedIterator) Key() []byte {
	key := iter.StorageIterator.Key()

	if key == nil {
		return nil
	}

	return key[iter.prefixLength:]
}
