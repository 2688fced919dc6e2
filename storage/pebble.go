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
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
)

// PebbleIterator reads from a snapshot taken when the range was requested
type PebbleIterator struct {
	snapshot *pebble.Snapshot
	it       *pebble.Iterator
	started  bool
	err      error
}

func (it *PebbleIterator) Next() bool {
	if it.it == nil {
		return false
	}

	var valid bool

	if !it.started {
		it.started = true
		valid = it.it.First()
	} else {
		valid = it.it.Next()
	}

	if valid {
		return true
	}

	if err := it.it.Error(); err != nil {
		prometheusRecordStorageError("iterator.next()", "")
		it.err = err
	}

	it.Release()

	return false
}

func (it *PebbleIterator) Key() []byte {
	if it.it == nil {
		return nil
	}

	return it.it.Key()
}

func (it *PebbleIterator) Value() []byte {
	if it.it == nil {
		return nil
	}

	return it.it.Value()
}

func (it *PebbleIterator) Release() {
	if it.it != nil {
		it.it.Close()
		it.it = nil
	}

	if it.snapshot != nil {
		it.snapshot.Close()
		it.snapshot = nil
	}
}

func (it *PebbleIterator) Error() error {
	return it.err
}

// PebbleStorageDriver is the StorageDriver for domains configured with the
// pebble storage engine
type PebbleStorageDriver struct {
	dir      string
	readOnly bool
	db       *pebble.DB
}

func NewPebbleStorageDriver(dir string, readOnly bool) *PebbleStorageDriver {
	return &PebbleStorageDriver{dir: dir, readOnly: readOnly}
}

func (pebbleDriver *PebbleStorageDriver) Open() error {
	pebbleDriver.Close()

	db, err := pebble.Open(pebbleDriver.dir, &pebble.Options{ReadOnly: pebbleDriver.readOnly})

	if err != nil {
		prometheusRecordStorageError("open()", pebbleDriver.dir)

		return errors.Wrapf(err, "opening pebble store at %s", pebbleDriver.dir)
	}

	pebbleDriver.db = db

	return nil
}

func (pebbleDriver *PebbleStorageDriver) Close() error {
	if pebbleDriver.db == nil {
		return nil
	}

	err := pebbleDriver.db.Close()

	pebbleDriver.db = nil

	return err
}

// Recover reopens the store. Pebble replays its WAL on open so there is no
// separate repair step.
func (pebbleDriver *PebbleStorageDriver) Recover() error {
	return pebbleDriver.Open()
}

func (pebbleDriver *PebbleStorageDriver) Get(keys [][]byte) ([][]byte, error) {
	if pebbleDriver.db == nil {
		return nil, EDriverClosed
	}

	if keys == nil {
		return [][]byte{}, nil
	}

	snapshot := pebbleDriver.db.NewSnapshot()

	defer snapshot.Close()

	values := make([][]byte, len(keys))

	for i, key := range keys {
		if key == nil {
			continue
		}

		value, closer, err := snapshot.Get(key)

		if err == pebble.ErrNotFound {
			continue
		} else if err != nil {
			prometheusRecordStorageError("get()", pebbleDriver.dir)

			return nil, err
		}

		values[i] = copyBytes(value)
		closer.Close()
	}

	return values, nil
}

func (pebbleDriver *PebbleStorageDriver) GetRange(start, end []byte) (StorageIterator, error) {
	if pebbleDriver.db == nil {
		return nil, EDriverClosed
	}

	snapshot := pebbleDriver.db.NewSnapshot()
	it := snapshot.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})

	return &PebbleIterator{snapshot: snapshot, it: it}, nil
}

func (pebbleDriver *PebbleStorageDriver) Batch(batch *Batch) error {
	if pebbleDriver.db == nil {
		return EDriverClosed
	}

	if batch == nil || batch.Size() == 0 {
		return nil
	}

	b := pebbleDriver.db.NewBatch()

	defer b.Close()

	for _, op := range batch.SortedOps() {
		var err error

		switch op.Type {
		case OpPut:
			err = b.Set(op.Key, op.Value, nil)
		case OpDelete:
			err = b.Delete(op.Key, nil)
		}

		if err != nil {
			prometheusRecordStorageError("batch()", pebbleDriver.dir)

			return err
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		prometheusRecordStorageError("batch()", pebbleDriver.dir)

		return err
	}

	return nil
}

func (pebbleDriver *PebbleStorageDriver) Snapshot(snapshotDirectory string, metadataPrefix []byte, metadata map[string]string) error {
	if pebbleDriver.db == nil {
		return EDriverClosed
	}

	dest := NewPebbleStorageDriver(snapshotDirectory, false)

	if err := dest.Open(); err != nil {
		prometheusRecordStorageError("snapshot()", pebbleDriver.dir)

		return err
	}

	if err := writeSnapshot(dest, pebbleDriver, metadataPrefix, metadata); err != nil {
		prometheusRecordStorageError("snapshot()", pebbleDriver.dir)

		return errors.Wrapf(err, "snapshotting %s to %s", pebbleDriver.dir, snapshotDirectory)
	}

	Log.Debugf("Created snapshot of %s at %s", pebbleDriver.dir, snapshotDirectory)

	return nil
}
