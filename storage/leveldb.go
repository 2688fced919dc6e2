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
	"github.com/syndtr/goleveldb/leveldb"
	levelErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
)

// LevelDBIterator reads from a snapshot taken when the range was requested
type LevelDBIterator struct {
	snapshot *leveldb.Snapshot
	it       iterator.Iterator
	err      error
}

func (it *LevelDBIterator) Next() bool {
	if it.it == nil {
		return false
	}

	if it.it.Next() {
		return true
	}

	if err := it.it.Error(); err != nil {
		prometheusRecordStorageError("iterator.next()", "")
		it.err = err
	}

	it.release()

	return false
}

func (it *LevelDBIterator) Key() []byte {
	if it.it == nil {
		return nil
	}

	return it.it.Key()
}

func (it *LevelDBIterator) Value() []byte {
	if it.it == nil {
		return nil
	}

	return it.it.Value()
}

func (it *LevelDBIterator) release() {
	if it.it != nil {
		it.it.Release()
		it.it = nil
	}

	if it.snapshot != nil {
		it.snapshot.Release()
		it.snapshot = nil
	}
}

func (it *LevelDBIterator) Release() {
	it.release()
}

func (it *LevelDBIterator) Error() error {
	return it.err
}

type LevelDBStorageDriver struct {
	file    string
	options *opt.Options
	db      *leveldb.DB
}

func NewLevelDBStorageDriver(file string, options *opt.Options) *LevelDBStorageDriver {
	return &LevelDBStorageDriver{file: file, options: options}
}

func (levelDriver *LevelDBStorageDriver) Open() error {
	levelDriver.Close()

	db, err := leveldb.OpenFile(levelDriver.file, levelDriver.options)

	if err != nil {
		prometheusRecordStorageError("open()", levelDriver.file)

		if levelErrors.IsCorrupted(err) {
			Log.Criticalf("LevelDB store at %s is corrupted: %v", levelDriver.file, err)

			return ECorrupted
		}

		return errors.Wrapf(err, "opening leveldb store at %s", levelDriver.file)
	}

	levelDriver.db = db

	return nil
}

func (levelDriver *LevelDBStorageDriver) Close() error {
	if levelDriver.db == nil {
		return nil
	}

	err := levelDriver.db.Close()
	levelDriver.db = nil

	return err
}

func (levelDriver *LevelDBStorageDriver) Recover() error {
	levelDriver.Close()

	db, err := leveldb.RecoverFile(levelDriver.file, levelDriver.options)

	if err != nil {
		prometheusRecordStorageError("recover()", levelDriver.file)

		return errors.Wrapf(err, "recovering leveldb store at %s", levelDriver.file)
	}

	Log.Warningf("Recovered leveldb store at %s", levelDriver.file)

	levelDriver.db = db

	return nil
}

func (levelDriver *LevelDBStorageDriver) Get(keys [][]byte) ([][]byte, error) {
	if levelDriver.db == nil {
		return nil, EDriverClosed
	}

	values := make([][]byte, len(keys))

	for i, key := range keys {
		if key == nil {
			continue
		}

		value, err := levelDriver.db.Get(key, nil)

		if err == leveldb.ErrNotFound {
			continue
		}

		if err != nil {
			prometheusRecordStorageError("get()", levelDriver.file)

			return nil, err
		}

		values[i] = value
	}

	return values, nil
}

func (levelDriver *LevelDBStorageDriver) GetRange(start, end []byte) (StorageIterator, error) {
	if levelDriver.db == nil {
		return nil, EDriverClosed
	}

	snapshot, err := levelDriver.db.GetSnapshot()

	if err != nil {
		prometheusRecordStorageError("getRange()", levelDriver.file)

		return nil, err
	}

	it := snapshot.NewIterator(&util.Range{Start: start, Limit: end}, &opt.ReadOptions{DontFillCache: true})

	return &LevelDBIterator{snapshot: snapshot, it: it}, nil
}

func (levelDriver *LevelDBStorageDriver) Batch(batch *Batch) error {
	if levelDriver.db == nil {
		return EDriverClosed
	}

	if batch == nil || batch.Size() == 0 {
		return nil
	}

	b := new(leveldb.Batch)

	for _, op := range batch.SortedOps() {
		switch op.Type {
		case OpPut:
			b.Put(op.Key, op.Value)
		case OpDelete:
			b.Delete(op.Key)
		}
	}

	if err := levelDriver.db.Write(b, &opt.WriteOptions{Sync: true}); err != nil {
		prometheusRecordStorageError("batch()", levelDriver.file)

		return err
	}

	return nil
}

func (levelDriver *LevelDBStorageDriver) Snapshot(snapshotDirectory string, metadataPrefix []byte, metadata map[string]string) error {
	if levelDriver.db == nil {
		return EDriverClosed
	}

	dest := NewLevelDBStorageDriver(snapshotDirectory, &opt.Options{ErrorIfExist: true})

	if err := dest.Open(); err != nil {
		prometheusRecordStorageError("snapshot()", levelDriver.file)

		return err
	}

	if err := writeSnapshot(dest, levelDriver, metadataPrefix, metadata); err != nil {
		prometheusRecordStorageError("snapshot()", levelDriver.file)

		return errors.Wrapf(err, "snapshotting %s to %s", levelDriver.file, snapshotDirectory)
	}

	Log.Debugf("Created snapshot of %s at %s", levelDriver.file, snapshotDirectory)

	return nil
}
