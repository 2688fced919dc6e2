package engine

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
	"strconv"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/storage"
)

func namespacedKey(prefix byte, key []byte) []byte {
	result := make([]byte, 0, len(key)+1)

	result = append(result, prefix)
	result = append(result, key...)

	return result
}

// Writer fills the store of one partition of one version. A base version
// holds values only. A delta version also records deletes as tombstones.
type Writer struct {
	dir            string
	storageDriver  StorageDriver
	versionNumber  VersionNumber
	isBase         bool
	batch          *Batch
	batchSizeBytes int
	records        uint64
	closed         bool
}

func NewWriter(engine string, dir string, versionNumber VersionNumber, isBase bool) (*Writer, error) {
	storageDriver, err := OpenStorageDriver(engine, dir, false)

	if err != nil {
		return nil, errors.Wrapf(err, "opening partition writer at %s", dir)
	}

	return &Writer{
		dir:           dir,
		storageDriver: storageDriver,
		versionNumber: versionNumber,
		isBase:        isBase,
		batch:         NewBatch(),
	}, nil
}

func (writer *Writer) Put(key []byte, value []byte) error {
	if writer.closed {
		return EWriterClosed
	}

	if len(key) == 0 {
		return EEmpty
	}

	writer.batch.Put(namespacedKey(ValueStoragePrefix, key), value)

	if !writer.isBase {
		writer.batch.Delete(namespacedKey(TombstoneStoragePrefix, key))
	}

	writer.records++
	writer.batchSizeBytes += len(key) + len(value)

	return writer.flushIfFull()
}

func (writer *Writer) Delete(key []byte) error {
	if writer.closed {
		return EWriterClosed
	}

	if writer.isBase {
		return EDeleteInBase
	}

	if len(key) == 0 {
		return EEmpty
	}

	writer.batch.Delete(namespacedKey(ValueStoragePrefix, key))
	writer.batch.Put(namespacedKey(TombstoneStoragePrefix, key), []byte{})
	writer.records++
	writer.batchSizeBytes += len(key)

	return writer.flushIfFull()
}

func (writer *Writer) flushIfFull() error {
	if writer.batch.Size() < CopyBatchSize && writer.batchSizeBytes < CopyBatchMaxBytes {
		return nil
	}

	return writer.flush()
}

func (writer *Writer) flush() error {
	if writer.batch.Size() == 0 {
		return nil
	}

	if err := writer.storageDriver.Batch(writer.batch); err != nil {
		return errors.Wrapf(err, "writing to %s", writer.dir)
	}

	writer.batch = NewBatch()
	writer.batchSizeBytes = 0

	return nil
}

func (writer *Writer) Records() uint64 {
	return writer.records
}

// Close flushes pending records, stamps the version metadata and closes
// the store. Closing twice is a no-op.
func (writer *Writer) Close() error {
	if writer.closed {
		return nil
	}

	writer.closed = true

	defer writer.storageDriver.Close()

	if err := writer.flush(); err != nil {
		return err
	}

	metadata := NewBatch().
		Put(namespacedKey(MetadataStoragePrefix, []byte(MetadataVersion)), []byte(writer.versionNumber.String())).
		Put(namespacedKey(MetadataStoragePrefix, []byte(MetadataBase)), []byte(strconv.FormatBool(writer.isBase)))

	if err := writer.storageDriver.Batch(metadata); err != nil {
		return errors.Wrapf(err, "writing metadata to %s", writer.dir)
	}

	Log.Debugf("Wrote %d records for version %d to %s", writer.records, writer.versionNumber, writer.dir)

	return nil
}

type storeMetadata struct {
	versionNumber VersionNumber
	isBase        bool
}

func readMetadata(storageDriver StorageDriver) (storeMetadata, error) {
	meta := NewPrefixedStorageDriver([]byte{MetadataStoragePrefix}, storageDriver)
	values, err := meta.Get([][]byte{[]byte(MetadataVersion), []byte(MetadataBase)})

	if err != nil {
		return storeMetadata{}, err
	}

	if values[0] == nil {
		return storeMetadata{}, errors.Wrap(ECorrupted, "store has no version metadata")
	}

	versionNumber, err := ParseVersionNumber(string(values[0]))

	if err != nil {
		return storeMetadata{}, errors.Wrap(ECorrupted, "store has an invalid version number")
	}

	return storeMetadata{versionNumber: versionNumber, isBase: string(values[1]) == "true"}, nil
}
