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
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/storage"
)

// Reader serves lookups from the version a partition was at when it was
// opened
type Reader struct {
	partition     string
	versionNumber VersionNumber
	storageDriver StorageDriver
	values        StorageDriver
}

func (reader *Reader) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, EInvalidKey
	}

	values, err := reader.values.Get([][]byte{key})

	if err != nil {
		return nil, err
	}

	if values[0] == nil {
		return nil, EKeyNotFound
	}

	return values[0], nil
}

func (reader *Reader) Partition() string {
	return reader.partition
}

func (reader *Reader) Version() VersionNumber {
	return reader.versionNumber
}

func (reader *Reader) Close() error {
	return reader.storageDriver.Close()
}
