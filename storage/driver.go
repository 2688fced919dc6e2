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
	"github.com/syndtr/goleveldb/leveldb/opt"

	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
)

const (
	EngineLevelDB = "leveldb"
	EnginePebble  = "pebble"
)

func EngineIsValid(engine string) bool {
	return engine == EngineLevelDB || engine == EnginePebble
}

// NewStorageDriver returns an unopened driver of the named engine rooted at
// dir. Read-only drivers fail to open when dir does not hold a store.
func NewStorageDriver(engine string, dir string, readOnly bool) (StorageDriver, error) {
	switch engine {
	case EngineLevelDB:
		if readOnly {
			return NewLevelDBStorageDriver(dir, &opt.Options{ErrorIfMissing: true, ReadOnly: true}), nil
		}

		return NewLevelDBStorageDriver(dir, nil), nil
	case EnginePebble:
		return NewPebbleStorageDriver(dir, readOnly), nil
	}

	return nil, EUnknownStorageEngine
}

// OpenStorageDriver opens a driver and attempts one recovery when the
// store reports corruption
func OpenStorageDriver(engine string, dir string, readOnly bool) (StorageDriver, error) {
	driver, err := NewStorageDriver(engine, dir, readOnly)

	if err != nil {
		return nil, err
	}

	err = driver.Open()

	if err == ECorrupted && !readOnly {
		Log.Errorf("Store at %s is corrupted. Attempting recovery...", dir)

		err = driver.Recover()
	}

	if err != nil {
		return nil, err
	}

	return driver, nil
}
