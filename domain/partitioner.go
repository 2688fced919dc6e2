package domain

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
	"crypto/md5"
	"encoding/binary"
)

// Partitioner maps keys onto the partitions of a domain. The bulk loader
// and the data server must agree on it, so there is only one.
type Partitioner interface {
	Partition(key []byte, numPartitions uint64) uint64
}

// HashPartitioner places a key by the last eight bytes of its md5 digest
type HashPartitioner struct {
}

func NewHashPartitioner() *HashPartitioner {
	return &HashPartitioner{}
}

func (partitioner *HashPartitioner) Partition(key []byte, numPartitions uint64) uint64 {
	if numPartitions == 0 {
		return 0
	}

	digest := md5.Sum(key)

	return binary.BigEndian.Uint64(digest[md5.Size-8:]) % numPartitions
}
