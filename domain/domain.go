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
	"errors"
	"fmt"
	"regexp"

	. "github.com/PelionIoT/partitiondb/storage"
)

var domainNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

type DomainConfig struct {
	Name          string `json:"name" yaml:"name"`
	NumPartitions uint64 `json:"numPartitions" yaml:"numPartitions"`
	StorageEngine string `json:"storageEngine" yaml:"storageEngine"`
}

func (domainConfig DomainConfig) Validate() error {
	if !domainNamePattern.MatchString(domainConfig.Name) {
		return errors.New(fmt.Sprintf("%q is not a valid domain name. Use letters, digits, '_', '-' and '.'", domainConfig.Name))
	}

	if domainConfig.NumPartitions == 0 {
		return errors.New(fmt.Sprintf("Domain %s must have at least one partition", domainConfig.Name))
	}

	if !EngineIsValid(domainConfig.StorageEngine) {
		return errors.New(fmt.Sprintf("Domain %s has unknown storage engine %q. Use %s or %s", domainConfig.Name, domainConfig.StorageEngine, EngineLevelDB, EnginePebble))
	}

	return nil
}

// PartitionOf returns the partition of this domain that holds key
func (domainConfig DomainConfig) PartitionOf(partitioner Partitioner, key []byte) uint64 {
	return partitioner.Partition(key, domainConfig.NumPartitions)
}
