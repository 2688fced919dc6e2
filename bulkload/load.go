package bulkload

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
	"bufio"
	"bytes"
	"io"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/engine"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
)

const maxRecordLineBytes = 16 * 1024 * 1024

type Record struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// ReadRecords parses one record per line. "key<TAB>value" writes a value
// and a line holding only a key deletes it. Blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordLineBytes)
	records := []Record{}
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := scanner.Bytes()

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		tab := bytes.IndexByte(line, '\t')

		if tab == 0 {
			return nil, errors.Wrapf(EInvalidKey, "line %d has an empty key", lineNumber)
		}

		if tab < 0 {
			records = append(records, Record{Key: append([]byte{}, line...), Delete: true})

			continue
		}

		records = append(records, Record{Key: append([]byte{}, line[:tab]...), Value: append([]byte{}, line[tab+1:]...)})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Load writes records into every partition of the output's domain, empty
// partitions included, and closes the output. On failure nothing is left
// behind.
func Load(output *DomainOutput, partitioner Partitioner, records []Record) error {
	groups := map[uint64][]Record{}

	for _, record := range records {
		partition := output.domain.PartitionOf(partitioner, record.Key)
		groups[partition] = append(groups[partition], record)
	}

	for partition := uint64(0); partition < output.domain.NumPartitions; partition++ {
		if err := loadPartition(output, partition, groups[partition]); err != nil {
			output.Abort()

			return errors.Wrapf(err, "loading partition %d of domain %s", partition, output.domain.Name)
		}
	}

	if err := output.Close(); err != nil {
		output.Abort()

		return err
	}

	return nil
}

func loadPartition(output *DomainOutput, partition uint64, records []Record) error {
	if err := output.Open(partition); err != nil {
		return err
	}

	for _, record := range records {
		var err error

		if record.Delete {
			err = output.Delete(partition, record.Key)
		} else {
			err = output.Put(partition, record.Key, record.Value)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// VersionAdmin is the part of the coordinator a publisher needs
type VersionAdmin interface {
	Domain(name string) (DomainConfig, error)
	DomainVersions(name string) (VersionSet, error)
	OpenVersion(domain string, parent *VersionNumber) (DomainVersion, error)
	CloseVersion(domain string, versionNumber VersionNumber) error
}

type Publisher struct {
	Admin       VersionAdmin
	Engine      *Engine
	Partitioner Partitioner
}

// Publish opens a new version of a domain, writes records into it and
// closes it. A delta is built on the latest closed version. A version
// whose data could not be written stays open and is never served.
func (publisher *Publisher) Publish(domain string, delta bool, records []Record) (DomainVersion, error) {
	domainConfig, err := publisher.Admin.Domain(domain)

	if err != nil {
		return DomainVersion{}, err
	}

	var parent *VersionNumber

	if delta {
		versions, err := publisher.Admin.DomainVersions(domain)

		if err != nil {
			return DomainVersion{}, err
		}

		latest, ok := versions.LatestClosed()

		if !ok {
			return DomainVersion{}, errors.Wrapf(ENoSuchVersion, "domain %s has no closed version to build a delta on", domain)
		}

		parent = Ptr(latest.VersionNumber)
	}

	version, err := publisher.Admin.OpenVersion(domain, parent)

	if err != nil {
		return DomainVersion{}, err
	}

	outputRoot := publisher.Engine.PublishedVersionPath(domain, version.VersionNumber)

	if err := CheckOutputSpecs(outputRoot); err != nil {
		return version, err
	}

	partitioner := publisher.Partitioner

	if partitioner == nil {
		partitioner = NewHashPartitioner()
	}

	output := NewDomainOutput(DomainOutputConfig{
		Engine:     publisher.Engine,
		Domain:     domainConfig,
		Version:    version,
		OutputRoot: outputRoot,
	})

	if err := Load(output, partitioner, records); err != nil {
		Log.Errorf("Version %d of domain %s could not be written and stays open: %v", version.VersionNumber, domain, err)

		return version, err
	}

	if err := publisher.Admin.CloseVersion(domain, version.VersionNumber); err != nil {
		return version, err
	}

	Log.Infof("Published version %d of domain %s (%d records)", version.VersionNumber, domain, len(records))

	return version, nil
}
