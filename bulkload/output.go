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
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/engine"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/util"
)

const TmpDirectoryName = "_tmp"

// CheckOutputSpecs fails when a version would be written over existing
// output
func CheckOutputSpecs(outputRoot string) error {
	if _, err := os.Stat(outputRoot); err == nil {
		return errors.Wrapf(EOutputExists, "%s", outputRoot)
	} else if !os.IsNotExist(err) {
		return err
	}

	return nil
}

type DomainOutputConfig struct {
	Engine     *Engine
	Domain     DomainConfig
	Version    DomainVersion
	OutputRoot string
}

// DomainOutput writes the partitions of one domain version. Partitions are
// written one at a time into a private staging directory and only appear
// under OutputRoot when Close succeeds.
type DomainOutput struct {
	engine           *Engine
	domain           DomainConfig
	version          DomainVersion
	outputRoot       string
	tmpRoot          string
	writer           *Writer
	writerPartition  uint64
	writtenPartition map[uint64]bool
	closed           bool
}

func NewDomainOutput(config DomainOutputConfig) *DomainOutput {
	return &DomainOutput{
		engine:           config.Engine,
		domain:           config.Domain,
		version:          config.Version,
		outputRoot:       config.OutputRoot,
		tmpRoot:          filepath.Join(config.OutputRoot, TmpDirectoryName, RandomString()),
		writtenPartition: map[uint64]bool{},
	}
}

func (output *DomainOutput) partitionWriter(partition uint64) (*Writer, error) {
	if output.closed {
		return nil, EWriterClosed
	}

	if output.writer != nil && output.writerPartition == partition {
		return output.writer, nil
	}

	if err := output.closeCurrentWriter(); err != nil {
		return nil, err
	}

	if output.writtenPartition[partition] {
		return nil, errors.Wrapf(EPartitionWritten, "partition %d", partition)
	}

	if partition >= output.domain.NumPartitions {
		return nil, errors.Wrapf(ENoSuchPartition, "domain %s has %d partitions", output.domain.Name, output.domain.NumPartitions)
	}

	writer, err := output.engine.Writer(output.domain, output.tmpRoot, partition, output.version.VersionNumber, output.version.IsBase())

	if err != nil {
		return nil, err
	}

	output.writer = writer
	output.writerPartition = partition
	output.writtenPartition[partition] = true

	return writer, nil
}

func (output *DomainOutput) closeCurrentWriter() error {
	if output.writer == nil {
		return nil
	}

	err := output.writer.Close()
	output.writer = nil

	return err
}

// Open starts a partition without writing to it, so that empty partitions
// are still published
func (output *DomainOutput) Open(partition uint64) error {
	_, err := output.partitionWriter(partition)

	return err
}

func (output *DomainOutput) Put(partition uint64, key []byte, value []byte) error {
	writer, err := output.partitionWriter(partition)

	if err != nil {
		return err
	}

	return writer.Put(key, value)
}

func (output *DomainOutput) Delete(partition uint64, key []byte) error {
	writer, err := output.partitionWriter(partition)

	if err != nil {
		return err
	}

	return writer.Delete(key)
}

func (output *DomainOutput) WrittenPartitions() []uint64 {
	partitions := make([]uint64, 0, len(output.writtenPartition))

	for partition := range output.writtenPartition {
		partitions = append(partitions, partition)
	}

	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	return partitions
}

// Close moves every written partition from the staging directory to
// OutputRoot and removes the staging directory
func (output *DomainOutput) Close() error {
	if output.closed {
		return nil
	}

	if err := output.closeCurrentWriter(); err != nil {
		return err
	}

	output.closed = true

	for _, partition := range output.WrittenPartitions() {
		name := strconv.FormatUint(partition, 10)

		if err := os.Rename(filepath.Join(output.tmpRoot, name), filepath.Join(output.outputRoot, name)); err != nil {
			return errors.Wrapf(err, "moving partition %d into %s", partition, output.outputRoot)
		}
	}

	if len(output.writtenPartition) == 0 {
		return nil
	}

	entries, err := os.ReadDir(output.tmpRoot)

	if err != nil {
		return err
	}

	if len(entries) != 0 {
		return errors.Newf("staging directory %s was not empty after moving all written partitions", output.tmpRoot)
	}

	if err := os.Remove(output.tmpRoot); err != nil {
		return err
	}

	tmpParent := filepath.Dir(output.tmpRoot)

	if entries, err := os.ReadDir(tmpParent); err == nil && len(entries) == 0 {
		os.Remove(tmpParent)
	}

	Log.Infof("Wrote %d partitions of version %d of domain %s to %s", len(output.writtenPartition), output.version.VersionNumber, output.domain.Name, output.outputRoot)

	return nil
}

// Abort discards everything written so far. OutputRoot is removed too when
// nothing else was in it.
func (output *DomainOutput) Abort() error {
	output.closeCurrentWriter()
	output.closed = true

	if err := os.RemoveAll(output.tmpRoot); err != nil {
		return err
	}

	for _, dir := range []string{filepath.Dir(output.tmpRoot), output.outputRoot} {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
			os.Remove(dir)
		}
	}

	return nil
}
