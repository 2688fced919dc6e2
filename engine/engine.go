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
	"path/filepath"
	"strconv"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/updater"
)

// Every store written or materialized by the engine splits its keys into
// three namespaces
const (
	MetadataStoragePrefix  = iota
	ValueStoragePrefix     = iota
	TombstoneStoragePrefix = iota
)

const (
	MetadataVersion = "version"
	MetadataBase    = "base"
)

const (
	CurrentVersionFile = "CURRENT"
	VersionsDirectory  = "versions"
	FetchDirectory     = "fetch"
	buildingPrefix     = ".building-"
)

type EngineConfig struct {
	// LocalRoot holds the versions each host has materialized
	LocalRoot string
	// VersionsRoot holds published versions as written by bulk loads
	VersionsRoot string
}

// Engine lays partition data out on disk. Published versions live under
// VersionsRoot/<domain>/<version>/<partition>. A host keeps complete
// materialized versions under LocalRoot/<domain>/<partition>/versions/<n>
// and names the one it serves in LocalRoot/<domain>/<partition>/CURRENT.
type Engine struct {
	localRoot    string
	versionsRoot string
}

func NewEngine(config EngineConfig) *Engine {
	return &Engine{
		localRoot:    config.LocalRoot,
		versionsRoot: config.VersionsRoot,
	}
}

func (engine *Engine) PublishedVersionPath(domain string, versionNumber VersionNumber) string {
	return filepath.Join(engine.versionsRoot, domain, versionNumber.String())
}

func (engine *Engine) PublishedPartitionPath(domain string, versionNumber VersionNumber, partition uint64) string {
	return filepath.Join(engine.PublishedVersionPath(domain, versionNumber), strconv.FormatUint(partition, 10))
}

func (engine *Engine) Partition(domainConfig DomainConfig, partition uint64) *LocalPartition {
	return &LocalPartition{
		engine:    engine,
		domain:    domainConfig,
		partition: partition,
		root:      filepath.Join(engine.localRoot, domainConfig.Name, strconv.FormatUint(partition, 10)),
	}
}

func (engine *Engine) PartitionStore(domainConfig DomainConfig, partition uint64) PartitionVersionStore {
	return engine.Partition(domainConfig, partition)
}

// Writer returns a writer for one partition of a new version. The data
// goes to root/<partition>.
func (engine *Engine) Writer(domainConfig DomainConfig, root string, partition uint64, versionNumber VersionNumber, isBase bool) (*Writer, error) {
	return NewWriter(domainConfig.StorageEngine, filepath.Join(root, strconv.FormatUint(partition, 10)), versionNumber, isBase)
}

// OpenReader opens the current version of a partition for lookups
func (engine *Engine) OpenReader(domainConfig DomainConfig, partition uint64) (*Reader, error) {
	return engine.Partition(domainConfig, partition).OpenReader()
}
