package engine_test

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
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/engine"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/storage"
	. "github.com/PelionIoT/partitiondb/updater"
	. "github.com/PelionIoT/partitiondb/util"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type record struct {
	key    string
	value  string
	delete bool
}

func publish(engine *Engine, domainConfig DomainConfig, versionNumber VersionNumber, isBase bool, records ...record) {
	writer, err := engine.Writer(domainConfig, engine.PublishedVersionPath(domainConfig.Name, versionNumber), 0, versionNumber, isBase)

	Expect(err).Should(BeNil())

	for _, r := range records {
		if r.delete {
			Expect(writer.Delete([]byte(r.key))).Should(BeNil())
		} else {
			Expect(writer.Put([]byte(r.key), []byte(r.value))).Should(BeNil())
		}
	}

	Expect(writer.Close()).Should(BeNil())
}

func versionChain(n int) VersionSet {
	closedAt := time.Now()
	versions := VersionSet{}

	for i := 0; i < n; i++ {
		v := DomainVersion{VersionNumber: VersionNumber(i), ClosedAt: &closedAt}

		if i > 0 {
			v.ParentVersionNumber = Ptr(VersionNumber(i - 1))
		}

		versions = append(versions, v)
	}

	return versions
}

func lookup(engine *Engine, domainConfig DomainConfig, key string) (string, VersionNumber, error) {
	reader, err := engine.OpenReader(domainConfig, 0)

	if err != nil {
		return "", 0, err
	}

	defer reader.Close()

	value, err := reader.Get([]byte(key))

	return string(value), reader.Version(), err
}

var _ = Describe("Engine", func() {
	for _, storageEngine := range []string{EngineLevelDB, EnginePebble} {
		storageEngine := storageEngine

		Describe(storageEngine, func() {
			var engine *Engine
			var domainConfig DomainConfig
			var root string

			BeforeEach(func() {
				root = ScratchDirectory("engine")
				engine = NewEngine(EngineConfig{
					LocalRoot:    filepath.Join(root, "local"),
					VersionsRoot: filepath.Join(root, "versions"),
				})
				domainConfig = DomainConfig{Name: "users", NumPartitions: 1, StorageEngine: storageEngine}

				publish(engine, domainConfig, 0, true, record{key: "a", value: "a0"}, record{key: "b", value: "b0"}, record{key: "c", value: "c0"})
				publish(engine, domainConfig, 1, false, record{key: "d", value: "d1"}, record{key: "b", delete: true})
				publish(engine, domainConfig, 2, false, record{key: "a", value: "a2"})
			})

			AfterEach(func() {
				os.RemoveAll(root)
			})

			Describe("Writer", func() {
				It("should refuse deletes in a base version", func() {
					writer, err := engine.Writer(domainConfig, filepath.Join(root, "scratch"), 0, 7, true)

					Expect(err).Should(BeNil())
					Expect(writer.Delete([]byte("a"))).Should(Equal(EDeleteInBase))
					Expect(writer.Close()).Should(BeNil())
				})

				It("should refuse writes after close", func() {
					writer, err := engine.Writer(domainConfig, filepath.Join(root, "scratch"), 0, 7, false)

					Expect(err).Should(BeNil())
					Expect(writer.Put([]byte("a"), []byte("b"))).Should(BeNil())
					Expect(writer.Records()).Should(Equal(uint64(1)))
					Expect(writer.Close()).Should(BeNil())
					Expect(writer.Put([]byte("a"), []byte("b"))).Should(Equal(EWriterClosed))
					Expect(writer.Close()).Should(BeNil())
				})
			})

			Describe("LocalPartition", func() {
				It("should have no current version before the first switch", func() {
					_, ok, err := engine.Partition(domainConfig, 0).DetectCurrentVersion()

					Expect(err).Should(BeNil())
					Expect(ok).Should(BeFalse())

					_, err = engine.OpenReader(domainConfig, 0)

					Expect(errors.Is(err, ENoCurrentVersion)).Should(BeTrue())
				})

				It("should build a version from its base and deltas", func() {
					updater := NewIncrementalPartitionUpdater(engine.PartitionStore(domainConfig, 0), versionChain(3), nil)

					Expect(updater.UpdateToVersion(context.Background(), 1)).Should(BeNil())

					value, version, err := lookup(engine, domainConfig, "d")

					Expect(err).Should(BeNil())
					Expect(value).Should(Equal("d1"))
					Expect(version).Should(Equal(VersionNumber(1)))

					_, _, err = lookup(engine, domainConfig, "b")

					Expect(err).Should(Equal(EKeyNotFound))

					value, _, err = lookup(engine, domainConfig, "a")

					Expect(err).Should(BeNil())
					Expect(value).Should(Equal("a0"))
				})

				It("should build on the cached version and drop stale ones", func() {
					partition := engine.Partition(domainConfig, 0)
					updater := NewIncrementalPartitionUpdater(partition, versionChain(3), nil)

					Expect(updater.UpdateToVersion(context.Background(), 1)).Should(BeNil())

					// version 0 is never needed again once 1 is built
					Expect(os.RemoveAll(engine.PublishedVersionPath(domainConfig.Name, 0))).Should(BeNil())
					Expect(updater.UpdateToVersion(context.Background(), 2)).Should(BeNil())

					value, version, err := lookup(engine, domainConfig, "a")

					Expect(err).Should(BeNil())
					Expect(value).Should(Equal("a2"))
					Expect(version).Should(Equal(VersionNumber(2)))

					value, _, err = lookup(engine, domainConfig, "c")

					Expect(err).Should(BeNil())
					Expect(value).Should(Equal("c0"))

					cached, err := partition.DetectCachedVersions()

					Expect(err).Should(BeNil())
					Expect(cached).Should(Equal([]VersionNumber{2}))
				})

				It("should keep serving the current version when a fetch fails", func() {
					partition := engine.Partition(domainConfig, 0)
					updater := NewIncrementalPartitionUpdater(partition, versionChain(4), nil)

					Expect(updater.UpdateToVersion(context.Background(), 1)).Should(BeNil())

					err := updater.UpdateToVersion(context.Background(), 3)

					Expect(errors.Is(err, ENoSuchVersion)).Should(BeTrue())

					current, ok, err := partition.DetectCurrentVersion()

					Expect(err).Should(BeNil())
					Expect(ok).Should(BeTrue())
					Expect(current).Should(Equal(VersionNumber(1)))

					value, _, err := lookup(engine, domainConfig, "d")

					Expect(err).Should(BeNil())
					Expect(value).Should(Equal("d1"))

					entries, err := os.ReadDir(filepath.Join(root, "local", "users", "0", FetchDirectory))

					Expect(err).Should(BeNil())
					Expect(entries).Should(BeEmpty())
				})

				It("should reject published data whose version does not match", func() {
					partition := engine.Partition(domainConfig, 0)
					fetchRoot, err := partition.NewFetchRoot()

					Expect(err).Should(BeNil())

					// version 1 is a delta but claims to be a base here
					err = partition.FetchVersion(context.Background(), DomainVersion{VersionNumber: 1}, fetchRoot)

					Expect(errors.Is(err, ECorrupted)).Should(BeTrue())
				})

				It("should keep current and protected versions when cleaning", func() {
					partition := engine.Partition(domainConfig, 0)

					for _, v := range []string{"0", "1", "2", ".building-3"} {
						Expect(os.MkdirAll(filepath.Join(root, "local", "users", "0", VersionsDirectory, v), 0755)).Should(BeNil())
					}

					Expect(partition.CleanCachedVersions(2, 0)).Should(BeNil())

					cached, err := partition.DetectCachedVersions()

					Expect(err).Should(BeNil())
					Expect(cached).Should(Equal([]VersionNumber{0, 2}))

					_, err = os.Stat(filepath.Join(root, "local", "users", "0", VersionsDirectory, ".building-3"))

					Expect(os.IsNotExist(err)).Should(BeTrue())
				})

				It("should report a CURRENT file that points nowhere", func() {
					dir := filepath.Join(root, "local", "users", "0")

					Expect(os.MkdirAll(dir, 0755)).Should(BeNil())
					Expect(os.WriteFile(filepath.Join(dir, CurrentVersionFile), []byte("5\n"), 0644)).Should(BeNil())

					_, _, err := engine.Partition(domainConfig, 0).DetectCurrentVersion()

					Expect(errors.Is(err, ECorrupted)).Should(BeTrue())
				})
			})
		})
	}
})
