package bulkload_test

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
	"strings"

	. "github.com/PelionIoT/partitiondb/bulkload"
	. "github.com/PelionIoT/partitiondb/coordinator"
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

var _ = Describe("ReadRecords", func() {
	It("should read puts and deletes", func() {
		records, err := ReadRecords(strings.NewReader("a\t1\n\nb\t\nc\n"))

		Expect(err).Should(BeNil())
		Expect(records).Should(HaveLen(3))
		Expect(records[0]).Should(Equal(Record{Key: []byte("a"), Value: []byte("1")}))
		Expect(records[1]).Should(Equal(Record{Key: []byte("b"), Value: []byte{}}))
		Expect(records[2]).Should(Equal(Record{Key: []byte("c"), Delete: true}))
	})

	It("should reject an empty key", func() {
		_, err := ReadRecords(strings.NewReader("\tvalue\n"))

		Expect(errors.Is(err, EInvalidKey)).Should(BeTrue())
	})
})

var _ = Describe("Publisher", func() {
	host := PartitionServerAddress{Host: "localhost", Port: 12500}

	var root string
	var storageDriver StorageDriver
	var store *Store
	var engine *Engine
	var publisher *Publisher

	lookup := func(key string) (string, error) {
		domainConfig, err := store.Domain("users")

		Expect(err).Should(BeNil())

		reader, err := engine.OpenReader(domainConfig, domainConfig.PartitionOf(NewHashPartitioner(), []byte(key)))

		Expect(err).Should(BeNil())

		defer reader.Close()

		value, err := reader.Get([]byte(key))

		return string(value), err
	}

	BeforeEach(func() {
		root = ScratchDirectory("publisher")
		storageDriver = MakeNewStorageDriver(EngineLevelDB)
		Expect(storageDriver.Open()).Should(BeNil())

		store = NewStore(storageDriver)
		engine = NewEngine(EngineConfig{LocalRoot: filepath.Join(root, "local"), VersionsRoot: filepath.Join(root, "versions")})
		publisher = &Publisher{Admin: store, Engine: engine}

		Expect(store.AddDomain(DomainConfig{Name: "users", NumPartitions: 3, StorageEngine: EnginePebble})).Should(BeNil())
		Expect(store.AddHost(host, "ring-a")).Should(BeNil())

		for partition := uint64(0); partition < 3; partition++ {
			Expect(store.AssignPartition(host, PartitionAssignment{Domain: "users", Partition: partition})).Should(BeNil())
		}
	})

	AfterEach(func() {
		storageDriver.Close()
		os.RemoveAll(root)
	})

	It("should refuse a delta when nothing is closed yet", func() {
		_, err := publisher.Publish("users", true, nil)

		Expect(errors.Is(err, ENoSuchVersion)).Should(BeTrue())
	})

	It("should publish every partition, even empty ones", func() {
		version, err := publisher.Publish("users", false, []Record{{Key: []byte("alice"), Value: []byte("1")}})

		Expect(err).Should(BeNil())
		Expect(version.IsBase()).Should(BeTrue())

		entries, err := os.ReadDir(engine.PublishedVersionPath("users", version.VersionNumber))

		Expect(err).Should(BeNil())
		Expect(entries).Should(HaveLen(3))

		versions, err := store.DomainVersions("users")

		Expect(err).Should(BeNil())

		latest, ok := versions.LatestClosed()

		Expect(ok).Should(BeTrue())
		Expect(latest.VersionNumber).Should(Equal(version.VersionNumber))
	})

	It("should publish versions a host can update to", func() {
		base, err := publisher.Publish("users", false, []Record{
			{Key: []byte("alice"), Value: []byte("1")},
			{Key: []byte("bob"), Value: []byte("2")},
			{Key: []byte("carol"), Value: []byte("3")},
		})

		Expect(err).Should(BeNil())

		delta, err := publisher.Publish("users", true, []Record{
			{Key: []byte("bob"), Delete: true},
			{Key: []byte("carol"), Value: []byte("33")},
		})

		Expect(err).Should(BeNil())
		Expect(delta.ParentVersionNumber).Should(Equal(Ptr(base.VersionNumber)))

		updateManager := NewUpdateManager(UpdateManagerConfig{Coordinator: store, Host: host, Stores: engine, Concurrency: 2})

		Expect(updateManager.Update(context.Background())).Should(BeNil())

		value, err := lookup("alice")

		Expect(err).Should(BeNil())
		Expect(value).Should(Equal("1"))

		_, err = lookup("bob")

		Expect(err).Should(Equal(EKeyNotFound))

		value, err = lookup("carol")

		Expect(err).Should(BeNil())
		Expect(value).Should(Equal("33"))
	})
})
