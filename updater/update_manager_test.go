package updater_test

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

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/storage"
	. "github.com/PelionIoT/partitiondb/updater"
	. "github.com/PelionIoT/partitiondb/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("UpdateManager", func() {
	var storageDriver StorageDriver
	var store *Store
	var factory *MockStoreFactory
	var updateManager *UpdateManager
	host := PartitionServerAddress{Host: "localhost", Port: 12345}

	BeforeEach(func() {
		storageDriver = MakeNewStorageDriver(EngineLevelDB)
		Expect(storageDriver.Open()).Should(BeNil())

		store = NewStore(storageDriver)
		factory = &MockStoreFactory{stores: map[string]*MockPartitionVersionStore{}}

		Expect(store.AddHost(host, "rg1")).Should(BeNil())
		Expect(store.AddDomain(DomainConfig{Name: "users", NumPartitions: 4, StorageEngine: EngineLevelDB})).Should(BeNil())
		Expect(store.AddDomain(DomainConfig{Name: "empty", NumPartitions: 1, StorageEngine: EngineLevelDB})).Should(BeNil())

		for p := uint64(0); p < 4; p++ {
			Expect(store.AssignPartition(host, PartitionAssignment{Domain: "users", Partition: p})).Should(BeNil())
		}

		Expect(store.AssignPartition(host, PartitionAssignment{Domain: "empty", Partition: 0})).Should(BeNil())

		_, err := store.OpenVersion("users", nil)
		Expect(err).Should(BeNil())
		Expect(store.CloseVersion("users", 0)).Should(BeNil())
		_, err = store.OpenVersion("users", Ptr(0))
		Expect(err).Should(BeNil())
		Expect(store.CloseVersion("users", 1)).Should(BeNil())
		// open versions are never targets
		_, err = store.OpenVersion("users", Ptr(1))
		Expect(err).Should(BeNil())

		updateManager = NewUpdateManager(UpdateManagerConfig{
			Coordinator: store,
			Host:        host,
			Stores:      factory,
			Concurrency: 2,
		})
	})

	AfterEach(func() {
		storageDriver.Close()
	})

	It("should bring every assigned partition to the latest closed version", func() {
		Expect(updateManager.Update(context.Background())).Should(BeNil())

		for p := 0; p < 4; p++ {
			Expect(factory.stores["users/"+string(rune('0'+p))].Current()).Should(Equal(Ptr(1)))
		}

		Expect(factory.stores).ShouldNot(HaveKey("empty/0"))
	})

	It("should update the other partitions when one fails", func() {
		failing := NewMockPartitionVersionStore("users/2", nil)
		failing.failFetch[0] = true
		factory.stores["users/2"] = failing

		Expect(updateManager.Update(context.Background())).Should(Not(BeNil()))
		Expect(failing.Current()).Should(BeNil())

		for _, name := range []string{"users/0", "users/1", "users/3"} {
			Expect(factory.stores[name].Current()).Should(Equal(Ptr(1)))
		}
	})

	It("should fail when the host is unknown", func() {
		updateManager = NewUpdateManager(UpdateManagerConfig{
			Coordinator: store,
			Host:        PartitionServerAddress{Host: "nowhere", Port: 1},
			Stores:      factory,
		})

		Expect(updateManager.Update(context.Background())).Should(Not(BeNil()))
	})
})
