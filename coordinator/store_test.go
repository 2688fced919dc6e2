package coordinator_test

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
	"encoding/json"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/storage"
	. "github.com/PelionIoT/partitiondb/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var storageDriver StorageDriver
	var store *Store
	host := PartitionServerAddress{Host: "localhost", Port: 12345}

	BeforeEach(func() {
		storageDriver = MakeNewStorageDriver(EngineLevelDB)
		Expect(storageDriver.Open()).Should(BeNil())

		store = NewStore(storageDriver)
	})

	AfterEach(func() {
		storageDriver.Close()
	})

	Describe("hosts", func() {
		It("should report unknown hosts", func() {
			_, err := store.HostState(host)

			Expect(err).Should(Equal(ENoSuchHost))
		})

		It("should register a host once as OFFLINE", func() {
			Expect(store.AddHost(host, "rg1")).Should(BeNil())
			Expect(store.AddHost(host, "rg1")).Should(Equal(EHostExists))

			hostInfo, err := store.Host(host)

			Expect(err).Should(BeNil())
			Expect(hostInfo.State).Should(Equal(HostStateOffline))
			Expect(hostInfo.RingGroup).Should(Equal("rg1"))

			hosts, err := store.Hosts()

			Expect(err).Should(BeNil())
			Expect(hosts).Should(HaveLen(1))
		})

		It("should persist state changes", func() {
			Expect(store.AddHost(host, "rg1")).Should(BeNil())
			Expect(store.SetHostState(host, HostStateServing)).Should(BeNil())
			Expect(store.HostState(host)).Should(Equal(HostStateServing))
		})
	})

	Describe("command queue", func() {
		BeforeEach(func() {
			Expect(store.AddHost(host, "rg1")).Should(BeNil())
		})

		It("should pop commands in FIFO order into the current command slot", func() {
			Expect(store.EnqueueCommand(host, ServeData)).Should(BeNil())
			Expect(store.EnqueueCommand(host, GoToIdle)).Should(BeNil())
			Expect(store.CurrentCommand(host)).Should(Equal(NoCommand))

			Expect(store.NextCommand(host)).Should(Equal(ServeData))
			Expect(store.CurrentCommand(host)).Should(Equal(ServeData))
			Expect(store.NextCommand(host)).Should(Equal(GoToIdle))
			Expect(store.NextCommand(host)).Should(Equal(NoCommand))
			Expect(store.CurrentCommand(host)).Should(Equal(NoCommand))
		})

		It("should refuse to enqueue the empty command", func() {
			Expect(store.EnqueueCommand(host, NoCommand)).Should(Equal(EInvalidCommand))
		})

		It("should notify subscribers when the queue changes", func() {
			notifications, cancel := store.Subscribe(host)

			Expect(store.EnqueueCommand(host, ExecuteUpdate)).Should(BeNil())
			Eventually(notifications).Should(Receive())

			cancel()
			cancel()

			Eventually(notifications).Should(BeClosed())
		})
	})

	Describe("domains and versions", func() {
		BeforeEach(func() {
			Expect(store.AddDomain(DomainConfig{Name: "users", NumPartitions: 2, StorageEngine: EngineLevelDB})).Should(BeNil())
		})

		It("should reject duplicate and invalid domains", func() {
			Expect(store.AddDomain(DomainConfig{Name: "users", NumPartitions: 2, StorageEngine: EngineLevelDB})).Should(Equal(EDomainExists))
			Expect(store.AddDomain(DomainConfig{Name: "x", NumPartitions: 0, StorageEngine: EngineLevelDB})).Should(Not(BeNil()))
		})

		It("should number versions in order and require closed parents", func() {
			v0, err := store.OpenVersion("users", nil)

			Expect(err).Should(BeNil())
			Expect(v0.VersionNumber).Should(Equal(VersionNumber(0)))
			Expect(v0.IsBase()).Should(BeTrue())

			_, err = store.OpenVersion("users", Ptr(0))

			Expect(err).Should(Equal(EVersionNotClosed))
			Expect(store.CloseVersion("users", 0)).Should(BeNil())
			Expect(store.CloseVersion("users", 0)).Should(Equal(EVersionClosed))

			v1, err := store.OpenVersion("users", Ptr(0))

			Expect(err).Should(BeNil())
			Expect(v1.VersionNumber).Should(Equal(VersionNumber(1)))

			_, err = store.OpenVersion("users", Ptr(7))

			Expect(err).Should(Equal(ENoSuchVersion))

			versions, err := store.DomainVersions("users")

			Expect(err).Should(BeNil())
			Expect(versions).Should(HaveLen(2))

			latest, ok := versions.LatestClosed()

			Expect(ok).Should(BeTrue())
			Expect(latest.VersionNumber).Should(Equal(VersionNumber(0)))
		})

		It("should only assign partitions that exist", func() {
			Expect(store.AddHost(host, "rg1")).Should(BeNil())
			Expect(store.AssignPartition(host, PartitionAssignment{Domain: "users", Partition: 1})).Should(BeNil())
			Expect(store.AssignPartition(host, PartitionAssignment{Domain: "users", Partition: 1})).Should(BeNil())
			Expect(store.AssignPartition(host, PartitionAssignment{Domain: "users", Partition: 2})).Should(Equal(ENoSuchPartition))
			Expect(store.AssignPartition(host, PartitionAssignment{Domain: "nope", Partition: 0})).Should(Equal(ENoSuchDomain))
			Expect(store.AssignedPartitions(host)).Should(Equal([]PartitionAssignment{{Domain: "users", Partition: 1}}))
		})
	})

	Describe("HostInfo encoding", func() {
		It("should encode states and commands by name", func() {
			encoded, err := json.Marshal(HostInfo{
				Address:        host,
				State:          HostStateUpdating,
				CurrentCommand: ExecuteUpdate,
				Queue:          []HostCommand{ServeData},
			})

			Expect(err).Should(BeNil())
			Expect(string(encoded)).Should(ContainSubstring(`"address":"localhost:12345"`))
			Expect(string(encoded)).Should(ContainSubstring(`"state":"UPDATING"`))
			Expect(string(encoded)).Should(ContainSubstring(`"queue":["SERVE_DATA"]`))
		})
	})
})
