package remote_test

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
	"net/http/httptest"

	"github.com/gorilla/mux"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/coordinator/remote"
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/storage"
	. "github.com/PelionIoT/partitiondb/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Remote coordinator", func() {
	var storageDriver StorageDriver
	var server *httptest.Server
	var client *Client
	host := PartitionServerAddress{Host: "127.0.0.1", Port: 12345}

	BeforeEach(func() {
		storageDriver = MakeNewStorageDriver(EngineLevelDB)
		Expect(storageDriver.Open()).Should(BeNil())

		router := mux.NewRouter()
		NewCoordinatorEndpoint(NewStore(storageDriver)).Attach(router)
		server = httptest.NewServer(router)
		client = NewClient(ClientConfig{Address: server.URL})
	})

	AfterEach(func() {
		server.Close()
		storageDriver.Close()
	})

	It("should manage hosts and their command queues", func() {
		Expect(client.AddHost(host, "rg1")).Should(BeNil())
		Expect(client.AddHost(host, "rg1")).Should(Equal(EHostExists))
		Expect(client.SetHostState(host, HostStateIdle)).Should(BeNil())
		Expect(client.HostState(host)).Should(Equal(HostStateIdle))
		Expect(client.EnqueueCommand(host, ServeData)).Should(BeNil())
		Expect(client.CurrentCommand(host)).Should(Equal(NoCommand))
		Expect(client.NextCommand(host)).Should(Equal(ServeData))
		Expect(client.CurrentCommand(host)).Should(Equal(ServeData))

		hosts, err := client.Hosts()

		Expect(err).Should(BeNil())
		Expect(hosts).Should(HaveLen(1))
		Expect(hosts[0].Address).Should(Equal(host))
		Expect(hosts[0].CurrentCommand).Should(Equal(ServeData))
	})

	It("should map coordinator errors back onto the sentinel values", func() {
		_, err := client.HostState(host)

		Expect(err).Should(Equal(ENoSuchHost))

		_, err = client.DomainVersions("missing")

		Expect(err).Should(Equal(ENoSuchDomain))
	})

	It("should manage domains, versions and assignments", func() {
		Expect(client.AddDomain(DomainConfig{Name: "users", NumPartitions: 4, StorageEngine: EnginePebble})).Should(BeNil())
		Expect(client.AddHost(host, "rg1")).Should(BeNil())
		Expect(client.AssignPartition(host, PartitionAssignment{Domain: "users", Partition: 3})).Should(BeNil())
		Expect(client.AssignedPartitions(host)).Should(Equal([]PartitionAssignment{{Domain: "users", Partition: 3}}))

		v0, err := client.OpenVersion("users", nil)

		Expect(err).Should(BeNil())
		Expect(client.CloseVersion("users", v0.VersionNumber)).Should(BeNil())

		v1, err := client.OpenVersion("users", Ptr(v0.VersionNumber))

		Expect(err).Should(BeNil())
		Expect(v1.ParentVersionNumber).Should(Equal(Ptr(v0.VersionNumber)))

		versions, err := client.DomainVersions("users")

		Expect(err).Should(BeNil())
		Expect(versions).Should(HaveLen(2))

		domainConfig, err := client.Domain("users")

		Expect(err).Should(BeNil())
		Expect(domainConfig.StorageEngine).Should(Equal(EnginePebble))
	})

	It("should push an event to subscribers when the host changes", func() {
		Expect(client.AddHost(host, "rg1")).Should(BeNil())

		notifications, cancel := client.Subscribe(host)

		defer cancel()

		// the first signal follows the connection being established
		Eventually(notifications, "5s").Should(Receive())

		Expect(client.EnqueueCommand(host, ExecuteUpdate)).Should(BeNil())
		Eventually(notifications, "5s").Should(Receive())

		cancel()

		Eventually(notifications, "5s").Should(BeClosed())
	})
})
