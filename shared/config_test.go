package shared_test

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
	"io/ioutil"
	"os"
	"path/filepath"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/shared"
	. "github.com/PelionIoT/partitiondb/storage"
	. "github.com/PelionIoT/partitiondb/updater"
	. "github.com/PelionIoT/partitiondb/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var root string

	writeConfig := func(contents string) string {
		file := filepath.Join(root, "config.yaml")

		Expect(ioutil.WriteFile(file, []byte(contents), 0644)).Should(BeNil())

		return file
	}

	BeforeEach(func() {
		root = ScratchDirectory("config")

		Expect(os.MkdirAll(root, 0755)).Should(BeNil())
	})

	AfterEach(func() {
		os.RemoveAll(root)
	})

	Describe("YAMLPartitionServerConfig", func() {
		It("should load a config with a remote coordinator and fill in defaults", func() {
			var config YAMLPartitionServerConfig

			file := writeConfig(`
hostName: host-a
servicePort: 12345
numThreads: 8
ringGroup: ring-a
localDataRoot: local
versionsRoot: /data/versions
coordinator:
    address: http://localhost:9090
`)

			Expect(config.LoadFromFile(file)).Should(BeNil())
			Expect(config.Address()).Should(Equal(PartitionServerAddress{Host: "host-a", Port: 12345}))
			Expect(config.LocalDataRoot).Should(Equal(filepath.Join(root, "local")))
			Expect(config.VersionsRoot).Should(Equal("/data/versions"))
			Expect(config.UpdateConcurrency).Should(Equal(DefaultUpdateConcurrency))
			Expect(config.Coordinator.Timeout).Should(Equal(uint64(DefaultCoordinatorTimeout)))
			Expect(config.Coordinator.StorageEngine).Should(Equal(EngineLevelDB))
		})

		It("should resolve a local coordinator store relative to the config file", func() {
			var config YAMLPartitionServerConfig

			file := writeConfig(`
hostName: host-a
servicePort: 12345
numThreads: 8
ringGroup: ring-a
localDataRoot: /data/local
versionsRoot: /data/versions
updateConcurrency: 2
coordinator:
    db: coordinator
    storageEngine: pebble
`)

			Expect(config.LoadFromFile(file)).Should(BeNil())
			Expect(config.UpdateConcurrency).Should(Equal(2))
			Expect(config.Coordinator.DB).Should(Equal(filepath.Join(root, "coordinator")))
			Expect(config.Coordinator.StorageEngine).Should(Equal(EnginePebble))
		})

		It("should require a coordinator", func() {
			var config YAMLPartitionServerConfig

			file := writeConfig(`
hostName: host-a
servicePort: 12345
numThreads: 8
ringGroup: ring-a
localDataRoot: /data/local
versionsRoot: /data/versions
`)

			Expect(config.LoadFromFile(file)).Should(Not(BeNil()))
		})

		It("should refuse both a coordinator address and a coordinator store", func() {
			var config YAMLPartitionServerConfig

			file := writeConfig(`
hostName: host-a
servicePort: 12345
numThreads: 8
ringGroup: ring-a
localDataRoot: /data/local
versionsRoot: /data/versions
coordinator:
    address: http://localhost:9090
    db: /data/coordinator
`)

			Expect(config.LoadFromFile(file)).Should(Not(BeNil()))
		})

		It("should refuse an invalid port", func() {
			var config YAMLPartitionServerConfig

			file := writeConfig(`
hostName: host-a
servicePort: 70000
numThreads: 8
ringGroup: ring-a
localDataRoot: /data/local
versionsRoot: /data/versions
coordinator:
    address: http://localhost:9090
`)

			Expect(config.LoadFromFile(file)).Should(Not(BeNil()))
		})

		It("should refuse an unknown log level", func() {
			var config YAMLPartitionServerConfig

			file := writeConfig(`
hostName: host-a
servicePort: 12345
numThreads: 8
ringGroup: ring-a
localDataRoot: /data/local
versionsRoot: /data/versions
logLevel: loud
coordinator:
    address: http://localhost:9090
`)

			Expect(config.LoadFromFile(file)).Should(Not(BeNil()))
		})

		It("should fail when the file does not exist", func() {
			var config YAMLPartitionServerConfig

			Expect(config.LoadFromFile(filepath.Join(root, "missing.yaml"))).Should(Not(BeNil()))
		})
	})

	Describe("YAMLCoordinatorConfig", func() {
		It("should load a coordinator config", func() {
			var config YAMLCoordinatorConfig

			file := writeConfig(`
port: 9090
db: coordinator
`)

			Expect(config.LoadFromFile(file)).Should(BeNil())
			Expect(config.Port).Should(Equal(9090))
			Expect(config.DB).Should(Equal(filepath.Join(root, "coordinator")))
			Expect(config.StorageEngine).Should(Equal(EngineLevelDB))
		})

		It("should refuse an unknown storage engine", func() {
			var config YAMLCoordinatorConfig

			file := writeConfig(`
port: 9090
db: coordinator
storageEngine: rocksdb
`)

			Expect(config.LoadFromFile(file)).Should(Not(BeNil()))
		})

		It("should require a store directory", func() {
			var config YAMLCoordinatorConfig

			file := writeConfig(`
port: 9090
`)

			Expect(config.LoadFromFile(file)).Should(Not(BeNil()))
		})
	})
})
