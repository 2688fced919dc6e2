package main

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

	. "github.com/PelionIoT/partitiondb/logging"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("start", func() {
	Describe("arguments", func() {
		It("should require a config file", func() {
			Expect(checkStartArguments("", "logging.yaml")).Should(MatchError(ContainSubstring("-conf")))
		})

		It("should require a logging config file", func() {
			Expect(checkStartArguments("config.yaml", "")).Should(MatchError(ContainSubstring("-log_conf")))
		})

		It("should accept both", func() {
			Expect(checkStartArguments("config.yaml", "logging.yaml")).Should(BeNil())
		})
	})

	Describe("the generated logging config", func() {
		var dir string

		BeforeEach(func() {
			var err error

			dir, err = ioutil.TempDir("", "partitiondb-conf")

			Expect(err).Should(BeNil())
		})

		AfterEach(func() {
			os.RemoveAll(dir)
		})

		It("should be accepted by -log_conf", func() {
			file := filepath.Join(dir, "logging.yaml")

			Expect(ioutil.WriteFile(file, []byte(templateLoggingConfig), 0644)).Should(BeNil())
			Expect(LoadLoggingConfig(file)).Should(BeNil())
		})
	})
})
