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
	"errors"
	"os"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/updater"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("IncrementalPartitionUpdater", func() {
	It("should fetch the planned versions in order, switch, then clean", func() {
		store := NewMockPartitionVersionStore("users/0", Ptr(1), 0, 1)
		updater := NewIncrementalPartitionUpdater(store, chain(4), nil)

		Expect(updater.UpdateToVersion(context.Background(), 3)).Should(BeNil())
		Expect(store.fetched).Should(Equal([]VersionNumber{2, 3}))
		Expect(store.switched).Should(HaveLen(1))
		Expect(store.switched[0].Base).Should(Equal(Ptr(1)))
		Expect(store.Current()).Should(Equal(Ptr(3)))
		Expect(store.cached).Should(Equal([]VersionNumber{3}))
	})

	It("should do nothing when the partition is already at the target", func() {
		store := NewMockPartitionVersionStore("users/0", Ptr(3), 3)
		updater := NewIncrementalPartitionUpdater(store, chain(4), nil)

		Expect(updater.UpdateToVersion(context.Background(), 3)).Should(BeNil())
		Expect(store.fetched).Should(BeEmpty())
		Expect(store.switched).Should(BeEmpty())
		Expect(store.fetchRoots).Should(BeEmpty())
	})

	It("should leave the current version alone when a fetch fails", func() {
		store := NewMockPartitionVersionStore("users/0", Ptr(1), 0, 1)
		store.failFetch[3] = true
		updater := NewIncrementalPartitionUpdater(store, chain(4), nil)

		err := updater.UpdateToVersion(context.Background(), 3)

		Expect(err).Should(Not(BeNil()))
		Expect(store.fetched).Should(Equal([]VersionNumber{2}))
		Expect(store.switched).Should(BeEmpty())
		Expect(store.Current()).Should(Equal(Ptr(1)))
		Expect(store.cached).Should(Equal([]VersionNumber{0, 1}))
	})

	It("should remove the fetch directory whatever the outcome", func() {
		store := NewMockPartitionVersionStore("users/0", nil)
		store.failFetch[1] = true
		updater := NewIncrementalPartitionUpdater(store, chain(2), nil)

		Expect(updater.UpdateToVersion(context.Background(), 1)).Should(Not(BeNil()))
		Expect(store.fetchRoots).Should(HaveLen(1))

		_, err := os.Stat(store.fetchRoots[0])

		Expect(os.IsNotExist(err)).Should(BeTrue())
	})

	It("should report planning errors without touching the store", func() {
		store := NewMockPartitionVersionStore("users/0", nil)
		updater := NewIncrementalPartitionUpdater(store, chain(2), nil)

		err := updater.UpdateToVersion(context.Background(), 9)

		Expect(err).Should(BeAssignableToTypeOf(&PlanningError{}))
		Expect(store.fetchRoots).Should(BeEmpty())
	})

	It("should keep the update when cleaning fails", func() {
		store := NewMockPartitionVersionStore("users/0", nil)
		store.cleanError = errors.New("disk on fire")
		updater := NewIncrementalPartitionUpdater(store, chain(2), nil)

		Expect(updater.UpdateToVersion(context.Background(), 1)).Should(BeNil())
		Expect(store.Current()).Should(Equal(Ptr(1)))
	})

	It("should stop fetching once the context is cancelled", func() {
		store := NewMockPartitionVersionStore("users/0", nil)
		updater := NewIncrementalPartitionUpdater(store, chain(3), nil)
		ctx, cancel := context.WithCancel(context.Background())

		cancel()

		Expect(updater.UpdateToVersion(ctx, 2)).Should(Not(BeNil()))
		Expect(store.fetched).Should(BeEmpty())
		Expect(store.Current()).Should(BeNil())
	})
})
