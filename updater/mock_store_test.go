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
	"strconv"
	"sync"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/updater"
)

type MockPartitionVersionStore struct {
	lock       sync.Mutex
	name       string
	current    *VersionNumber
	cached     []VersionNumber
	failFetch  map[VersionNumber]bool
	fetched    []VersionNumber
	switched   []UpdatePlan
	fetchRoots []string
	cleanError error
}

func NewMockPartitionVersionStore(name string, current *VersionNumber, cached ...VersionNumber) *MockPartitionVersionStore {
	return &MockPartitionVersionStore{
		name:      name,
		current:   current,
		cached:    cached,
		failFetch: map[VersionNumber]bool{},
	}
}

func (store *MockPartitionVersionStore) Name() string {
	return store.name
}

func (store *MockPartitionVersionStore) DetectCurrentVersion() (VersionNumber, bool, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	if store.current == nil {
		return 0, false, nil
	}

	return *store.current, true, nil
}

func (store *MockPartitionVersionStore) DetectCachedVersions() ([]VersionNumber, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	return append([]VersionNumber{}, store.cached...), nil
}

func (store *MockPartitionVersionStore) NewFetchRoot() (string, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	dir, err := os.MkdirTemp("", "fetch-")

	if err == nil {
		store.fetchRoots = append(store.fetchRoots, dir)
	}

	return dir, err
}

func (store *MockPartitionVersionStore) FetchVersion(ctx context.Context, version DomainVersion, fetchRoot string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	if store.failFetch[version.VersionNumber] {
		return errors.New("fetch failed")
	}

	store.fetched = append(store.fetched, version.VersionNumber)

	return nil
}

func (store *MockPartitionVersionStore) SwitchVersion(plan UpdatePlan, fetchRoot string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	target := plan.Target
	store.current = &target
	store.cached = append(store.cached, target)
	store.switched = append(store.switched, plan)

	return nil
}

func (store *MockPartitionVersionStore) CleanCachedVersions(current VersionNumber, protected ...VersionNumber) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	if store.cleanError != nil {
		return store.cleanError
	}

	keep := map[VersionNumber]bool{current: true}

	for _, v := range protected {
		keep[v] = true
	}

	cached := []VersionNumber{}

	for _, v := range store.cached {
		if keep[v] {
			cached = append(cached, v)
		}
	}

	store.cached = cached

	return nil
}

func (store *MockPartitionVersionStore) Current() *VersionNumber {
	store.lock.Lock()
	defer store.lock.Unlock()

	return store.current
}

type MockStoreFactory struct {
	lock   sync.Mutex
	stores map[string]*MockPartitionVersionStore
}

func (factory *MockStoreFactory) PartitionStore(domainConfig DomainConfig, partition uint64) PartitionVersionStore {
	factory.lock.Lock()
	defer factory.lock.Unlock()

	name := domainConfig.Name + "/" + strconv.FormatUint(partition, 10)

	if factory.stores[name] == nil {
		factory.stores[name] = NewMockPartitionVersionStore(name, nil)
	}

	return factory.stores[name]
}
