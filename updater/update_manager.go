package updater

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
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/util"
)

const DefaultUpdateConcurrency = 4

type PartitionStoreFactory interface {
	PartitionStore(domainConfig DomainConfig, partition uint64) PartitionVersionStore
}

type UpdateManagerConfig struct {
	Coordinator Coordinator
	Host        PartitionServerAddress
	Stores      PartitionStoreFactory
	// Concurrency bounds how many partitions update at once
	Concurrency int
}

// UpdateManager brings every partition assigned to a host to the latest
// closed version of its domain. One partition failing does not stop the
// others.
type UpdateManager struct {
	coordinator Coordinator
	host        PartitionServerAddress
	stores      PartitionStoreFactory
	concurrency int
	locks       *MultiLock
}

func NewUpdateManager(config UpdateManagerConfig) *UpdateManager {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultUpdateConcurrency
	}

	return &UpdateManager{
		coordinator: config.Coordinator,
		host:        config.Host,
		stores:      config.Stores,
		concurrency: config.Concurrency,
		locks:       NewMultiLock(),
	}
}

type domainTarget struct {
	config   DomainConfig
	versions VersionSet
	target   VersionNumber
}

func (updateManager *UpdateManager) Update(ctx context.Context) error {
	assignments, err := updateManager.coordinator.AssignedPartitions(updateManager.host)

	if err != nil {
		return errors.Wrapf(err, "reading partition assignments of host %s", updateManager.host)
	}

	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Domain != assignments[j].Domain {
			return assignments[i].Domain < assignments[j].Domain
		}

		return assignments[i].Partition < assignments[j].Partition
	})

	targets := map[string]*domainTarget{}
	var failuresLock sync.Mutex
	var failures error
	failed := 0

	fail := func(err error) {
		failuresLock.Lock()
		defer failuresLock.Unlock()

		failures = errors.CombineErrors(failures, err)
		failed++
	}

	for _, assignment := range assignments {
		if _, ok := targets[assignment.Domain]; ok {
			continue
		}

		target, err := updateManager.resolveTarget(assignment.Domain)

		if err != nil {
			Log.Errorf("Host %s: unable to resolve target version of domain %s: %v", updateManager.host, assignment.Domain, err)

			fail(errors.Wrapf(err, "resolving target version of domain %s", assignment.Domain))
		}

		targets[assignment.Domain] = target
	}

	var group errgroup.Group

	group.SetLimit(updateManager.concurrency)

	for _, assignment := range assignments {
		assignment := assignment
		target := targets[assignment.Domain]

		if target == nil {
			continue
		}

		group.Go(func() error {
			store := updateManager.stores.PartitionStore(target.config, assignment.Partition)
			updater := NewIncrementalPartitionUpdater(store, target.versions, updateManager.locks)

			if err := updater.UpdateToVersion(ctx, target.target); err != nil {
				fail(err)
			}

			return nil
		})
	}

	group.Wait()

	if failures != nil {
		Log.Errorf("Host %s: update finished with %d failures (%d partitions assigned)", updateManager.host, failed, len(assignments))

		return failures
	}

	Log.Infof("Host %s: all %d partitions are up to date", updateManager.host, len(assignments))

	return nil
}

// resolveTarget returns nil without error when the domain has no closed
// version yet
func (updateManager *UpdateManager) resolveTarget(domain string) (*domainTarget, error) {
	domainConfig, err := updateManager.coordinator.Domain(domain)

	if err != nil {
		return nil, err
	}

	versions, err := updateManager.coordinator.DomainVersions(domain)

	if err != nil {
		return nil, err
	}

	latest, ok := versions.LatestClosed()

	if !ok {
		Log.Infof("Domain %s has no closed versions yet. Leaving its partitions as they are", domain)

		return nil, nil
	}

	return &domainTarget{config: domainConfig, versions: versions, target: latest.VersionNumber}, nil
}
