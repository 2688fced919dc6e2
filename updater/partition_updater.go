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
	"os"
	"time"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/util"
)

// PartitionVersionStore is the on-disk side of one partition. Stores do
// not retry internally. A failed fetch is reported to the updater.
type PartitionVersionStore interface {
	// Name identifies the partition in logs and locks, e.g. "users/3"
	Name() string
	// DetectCurrentVersion reports false when the partition has never
	// been switched to a version
	DetectCurrentVersion() (VersionNumber, bool, error)
	// DetectCachedVersions lists versions whose complete data is on disk
	DetectCachedVersions() ([]VersionNumber, error)
	NewFetchRoot() (string, error)
	FetchVersion(ctx context.Context, version DomainVersion, fetchRoot string) error
	// SwitchVersion builds plan.Target from the plan's base and the
	// versions fetched into fetchRoot, then makes it current atomically
	SwitchVersion(plan UpdatePlan, fetchRoot string) error
	CleanCachedVersions(current VersionNumber, protected ...VersionNumber) error
}

type IncrementalPartitionUpdater struct {
	store    PartitionVersionStore
	versions Versions
	locks    *MultiLock
}

// NewIncrementalPartitionUpdater returns an updater for one partition.
// Updaters sharing locks never plan, apply or clean the same partition at
// the same time.
func NewIncrementalPartitionUpdater(store PartitionVersionStore, versions Versions, locks *MultiLock) *IncrementalPartitionUpdater {
	if locks == nil {
		locks = NewMultiLock()
	}

	return &IncrementalPartitionUpdater{
		store:    store,
		versions: versions,
		locks:    locks,
	}
}

func (updater *IncrementalPartitionUpdater) UpdateToVersion(ctx context.Context, target VersionNumber) error {
	lockKey := []byte(updater.store.Name())

	updater.locks.Lock(lockKey)
	defer updater.locks.Unlock(lockKey)

	current, hasCurrent, err := updater.store.DetectCurrentVersion()

	if err != nil {
		return errors.Wrapf(err, "detecting current version of partition %s", updater.store.Name())
	}

	var currentPtr *VersionNumber

	if hasCurrent {
		if current == target {
			Log.Debugf("Partition %s is already at version %d", updater.store.Name(), target)

			recordPartitionUpdate(updateResultUpToDate)

			return nil
		}

		currentPtr = &current
	}

	cached, err := updater.store.DetectCachedVersions()

	if err != nil {
		return errors.Wrapf(err, "detecting cached versions of partition %s", updater.store.Name())
	}

	plan, err := ComputeUpdatePlan(updater.versions, currentPtr, cached, target)

	if err != nil {
		Log.Errorf("Partition %s: %v", updater.store.Name(), err)

		recordPartitionUpdate(updateResultFailed)

		return err
	}

	Log.Infof("Updating partition %s from version %s (%s)", updater.store.Name(), versionString(currentPtr), plan)

	if err := updater.applyPlan(ctx, plan); err != nil {
		recordPartitionUpdate(updateResultFailed)

		return err
	}

	recordPartitionUpdate(updateResultUpdated)

	if err := updater.cleanCachedVersions(target); err != nil {
		// the switch already happened so the update itself stands
		Log.Warningf("Partition %s is at version %d but its stale versions could not be removed: %v", updater.store.Name(), target, err)
	}

	return nil
}

func (updater *IncrementalPartitionUpdater) applyPlan(ctx context.Context, plan UpdatePlan) error {
	fetchRoot, err := updater.store.NewFetchRoot()

	if err != nil {
		return errors.Wrapf(err, "creating fetch directory for partition %s", updater.store.Name())
	}

	defer os.RemoveAll(fetchRoot)

	for _, versionNumber := range plan.Versions {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "update of partition %s cancelled", updater.store.Name())
		}

		domainVersion, ok := updater.versions.VersionByNumber(versionNumber)

		if !ok {
			return &PlanningError{Target: plan.Target, Reason: "version " + versionNumber.String() + " disappeared while updating"}
		}

		Log.Debugf("Partition %s: fetching version %d", updater.store.Name(), versionNumber)

		started := time.Now()

		if err := updater.store.FetchVersion(ctx, domainVersion, fetchRoot); err != nil {
			Log.Errorf("Partition %s: unable to fetch version %d: %v", updater.store.Name(), versionNumber, err)

			return errors.Wrapf(err, "fetching version %d of partition %s", versionNumber, updater.store.Name())
		}

		fetchDuration.Observe(time.Since(started).Seconds())
	}

	started := time.Now()

	if err := updater.store.SwitchVersion(plan, fetchRoot); err != nil {
		Log.Errorf("Partition %s: unable to switch to version %d: %v", updater.store.Name(), plan.Target, err)

		return errors.Wrapf(err, "switching partition %s to version %d", updater.store.Name(), plan.Target)
	}

	switchDuration.Observe(time.Since(started).Seconds())

	Log.Infof("Partition %s is now at version %d", updater.store.Name(), plan.Target)

	return nil
}

func (updater *IncrementalPartitionUpdater) cleanCachedVersions(current VersionNumber) error {
	return updater.store.CleanCachedVersions(current)
}

func versionString(v *VersionNumber) string {
	if v == nil {
		return "none"
	}

	return v.String()
}
