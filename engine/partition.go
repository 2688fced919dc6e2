package engine

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
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/storage"
	. "github.com/PelionIoT/partitiondb/updater"
)

// LocalPartition is the on-disk state of one partition on one host
type LocalPartition struct {
	engine    *Engine
	domain    DomainConfig
	partition uint64
	root      string
}

func (localPartition *LocalPartition) Name() string {
	return localPartition.domain.Name + "/" + strconv.FormatUint(localPartition.partition, 10)
}

func (localPartition *LocalPartition) versionsDir() string {
	return filepath.Join(localPartition.root, VersionsDirectory)
}

func (localPartition *LocalPartition) versionDir(versionNumber VersionNumber) string {
	return filepath.Join(localPartition.versionsDir(), versionNumber.String())
}

func (localPartition *LocalPartition) currentFile() string {
	return filepath.Join(localPartition.root, CurrentVersionFile)
}

func (localPartition *LocalPartition) DetectCurrentVersion() (VersionNumber, bool, error) {
	contents, err := os.ReadFile(localPartition.currentFile())

	if os.IsNotExist(err) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, errors.Wrapf(err, "reading %s", localPartition.currentFile())
	}

	versionNumber, err := ParseVersionNumber(strings.TrimSpace(string(contents)))

	if err != nil {
		return 0, false, errors.Wrapf(ECorrupted, "%s holds %q", localPartition.currentFile(), contents)
	}

	if _, err := os.Stat(localPartition.versionDir(versionNumber)); err != nil {
		return 0, false, errors.Wrapf(ECorrupted, "current version %d of partition %s is missing", versionNumber, localPartition.Name())
	}

	return versionNumber, true, nil
}

func (localPartition *LocalPartition) DetectCachedVersions() ([]VersionNumber, error) {
	entries, err := os.ReadDir(localPartition.versionsDir())

	if os.IsNotExist(err) {
		return []VersionNumber{}, nil
	}

	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", localPartition.versionsDir())
	}

	versions := make([]VersionNumber, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		versionNumber, err := ParseVersionNumber(entry.Name())

		if err != nil {
			// leftovers from an interrupted switch
			continue
		}

		versions = append(versions, versionNumber)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	return versions, nil
}

func (localPartition *LocalPartition) NewFetchRoot() (string, error) {
	fetchDir := filepath.Join(localPartition.root, FetchDirectory)

	if err := os.MkdirAll(fetchDir, 0755); err != nil {
		return "", err
	}

	return os.MkdirTemp(fetchDir, "update-")
}

// FetchVersion copies the published data of one version of this partition
// into fetchRoot/<version>
func (localPartition *LocalPartition) FetchVersion(ctx context.Context, domainVersion DomainVersion, fetchRoot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	source := localPartition.engine.PublishedPartitionPath(localPartition.domain.Name, domainVersion.VersionNumber, localPartition.partition)

	if _, err := os.Stat(source); err != nil {
		return errors.Wrapf(ENoSuchVersion, "version %d of partition %s was not published at %s", domainVersion.VersionNumber, localPartition.Name(), source)
	}

	sourceStore, err := OpenStorageDriver(localPartition.domain.StorageEngine, source, true)

	if err != nil {
		return errors.Wrapf(err, "opening published data at %s", source)
	}

	defer sourceStore.Close()

	metadata, err := readMetadata(sourceStore)

	if err != nil {
		return errors.Wrapf(err, "reading metadata of %s", source)
	}

	if metadata.versionNumber != domainVersion.VersionNumber {
		return errors.Wrapf(ECorrupted, "%s holds version %d, not %d", source, metadata.versionNumber, domainVersion.VersionNumber)
	}

	if metadata.isBase != domainVersion.IsBase() {
		return errors.Wrapf(ECorrupted, "%s disagrees with the coordinator about whether version %d is a base", source, domainVersion.VersionNumber)
	}

	return sourceStore.Snapshot(filepath.Join(fetchRoot, domainVersion.VersionNumber.String()), nil, nil)
}

// SwitchVersion materializes the plan target next to the existing versions
// and then points CURRENT at it. Readers see either the old version or the
// new one.
func (localPartition *LocalPartition) SwitchVersion(plan UpdatePlan, fetchRoot string) error {
	if plan.Base != nil && *plan.Base == plan.Target && len(plan.Versions) == 0 {
		return localPartition.writeCurrent(plan.Target)
	}

	if plan.Base == nil && len(plan.Versions) == 0 {
		return errors.Wrapf(EInvalidState, "plan for partition %s has nothing to build version %d from", localPartition.Name(), plan.Target)
	}

	if err := os.MkdirAll(localPartition.versionsDir(), 0755); err != nil {
		return err
	}

	building := filepath.Join(localPartition.versionsDir(), buildingPrefix+plan.Target.String())

	if err := os.RemoveAll(building); err != nil {
		return err
	}

	if err := localPartition.build(building, plan, fetchRoot); err != nil {
		os.RemoveAll(building)

		return err
	}

	target := localPartition.versionDir(plan.Target)

	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(building)

		return err
	}

	if err := os.Rename(building, target); err != nil {
		os.RemoveAll(building)

		return errors.Wrapf(err, "moving %s into place", building)
	}

	return localPartition.writeCurrent(plan.Target)
}

func (localPartition *LocalPartition) build(dir string, plan UpdatePlan, fetchRoot string) error {
	dest, err := OpenStorageDriver(localPartition.domain.StorageEngine, dir, false)

	if err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	defer dest.Close()

	if plan.Base != nil {
		base, err := OpenStorageDriver(localPartition.domain.StorageEngine, localPartition.versionDir(*plan.Base), true)

		if err != nil {
			return errors.Wrapf(err, "opening cached version %d", *plan.Base)
		}

		err = Copy(dest, base)
		base.Close()

		if err != nil {
			return errors.Wrapf(err, "copying cached version %d", *plan.Base)
		}
	}

	for _, versionNumber := range plan.Versions {
		fetched := filepath.Join(fetchRoot, versionNumber.String())

		if err := localPartition.applyFetched(dest, fetched); err != nil {
			return errors.Wrapf(err, "applying version %d", versionNumber)
		}
	}

	metadata := NewBatch().
		Put(namespacedKey(MetadataStoragePrefix, []byte(MetadataVersion)), []byte(plan.Target.String())).
		Put(namespacedKey(MetadataStoragePrefix, []byte(MetadataBase)), []byte(strconv.FormatBool(true)))

	return dest.Batch(metadata)
}

// applyFetched writes the values of a fetched version into dest and removes
// the keys it deleted
func (localPartition *LocalPartition) applyFetched(dest StorageDriver, dir string) error {
	source, err := OpenStorageDriver(localPartition.domain.StorageEngine, dir, true)

	if err != nil {
		return err
	}

	defer source.Close()

	values := NewPrefixedStorageDriver([]byte{ValueStoragePrefix}, dest)

	if err := Copy(values, NewPrefixedStorageDriver([]byte{ValueStoragePrefix}, source)); err != nil {
		return err
	}

	iter, err := NewPrefixedStorageDriver([]byte{TombstoneStoragePrefix}, source).GetRange(nil, nil)

	if err != nil {
		return err
	}

	defer iter.Release()

	batch := NewBatch()

	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)

		if batch.Size() >= CopyBatchSize {
			if err := values.Batch(batch); err != nil {
				return err
			}

			batch = NewBatch()
		}
	}

	if iter.Error() != nil {
		return iter.Error()
	}

	return values.Batch(batch)
}

func (localPartition *LocalPartition) writeCurrent(versionNumber VersionNumber) error {
	tmp := localPartition.currentFile() + ".tmp"

	if err := os.WriteFile(tmp, []byte(versionNumber.String()+"\n"), 0644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}

	if err := os.Rename(tmp, localPartition.currentFile()); err != nil {
		os.Remove(tmp)

		return errors.Wrapf(err, "replacing %s", localPartition.currentFile())
	}

	return nil
}

// CleanCachedVersions removes every materialized version except current and
// the protected ones
func (localPartition *LocalPartition) CleanCachedVersions(current VersionNumber, protected ...VersionNumber) error {
	keep := map[string]bool{current.String(): true}

	for _, versionNumber := range protected {
		keep[versionNumber.String()] = true
	}

	entries, err := os.ReadDir(localPartition.versionsDir())

	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return err
	}

	var result error

	for _, entry := range entries {
		if keep[entry.Name()] {
			continue
		}

		Log.Debugf("Partition %s: removing stale version directory %s", localPartition.Name(), entry.Name())

		if err := os.RemoveAll(filepath.Join(localPartition.versionsDir(), entry.Name())); err != nil {
			result = errors.CombineErrors(result, err)
		}
	}

	return result
}

func (localPartition *LocalPartition) OpenReader() (*Reader, error) {
	versionNumber, ok, err := localPartition.DetectCurrentVersion()

	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.Wrapf(ENoCurrentVersion, "partition %s", localPartition.Name())
	}

	storageDriver, err := OpenStorageDriver(localPartition.domain.StorageEngine, localPartition.versionDir(versionNumber), true)

	if err != nil {
		return nil, errors.Wrapf(err, "opening version %d of partition %s", versionNumber, localPartition.Name())
	}

	return &Reader{
		partition:     localPartition.Name(),
		versionNumber: versionNumber,
		storageDriver: storageDriver,
		values:        NewPrefixedStorageDriver([]byte{ValueStoragePrefix}, storageDriver),
	}, nil
}
