package coordinator

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
	"sort"
	"sync"
	"time"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/storage"
)

const (
	HostsStoragePrefix   = iota
	DomainsStoragePrefix = iota
)

type domainRecord struct {
	Config   DomainConfig `json:"config"`
	Versions VersionSet   `json:"versions"`
}

// Store is a Coordinator kept in a local StorageDriver. Each host and each
// domain is one JSON record so every update is a single key write.
type Store struct {
	storageDriver StorageDriver
	hosts         StorageDriver
	domains       StorageDriver
	lock          sync.Mutex
	listenersLock sync.Mutex
	listeners     map[string]map[uint64]chan struct{}
	nextListener  uint64
}

func NewStore(storageDriver StorageDriver) *Store {
	return &Store{
		storageDriver: storageDriver,
		hosts:         NewPrefixedStorageDriver([]byte{HostsStoragePrefix}, storageDriver),
		domains:       NewPrefixedStorageDriver([]byte{DomainsStoragePrefix}, storageDriver),
		listeners:     make(map[string]map[uint64]chan struct{}),
	}
}

func (store *Store) getRecord(driver StorageDriver, key string, record interface{}) error {
	values, err := driver.Get([][]byte{[]byte(key)})

	if err != nil {
		Log.Errorf("Unable to read coordinator record %s: %v", key, err)

		return EStorage
	}

	if values[0] == nil {
		return errNotFound
	}

	if err := json.Unmarshal(values[0], record); err != nil {
		Log.Errorf("Coordinator record %s could not be decoded: %v", key, err)

		return ECorrupted
	}

	return nil
}

func (store *Store) putRecord(driver StorageDriver, key string, record interface{}) error {
	encoded, _ := json.Marshal(record)

	if err := driver.Batch(NewBatch().Put([]byte(key), encoded)); err != nil {
		Log.Errorf("Unable to write coordinator record %s: %v", key, err)

		return EStorage
	}

	return nil
}

var errNotFound = DBerror{Msg: "not found", ErrorCode: -1}

func (store *Store) getHost(host PartitionServerAddress) (HostInfo, error) {
	var hostInfo HostInfo

	err := store.getRecord(store.hosts, host.String(), &hostInfo)

	if err == errNotFound {
		return hostInfo, ENoSuchHost
	}

	return hostInfo, err
}

// updateHost applies f to the host record and persists the result. f
// returning an error leaves the record untouched.
func (store *Store) updateHost(host PartitionServerAddress, f func(hostInfo *HostInfo) error) error {
	store.lock.Lock()

	hostInfo, err := store.getHost(host)

	if err == nil {
		err = f(&hostInfo)
	}

	if err == nil {
		err = store.putRecord(store.hosts, host.String(), hostInfo)
	}

	store.lock.Unlock()

	if err == nil {
		store.notify(host)
	}

	return err
}

func (store *Store) getDomain(name string) (domainRecord, error) {
	var record domainRecord

	err := store.getRecord(store.domains, name, &record)

	if err == errNotFound {
		return record, ENoSuchDomain
	}

	return record, err
}

func (store *Store) Host(host PartitionServerAddress) (HostInfo, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	return store.getHost(host)
}

func (store *Store) HostState(host PartitionServerAddress) (HostState, error) {
	hostInfo, err := store.Host(host)

	return hostInfo.State, err
}

func (store *Store) SetHostState(host PartitionServerAddress, state HostState) error {
	return store.updateHost(host, func(hostInfo *HostInfo) error {
		hostInfo.State = state

		return nil
	})
}

func (store *Store) CurrentCommand(host PartitionServerAddress) (HostCommand, error) {
	hostInfo, err := store.Host(host)

	return hostInfo.CurrentCommand, err
}

func (store *Store) NextCommand(host PartitionServerAddress) (HostCommand, error) {
	var next HostCommand

	err := store.updateHost(host, func(hostInfo *HostInfo) error {
		if len(hostInfo.Queue) == 0 {
			hostInfo.CurrentCommand = NoCommand
		} else {
			hostInfo.CurrentCommand = hostInfo.Queue[0]
			hostInfo.Queue = hostInfo.Queue[1:]
		}

		next = hostInfo.CurrentCommand

		return nil
	})

	return next, err
}

func (store *Store) EnqueueCommand(host PartitionServerAddress, command HostCommand) error {
	if command == NoCommand {
		return EInvalidCommand
	}

	return store.updateHost(host, func(hostInfo *HostInfo) error {
		hostInfo.Queue = append(hostInfo.Queue, command)

		return nil
	})
}

func (store *Store) AssignedPartitions(host PartitionServerAddress) ([]PartitionAssignment, error) {
	hostInfo, err := store.Host(host)

	return hostInfo.Partitions, err
}

func (store *Store) Domain(name string) (DomainConfig, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	record, err := store.getDomain(name)

	return record.Config, err
}

func (store *Store) DomainVersions(name string) (VersionSet, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	record, err := store.getDomain(name)

	return record.Versions, err
}

func (store *Store) Subscribe(host PartitionServerAddress) (<-chan struct{}, func()) {
	store.listenersLock.Lock()
	defer store.listenersLock.Unlock()

	id := store.nextListener
	store.nextListener++
	ch := make(chan struct{}, 1)

	if store.listeners[host.String()] == nil {
		store.listeners[host.String()] = make(map[uint64]chan struct{})
	}

	store.listeners[host.String()][id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			store.listenersLock.Lock()
			defer store.listenersLock.Unlock()

			delete(store.listeners[host.String()], id)
			close(ch)
		})
	}
}

func (store *Store) notify(host PartitionServerAddress) {
	store.listenersLock.Lock()
	defer store.listenersLock.Unlock()

	for _, ch := range store.listeners[host.String()] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (store *Store) Hosts() ([]HostInfo, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	iter, err := store.hosts.GetRange(nil, nil)

	if err != nil {
		return nil, EStorage
	}

	defer iter.Release()

	hosts := []HostInfo{}

	for iter.Next() {
		var hostInfo HostInfo

		if err := json.Unmarshal(iter.Value(), &hostInfo); err != nil {
			Log.Errorf("Coordinator record for host %s could not be decoded: %v", string(iter.Key()), err)

			return nil, ECorrupted
		}

		hosts = append(hosts, hostInfo)
	}

	if iter.Error() != nil {
		return nil, EStorage
	}

	return hosts, nil
}

// AddHost registers a host. New hosts are OFFLINE until they start.
func (store *Store) AddHost(host PartitionServerAddress, ringGroup string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	if _, err := store.getHost(host); err == nil {
		return EHostExists
	} else if err != ENoSuchHost {
		return err
	}

	return store.putRecord(store.hosts, host.String(), HostInfo{
		Address:    host,
		RingGroup:  ringGroup,
		State:      HostStateOffline,
		Queue:      []HostCommand{},
		Partitions: []PartitionAssignment{},
	})
}

func (store *Store) AssignPartition(host PartitionServerAddress, assignment PartitionAssignment) error {
	domainConfig, err := store.Domain(assignment.Domain)

	if err != nil {
		return err
	}

	if assignment.Partition >= domainConfig.NumPartitions {
		return ENoSuchPartition
	}

	return store.updateHost(host, func(hostInfo *HostInfo) error {
		for _, p := range hostInfo.Partitions {
			if p == assignment {
				return nil
			}
		}

		hostInfo.Partitions = append(hostInfo.Partitions, assignment)

		return nil
	})
}

func (store *Store) Domains() ([]DomainConfig, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	iter, err := store.domains.GetRange(nil, nil)

	if err != nil {
		return nil, EStorage
	}

	defer iter.Release()

	domains := []DomainConfig{}

	for iter.Next() {
		var record domainRecord

		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			return nil, ECorrupted
		}

		domains = append(domains, record.Config)
	}

	if iter.Error() != nil {
		return nil, EStorage
	}

	return domains, nil
}

func (store *Store) AddDomain(domainConfig DomainConfig) error {
	if err := domainConfig.Validate(); err != nil {
		return err
	}

	store.lock.Lock()
	defer store.lock.Unlock()

	if _, err := store.getDomain(domainConfig.Name); err == nil {
		return EDomainExists
	} else if err != ENoSuchDomain {
		return err
	}

	return store.putRecord(store.domains, domainConfig.Name, domainRecord{Config: domainConfig, Versions: VersionSet{}})
}

// OpenVersion creates the next version of a domain. A delta's parent must
// already be closed.
func (store *Store) OpenVersion(domain string, parent *VersionNumber) (DomainVersion, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	record, err := store.getDomain(domain)

	if err != nil {
		return DomainVersion{}, err
	}

	if parent != nil {
		parentVersion, ok := record.Versions.VersionByNumber(*parent)

		if !ok {
			return DomainVersion{}, ENoSuchVersion
		}

		if !parentVersion.IsClosed() {
			return DomainVersion{}, EVersionNotClosed
		}
	}

	var versionNumber VersionNumber

	if latest, ok := record.Versions.Latest(); ok {
		versionNumber = latest.VersionNumber + 1
	}

	domainVersion := DomainVersion{
		VersionNumber:       versionNumber,
		ParentVersionNumber: parent,
		CreatedAt:           time.Now(),
	}

	record.Versions = append(record.Versions, domainVersion)
	sort.Sort(record.Versions)

	if err := store.putRecord(store.domains, domain, record); err != nil {
		return DomainVersion{}, err
	}

	if parent != nil {
		Log.Infof("Opened delta version %d of domain %s on version %d", versionNumber, domain, *parent)
	} else {
		Log.Infof("Opened base version %d of domain %s", versionNumber, domain)
	}

	return domainVersion, nil
}

func (store *Store) CloseVersion(domain string, versionNumber VersionNumber) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	record, err := store.getDomain(domain)

	if err != nil {
		return err
	}

	for i := range record.Versions {
		if record.Versions[i].VersionNumber != versionNumber {
			continue
		}

		if record.Versions[i].IsClosed() {
			return EVersionClosed
		}

		closedAt := time.Now()
		record.Versions[i].ClosedAt = &closedAt

		if err := store.putRecord(store.domains, domain, record); err != nil {
			return err
		}

		Log.Infof("Closed version %d of domain %s", versionNumber, domain)

		return nil
	}

	return ENoSuchVersion
}
