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
	. "github.com/PelionIoT/partitiondb/domain"
)

// Coordinator is the cluster state a partition server reads and writes.
// Host state and the command queue live here so operators can drive hosts
// remotely. The host only executes.
type Coordinator interface {
	Host(host PartitionServerAddress) (HostInfo, error)
	HostState(host PartitionServerAddress) (HostState, error)
	SetHostState(host PartitionServerAddress, state HostState) error
	// CurrentCommand returns the command being executed or NoCommand
	CurrentCommand(host PartitionServerAddress) (HostCommand, error)
	// NextCommand pops the head of the queue into the current command slot
	// and returns it. An empty queue clears the slot and returns NoCommand.
	NextCommand(host PartitionServerAddress) (HostCommand, error)
	EnqueueCommand(host PartitionServerAddress, command HostCommand) error
	AssignedPartitions(host PartitionServerAddress) ([]PartitionAssignment, error)
	Domain(name string) (DomainConfig, error)
	DomainVersions(name string) (VersionSet, error)
	// Subscribe delivers a signal whenever the host's record changes. The
	// channel is closed after cancel is called.
	Subscribe(host PartitionServerAddress) (<-chan struct{}, func())
}

// Admin is the operator surface of the coordinator
type Admin interface {
	Hosts() ([]HostInfo, error)
	AddHost(host PartitionServerAddress, ringGroup string) error
	AssignPartition(host PartitionServerAddress, assignment PartitionAssignment) error
	Domains() ([]DomainConfig, error)
	AddDomain(domainConfig DomainConfig) error
	OpenVersion(domain string, parent *VersionNumber) (DomainVersion, error)
	CloseVersion(domain string, versionNumber VersionNumber) error
}
