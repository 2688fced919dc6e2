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
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/PelionIoT/partitiondb/coordinator/remote"

	. "github.com/PelionIoT/partitiondb/bulkload"
	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/engine"
	. "github.com/PelionIoT/partitiondb/storage"
)

const defaultCoordinatorAddress = "http://localhost:9090"

func coordinatorURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}

	return "http://" + address
}

func newAdminClient(address string, timeout uint64) *remote.Client {
	return remote.NewClient(remote.ClientConfig{
		Address: coordinatorURL(address),
		Timeout: time.Duration(timeout) * time.Millisecond,
	})
}

func adminFlags(name string) (*flag.FlagSet, *string, *uint64) {
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	address := flags.String("coordinator", defaultCoordinatorAddress, "The address of the coordinator")
	timeout := flags.Uint64("timeout", 10000, "Request timeout in milliseconds")

	return flags, address, timeout
}

func parseHost(s string) PartitionServerAddress {
	if s == "" {
		fail("No host specified. Use -host=<name>:<port>")
	}

	host, err := ParsePartitionServerAddress(s)

	if err != nil {
		fail("%s is not a valid host: %v", s, err)
	}

	return host
}

func init() {
	hostFlags, hostCoordinator, hostTimeout := adminFlags("host")
	hostAddress := hostFlags.String("host", "", "The host to register as <name>:<port>")
	hostRingGroup := hostFlags.String("ring_group", "", "The ring group of the host")

	registerCommand("host", hostFlags, func() {
		host := parseHost(*hostAddress)

		if *hostRingGroup == "" {
			fail("No ring group specified")
		}

		if err := newAdminClient(*hostCoordinator, *hostTimeout).AddHost(host, *hostRingGroup); err != nil {
			fail("Unable to add host %s: %v", host, err)
		}

		fmt.Fprintf(os.Stderr, "Added host %s to ring group %s\n", host, *hostRingGroup)
	}, "Register a host with a coordinator")

	domainCommand, domainCoordinator, domainTimeout := adminFlags("domain")
	domainName := domainCommand.String("name", "", "The name of the domain")
	domainPartitions := domainCommand.Uint64("partitions", 0, "The number of partitions in the domain")
	domainEngine := domainCommand.String("engine", EngineLevelDB, fmt.Sprintf("The storage engine of the domain's partitions. Use %s or %s", EngineLevelDB, EnginePebble))

	registerCommand("domain", domainCommand, func() {
		domainConfig := DomainConfig{Name: *domainName, NumPartitions: *domainPartitions, StorageEngine: *domainEngine}

		if err := domainConfig.Validate(); err != nil {
			fail("%v", err)
		}

		if err := newAdminClient(*domainCoordinator, *domainTimeout).AddDomain(domainConfig); err != nil {
			fail("Unable to add domain %s: %v", domainConfig.Name, err)
		}

		fmt.Fprintf(os.Stderr, "Added domain %s with %d partitions\n", domainConfig.Name, domainConfig.NumPartitions)
	}, "Register a domain with a coordinator")

	assignCommand, assignCoordinator, assignTimeout := adminFlags("assign")
	assignHost := assignCommand.String("host", "", "The host to assign the partition to as <name>:<port>")
	assignDomain := assignCommand.String("domain", "", "The domain of the partition")
	assignPartition := assignCommand.Uint64("partition", 0, "The partition number")

	registerCommand("assign", assignCommand, func() {
		host := parseHost(*assignHost)

		if *assignDomain == "" {
			fail("No domain specified")
		}

		assignment := PartitionAssignment{Domain: *assignDomain, Partition: *assignPartition}

		if err := newAdminClient(*assignCoordinator, *assignTimeout).AssignPartition(host, assignment); err != nil {
			fail("Unable to assign partition %d of domain %s to %s: %v", assignment.Partition, assignment.Domain, host, err)
		}

		fmt.Fprintf(os.Stderr, "Assigned partition %d of domain %s to %s\n", assignment.Partition, assignment.Domain, host)
	}, "Assign a partition of a domain to a host. The host picks it up on its next update.")

	commandCommand, commandCoordinator, commandTimeout := adminFlags("command")
	commandHost := commandCommand.String("host", "", "The host to queue the command for as <name>:<port>")
	commandName := commandCommand.String("command", "", "One of EXECUTE_UPDATE, GO_TO_IDLE, SERVE_DATA")

	registerCommand("command", commandCommand, func() {
		host := parseHost(*commandHost)
		hostCommand, err := ParseHostCommand(strings.ToUpper(*commandName))

		if err != nil || hostCommand == NoCommand {
			fail("%q is not a command. Use EXECUTE_UPDATE, GO_TO_IDLE or SERVE_DATA", *commandName)
		}

		if err := newAdminClient(*commandCoordinator, *commandTimeout).EnqueueCommand(host, hostCommand); err != nil {
			fail("Unable to queue %s for %s: %v", hostCommand, host, err)
		}

		fmt.Fprintf(os.Stderr, "Queued %s for %s\n", hostCommand, host)
	}, "Queue a command for a host")

	statusCommand, statusCoordinator, statusTimeout := adminFlags("status")

	registerCommand("status", statusCommand, func() {
		client := newAdminClient(*statusCoordinator, *statusTimeout)

		if err := printHosts(os.Stdout, client); err != nil {
			fail("Unable to list hosts: %v", err)
		}

		fmt.Fprintf(os.Stdout, "\n")

		if err := printDomains(os.Stdout, client); err != nil {
			fail("Unable to list domains: %v", err)
		}
	}, "Show the hosts and domains a coordinator knows about")

	loadCommand, loadCoordinator, loadTimeout := adminFlags("load")
	loadDomain := loadCommand.String("domain", "", "The domain to publish a version of")
	loadInput := loadCommand.String("input", "-", "A file with one record per line: key<TAB>value to write a key, key alone to delete it. Use - for stdin")
	loadDelta := loadCommand.Bool("delta", false, "Publish a delta on top of the latest closed version instead of a base version")
	loadVersionsRoot := loadCommand.String("versions_root", "", "The versions root partition servers fetch from")

	registerCommand("load", loadCommand, func() {
		if *loadDomain == "" {
			fail("No domain specified")
		}

		if *loadVersionsRoot == "" {
			fail("No versions root specified")
		}

		var input io.Reader = os.Stdin

		if *loadInput != "-" {
			file, err := os.Open(*loadInput)

			if err != nil {
				fail("Unable to open input: %v", err)
			}

			defer file.Close()

			input = file
		}

		records, err := ReadRecords(input)

		if err != nil {
			fail("Unable to read records: %v", err)
		}

		publisher := &Publisher{
			Admin:  newAdminClient(*loadCoordinator, *loadTimeout),
			Engine: NewEngine(EngineConfig{VersionsRoot: *loadVersionsRoot}),
		}

		version, err := publisher.Publish(*loadDomain, *loadDelta, records)

		if err != nil {
			fail("Unable to publish domain %s: %v", *loadDomain, err)
		}

		fmt.Fprintf(os.Stderr, "Published version %d of domain %s with %d records\n", version.VersionNumber, *loadDomain, len(records))
	}, "Publish a new version of a domain from a record file")
}

func printHosts(w io.Writer, client *remote.Client) error {
	hosts, err := client.Hosts()

	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Host", "Ring Group", "State", "Current Command", "Queue", "Partitions"})

	for _, hostInfo := range hosts {
		queue := make([]string, 0, len(hostInfo.Queue))

		for _, hostCommand := range hostInfo.Queue {
			queue = append(queue, hostCommand.String())
		}

		partitions := make([]string, 0, len(hostInfo.Partitions))

		for _, assignment := range hostInfo.Partitions {
			partitions = append(partitions, fmt.Sprintf("%s/%d", assignment.Domain, assignment.Partition))
		}

		table.Append([]string{
			hostInfo.Address.String(),
			hostInfo.RingGroup,
			hostInfo.State.String(),
			hostInfo.CurrentCommand.String(),
			strings.Join(queue, " "),
			strings.Join(partitions, " "),
		})
	}

	table.Render()

	return nil
}

func printDomains(w io.Writer, client *remote.Client) error {
	domains, err := client.Domains()

	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Domain", "Partitions", "Engine", "Versions", "Latest Closed"})

	for _, domainConfig := range domains {
		versions, err := client.DomainVersions(domainConfig.Name)

		if err != nil {
			return err
		}

		latestClosed := "-"

		if latest, ok := versions.LatestClosed(); ok {
			latestClosed = latest.VersionNumber.String()
		}

		table.Append([]string{
			domainConfig.Name,
			strconv.FormatUint(domainConfig.NumPartitions, 10),
			domainConfig.StorageEngine,
			strconv.Itoa(len(versions)),
			latestClosed,
		})
	}

	table.Render()

	return nil
}
