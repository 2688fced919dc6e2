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
	"errors"
	"fmt"
	"net"
	"strconv"

	. "github.com/PelionIoT/partitiondb/error"
)

type HostState int

const (
	HostStateOffline  HostState = iota
	HostStateIdle     HostState = iota
	HostStateServing  HostState = iota
	HostStateUpdating HostState = iota
)

var hostStateNames = map[HostState]string{
	HostStateOffline:  "OFFLINE",
	HostStateIdle:     "IDLE",
	HostStateServing:  "SERVING",
	HostStateUpdating: "UPDATING",
}

func (hostState HostState) String() string {
	if name, ok := hostStateNames[hostState]; ok {
		return name
	}

	return fmt.Sprintf("HostState(%d)", int(hostState))
}

func ParseHostState(s string) (HostState, error) {
	for state, name := range hostStateNames {
		if name == s {
			return state, nil
		}
	}

	return HostStateOffline, EInvalidState
}

func (hostState HostState) MarshalText() ([]byte, error) {
	if _, ok := hostStateNames[hostState]; !ok {
		return nil, EInvalidState
	}

	return []byte(hostState.String()), nil
}

func (hostState *HostState) UnmarshalText(text []byte) error {
	state, err := ParseHostState(string(text))

	if err != nil {
		return err
	}

	*hostState = state

	return nil
}

// HostCommand is an instruction queued for a host by an operator.
// NoCommand is the zero value and marks an empty slot.
type HostCommand int

const (
	NoCommand     HostCommand = iota
	ExecuteUpdate HostCommand = iota
	GoToIdle      HostCommand = iota
	ServeData     HostCommand = iota
)

var hostCommandNames = map[HostCommand]string{
	NoCommand:     "",
	ExecuteUpdate: "EXECUTE_UPDATE",
	GoToIdle:      "GO_TO_IDLE",
	ServeData:     "SERVE_DATA",
}

func (hostCommand HostCommand) String() string {
	if hostCommand == NoCommand {
		return "NONE"
	}

	if name, ok := hostCommandNames[hostCommand]; ok {
		return name
	}

	return fmt.Sprintf("HostCommand(%d)", int(hostCommand))
}

func ParseHostCommand(s string) (HostCommand, error) {
	for command, name := range hostCommandNames {
		if name == s {
			return command, nil
		}
	}

	return NoCommand, EInvalidCommand
}

func (hostCommand HostCommand) MarshalText() ([]byte, error) {
	name, ok := hostCommandNames[hostCommand]

	if !ok {
		return nil, EInvalidCommand
	}

	return []byte(name), nil
}

func (hostCommand *HostCommand) UnmarshalText(text []byte) error {
	command, err := ParseHostCommand(string(text))

	if err != nil {
		return err
	}

	*hostCommand = command

	return nil
}

type PartitionServerAddress struct {
	Host string
	Port int
}

func (address PartitionServerAddress) String() string {
	return net.JoinHostPort(address.Host, strconv.Itoa(address.Port))
}

func ParsePartitionServerAddress(s string) (PartitionServerAddress, error) {
	host, port, err := net.SplitHostPort(s)

	if err != nil {
		return PartitionServerAddress{}, err
	}

	p, err := strconv.Atoi(port)

	if err != nil || p <= 0 || p > 65535 {
		return PartitionServerAddress{}, errors.New(fmt.Sprintf("%s is not a valid port", port))
	}

	return PartitionServerAddress{Host: host, Port: p}, nil
}

func (address PartitionServerAddress) MarshalText() ([]byte, error) {
	return []byte(address.String()), nil
}

func (address *PartitionServerAddress) UnmarshalText(text []byte) error {
	parsed, err := ParsePartitionServerAddress(string(text))

	if err != nil {
		return err
	}

	*address = parsed

	return nil
}

type PartitionAssignment struct {
	Domain    string `json:"domain"`
	Partition uint64 `json:"partition"`
}

// HostInfo is everything the coordinator records about one host
type HostInfo struct {
	Address        PartitionServerAddress `json:"address"`
	RingGroup      string                 `json:"ringGroup"`
	State          HostState              `json:"state"`
	CurrentCommand HostCommand            `json:"currentCommand"`
	Queue          []HostCommand          `json:"queue"`
	Partitions     []PartitionAssignment  `json:"partitions"`
}
