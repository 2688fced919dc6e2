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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/PelionIoT/partitiondb/coordinator/remote"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/engine"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/node"
	. "github.com/PelionIoT/partitiondb/shared"
	. "github.com/PelionIoT/partitiondb/storage"
)

func init() {
	startCommand := flag.NewFlagSet("start", flag.ExitOnError)
	startConfigFile := startCommand.String("conf", "", "The config file for this partition server")
	startLogConfigFile := startCommand.String("log_conf", "", "The logging config file for this partition server")

	registerCommand("start", startCommand, func() {
		if err := checkStartArguments(*startConfigFile, *startLogConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			printCommandUsage("start")
			os.Exit(1)
		}

		start(*startConfigFile, *startLogConfigFile)
	}, "Start a partition server. The host must already be registered with the coordinator.")
}

func checkStartArguments(configFile string, logConfigFile string) error {
	if configFile == "" {
		return errors.New("No config file specified. Use -conf=<file>")
	}

	if logConfigFile == "" {
		return errors.New("No logging config file specified. Use -log_conf=<file>")
	}

	return nil
}

// openCoordinator connects to a remote coordinator or opens a coordinator
// store in this process. The returned function releases it.
func openCoordinator(settings YAMLCoordinatorSettings) (remote.CoordinatorFacade, func(), error) {
	if len(settings.Address) != 0 {
		client := remote.NewClient(remote.ClientConfig{
			Address: coordinatorURL(settings.Address),
			Timeout: time.Duration(settings.Timeout) * time.Millisecond,
		})

		return client, func() {}, nil
	}

	storageDriver, err := OpenStorageDriver(settings.StorageEngine, settings.DB, false)

	if err != nil {
		return nil, nil, err
	}

	return NewStore(storageDriver), func() { storageDriver.Close() }, nil
}

// runNode runs a node until it stops by itself or the process receives
// SIGINT or SIGTERM
func runNode(n Node, name string) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals

		Log.Infof("Received %v. Shutting down %s", sig, name)

		n.Stop()
	}()

	return n.Run()
}

func start(configFile string, logConfigFile string) {
	var config YAMLPartitionServerConfig

	if err := config.LoadFromFile(configFile); err != nil {
		fail("Unable to load config file: %v", err)
	}

	if err := LoadLoggingConfig(logConfigFile); err != nil {
		fail("Unable to load logging config file: %v", err)
	}

	coordinator, closeCoordinator, err := openCoordinator(config.Coordinator)

	if err != nil {
		fail("Unable to open coordinator: %v", err)
	}

	defer closeCoordinator()

	engine := NewEngine(EngineConfig{
		LocalRoot:    config.LocalDataRoot,
		VersionsRoot: config.VersionsRoot,
	})

	partitionServer, err := NewPartitionServer(PartitionServerConfig{
		Host:              config.Address(),
		RingGroup:         config.RingGroup,
		NumThreads:        config.NumThreads,
		UpdateConcurrency: config.UpdateConcurrency,
		Engine:            engine,
	}, coordinator)

	if err != nil {
		closeCoordinator()
		fail("Unable to create partition server: %v", err)
	}

	if err := runNode(partitionServer, config.Address().String()); err != nil {
		closeCoordinator()
		fail("Partition server stopped: %v", err)
	}

	Log.Infof("Partition server %s stopped", config.Address())
}
