package node

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
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/engine"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/server"
	. "github.com/PelionIoT/partitiondb/updater"
)

var MainThreadStepInterval = time.Second

type PartitionServerConfig struct {
	Host              PartitionServerAddress
	RingGroup         string
	NumThreads        int
	UpdateConcurrency int
	Engine            *Engine
	// Updater defaults to an UpdateManager over Engine
	Updater Updater
	// Serving defaults to a ServingController running a DataServer
	Serving ServingComponent
}

type commandOutcome int

const (
	commandSkipped  commandOutcome = iota
	commandExecuted commandOutcome = iota
	commandRunning  commandOutcome = iota
)

// PartitionServer drives one host through the commands an operator queues
// for it in the coordinator. The coordinator holds the host's state and
// queue. Every trigger (a change notification, a tick or the end of an
// update) re-reads both and executes at most one command.
type PartitionServer struct {
	host        PartitionServerAddress
	coordinator Coordinator
	updater     Updater
	serving     ServingComponent
	// lock serializes command processing with the state writes made when
	// an update finishes
	lock           sync.Mutex
	updateInFlight int32
	updates        sync.WaitGroup
	wakeup         chan struct{}
	stop           chan struct{}
	stopOnce       sync.Once
	failureLock    sync.Mutex
	failure        error
}

func NewPartitionServer(config PartitionServerConfig, coordinator Coordinator) (*PartitionServer, error) {
	hostInfo, err := coordinator.Host(config.Host)

	if err != nil {
		Log.Criticalf("Host %s could not be found in the coordinator: %v", config.Host, err)

		return nil, errors.Wrapf(err, "looking up host %s", config.Host)
	}

	if hostInfo.RingGroup != config.RingGroup {
		Log.Criticalf("Host %s belongs to ring group %s in the coordinator but is configured for ring group %s", config.Host, hostInfo.RingGroup, config.RingGroup)

		return nil, errors.Wrapf(ERingMismatch, "host %s is in ring group %s, not %s", config.Host, hostInfo.RingGroup, config.RingGroup)
	}

	partitionServer := &PartitionServer{
		host:        config.Host,
		coordinator: coordinator,
		updater:     config.Updater,
		serving:     config.Serving,
		wakeup:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}

	if partitionServer.updater == nil {
		partitionServer.updater = NewUpdateManager(UpdateManagerConfig{
			Coordinator: coordinator,
			Host:        config.Host,
			Stores:      config.Engine,
			Concurrency: config.UpdateConcurrency,
		})
	}

	if partitionServer.serving == nil {
		servingController := NewServingController(config.Host.String(), partitionServer.dataServerFactory(config))
		servingController.NotifyExit(partitionServer.servingExited)
		partitionServer.serving = servingController
	}

	return partitionServer, nil
}

func (partitionServer *PartitionServer) dataServerFactory(config PartitionServerConfig) ServerFactory {
	return func() (Server, error) {
		assignments, err := partitionServer.coordinator.AssignedPartitions(config.Host)

		if err != nil {
			return nil, err
		}

		partitions := make([]ServedPartition, 0, len(assignments))

		for _, assignment := range assignments {
			domainConfig, err := partitionServer.coordinator.Domain(assignment.Domain)

			if err != nil {
				return nil, errors.Wrapf(err, "looking up domain %s", assignment.Domain)
			}

			partitions = append(partitions, ServedPartition{Domain: domainConfig, Partition: assignment.Partition})
		}

		return NewDataServer(DataServerConfig{
			Port:       config.Host.Port,
			NumThreads: config.NumThreads,
			Engine:     config.Engine,
			Partitions: partitions,
			OnShutdown: partitionServer.Stop,
		}), nil
	}
}

func (partitionServer *PartitionServer) Host() PartitionServerAddress {
	return partitionServer.host
}

// Run blocks until Stop is called or the host can no longer read or write
// its state in the coordinator. In the second case the error is returned.
// Either way the host is left OFFLINE.
func (partitionServer *PartitionServer) Run() error {
	if err := partitionServer.setState(HostStateIdle); err != nil {
		return err
	}

	notifications, cancel := partitionServer.coordinator.Subscribe(partitionServer.host)
	defer cancel()

	ticker := time.NewTicker(MainThreadStepInterval)
	defer ticker.Stop()

	Log.Infof("Host %s is running", partitionServer.host)

	var err error

	for !partitionServer.isStopped() {
		if err = partitionServer.processCommands(); err != nil {
			break
		}

		select {
		case <-partitionServer.stop:
		case _, ok := <-notifications:
			if !ok {
				notifications = nil
			}
		case <-ticker.C:
		case <-partitionServer.wakeup:
		}
	}

	if err != nil {
		Log.Criticalf("Host %s can no longer reach its state in the coordinator and will stop: %v", partitionServer.host, err)
	}

	shutdownErr := partitionServer.shutdown()

	// an update that finished during shutdown may have failed to record it
	if err == nil {
		err = partitionServer.updateFailure()
	}

	return errors.CombineErrors(err, shutdownErr)
}

func (partitionServer *PartitionServer) shutdown() error {
	Log.Infof("Host %s is shutting down", partitionServer.host)

	partitionServer.serving.Stop()

	if atomic.LoadInt32(&partitionServer.updateInFlight) == 1 {
		Log.Infof("Host %s is waiting for its update to finish", partitionServer.host)
	}

	partitionServer.updates.Wait()

	partitionServer.lock.Lock()
	defer partitionServer.lock.Unlock()

	if err := partitionServer.setState(HostStateOffline); err != nil {
		Log.Errorf("Host %s could not record that it is offline: %v", partitionServer.host, err)

		return err
	}

	Log.Infof("Host %s is offline", partitionServer.host)

	return nil
}

// Stop may be called any number of times from any goroutine
func (partitionServer *PartitionServer) Stop() {
	partitionServer.stopOnce.Do(func() {
		close(partitionServer.stop)
	})
}

func (partitionServer *PartitionServer) isStopped() bool {
	select {
	case <-partitionServer.stop:
		return true
	default:
		return false
	}
}

func (partitionServer *PartitionServer) wake() {
	select {
	case partitionServer.wakeup <- struct{}{}:
	default:
	}
}

func (partitionServer *PartitionServer) fail(err error) {
	partitionServer.failureLock.Lock()

	if partitionServer.failure == nil {
		partitionServer.failure = err
	}

	partitionServer.failureLock.Unlock()

	partitionServer.Stop()
}

func (partitionServer *PartitionServer) updateFailure() error {
	partitionServer.failureLock.Lock()
	defer partitionServer.failureLock.Unlock()

	return partitionServer.failure
}

// servingExited moves a SERVING host back to IDLE once its data server
// has stopped on its own
func (partitionServer *PartitionServer) servingExited(err error) {
	partitionServer.lock.Lock()
	defer partitionServer.wake()
	defer partitionServer.lock.Unlock()

	if partitionServer.isStopped() {
		return
	}

	state, stateErr := partitionServer.coordinator.HostState(partitionServer.host)

	if stateErr != nil {
		partitionServer.fail(errors.Wrapf(stateErr, "reading state of host %s", partitionServer.host))

		return
	}

	if state != HostStateServing {
		return
	}

	Log.Warningf("Host %s: data server stopped while %s (%v). Going back to %s", partitionServer.host, state, err, HostStateIdle)

	if setErr := partitionServer.setState(HostStateIdle); setErr != nil {
		partitionServer.fail(setErr)
	}
}

func (partitionServer *PartitionServer) setState(state HostState) error {
	if err := partitionServer.coordinator.SetHostState(partitionServer.host, state); err != nil {
		return errors.Wrapf(err, "setting state of host %s to %s", partitionServer.host, state)
	}

	recordHostState(state)

	Log.Debugf("Host %s is now %s", partitionServer.host, state)

	return nil
}

// processCommands skips commands that do not apply to the current state
// until it executes one or the queue is empty
func (partitionServer *PartitionServer) processCommands() error {
	partitionServer.lock.Lock()
	defer partitionServer.lock.Unlock()

	for !partitionServer.isStopped() {
		command, err := partitionServer.coordinator.CurrentCommand(partitionServer.host)

		if err != nil {
			return errors.Wrapf(err, "reading current command of host %s", partitionServer.host)
		}

		if command == NoCommand {
			if command, err = partitionServer.coordinator.NextCommand(partitionServer.host); err != nil {
				return errors.Wrapf(err, "advancing command queue of host %s", partitionServer.host)
			}

			if command == NoCommand {
				return nil
			}
		}

		state, err := partitionServer.coordinator.HostState(partitionServer.host)

		if err != nil {
			return errors.Wrapf(err, "reading state of host %s", partitionServer.host)
		}

		if command == ExecuteUpdate && state == HostStateUpdating && atomic.LoadInt32(&partitionServer.updateInFlight) == 1 {
			return nil
		}

		outcome, err := partitionServer.execute(state, command)

		if err != nil {
			return err
		}

		if outcome == commandRunning {
			return nil
		}

		if _, err := partitionServer.coordinator.NextCommand(partitionServer.host); err != nil {
			return errors.Wrapf(err, "advancing command queue of host %s", partitionServer.host)
		}

		if outcome == commandExecuted {
			return nil
		}
	}

	return nil
}

func (partitionServer *PartitionServer) execute(state HostState, command HostCommand) (commandOutcome, error) {
	switch {
	case state == HostStateIdle && command == ServeData:
		Log.Infof("Host %s: executing %s", partitionServer.host, command)

		if err := partitionServer.serving.Start(); err != nil {
			Log.Errorf("Host %s: unable to start serving data: %v", partitionServer.host, err)

			return commandExecuted, nil
		}

		return commandExecuted, partitionServer.setState(HostStateServing)
	case state == HostStateServing && command == GoToIdle:
		Log.Infof("Host %s: executing %s", partitionServer.host, command)

		partitionServer.serving.Stop()

		return commandExecuted, partitionServer.setState(HostStateIdle)
	case state == HostStateIdle && command == ExecuteUpdate:
		if !atomic.CompareAndSwapInt32(&partitionServer.updateInFlight, 0, 1) {
			Log.Warningf("Host %s: rejecting %s because an update is already running", partitionServer.host, command)

			recordRejectedUpdate()

			return commandSkipped, nil
		}

		Log.Infof("Host %s: executing %s", partitionServer.host, command)

		if err := partitionServer.setState(HostStateUpdating); err != nil {
			atomic.StoreInt32(&partitionServer.updateInFlight, 0)

			return commandRunning, err
		}

		partitionServer.updates.Add(1)

		go partitionServer.runUpdate()

		return commandRunning, nil
	}

	Log.Warningf("Host %s: ignoring command %s because it does not apply in state %s", partitionServer.host, command, state)

	return commandSkipped, nil
}

func (partitionServer *PartitionServer) runUpdate() {
	defer partitionServer.updates.Done()

	started := time.Now()

	if err := partitionServer.updater.Update(context.Background()); err != nil {
		Log.Errorf("Host %s: update failed after %v: %v", partitionServer.host, time.Since(started), err)
	} else {
		Log.Infof("Host %s: update finished in %v", partitionServer.host, time.Since(started))
	}

	partitionServer.lock.Lock()
	defer partitionServer.wake()
	defer partitionServer.lock.Unlock()
	defer atomic.StoreInt32(&partitionServer.updateInFlight, 0)

	if err := partitionServer.setState(HostStateIdle); err != nil {
		partitionServer.fail(err)

		return
	}

	command, err := partitionServer.coordinator.CurrentCommand(partitionServer.host)

	if err != nil {
		partitionServer.fail(errors.Wrapf(err, "reading current command of host %s", partitionServer.host))

		return
	}

	if command != ExecuteUpdate {
		return
	}

	// EXECUTE_UPDATE commands queued behind the one that just finished were
	// queued while it ran and are rejected
	for {
		next, err := partitionServer.coordinator.NextCommand(partitionServer.host)

		if err != nil {
			partitionServer.fail(errors.Wrapf(err, "advancing command queue of host %s", partitionServer.host))

			return
		}

		if next != ExecuteUpdate {
			return
		}

		Log.Warningf("Host %s: rejecting %s because it was queued while an update was running", partitionServer.host, next)

		recordRejectedUpdate()
	}
}
