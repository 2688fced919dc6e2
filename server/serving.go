package server

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
	"time"

	"github.com/cockroachdb/errors"

	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
)

var ShutdownTimeout = time.Second * 15

// Server is one serving instance. Serve blocks until the server stops and
// closes ready once it accepts connections. A server is started at most once.
type Server interface {
	Serve(ready chan<- struct{}) error
	Shutdown(ctx context.Context) error
}

type ServerFactory func() (Server, error)

// ServingController starts and stops the data server of a host. At most
// one server runs at a time and a stopped server is never restarted.
type ServingController struct {
	name     string
	factory  ServerFactory
	onExit   func(err error)
	mu       sync.Mutex
	server   Server
	stopping chan struct{}
	done     chan struct{}
}

// NewServingController builds a controller for the data server of the
// named host
func NewServingController(name string, factory ServerFactory) *ServingController {
	return &ServingController{name: name, factory: factory}
}

// NotifyExit registers a function called after a ready server exits
// without Stop being called. It must be registered before Start.
func (controller *ServingController) NotifyExit(onExit func(err error)) {
	controller.onExit = onExit
}

// Start returns once the new server accepts connections. If the server
// exits before that Start returns EServerStartup.
func (controller *ServingController) Start() error {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	if controller.server != nil {
		return nil
	}

	server, err := controller.factory()

	if err != nil {
		return errors.Wrapf(EServerStartup, "building data server: %v", err)
	}

	ready := make(chan struct{})
	stopping := make(chan struct{})
	done := make(chan struct{})
	var exitErr error

	go func() {
		exitErr = server.Serve(ready)

		close(done)

		select {
		case <-stopping:
			return
		default:
		}

		select {
		case <-ready:
			controller.exited(done, exitErr)
		default:
		}
	}()

	select {
	case <-ready:
	case <-done:
		Log.Errorf("Data server for host %s failed to start: %v", controller.name, exitErr)

		return errors.Wrapf(EServerStartup, "%v", exitErr)
	}

	controller.server = server
	controller.stopping = stopping
	controller.done = done

	return nil
}

// exited forgets a server that stopped on its own so that IsRunning reports
// false and a later Start builds a new one
func (controller *ServingController) exited(done chan struct{}, err error) {
	controller.mu.Lock()

	if controller.done != done {
		controller.mu.Unlock()

		return
	}

	Log.Errorf("Data server for host %s exited unexpectedly: %v", controller.name, err)

	controller.server = nil
	controller.stopping = nil
	controller.done = nil
	onExit := controller.onExit

	controller.mu.Unlock()

	if onExit != nil {
		onExit(err)
	}
}

// Stop shuts the running server down gracefully and waits for it to exit.
// Calling Stop when nothing is running does nothing.
func (controller *ServingController) Stop() {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	if controller.server == nil {
		return
	}

	close(controller.stopping)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := controller.server.Shutdown(ctx); err != nil {
		Log.Warningf("Data server for host %s did not shut down cleanly: %v", controller.name, err)
	}

	<-controller.done

	controller.server = nil
	controller.stopping = nil
	controller.done = nil
}

func (controller *ServingController) IsRunning() bool {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	return controller.server != nil
}
