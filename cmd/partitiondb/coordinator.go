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
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PelionIoT/partitiondb/coordinator/remote"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/shared"
	. "github.com/PelionIoT/partitiondb/storage"
)

const coordinatorShutdownTimeout = time.Second * 10

func init() {
	coordinatorCommand := flag.NewFlagSet("coordinator", flag.ExitOnError)
	coordinatorConfigFile := coordinatorCommand.String("conf", "", "The config file for this coordinator")

	registerCommand("coordinator", coordinatorCommand, func() {
		if *coordinatorConfigFile == "" {
			fail("No config file specified")
		}

		startCoordinator(*coordinatorConfigFile)
	}, "Start a coordinator. Partition servers and admin commands reach it over HTTP.")
}

func startCoordinator(configFile string) {
	var config YAMLCoordinatorConfig

	if err := config.LoadFromFile(configFile); err != nil {
		fail("Unable to load config file: %v", err)
	}

	storageDriver, err := OpenStorageDriver(config.StorageEngine, config.DB, false)

	if err != nil {
		fail("Unable to open coordinator store at %s: %v", config.DB, err)
	}

	store := NewStore(storageDriver)
	router := mux.NewRouter()

	remote.NewCoordinatorEndpoint(store).Attach(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals

		Log.Infof("Received %v. Shutting down coordinator", sig)

		ctx, cancel := context.WithTimeout(context.Background(), coordinatorShutdownTimeout)
		defer cancel()

		httpServer.Shutdown(ctx)
	}()

	Log.Infof("Coordinator listening on port %d with store %s", config.Port, config.DB)

	err = httpServer.ListenAndServe()

	storageDriver.Close()

	if err != http.ErrServerClosed {
		fail("Coordinator stopped: %v", err)
	}

	Log.Infof("Coordinator stopped")
}
