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
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/engine"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/util"
)

const (
	lookupFound       = "found"
	lookupNotFound    = "not_found"
	lookupUnavailable = "unavailable"
	lookupBadRequest  = "bad_request"
	lookupError       = "error"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "partitiondb",
	Subsystem: "server",
	Name:      "lookups_total",
	Help:      "Key lookups by outcome",
}, []string{"status"})

type ServedPartition struct {
	Domain    DomainConfig
	Partition uint64
}

type DataServerConfig struct {
	Host string
	Port int
	// NumThreads bounds concurrent connections. Zero means no bound.
	NumThreads int
	Engine     *Engine
	Partitions []ServedPartition
	// OnShutdown runs in its own goroutine when POST /shutdown is received
	OnShutdown func()
}

type LookupResponse struct {
	Value   []byte        `json:"value"`
	Version VersionNumber `json:"version"`
}

type PartitionStatus struct {
	Domain    string        `json:"domain"`
	Partition uint64        `json:"partition"`
	Version   VersionNumber `json:"version"`
}

type StatusResponse struct {
	Partitions []PartitionStatus `json:"partitions"`
}

// DataServer answers key lookups from the current version of every
// partition assigned to the host. Readers are opened when serving starts
// and stay on that version until the server stops.
type DataServer struct {
	config      DataServerConfig
	partitioner Partitioner
	domains     map[string]DomainConfig
	readers     map[string]map[uint64]*Reader
	readersLock RWTryLock
	httpServer  *http.Server
	listener    net.Listener
}

func NewDataServer(config DataServerConfig) *DataServer {
	return &DataServer{
		config:      config,
		partitioner: NewHashPartitioner(),
		domains:     map[string]DomainConfig{},
		readers:     map[string]map[uint64]*Reader{},
	}
}

func (dataServer *DataServer) openReaders() error {
	for _, served := range dataServer.config.Partitions {
		dataServer.domains[served.Domain.Name] = served.Domain

		reader, err := dataServer.config.Engine.OpenReader(served.Domain, served.Partition)

		if errors.Is(err, ENoCurrentVersion) {
			Log.Warningf("Partition %s/%d has no data yet. Lookups for it will fail until the next update", served.Domain.Name, served.Partition)

			continue
		}

		if err != nil {
			dataServer.closeReaders()

			return err
		}

		if dataServer.readers[served.Domain.Name] == nil {
			dataServer.readers[served.Domain.Name] = map[uint64]*Reader{}
		}

		dataServer.readers[served.Domain.Name][served.Partition] = reader
	}

	return nil
}

func (dataServer *DataServer) closeReaders() {
	for _, partitions := range dataServer.readers {
		for _, reader := range partitions {
			if err := reader.Close(); err != nil {
				Log.Warningf("Unable to close partition %s: %v", reader.Partition(), err)
			}
		}
	}

	dataServer.readers = map[string]map[uint64]*Reader{}
}

func (dataServer *DataServer) Serve(ready chan<- struct{}) error {
	if err := dataServer.openReaders(); err != nil {
		Log.Errorf("Unable to open served partitions: %v", err)

		return err
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(dataServer.config.Host, strconv.Itoa(dataServer.config.Port)))

	if err != nil {
		Log.Errorf("Error listening on port: %d", dataServer.config.Port)

		dataServer.closeReaders()

		return err
	}

	if dataServer.config.NumThreads > 0 {
		listener = netutil.LimitListener(listener, dataServer.config.NumThreads)
	}

	r := mux.NewRouter()

	dataServer.Attach(r)

	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)

	dataServer.listener = listener
	dataServer.httpServer = &http.Server{
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	Log.Infof("Data server listening on %s", listener.Addr())

	close(ready)

	err = dataServer.httpServer.Serve(listener)

	// in-flight lookups hold read locks
	dataServer.readersLock.WLock()
	dataServer.closeReaders()
	dataServer.readersLock.WUnlock()

	if err == http.ErrServerClosed {
		Log.Infof("Data server on %s shut down", listener.Addr())

		return nil
	}

	return err
}

func (dataServer *DataServer) Shutdown(ctx context.Context) error {
	if dataServer.httpServer == nil {
		return nil
	}

	return dataServer.httpServer.Shutdown(ctx)
}

// Addr is valid once the server is ready
func (dataServer *DataServer) Addr() net.Addr {
	return dataServer.listener.Addr()
}

func respondJSON(w http.ResponseWriter, body interface{}) {
	encoded, _ := json.Marshal(body)

	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, string(encoded)+"\n")
}

func respondError(w http.ResponseWriter, status int, dbError DBerror) {
	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(status)
	io.WriteString(w, string(dbError.JSON())+"\n")
}

func (dataServer *DataServer) Attach(router *mux.Router) {
	router.HandleFunc("/domains/{domain}/keys", func(w http.ResponseWriter, r *http.Request) {
		domainName := mux.Vars(r)["domain"]
		key := r.URL.Query().Get("key")

		if key == "" {
			lookups.WithLabelValues(lookupBadRequest).Inc()
			respondError(w, http.StatusBadRequest, EInvalidKey)

			return
		}

		if !dataServer.readersLock.TryRLock() {
			lookups.WithLabelValues(lookupUnavailable).Inc()
			respondError(w, http.StatusServiceUnavailable, EPartitionUnavailable)

			return
		}

		defer dataServer.readersLock.RUnlock()

		domainConfig, ok := dataServer.domains[domainName]

		if !ok {
			lookups.WithLabelValues(lookupNotFound).Inc()
			respondError(w, http.StatusNotFound, ENoSuchDomain)

			return
		}

		partition := domainConfig.PartitionOf(dataServer.partitioner, []byte(key))
		reader, ok := dataServer.readers[domainName][partition]

		if !ok {
			lookups.WithLabelValues(lookupUnavailable).Inc()
			respondError(w, http.StatusNotFound, EPartitionUnavailable)

			return
		}

		value, err := reader.Get([]byte(key))

		if err == EKeyNotFound {
			lookups.WithLabelValues(lookupNotFound).Inc()
			respondError(w, http.StatusNotFound, EKeyNotFound)

			return
		}

		if err != nil {
			Log.Errorf("GET /domains/{domain}/keys: lookup in partition %s failed: %v", reader.Partition(), err)

			lookups.WithLabelValues(lookupError).Inc()
			respondError(w, http.StatusInternalServerError, EStorage)

			return
		}

		lookups.WithLabelValues(lookupFound).Inc()
		respondJSON(w, LookupResponse{Value: value, Version: reader.Version()})
	}).Methods("GET")

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := StatusResponse{Partitions: []PartitionStatus{}}

		if dataServer.readersLock.TryRLock() {
			for domainName, partitions := range dataServer.readers {
				for partition, reader := range partitions {
					status.Partitions = append(status.Partitions, PartitionStatus{Domain: domainName, Partition: partition, Version: reader.Version()})
				}
			}

			dataServer.readersLock.RUnlock()
		}

		respondJSON(w, status)
	}).Methods("GET")

	router.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		Log.Infof("POST /shutdown: shutdown requested by %s", r.RemoteAddr)

		if dataServer.config.OnShutdown != nil {
			go dataServer.config.OnShutdown()
		}

		w.Header().Set("Content-Type", "application/json; charset=utf8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "\n")
	}).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
