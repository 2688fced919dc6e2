package remote

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
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
)

const (
	EventWriteWait  = time.Second * 10
	EventPingPeriod = time.Second * 30
)

var coordinatorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "partitiondb",
	Subsystem: "coordinator",
	Name:      "requests_total",
	Help:      "Coordinator API requests by route and status code",
}, []string{"route", "code"})

// CoordinatorFacade is what the endpoint exposes over HTTP
type CoordinatorFacade interface {
	Coordinator
	Admin
}

type stateBody struct {
	State HostState `json:"state"`
}

type commandBody struct {
	Command HostCommand `json:"command"`
}

type hostBody struct {
	Address   PartitionServerAddress `json:"address"`
	RingGroup string                 `json:"ringGroup"`
}

type openVersionBody struct {
	Parent *VersionNumber `json:"parent"`
}

// HostEvent is pushed to subscribers of /hosts/{host}/events whenever the
// host's record changes
type HostEvent struct {
	Host PartitionServerAddress `json:"host"`
}

type CoordinatorEndpoint struct {
	Coordinator CoordinatorFacade
	upgrader    websocket.Upgrader
}

func NewCoordinatorEndpoint(coordinator CoordinatorFacade) *CoordinatorEndpoint {
	return &CoordinatorEndpoint{
		Coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(status int) {
	recorder.status = status
	recorder.ResponseWriter.WriteHeader(status)
}

func recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"

		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = r.Method + " " + template
			}
		}

		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			coordinatorRequests.WithLabelValues(route, "101").Inc()

			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		coordinatorRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}

func respondJSON(w http.ResponseWriter, body interface{}) {
	encoded, _ := json.Marshal(body)

	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, string(encoded)+"\n")
}

func respondError(w http.ResponseWriter, route string, err error) {
	dbError, ok := err.(DBerror)

	if !ok {
		dbError = DBerror{Msg: err.Error(), ErrorCode: -1}
	}

	status := http.StatusInternalServerError

	switch dbError {
	case ENoSuchHost, ENoSuchDomain, ENoSuchVersion, ENoSuchPartition:
		status = http.StatusNotFound
	case EHostExists, EDomainExists, EVersionClosed, EVersionNotClosed:
		status = http.StatusConflict
	case EInvalidState, EInvalidCommand, EInvalidKey:
		status = http.StatusBadRequest
	default:
		if !ok {
			status = http.StatusBadRequest
		}
	}

	Log.Warningf("%s: %v", route, err)

	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(status)
	io.WriteString(w, string(dbError.JSON())+"\n")
}

func hostVar(w http.ResponseWriter, r *http.Request, route string) (PartitionServerAddress, bool) {
	host, err := ParsePartitionServerAddress(mux.Vars(r)["host"])

	if err != nil {
		respondError(w, route, EInvalidKey)

		return host, false
	}

	return host, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, route string, body interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		Log.Warningf("%s: Unable to parse request body: %v", route, err)

		w.Header().Set("Content-Type", "application/json; charset=utf8")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "\n")

		return false
	}

	return true
}

func (endpoint *CoordinatorEndpoint) Attach(router *mux.Router) {
	router.Use(recordRequests)

	router.HandleFunc("/hosts", func(w http.ResponseWriter, r *http.Request) {
		hosts, err := endpoint.Coordinator.Hosts()

		if err != nil {
			respondError(w, "GET /hosts", err)

			return
		}

		respondJSON(w, hosts)
	}).Methods("GET")

	router.HandleFunc("/hosts", func(w http.ResponseWriter, r *http.Request) {
		var body hostBody

		if !decodeBody(w, r, "POST /hosts", &body) {
			return
		}

		if err := endpoint.Coordinator.AddHost(body.Address, body.RingGroup); err != nil {
			respondError(w, "POST /hosts", err)

			return
		}

		respondJSON(w, body)
	}).Methods("POST")

	router.HandleFunc("/hosts/{host}", func(w http.ResponseWriter, r *http.Request) {
		host, ok := hostVar(w, r, "GET /hosts/{host}")

		if !ok {
			return
		}

		hostInfo, err := endpoint.Coordinator.Host(host)

		if err != nil {
			respondError(w, "GET /hosts/{host}", err)

			return
		}

		respondJSON(w, hostInfo)
	}).Methods("GET")

	router.HandleFunc("/hosts/{host}/state", func(w http.ResponseWriter, r *http.Request) {
		host, ok := hostVar(w, r, "GET /hosts/{host}/state")

		if !ok {
			return
		}

		state, err := endpoint.Coordinator.HostState(host)

		if err != nil {
			respondError(w, "GET /hosts/{host}/state", err)

			return
		}

		respondJSON(w, stateBody{State: state})
	}).Methods("GET")

	router.HandleFunc("/hosts/{host}/state", func(w http.ResponseWriter, r *http.Request) {
		var body stateBody

		host, ok := hostVar(w, r, "PUT /hosts/{host}/state")

		if !ok || !decodeBody(w, r, "PUT /hosts/{host}/state", &body) {
			return
		}

		if err := endpoint.Coordinator.SetHostState(host, body.State); err != nil {
			respondError(w, "PUT /hosts/{host}/state", err)

			return
		}

		respondJSON(w, body)
	}).Methods("PUT")

	router.HandleFunc("/hosts/{host}/commands/current", func(w http.ResponseWriter, r *http.Request) {
		host, ok := hostVar(w, r, "GET /hosts/{host}/commands/current")

		if !ok {
			return
		}

		command, err := endpoint.Coordinator.CurrentCommand(host)

		if err != nil {
			respondError(w, "GET /hosts/{host}/commands/current", err)

			return
		}

		respondJSON(w, commandBody{Command: command})
	}).Methods("GET")

	router.HandleFunc("/hosts/{host}/commands/next", func(w http.ResponseWriter, r *http.Request) {
		host, ok := hostVar(w, r, "POST /hosts/{host}/commands/next")

		if !ok {
			return
		}

		command, err := endpoint.Coordinator.NextCommand(host)

		if err != nil {
			respondError(w, "POST /hosts/{host}/commands/next", err)

			return
		}

		respondJSON(w, commandBody{Command: command})
	}).Methods("POST")

	router.HandleFunc("/hosts/{host}/commands", func(w http.ResponseWriter, r *http.Request) {
		var body commandBody

		host, ok := hostVar(w, r, "POST /hosts/{host}/commands")

		if !ok || !decodeBody(w, r, "POST /hosts/{host}/commands", &body) {
			return
		}

		if err := endpoint.Coordinator.EnqueueCommand(host, body.Command); err != nil {
			respondError(w, "POST /hosts/{host}/commands", err)

			return
		}

		respondJSON(w, body)
	}).Methods("POST")

	router.HandleFunc("/hosts/{host}/partitions", func(w http.ResponseWriter, r *http.Request) {
		host, ok := hostVar(w, r, "GET /hosts/{host}/partitions")

		if !ok {
			return
		}

		partitions, err := endpoint.Coordinator.AssignedPartitions(host)

		if err != nil {
			respondError(w, "GET /hosts/{host}/partitions", err)

			return
		}

		respondJSON(w, partitions)
	}).Methods("GET")

	router.HandleFunc("/hosts/{host}/partitions", func(w http.ResponseWriter, r *http.Request) {
		var body PartitionAssignment

		host, ok := hostVar(w, r, "POST /hosts/{host}/partitions")

		if !ok || !decodeBody(w, r, "POST /hosts/{host}/partitions", &body) {
			return
		}

		if err := endpoint.Coordinator.AssignPartition(host, body); err != nil {
			respondError(w, "POST /hosts/{host}/partitions", err)

			return
		}

		respondJSON(w, body)
	}).Methods("POST")

	router.HandleFunc("/hosts/{host}/events", func(w http.ResponseWriter, r *http.Request) {
		host, ok := hostVar(w, r, "GET /hosts/{host}/events")

		if !ok {
			return
		}

		if _, err := endpoint.Coordinator.Host(host); err != nil {
			respondError(w, "GET /hosts/{host}/events", err)

			return
		}

		// subscribe before the handshake completes so no change made after
		// the client sees the connection can be missed
		notifications, cancel := endpoint.Coordinator.Subscribe(host)

		defer cancel()

		conn, err := endpoint.upgrader.Upgrade(w, r, nil)

		if err != nil {
			Log.Warningf("GET /hosts/{host}/events: Unable to upgrade connection for host %s: %v", host, err)

			return
		}

		endpoint.streamEvents(conn, host, notifications)
	}).Methods("GET")

	router.HandleFunc("/domains", func(w http.ResponseWriter, r *http.Request) {
		domains, err := endpoint.Coordinator.Domains()

		if err != nil {
			respondError(w, "GET /domains", err)

			return
		}

		respondJSON(w, domains)
	}).Methods("GET")

	router.HandleFunc("/domains", func(w http.ResponseWriter, r *http.Request) {
		var body DomainConfig

		if !decodeBody(w, r, "POST /domains", &body) {
			return
		}

		if err := endpoint.Coordinator.AddDomain(body); err != nil {
			respondError(w, "POST /domains", err)

			return
		}

		respondJSON(w, body)
	}).Methods("POST")

	router.HandleFunc("/domains/{domain}", func(w http.ResponseWriter, r *http.Request) {
		domainConfig, err := endpoint.Coordinator.Domain(mux.Vars(r)["domain"])

		if err != nil {
			respondError(w, "GET /domains/{domain}", err)

			return
		}

		respondJSON(w, domainConfig)
	}).Methods("GET")

	router.HandleFunc("/domains/{domain}/versions", func(w http.ResponseWriter, r *http.Request) {
		versions, err := endpoint.Coordinator.DomainVersions(mux.Vars(r)["domain"])

		if err != nil {
			respondError(w, "GET /domains/{domain}/versions", err)

			return
		}

		respondJSON(w, versions)
	}).Methods("GET")

	router.HandleFunc("/domains/{domain}/versions", func(w http.ResponseWriter, r *http.Request) {
		var body openVersionBody

		if !decodeBody(w, r, "POST /domains/{domain}/versions", &body) {
			return
		}

		domainVersion, err := endpoint.Coordinator.OpenVersion(mux.Vars(r)["domain"], body.Parent)

		if err != nil {
			respondError(w, "POST /domains/{domain}/versions", err)

			return
		}

		respondJSON(w, domainVersion)
	}).Methods("POST")

	router.HandleFunc("/domains/{domain}/versions/{version}/close", func(w http.ResponseWriter, r *http.Request) {
		versionNumber, err := ParseVersionNumber(mux.Vars(r)["version"])

		if err != nil {
			respondError(w, "POST /domains/{domain}/versions/{version}/close", ENoSuchVersion)

			return
		}

		if err := endpoint.Coordinator.CloseVersion(mux.Vars(r)["domain"], versionNumber); err != nil {
			respondError(w, "POST /domains/{domain}/versions/{version}/close", err)

			return
		}

		respondJSON(w, map[string]VersionNumber{"version": versionNumber})
	}).Methods("POST")
}

func (endpoint *CoordinatorEndpoint) streamEvents(conn *websocket.Conn, host PartitionServerAddress, notifications <-chan struct{}) {
	done := make(chan struct{})

	defer conn.Close()

	// the read side only exists to notice the peer going away
	go func() {
		defer close(done)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(EventPingPeriod)

	defer pingTicker.Stop()

	Log.Debugf("Host %s subscribed to coordinator events", host)

	for {
		select {
		case _, ok := <-notifications:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(EventWriteWait))

			if err := conn.WriteJSON(HostEvent{Host: host}); err != nil {
				Log.Warningf("Unable to push event to host %s: %v", host, err)

				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(EventWriteWait))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			Log.Debugf("Host %s unsubscribed from coordinator events", host)

			return
		}
	}
}
