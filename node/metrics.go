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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	. "github.com/PelionIoT/partitiondb/coordinator"
)

var hostState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "partitiondb",
	Subsystem: "node",
	Name:      "host_state",
	Help:      "1 for the state the host last recorded in the coordinator, 0 for the others",
}, []string{"state"})

func recordHostState(state HostState) {
	for _, s := range []HostState{HostStateOffline, HostStateIdle, HostStateServing, HostStateUpdating} {
		if s == state {
			hostState.WithLabelValues(s.String()).Set(1)
		} else {
			hostState.WithLabelValues(s.String()).Set(0)
		}
	}
}

var rejectedUpdates = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "partitiondb",
	Subsystem: "node",
	Name:      "rejected_updates_total",
	Help:      "EXECUTE_UPDATE commands rejected because an update was already running",
})

func recordRejectedUpdate() {
	rejectedUpdates.Inc()
}
