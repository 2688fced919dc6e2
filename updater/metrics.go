package updater

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
)

const (
	updateResultUpdated  = "updated"
	updateResultUpToDate = "up_to_date"
	updateResultFailed   = "failed"
)

var (
	partitionUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partitiondb",
		Subsystem: "updater",
		Name:      "partition_updates_total",
		Help:      "Partition update attempts by result",
	}, []string{"result"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "partitiondb",
		Subsystem: "updater",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent fetching one version of one partition",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	switchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "partitiondb",
		Subsystem: "updater",
		Name:      "switch_duration_seconds",
		Help:      "Time spent materializing and switching to a new version",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)

func recordPartitionUpdate(result string) {
	partitionUpdates.WithLabelValues(result).Inc()
}
