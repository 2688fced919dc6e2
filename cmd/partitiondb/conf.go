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
)

func init() {
	confCommand := flag.NewFlagSet("conf", flag.ExitOnError)
	confCoordinator := confCommand.Bool("coordinator", false, "Generate a coordinator config file instead")
	confLogging := confCommand.Bool("logging", false, "Generate a logging config file for -log_conf instead")

	registerCommand("conf", confCommand, func() {
		if *confCoordinator {
			fmt.Fprintf(os.Stderr, "%s", templateCoordinatorConfig)
		} else if *confLogging {
			fmt.Fprintf(os.Stderr, "%s", templateLoggingConfig)
		} else {
			fmt.Fprintf(os.Stderr, "%s", templateConfig)
		}

		os.Exit(0)
	}, "Generate a template config file for a partition server, or with -coordinator for a coordinator, or with -logging for partitiondb start -log_conf")
}

var templateConfig string = `# The host name and port clients and the coordinator use to reach this
# host. Together they identify the host in the coordinator, so the host
# must be registered first with "partitiondb host".
# **REQUIRED**
hostName: localhost
servicePort: 12345

# The maximum number of client connections the data server handles at once
# **REQUIRED**
numThreads: 16

# The ring group this host was registered in. A host refuses to start if the
# coordinator disagrees.
# **REQUIRED**
ringGroup: default

# The directory holding the partition versions this host has built. It is
# created if it does not exist.
# **REQUIRED**
localDataRoot: /tmp/partitiondb/local

# The directory bulk loads publish new versions to. Hosts fetch from here.
# **REQUIRED**
versionsRoot: /tmp/partitiondb/versions

# How many partitions are updated at the same time during EXECUTE_UPDATE.
# Defaults to 4
updateConcurrency: 4

# The log level can be one of critical, error, warning, notice, info, debug
logLevel: info

# Where the coordinator is. Use address for a coordinator started with
# "partitiondb coordinator". Use db to open a coordinator store directly,
# which only works when no other process has it open.
# **REQUIRED**
coordinator:
    address: http://localhost:9090
    # Request timeout in milliseconds
    timeout: 10000
    # db: /tmp/partitiondb/coordinator
    # storageEngine: leveldb
`

var templateCoordinatorConfig string = `# The port the coordinator API listens on
# **REQUIRED**
port: 9090

# The directory of the coordinator store. It is created if it does not exist.
# **REQUIRED**
db: /tmp/partitiondb/coordinator

# leveldb or pebble. Defaults to leveldb
storageEngine: leveldb

# The log level can be one of critical, error, warning, notice, info, debug
logLevel: info
`

var templateLoggingConfig string = `# The log level can be one of critical, error, warning, notice, info, debug
# **REQUIRED**
level: info
`
