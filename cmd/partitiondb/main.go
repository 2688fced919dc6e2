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
	"sort"
	"strings"
)

const partitiondbVersion = "1.0.0"

var usage string = `Usage: partitiondb <command> <arguments> | -version

Commands:
    start        Start a partition server
    coordinator  Start a coordinator
    conf         Generate a template config file for a partition server
    load         Publish a new version of a domain from a record file
    status       Show the hosts and domains a coordinator knows about
    host         Register a host with a coordinator
    domain       Register a domain with a coordinator
    assign       Assign a partition of a domain to a host
    command      Queue a command for a host

Use partitiondb help <command> for more usage information about a command.
`

var commandUsage string = "Usage: partitiondb %s <arguments>\n"

type command struct {
	flags *flag.FlagSet
	run   func()
	usage string
}

var commands = map[string]*command{}

func registerCommand(name string, flags *flag.FlagSet, run func(), description string) {
	commands[name] = &command{flags: flags, run: run, usage: description}
}

func printCommandUsage(name string) {
	c, ok := commands[name]

	if !ok {
		fmt.Fprintf(os.Stderr, "Error: \"%s\" is not a recognized command\n\n", name)
		fmt.Fprintf(os.Stderr, "%s", usage)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, commandUsage, name)
	fmt.Fprintf(os.Stderr, "\n%s\n", c.usage)

	if hasFlags(c.flags) {
		fmt.Fprintf(os.Stderr, "Arguments:\n")
		c.flags.PrintDefaults()
	}
}

func hasFlags(flags *flag.FlagSet) bool {
	n := 0

	flags.VisitAll(func(*flag.Flag) { n++ })

	return n > 0
}

func commandNames() string {
	names := make([]string, 0, len(commands))

	for name := range commands {
		names = append(names, name)
	}

	sort.Strings(names)

	return strings.Join(names, ", ")
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Error: No command specified\n\n")
		fmt.Fprintf(os.Stderr, "%s", usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "-help":
		fmt.Fprintf(os.Stderr, "%s", usage)
		os.Exit(0)
	case "-version":
		fmt.Fprintf(os.Stdout, "%s\n", partitiondbVersion)
		os.Exit(0)
	case "help":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "%s", usage)
			os.Exit(0)
		}

		printCommandUsage(os.Args[2])
		os.Exit(0)
	}

	c, ok := commands[os.Args[1]]

	if !ok {
		fmt.Fprintf(os.Stderr, "Error: \"%s\" is not a recognized command. Valid commands are %s\n\n", os.Args[1], commandNames())
		fmt.Fprintf(os.Stderr, "%s", usage)
		os.Exit(1)
	}

	c.flags.Parse(os.Args[2:])
	c.run()
}
