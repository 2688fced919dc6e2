package logging

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
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
	"gopkg.in/yaml.v2"
)

const LogLevelEnvironmentVariable = "PARTITIONDB_LOG_LEVEL"

type splitLogBackend struct {
	rwMu          sync.RWMutex
	outLogBackend logging.LeveledBackend
	errLogBackend logging.LeveledBackend
}

func newSplitLogBackend(outLogBackend, errLogBackend logging.LeveledBackend) *splitLogBackend {
	return &splitLogBackend{
		outLogBackend: outLogBackend,
		errLogBackend: errLogBackend,
	}
}

func (slb *splitLogBackend) Log(level logging.Level, calldepth int, rec *logging.Record) error {
	// Log calls may run concurrently with each other but not with level updates
	slb.rwMu.RLock()
	defer slb.rwMu.RUnlock()

	if level <= logging.WARNING {
		return slb.errLogBackend.Log(level, calldepth+2, rec)
	}

	return slb.outLogBackend.Log(level, calldepth+2, rec)
}

func (slb *splitLogBackend) SetLevel(level logging.Level, module string) {
	slb.rwMu.Lock()
	defer slb.rwMu.Unlock()

	slb.outLogBackend.SetLevel(level, module)
	slb.errLogBackend.SetLevel(level, module)
}

var Log = logging.MustGetLogger("")
var loggingBackend *splitLogBackend

func init() {
	var format = logging.MustStringFormatter(`%{color}%{time:15:04:05.000} ▶ %{level:.4s} %{shortfile}%{color:reset} %{message}`)
	var outBackend = logging.NewLogBackend(os.Stdout, "", 0)
	var outBackendFormatter = logging.NewBackendFormatter(outBackend, format)
	var outLogBackend = logging.AddModuleLevel(outBackendFormatter)
	var errBackend = logging.NewLogBackend(os.Stderr, "", 0)
	var errBackendFormatter = logging.NewBackendFormatter(errBackend, format)
	var errLogBackend = logging.AddModuleLevel(errBackendFormatter)

	loggingBackend = newSplitLogBackend(outLogBackend, errLogBackend)

	logging.SetBackend(loggingBackend)

	if ll := os.Getenv(LogLevelEnvironmentVariable); LogLevelIsValid(ll) {
		SetLoggingLevel(ll)
	}
}

func LogLevelIsValid(ll string) bool {
	_, err := logging.LogLevel(strings.ToUpper(ll))

	return err == nil
}

func SetLoggingLevel(ll string) {
	logLevel, err := logging.LogLevel(strings.ToUpper(ll))

	if err != nil {
		logLevel = logging.ERROR
	}

	loggingBackend.SetLevel(logLevel, "")
}

// YAMLLoggingConfig is the file passed to "partitiondb start -log_conf"
type YAMLLoggingConfig struct {
	Level string `yaml:"level"`
}

func (ylc *YAMLLoggingConfig) LoadFromFile(file string) error {
	rawConfig, err := ioutil.ReadFile(file)

	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(rawConfig, ylc); err != nil {
		return err
	}

	if !LogLevelIsValid(ylc.Level) {
		return errors.New(fmt.Sprintf("%s is not a valid log level. Valid levels are critical, error, warning, notice, info, debug", ylc.Level))
	}

	return nil
}

// LoadLoggingConfig reads a logging config file and applies its level
func LoadLoggingConfig(file string) error {
	var ylc YAMLLoggingConfig

	if err := ylc.LoadFromFile(file); err != nil {
		return err
	}

	SetLoggingLevel(ylc.Level)

	return nil
}
