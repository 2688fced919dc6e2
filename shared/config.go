package shared

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
	"path/filepath"

	"gopkg.in/yaml.v2"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/logging"
	. "github.com/PelionIoT/partitiondb/storage"
	. "github.com/PelionIoT/partitiondb/updater"
)

const DefaultCoordinatorTimeout = 10000

type YAMLPartitionServerConfig struct {
	HostName          string                  `yaml:"hostName"`
	ServicePort       int                     `yaml:"servicePort"`
	NumThreads        int                     `yaml:"numThreads"`
	RingGroup         string                  `yaml:"ringGroup"`
	LocalDataRoot     string                  `yaml:"localDataRoot"`
	VersionsRoot      string                  `yaml:"versionsRoot"`
	UpdateConcurrency int                     `yaml:"updateConcurrency"`
	LogLevel          string                  `yaml:"logLevel"`
	Coordinator       YAMLCoordinatorSettings `yaml:"coordinator"`
}

// YAMLCoordinatorSettings tells a process where its coordinator is. Address
// names a remote coordinator. DB names a local coordinator store, which
// only one process may open at a time.
type YAMLCoordinatorSettings struct {
	Address string `yaml:"address"`
	// Timeout is in milliseconds
	Timeout       uint64 `yaml:"timeout"`
	DB            string `yaml:"db"`
	StorageEngine string `yaml:"storageEngine"`
}

type YAMLCoordinatorConfig struct {
	Port          int    `yaml:"port"`
	DB            string `yaml:"db"`
	StorageEngine string `yaml:"storageEngine"`
	LogLevel      string `yaml:"logLevel"`
}

func (ypsc *YAMLPartitionServerConfig) LoadFromFile(file string) error {
	rawConfig, err := ioutil.ReadFile(file)

	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(rawConfig, ypsc); err != nil {
		return err
	}

	if len(ypsc.HostName) == 0 {
		return errors.New("hostName must be set to the name other hosts and clients use to reach this host")
	}

	if !isValidPort(ypsc.ServicePort) || ypsc.ServicePort == 0 {
		return errors.New(fmt.Sprintf("%d is an invalid port for the data server", ypsc.ServicePort))
	}

	if ypsc.NumThreads <= 0 {
		return errors.New("numThreads must be at least 1")
	}

	if len(ypsc.RingGroup) == 0 {
		return errors.New("ringGroup must be set")
	}

	if len(ypsc.LocalDataRoot) == 0 {
		return errors.New("localDataRoot must be set")
	}

	if len(ypsc.VersionsRoot) == 0 {
		return errors.New("versionsRoot must be set")
	}

	ypsc.LocalDataRoot = resolveFilePath(file, ypsc.LocalDataRoot)
	ypsc.VersionsRoot = resolveFilePath(file, ypsc.VersionsRoot)

	if ypsc.UpdateConcurrency < 0 {
		return errors.New("updateConcurrency cannot be negative")
	}

	if ypsc.UpdateConcurrency == 0 {
		ypsc.UpdateConcurrency = DefaultUpdateConcurrency
	}

	if err := ypsc.Coordinator.validate(file); err != nil {
		return err
	}

	return applyLogLevel(ypsc.LogLevel)
}

func (ypsc *YAMLPartitionServerConfig) Address() PartitionServerAddress {
	return PartitionServerAddress{Host: ypsc.HostName, Port: ypsc.ServicePort}
}

func (ycs *YAMLCoordinatorSettings) validate(file string) error {
	if len(ycs.Address) == 0 && len(ycs.DB) == 0 {
		return errors.New("coordinator needs either an address or a db")
	}

	if len(ycs.Address) != 0 && len(ycs.DB) != 0 {
		return errors.New("coordinator cannot have both an address and a db")
	}

	if len(ycs.DB) != 0 {
		ycs.DB = resolveFilePath(file, ycs.DB)
	}

	if len(ycs.StorageEngine) == 0 {
		ycs.StorageEngine = EngineLevelDB
	}

	if !EngineIsValid(ycs.StorageEngine) {
		return errors.New(fmt.Sprintf("%s is not a storage engine. Use %s or %s", ycs.StorageEngine, EngineLevelDB, EnginePebble))
	}

	if ycs.Timeout == 0 {
		ycs.Timeout = DefaultCoordinatorTimeout
	}

	return nil
}

func (ycc *YAMLCoordinatorConfig) LoadFromFile(file string) error {
	rawConfig, err := ioutil.ReadFile(file)

	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(rawConfig, ycc); err != nil {
		return err
	}

	if !isValidPort(ycc.Port) || ycc.Port == 0 {
		return errors.New(fmt.Sprintf("%d is an invalid port for the coordinator", ycc.Port))
	}

	if len(ycc.DB) == 0 {
		return errors.New("db must be set")
	}

	ycc.DB = resolveFilePath(file, ycc.DB)

	if len(ycc.StorageEngine) == 0 {
		ycc.StorageEngine = EngineLevelDB
	}

	if !EngineIsValid(ycc.StorageEngine) {
		return errors.New(fmt.Sprintf("%s is not a storage engine. Use %s or %s", ycc.StorageEngine, EngineLevelDB, EnginePebble))
	}

	return applyLogLevel(ycc.LogLevel)
}

func applyLogLevel(logLevel string) error {
	if len(logLevel) == 0 {
		return nil
	}

	if !LogLevelIsValid(logLevel) {
		return errors.New(fmt.Sprintf("%s is not a valid log level. Valid levels are critical, error, warning, notice, info, debug", logLevel))
	}

	SetLoggingLevel(logLevel)

	return nil
}

func isValidPort(p int) bool {
	return p >= 0 && p < (1<<16)
}

func resolveFilePath(configFileLocation, file string) string {
	if filepath.IsAbs(file) {
		return file
	}

	return filepath.Join(filepath.Dir(configFileLocation), file)
}
