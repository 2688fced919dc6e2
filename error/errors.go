package error

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
)

type DBerror struct {
	Msg       string `json:"message"`
	ErrorCode int    `json:"code"`
}

func (dbError DBerror) Error() string {
	return dbError.Msg
}

func (dbError DBerror) Code() int {
	return dbError.ErrorCode
}

func (dbError DBerror) JSON() []byte {
	json, _ := json.Marshal(dbError)

	return json
}

// DBErrorFromJSON decodes an error body written by DBerror.JSON. Known codes
// map back onto the sentinel values so callers can compare with ==.
func DBErrorFromJSON(encodedError []byte) (error, bool) {
	var dbError DBerror

	if err := json.Unmarshal(encodedError, &dbError); err != nil || dbError.Msg == "" {
		return nil, false
	}

	if known, ok := errorsByCode[dbError.ErrorCode]; ok {
		return known, true
	}

	return dbError, true
}

const (
	eEMPTY                  = iota
	eSTORAGE                = iota
	eCORRUPTED              = iota
	eINVALID_KEY            = iota
	eNO_SUCH_HOST           = iota
	eNO_SUCH_DOMAIN         = iota
	eNO_SUCH_VERSION        = iota
	eNO_SUCH_PARTITION      = iota
	eKEY_NOT_FOUND          = iota
	eDOMAIN_EXISTS          = iota
	eHOST_EXISTS            = iota
	eVERSION_CLOSED         = iota
	eVERSION_NOT_CLOSED     = iota
	eINVALID_STATE          = iota
	eINVALID_COMMAND        = iota
	eRING_MISMATCH          = iota
	eSERVER_STARTUP         = iota
	eUPDATE_IN_PROGRESS     = iota
	ePARTITION_WRITTEN      = iota
	eOUTPUT_EXISTS          = iota
	eWRITER_CLOSED          = iota
	eDELETE_IN_BASE         = iota
	ePARTITION_UNAVAILABLE  = iota
	eDRIVER_CLOSED          = iota
	eUNKNOWN_STORAGE_ENGINE = iota
	eNO_CURRENT_VERSION     = iota
)

var (
	EEmpty                = DBerror{"Parameter was empty or nil", eEMPTY}
	EStorage              = DBerror{"The storage driver experienced an error", eSTORAGE}
	ECorrupted            = DBerror{"The storage medium is corrupted", eCORRUPTED}
	EInvalidKey           = DBerror{"A key was misformatted", eINVALID_KEY}
	ENoSuchHost           = DBerror{"The specified host does not exist", eNO_SUCH_HOST}
	ENoSuchDomain         = DBerror{"The specified domain does not exist", eNO_SUCH_DOMAIN}
	ENoSuchVersion        = DBerror{"The specified domain version does not exist", eNO_SUCH_VERSION}
	ENoSuchPartition      = DBerror{"This host does not serve the partition that holds this key", eNO_SUCH_PARTITION}
	EKeyNotFound          = DBerror{"The key was not found", eKEY_NOT_FOUND}
	EDomainExists         = DBerror{"A domain with this name already exists", eDOMAIN_EXISTS}
	EHostExists           = DBerror{"A host with this address already exists", eHOST_EXISTS}
	EVersionClosed        = DBerror{"The domain version is already closed", eVERSION_CLOSED}
	EVersionNotClosed     = DBerror{"The parent domain version is not closed", eVERSION_NOT_CLOSED}
	EInvalidState         = DBerror{"An invalid host state was specified", eINVALID_STATE}
	EInvalidCommand       = DBerror{"An invalid host command was specified", eINVALID_COMMAND}
	ERingMismatch         = DBerror{"The host is not a member of the configured ring group", eRING_MISMATCH}
	EServerStartup        = DBerror{"The data server exited before it was ready", eSERVER_STARTUP}
	EUpdateInProgress     = DBerror{"An update is already running on this host", eUPDATE_IN_PROGRESS}
	EPartitionWritten     = DBerror{"The partition has already been written by this job", ePARTITION_WRITTEN}
	EOutputExists         = DBerror{"The output directory already exists", eOUTPUT_EXISTS}
	EWriterClosed         = DBerror{"The writer is closed", eWRITER_CLOSED}
	EDeleteInBase         = DBerror{"Deletes can only be written to delta versions", eDELETE_IN_BASE}
	EPartitionUnavailable = DBerror{"The partition is not available for reads right now", ePARTITION_UNAVAILABLE}
	EDriverClosed         = DBerror{"Driver is closed", eDRIVER_CLOSED}
	EUnknownStorageEngine = DBerror{"Unknown storage engine", eUNKNOWN_STORAGE_ENGINE}
	ENoCurrentVersion     = DBerror{"The partition has no current version", eNO_CURRENT_VERSION}
)

var errorsByCode = map[int]DBerror{}

func init() {
	for _, e := range []DBerror{
		EEmpty, EStorage, ECorrupted, EInvalidKey, ENoSuchHost, ENoSuchDomain, ENoSuchVersion,
		ENoSuchPartition, EKeyNotFound, EDomainExists, EHostExists, EVersionClosed, EVersionNotClosed,
		EInvalidState, EInvalidCommand, ERingMismatch, EServerStartup, EUpdateInProgress,
		EPartitionWritten, EOutputExists, EWriterClosed, EDeleteInBase, EPartitionUnavailable,
		EDriverClosed, EUnknownStorageEngine, ENoCurrentVersion,
	} {
		errorsByCode[e.ErrorCode] = e
	}
}
