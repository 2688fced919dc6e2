package domain

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
	"strconv"
	"time"
)

type VersionNumber uint64

func (versionNumber VersionNumber) String() string {
	return strconv.FormatUint(uint64(versionNumber), 10)
}

func ParseVersionNumber(s string) (VersionNumber, error) {
	n, err := strconv.ParseUint(s, 10, 64)

	if err != nil {
		return 0, err
	}

	return VersionNumber(n), nil
}

// DomainVersion is one published data set of a domain. A version without
// a parent is a base version holding the full data set. A version with a
// parent is a delta applied on top of its parent.
type DomainVersion struct {
	VersionNumber       VersionNumber  `json:"versionNumber"`
	ParentVersionNumber *VersionNumber `json:"parentVersionNumber,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	ClosedAt            *time.Time     `json:"closedAt,omitempty"`
	Defunct             bool           `json:"defunct,omitempty"`
}

func (domainVersion DomainVersion) IsBase() bool {
	return domainVersion.ParentVersionNumber == nil
}

func (domainVersion DomainVersion) IsClosed() bool {
	return domainVersion.ClosedAt != nil
}

func (domainVersion DomainVersion) Parent() (VersionNumber, bool) {
	if domainVersion.ParentVersionNumber == nil {
		return 0, false
	}

	return *domainVersion.ParentVersionNumber, true
}

// Versions resolves version numbers of one domain
type Versions interface {
	VersionByNumber(versionNumber VersionNumber) (DomainVersion, bool)
}

// VersionSet is the list of versions of one domain ordered by number
type VersionSet []DomainVersion

func (versionSet VersionSet) VersionByNumber(versionNumber VersionNumber) (DomainVersion, bool) {
	for _, domainVersion := range versionSet {
		if domainVersion.VersionNumber == versionNumber {
			return domainVersion, true
		}
	}

	return DomainVersion{}, false
}

// LatestClosed returns the newest closed version that is not defunct. It
// is the version hosts update to.
func (versionSet VersionSet) LatestClosed() (DomainVersion, bool) {
	for i := len(versionSet) - 1; i >= 0; i-- {
		if versionSet[i].IsClosed() && !versionSet[i].Defunct {
			return versionSet[i], true
		}
	}

	return DomainVersion{}, false
}

func (versionSet VersionSet) Latest() (DomainVersion, bool) {
	if len(versionSet) == 0 {
		return DomainVersion{}, false
	}

	return versionSet[len(versionSet)-1], true
}

func (versionSet VersionSet) Len() int {
	return len(versionSet)
}

func (versionSet VersionSet) Less(i, j int) bool {
	return versionSet[i].VersionNumber < versionSet[j].VersionNumber
}

func (versionSet VersionSet) Swap(i, j int) {
	versionSet[i], versionSet[j] = versionSet[j], versionSet[i]
}

func Ptr(versionNumber VersionNumber) *VersionNumber {
	return &versionNumber
}
