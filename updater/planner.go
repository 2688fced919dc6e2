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
	"fmt"
	"strings"

	. "github.com/PelionIoT/partitiondb/domain"
)

// MaxPlanDepth bounds the walk up a parent chain. A chain longer than this
// is treated as corrupt version metadata.
var MaxPlanDepth = 4096

// UpdatePlan lists what must happen to bring a partition to Target.
// Versions is oldest first and each entry must be fetched. Base, when set,
// is a complete version already on disk that the fetched versions are
// applied on top of. A plan with no Versions and no Base is a no-op.
type UpdatePlan struct {
	Target   VersionNumber
	Base     *VersionNumber
	Versions []VersionNumber
}

func (plan UpdatePlan) IsEmpty() bool {
	return plan.Base == nil && len(plan.Versions) == 0
}

func (plan UpdatePlan) String() string {
	versions := make([]string, len(plan.Versions))

	for i, v := range plan.Versions {
		versions[i] = v.String()
	}

	base := "none"

	if plan.Base != nil {
		base = plan.Base.String()
	}

	return fmt.Sprintf("target=%d base=%s fetch=[%s]", plan.Target, base, strings.Join(versions, ","))
}

type PlanningError struct {
	Target VersionNumber
	Reason string
}

func (planningError *PlanningError) Error() string {
	return fmt.Sprintf("Unable to plan update to version %d: %s", planningError.Target, planningError.Reason)
}

// ComputeUpdatePlan walks back from target along parent links until it
// reaches a cached version or a base version
func ComputeUpdatePlan(versions Versions, current *VersionNumber, cached []VersionNumber, target VersionNumber) (UpdatePlan, error) {
	plan := UpdatePlan{Target: target}

	if current != nil && *current == target {
		return plan, nil
	}

	isCached := make(map[VersionNumber]bool, len(cached))

	for _, v := range cached {
		isCached[v] = true
	}

	visited := map[VersionNumber]bool{}
	next := target

	for {
		if len(visited) >= MaxPlanDepth {
			return UpdatePlan{}, &PlanningError{Target: target, Reason: fmt.Sprintf("parent chain is longer than %d versions", MaxPlanDepth)}
		}

		if visited[next] {
			return UpdatePlan{}, &PlanningError{Target: target, Reason: fmt.Sprintf("parent chain has a cycle at version %d", next)}
		}

		visited[next] = true

		if isCached[next] {
			base := next
			plan.Base = &base

			break
		}

		domainVersion, ok := versions.VersionByNumber(next)

		if !ok {
			if next == target {
				return UpdatePlan{}, &PlanningError{Target: target, Reason: "target version does not exist"}
			}

			return UpdatePlan{}, &PlanningError{Target: target, Reason: fmt.Sprintf("parent version %d does not exist", next)}
		}

		plan.Versions = append(plan.Versions, next)

		parent, ok := domainVersion.Parent()

		if !ok {
			break
		}

		next = parent
	}

	for i, j := 0, len(plan.Versions)-1; i < j; i, j = i+1, j-1 {
		plan.Versions[i], plan.Versions[j] = plan.Versions[j], plan.Versions[i]
	}

	return plan, nil
}
