// Copyright 2026 The pkgtrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License
//
// SPDX-License-Identifier: Apache-2.0
//

package client

import (
	"errors"
	"fmt"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/trust"
)

// errNeedsLoad signals that resolution reached a delegated role not yet
// verified this refresh and must be retried with a loading resolver.
var errNeedsLoad = errors.New("delegated targets role not yet loaded")

// roleLoader returns the verified targets document for a role delegated
// to by delegator.
type roleLoader func(t *trust.Set, roleName, delegator string) (*metadata.Document[metadata.Targets], error)

type roleVisit struct {
	roleName  string
	delegator string
	depth     int
}

// resolve walks the delegation graph pre-order depth-first, visiting
// delegations in the order each role lists them, until some visited
// role provides targetPath. A terminating delegation that matches the
// path confines the rest of the search to its own subtree. The walk is
// bounded both in total roles visited and in chain depth; tripping
// either bound is an error, never a silent miss.
func (c *Client) resolve(t *trust.Set, targetPath string, load roleLoader) (*metadata.TargetFile, error) {
	log := metadata.GetLogger()
	toVisit := []roleVisit{{roleName: metadata.RoleTargets, delegator: metadata.RoleRoot}}
	visited := map[string]struct{}{}
	for len(toVisit) > 0 {
		current := toVisit[0]
		toVisit = toVisit[1:]
		if _, ok := visited[current.roleName]; ok {
			continue
		}
		if len(visited) >= c.cfg.MaxDelegations {
			return nil, &metadata.ErrDelegationLimit{
				Msg: fmt.Sprintf("visited %d delegated roles resolving %s", len(visited), targetPath),
			}
		}
		doc, err := load(t, current.roleName, current.delegator)
		if err != nil {
			return nil, err
		}
		visited[current.roleName] = struct{}{}
		if targetFile, ok := doc.Signed.Targets[targetPath]; ok {
			log.Info("found target", "path", targetPath, "role", current.roleName)
			targetFile.Path = targetPath
			return &targetFile, nil
		}
		if doc.Signed.Delegations == nil {
			continue
		}
		var children []roleVisit
		terminated := false
		for _, delegation := range doc.Signed.Delegations.RolesForTarget(targetPath) {
			children = append(children, roleVisit{
				roleName:  delegation.Name,
				delegator: current.roleName,
				depth:     current.depth + 1,
			})
			if delegation.Terminating {
				log.Info("delegation is terminating", "role", delegation.Name, "path", targetPath)
				terminated = true
				break
			}
		}
		if len(children) == 0 {
			continue
		}
		if current.depth+1 > c.cfg.MaxDelegationDepth {
			return nil, &metadata.ErrDelegationLimit{
				Msg: fmt.Sprintf("delegation chain for %s exceeds depth %d", targetPath, c.cfg.MaxDelegationDepth),
			}
		}
		if terminated {
			// drop everything queued outside the terminating subtree
			toVisit = children
		} else {
			toVisit = append(children, toVisit...)
		}
	}
	return nil, &metadata.ErrNotFound{Msg: fmt.Sprintf("target %s not found", targetPath)}
}

// loadedTargetsRole resolves only against roles already verified this
// refresh, allowing the caller to hold just a read lock.
func (c *Client) loadedTargetsRole(t *trust.Set, roleName, delegator string) (*metadata.Document[metadata.Targets], error) {
	if doc, ok := t.Targets[roleName]; ok {
		return doc, nil
	}
	return nil, errNeedsLoad
}
