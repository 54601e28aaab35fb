/*
Copyright 2022 Canonical Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package relation models the external data sources the operator pulls
// configuration from: relation databags exchanged with other
// applications and the Azure instance-metadata service. The exchange
// mechanics live outside this repository; databags arrive here as YAML
// files, one per endpoint.
package relation

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

// EventKind is the lifecycle event category delivered by the
// surrounding framework.
type EventKind string

const (
	RelationCreated EventKind = "created"
	RelationJoined  EventKind = "joined"
	RelationChanged EventKind = "changed"
	RelationBroken  EventKind = "broken"
	Install         EventKind = "install"
	UpgradeCharm    EventKind = "upgrade-charm"
	ConfigChanged   EventKind = "config-changed"
	UpdateStatus    EventKind = "update-status"
	Stop            EventKind = "stop"
)

// Event is one external lifecycle notification. Endpoint is empty for
// non-relation events.
type Event struct {
	Kind     EventKind
	Endpoint string
}

// ParseEvent maps a hook name such as "azure-integration-relation-changed"
// or "config-changed" to an Event.
func ParseEvent(name string) (Event, error) {
	for _, kind := range []EventKind{RelationCreated, RelationJoined, RelationChanged, RelationBroken} {
		suffix := "-relation-" + string(kind)
		if strings.HasSuffix(name, suffix) {
			return Event{Kind: kind, Endpoint: strings.TrimSuffix(name, suffix)}, nil
		}
	}
	switch EventKind(name) {
	case Install, UpgradeCharm, ConfigChanged, UpdateStatus, Stop:
		return Event{Kind: EventKind(name)}, nil
	}
	return Event{}, fmt.Errorf("unknown event %q", name)
}

// Databag is the file-backed snapshot of one relation: the remote
// application name and the databag of each remote unit.
type Databag struct {
	Application string                       `json:"application"`
	Units       map[string]map[string]string `json:"units"`
}

// LoadDatabag reads a relation databag file. A missing file means the
// relation does not exist and yields a nil bag without error.
func LoadDatabag(path string) (*Databag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading relation data %s: %w", path, err)
	}

	bag := &Databag{}
	if err := yaml.Unmarshal(data, bag); err != nil {
		return nil, fmt.Errorf("decoding relation data %s: %w", path, err)
	}
	return bag, nil
}

// UnitData returns the databag of the first remote unit in sorted unit
// order, or nil when the relation has no units yet.
func (d *Databag) UnitData() map[string]string {
	if d == nil || len(d.Units) == 0 {
		return nil
	}
	names := make([]string, 0, len(d.Units))
	for name := range d.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	return d.Units[names[0]]
}

// UnitCount returns the number of remote units on the relation.
func (d *Databag) UnitCount() int {
	if d == nil {
		return 0
	}
	return len(d.Units)
}

// evaluateRelation implements the shared blocking-message policy:
// a structurally unready relation reports "Missing required ..." when
// the relation is gone (or breaking in this very event) and
// "Waiting for ..." while it is still settling.
func evaluateRelation(endpoint string, bag *Databag, ready bool, ev Event) string {
	if ready {
		return ""
	}
	noRelation := bag == nil || (ev.Kind == RelationBroken && ev.Endpoint == endpoint)
	if noRelation {
		return fmt.Sprintf("Missing required %s relation", endpoint)
	}
	return fmt.Sprintf("Waiting for %s relation", endpoint)
}
