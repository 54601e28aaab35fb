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

package operator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// StoredState is the small persistent record surviving across cycles.
// ConfigHash is only written after every manifest set applied cleanly,
// so a crash mid-apply re-applies on the next cycle.
type StoredState struct {
	// ClusterTag is the cluster identity last propagated to the
	// integrator.
	ClusterTag string `json:"cluster-tag,omitempty"`

	// ConfigHash fingerprints the configuration of the last successful
	// deployment.
	ConfigHash string `json:"config-hash,omitempty"`

	// Deployed reports whether the current hash has been applied.
	Deployed bool `json:"deployed"`
}

// Store persists StoredState between invocations.
type Store interface {
	Load() (StoredState, error)
	Save(StoredState) error
}

// FileStore keeps the state in one YAML file.
type FileStore struct {
	Path string
}

func (s *FileStore) Load() (StoredState, error) {
	state := StoredState{}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("reading state %s: %w", s.Path, err)
	}
	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decoding state %s: %w", s.Path, err)
	}
	return state, nil
}

func (s *FileStore) Save(state StoredState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0644)
}
