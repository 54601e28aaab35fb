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

package manifests

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
)

// Snapshot is the configuration mapping assembled fresh on every
// reconciliation cycle from all ready sources plus user overrides.
type Snapshot map[string]interface{}

// Prune removes keys whose value is absent or an empty string, so
// "ready but empty" is indistinguishable from "not provided".
func (s Snapshot) Prune() {
	for key, value := range s {
		if value == nil || value == "" {
			delete(s, key)
		}
	}
}

// Rename moves the value of oldKey to newKey. The old key is removed
// even when absent; newKey is only set when a value was present.
func (s Snapshot) Rename(oldKey, newKey string) {
	value, ok := s[oldKey]
	delete(s, oldKey)
	if ok && value != nil && value != "" {
		s[newKey] = value
	}
}

// GetString returns the value for key when it is a string, or "".
func (s Snapshot) GetString(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// GetStringMap returns the value for key as a string map. The second
// return is false when the key is present but not a mapping, which
// callers treat as malformed operator input.
func (s Snapshot) GetStringMap(key string) (map[string]string, bool) {
	switch v := s[key].(type) {
	case map[string]string:
		return v, true
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			sv, ok := val.(string)
			if !ok {
				return nil, false
			}
			out[k] = sv
		}
		return out, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

// GetInt returns the value for key as an int64 when possible.
func (s Snapshot) GetInt(key string) (int64, bool) {
	switch v := s[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Hash computes the configuration fingerprint: a hex MD5 digest over the
// canonical JSON form of the snapshot. encoding/json serializes map keys
// in sorted order, so the digest is independent of iteration order and
// two snapshots with equal normalized content hash identically.
func (s Snapshot) Hash() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("hashing config failed: %w", err)
	}
	return fmt.Sprintf("%x", md5.Sum(data)), nil
}
