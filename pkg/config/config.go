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

// Package config holds the user-supplied operator configuration: a flat
// mapping of override keys that always win over relation-derived
// values.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

// CharmConfig is the user configuration collaborator. Values are
// validated on demand; AvailableData exposes only keys with non-empty
// values.
type CharmConfig struct {
	data map[string]interface{}
}

// New wraps an already-decoded configuration mapping.
func New(data map[string]interface{}) *CharmConfig {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &CharmConfig{data: data}
}

// Read loads the configuration from a YAML file. A missing file yields
// an empty configuration.
func Read(path string) (*CharmConfig, error) {
	if path == "" {
		return New(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return New(raw), nil
}

// AvailableData returns the user overrides with empty values excluded
// and structured keys decoded. The control-node-selector override is
// returned as a label mapping.
func (c *CharmConfig) AvailableData() map[string]interface{} {
	out := map[string]interface{}{}
	for key, value := range c.data {
		if value == nil || value == "" {
			continue
		}
		if key == "control-node-selector" {
			if selector, err := parseSelector(value); err == nil {
				out[key] = selector
			}
			continue
		}
		out[key] = value
	}
	return out
}

// Evaluate returns "" when the configuration is internally consistent,
// otherwise a human-readable blocking reason.
func (c *CharmConfig) Evaluate() string {
	if value, ok := c.data["control-node-selector"]; ok && value != nil && value != "" {
		if _, err := parseSelector(value); err != nil {
			return fmt.Sprintf("Config control-node-selector is invalid: %v", err)
		}
	}
	return ""
}

// parseSelector decodes a node selector override. Accepted forms are a
// mapping or a space-separated list of key=value pairs.
func parseSelector(value interface{}) (map[string]string, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for key, raw := range v {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("label %s is not a string", key)
			}
			out[key] = s
		}
		return out, nil
	case string:
		out := map[string]string{}
		for _, pair := range strings.Fields(v) {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) != 2 || parts[0] == "" {
				return nil, fmt.Errorf("%q is not a key=value pair", pair)
			}
			out[parts[0]] = parts[1]
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no labels found in %q", v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", value)
	}
}

// Keys lists the configured override keys, sorted.
func (c *CharmConfig) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for key := range c.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
