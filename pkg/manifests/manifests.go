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
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/fluxcd/pkg/ssa"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	manifestDir        = "manifests"
	defaultReleaseFile = "version"
)

// Manifests is one ordered, named set of vendored resource documents
// for a logical controller, together with the transform pipeline and
// the configuration function feeding it.
type Manifests struct {
	// Name identifies the set and is stamped into ownership labels.
	Name string

	// DisplayName prefixes operator-facing evaluation messages.
	DisplayName string

	// Application is the name of the deploying application.
	Application string

	// ConfigFn assembles the current configuration snapshot. It must be
	// a pure function of current source state, safe to call several
	// times per cycle.
	ConfigFn func() Snapshot

	// Transforms is the pipeline, fixed at construction. Order is
	// significant: later transforms may rely on earlier ones.
	Transforms []Transform

	bundle fs.FS
}

// New creates a manifest set over the given release bundle. The bundle
// holds a default release marker file and one directory of YAML
// documents per release under manifests/<version>/.
func New(name, displayName, application string, bundle fs.FS, configFn func() Snapshot, transforms ...Transform) *Manifests {
	return &Manifests{
		Name:        name,
		DisplayName: displayName,
		Application: application,
		ConfigFn:    configFn,
		Transforms:  transforms,
		bundle:      bundle,
	}
}

// Config returns the current configuration snapshot.
func (m *Manifests) Config() Snapshot {
	return m.ConfigFn()
}

// Hash returns the fingerprint of the current configuration.
func (m *Manifests) Hash() (string, error) {
	return m.Config().Hash()
}

// Evaluate returns "" when every key required by the pipeline is
// present and non-empty, otherwise a human-readable reason naming the
// first missing key in lexicographic order.
func (m *Manifests) Evaluate() string {
	config := m.Config()
	required := map[string]bool{}
	for _, t := range m.Transforms {
		for _, key := range t.Required() {
			required[key] = true
		}
	}

	keys := make([]string, 0, len(required))
	for key := range required {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if isEmpty(config[key]) {
			return fmt.Sprintf("%s manifests waiting for definition of %s", m.DisplayName, key)
		}
	}
	return ""
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]string:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}

// Releases lists the bundled release versions, newest first.
func (m *Manifests) Releases() ([]string, error) {
	entries, err := fs.ReadDir(m.bundle, manifestDir)
	if err != nil {
		return nil, fmt.Errorf("%s: reading bundled releases: %w", m.Name, err)
	}

	type release struct {
		raw     string
		version *semver.Version
	}
	releases := make([]release, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := semver.NewVersion(entry.Name())
		if err != nil {
			continue
		}
		releases = append(releases, release{raw: entry.Name(), version: v})
	}
	if len(releases) == 0 {
		return nil, fmt.Errorf("%s: bundle contains no releases", m.Name)
	}

	sort.Slice(releases, func(i, j int) bool {
		return releases[i].version.GreaterThan(releases[j].version)
	})

	out := make([]string, len(releases))
	for i, r := range releases {
		out[i] = r.raw
	}
	return out, nil
}

// DefaultRelease returns the release named by the bundle's version file.
func (m *Manifests) DefaultRelease() (string, error) {
	data, err := fs.ReadFile(m.bundle, defaultReleaseFile)
	if err != nil {
		return "", fmt.Errorf("%s: reading default release: %w", m.Name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// CurrentRelease resolves the release to deploy: the configured
// "release" override when it names a bundled version, otherwise the
// bundle default.
func (m *Manifests) CurrentRelease() (string, error) {
	releases, err := m.Releases()
	if err != nil {
		return "", err
	}
	if want := m.Config().GetString("release"); want != "" {
		for _, r := range releases {
			if r == want {
				return r, nil
			}
		}
	}
	return m.DefaultRelease()
}

// BaseResources loads a fresh working copy of the given release's
// documents, untouched by the pipeline.
func (m *Manifests) BaseResources(release string) ([]*unstructured.Unstructured, error) {
	dir := path.Join(manifestDir, release)
	entries, err := fs.ReadDir(m.bundle, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: release %s not bundled: %w", m.Name, release, err)
	}

	var buf bytes.Buffer
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		data, err := fs.ReadFile(m.bundle, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		buf.WriteString("\n---\n")
		buf.Write(data)
	}

	objects, err := ssa.ReadObjects(&buf)
	if err != nil {
		return nil, fmt.Errorf("%s: decoding release %s: %w", m.Name, release, err)
	}
	return objects, nil
}

func isYAML(name string) bool {
	ext := path.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// Resources runs the transform pipeline over a working copy of the
// current release and returns the resulting document set. Addition
// outputs are appended; every Patch is applied to every document in
// pipeline order. Per-document patch failures are returned as warnings
// and never abort the pipeline.
func (m *Manifests) Resources() ([]*unstructured.Unstructured, []string, error) {
	release, err := m.CurrentRelease()
	if err != nil {
		return nil, nil, err
	}
	objects, err := m.BaseResources(release)
	if err != nil {
		return nil, nil, err
	}

	config := m.Config()
	var warnings []string

	for _, t := range m.Transforms {
		if addition, ok := t.(Addition); ok {
			obj, err := addition.Create(config)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", m.Name, err))
				continue
			}
			if obj != nil {
				objects = append(objects, obj)
			}
		}
	}

	for _, t := range m.Transforms {
		patch, ok := t.(Patch)
		if !ok {
			continue
		}
		for _, obj := range objects {
			if err := patch.Apply(config, obj); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", m.Name, err))
			}
		}
	}

	return objects, warnings, nil
}

// GroupVersionKinds returns the distinct kinds of the given documents,
// used when listing the cluster for owned resources.
func GroupVersionKinds(objects []*unstructured.Unstructured) []schema.GroupVersionKind {
	seen := map[schema.GroupVersionKind]bool{}
	var gvks []schema.GroupVersionKind
	for _, obj := range objects {
		gvk := obj.GroupVersionKind()
		if !seen[gvk] {
			seen[gvk] = true
			gvks = append(gvks, gvk)
		}
	}
	return gvks
}
