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
	"fmt"
	"sort"
	"strings"

	"github.com/ettle/strcase"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// LabelGroup is the prefix of the ownership labels stamped on every
// document managed by this operator.
const LabelGroup = "manifests.charmed-kubernetes.io"

// Transform is one unit of manifest mutation in a pipeline. It declares
// the configuration keys it depends on; the union of these across a
// pipeline drives the evaluate gating.
type Transform interface {
	Required() []string
}

// Patch mutates an existing document in place. A Patch that does not
// match the document's kind+name must leave it untouched. A non-nil
// error is a warning for that document only, never a pipeline failure.
type Patch interface {
	Transform
	Apply(config Snapshot, obj *unstructured.Unstructured) error
}

// Addition synthesizes a brand-new document from the current
// configuration. Returning (nil, nil) contributes nothing.
type Addition interface {
	Transform
	Create(config Snapshot) (*unstructured.Unstructured, error)
}

// OwnerLabels returns the ownership labels for documents of the named
// manifest set deployed by the given application.
func OwnerLabels(name, application string) map[string]string {
	return map[string]string{
		LabelGroup + "/name":  name,
		LabelGroup + "/charm": application,
	}
}

// ManifestLabel adds the ownership labels to every document's metadata.
type ManifestLabel struct {
	Name        string
	Application string
}

func (t ManifestLabel) Required() []string { return nil }

func (t ManifestLabel) Apply(_ Snapshot, obj *unstructured.Unstructured) error {
	labels := obj.GetLabels()
	if labels == nil {
		labels = make(map[string]string)
	}
	for key, value := range OwnerLabels(t.Name, t.Application) {
		labels[key] = value
	}
	obj.SetLabels(labels)
	return nil
}

// ConfigRegistry rewrites container image references to use the
// configured image-registry prefix. Without the config key it is a no-op.
type ConfigRegistry struct{}

func (t ConfigRegistry) Required() []string { return nil }

func (t ConfigRegistry) Apply(config Snapshot, obj *unstructured.Unstructured) error {
	registry := config.GetString("image-registry")
	if registry == "" {
		return nil
	}

	var podSpecPath []string
	switch obj.GetKind() {
	case "Pod":
		podSpecPath = []string{"spec"}
	case "Deployment", "DaemonSet", "StatefulSet", "ReplicaSet", "Job":
		podSpecPath = []string{"spec", "template", "spec"}
	default:
		return nil
	}

	for _, field := range []string{"containers", "initContainers"} {
		path := append(append([]string{}, podSpecPath...), field)
		containers, found, err := unstructured.NestedSlice(obj.Object, path...)
		if err != nil || !found {
			continue
		}
		for i, c := range containers {
			container, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			image, _ := container["image"].(string)
			if image == "" {
				continue
			}
			container["image"] = rewriteRegistry(image, registry)
			containers[i] = container
		}
		if err := unstructured.SetNestedSlice(obj.Object, containers, path...); err != nil {
			return fmt.Errorf("updating %s images on %s/%s: %w", field, obj.GetKind(), obj.GetName(), err)
		}
	}
	return nil
}

func rewriteRegistry(image, registry string) string {
	parts := strings.Split(image, "/")
	return registry + "/" + parts[len(parts)-1]
}

// Toleration is the scheduling toleration shape used by the toleration
// rewrite patches.
type Toleration struct {
	Key               string
	Operator          string
	Value             string
	Effect            string
	TolerationSeconds *int64
}

func tolerationFromMap(m map[string]interface{}) Toleration {
	t := Toleration{}
	t.Key, _ = m["key"].(string)
	t.Operator, _ = m["operator"].(string)
	t.Value, _ = m["value"].(string)
	t.Effect, _ = m["effect"].(string)
	if secs, ok := m["tolerationSeconds"].(int64); ok {
		t.TolerationSeconds = &secs
	}
	return t
}

func (t Toleration) toMap() map[string]interface{} {
	m := map[string]interface{}{}
	if t.Key != "" {
		m["key"] = t.Key
	}
	if t.Operator != "" {
		m["operator"] = t.Operator
	}
	if t.Value != "" {
		m["value"] = t.Value
	}
	if t.Effect != "" {
		m["effect"] = t.Effect
	}
	if t.TolerationSeconds != nil {
		m["tolerationSeconds"] = *t.TolerationSeconds
	}
	return m
}

func (t Toleration) identity() string {
	secs := ""
	if t.TolerationSeconds != nil {
		secs = fmt.Sprintf("%d", *t.TolerationSeconds)
	}
	return strings.Join([]string{t.Key, t.Operator, t.Value, t.Effect, secs}, "\x00")
}

// IsControlPlane reports whether the toleration targets a control-plane
// taint.
func (t Toleration) IsControlPlane() bool {
	return strings.HasPrefix(t.Key, "node-role.kubernetes.io") ||
		strings.Contains(t.Key, "control-plane")
}

// UpdateTolerations rewrites the pod template tolerations of obj by
// mapping every toleration through adjust. Duplicate results are
// dropped so the rewrite stays idempotent.
func UpdateTolerations(obj *unstructured.Unstructured, adjust func(Toleration) []Toleration) error {
	path := []string{"spec", "template", "spec", "tolerations"}
	if obj.GetKind() == "Pod" {
		path = []string{"spec", "tolerations"}
	}

	current, _, err := unstructured.NestedSlice(obj.Object, path...)
	if err != nil {
		return fmt.Errorf("reading tolerations of %s/%s: %w", obj.GetKind(), obj.GetName(), err)
	}

	seen := map[string]bool{}
	next := make([]interface{}, 0, len(current))
	for _, c := range current {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		for _, adjusted := range adjust(tolerationFromMap(m)) {
			if id := adjusted.identity(); !seen[id] {
				seen[id] = true
				next = append(next, adjusted.toMap())
			}
		}
	}

	return unstructured.SetNestedSlice(obj.Object, next, path...)
}

// ControlPlaneTolerations returns the toleration adjuster implementing
// the replace-control-plane policy: tolerations for control-plane
// taints are replaced with one Equal toleration per node-selector
// entry, preserving effect and duration; all others are kept.
func ControlPlaneTolerations(nodeSelector map[string]string) func(Toleration) []Toleration {
	return func(t Toleration) []Toleration {
		if !t.IsControlPlane() {
			return []Toleration{t}
		}
		replaced := make([]Toleration, 0, len(nodeSelector))
		for _, key := range sortedKeys(nodeSelector) {
			replaced = append(replaced, Toleration{
				Key:               key,
				Operator:          "Equal",
				Value:             nodeSelector[key],
				Effect:            t.Effect,
				TolerationSeconds: t.TolerationSeconds,
			})
		}
		return replaced
	}
}

// MergeCloudConfig merges the snapshot into an azure.json style payload:
// required keys are camelized and upserted, optional keys are removed
// and then re-added only when present, so a previously-set optional
// field is cleared by omission.
func MergeCloudConfig(payload map[string]interface{}, config Snapshot, required, optional []string) {
	for _, key := range required {
		if value, ok := config[key]; ok {
			payload[strcase.ToCamel(key)] = value
		}
	}
	for _, key := range optional {
		delete(payload, strcase.ToCamel(key))
		if value, ok := config[key]; ok && value != "" {
			payload[strcase.ToCamel(key)] = value
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
