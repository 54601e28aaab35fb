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
	"testing"
	"testing/fstest"

	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const testConfigMapYAML = `---
apiVersion: v1
kind: ConfigMap
metadata:
  name: app-settings
  namespace: kube-system
data:
  mode: cloud
`

func testBundle() fstest.MapFS {
	return fstest.MapFS{
		"version":                        {Data: []byte("v1.1.0\n")},
		"manifests/v1.0.0/app.yaml":      {Data: []byte(testConfigMapYAML)},
		"manifests/v1.1.0/app.yaml":      {Data: []byte(testConfigMapYAML)},
		"manifests/v1.1.0/README.md":     {Data: []byte("not a manifest")},
		"manifests/not-a-version/x.yaml": {Data: []byte(testConfigMapYAML)},
	}
}

// namespaceAddition synthesizes a Namespace document from config.
type namespaceAddition struct{}

func (namespaceAddition) Required() []string { return []string{"namespace"} }

func (namespaceAddition) Create(config Snapshot) (*unstructured.Unstructured, error) {
	name := config.GetString("namespace")
	if name == "" {
		return nil, fmt.Errorf("namespace not configured")
	}
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Namespace",
		"metadata":   map[string]interface{}{"name": name},
	}}, nil
}

func newTestSet(config Snapshot) *Manifests {
	return New("test-set", "Test", "test-app", testBundle(),
		func() Snapshot { return config },
		ManifestLabel{Name: "test-set", Application: "test-app"},
		namespaceAddition{},
	)
}

func TestReleases(t *testing.T) {
	g := NewWithT(t)

	set := newTestSet(Snapshot{})
	releases, err := set.Releases()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(releases).To(Equal([]string{"v1.1.0", "v1.0.0"}))
}

func TestCurrentRelease(t *testing.T) {
	g := NewWithT(t)

	set := newTestSet(Snapshot{})
	release, err := set.CurrentRelease()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(release).To(Equal("v1.1.0"))

	set = newTestSet(Snapshot{"release": "v1.0.0"})
	release, err = set.CurrentRelease()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(release).To(Equal("v1.0.0"))

	// unknown overrides fall back to the bundle default
	set = newTestSet(Snapshot{"release": "v9.9.9"})
	release, err = set.CurrentRelease()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(release).To(Equal("v1.1.0"))
}

func TestEvaluate(t *testing.T) {
	g := NewWithT(t)

	set := newTestSet(Snapshot{})
	g.Expect(set.Evaluate()).To(Equal("Test manifests waiting for definition of namespace"))

	set = newTestSet(Snapshot{"namespace": "kube-system"})
	g.Expect(set.Evaluate()).To(BeEmpty())
}

func TestResources(t *testing.T) {
	g := NewWithT(t)

	set := newTestSet(Snapshot{"namespace": "azure-system"})
	objects, warnings, err := set.Resources()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(warnings).To(BeEmpty())
	g.Expect(objects).To(HaveLen(2))

	// the addition output gets patched like any bundled document
	g.Expect(objects[0].GetKind()).To(Equal("ConfigMap"))
	g.Expect(objects[1].GetKind()).To(Equal("Namespace"))
	for _, obj := range objects {
		g.Expect(obj.GetLabels()).To(HaveKeyWithValue("manifests.charmed-kubernetes.io/name", "test-set"))
	}
}

func TestResources_AdditionWarning(t *testing.T) {
	g := NewWithT(t)

	set := newTestSet(Snapshot{})
	objects, warnings, err := set.Resources()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(objects).To(HaveLen(1))
	g.Expect(warnings).To(ConsistOf("test-set: namespace not configured"))
}

func TestGroupVersionKinds(t *testing.T) {
	g := NewWithT(t)

	set := newTestSet(Snapshot{"namespace": "azure-system"})
	objects, _, err := set.Resources()
	g.Expect(err).ToNot(HaveOccurred())

	gvks := GroupVersionKinds(append(objects, objects...))
	g.Expect(gvks).To(HaveLen(2))
}
