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

package relation

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
)

func TestParseEvent(t *testing.T) {
	g := NewWithT(t)

	ev, err := ParseEvent("azure-integration-relation-changed")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(ev).To(Equal(Event{Kind: RelationChanged, Endpoint: "azure-integration"}))

	ev, err = ParseEvent("kube-control-relation-broken")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(ev).To(Equal(Event{Kind: RelationBroken, Endpoint: "kube-control"}))

	ev, err = ParseEvent("config-changed")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(ev).To(Equal(Event{Kind: ConfigChanged}))

	ev, err = ParseEvent("stop")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(ev).To(Equal(Event{Kind: Stop}))

	_, err = ParseEvent("leader-elected")
	g.Expect(err).To(HaveOccurred())
}

func TestLoadDatabag(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "kube-control.yaml")
	err := os.WriteFile(path, []byte(`
application: kubernetes-control-plane
units:
  kubernetes-control-plane/1:
    cluster-tag: kubernetes-xyz
  kubernetes-control-plane/0:
    cluster-tag: kubernetes-abc
`), 0644)
	g.Expect(err).ToNot(HaveOccurred())

	bag, err := LoadDatabag(path)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(bag.Application).To(Equal("kubernetes-control-plane"))
	g.Expect(bag.UnitCount()).To(Equal(2))

	// unit data comes from the first unit in sorted order
	g.Expect(bag.UnitData()["cluster-tag"]).To(Equal("kubernetes-abc"))
}

func TestLoadDatabag_Missing(t *testing.T) {
	g := NewWithT(t)

	bag, err := LoadDatabag(filepath.Join(t.TempDir(), "absent.yaml"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(bag).To(BeNil())
	g.Expect(bag.UnitData()).To(BeNil())
	g.Expect(bag.UnitCount()).To(BeZero())
}

func TestEvaluateRelation(t *testing.T) {
	g := NewWithT(t)

	// no relation at all
	r := NewKubeControl(nil)
	msg := r.EvaluateRelation(Event{Kind: ConfigChanged})
	g.Expect(msg).To(Equal("Missing required kube-control relation"))

	// relation exists but has not published yet
	r = NewKubeControl(&Databag{Application: "kubernetes-control-plane"})
	msg = r.EvaluateRelation(Event{Kind: ConfigChanged})
	g.Expect(msg).To(Equal("Waiting for kube-control relation"))

	// a breaking relation counts as gone
	msg = r.EvaluateRelation(Event{Kind: RelationBroken, Endpoint: "kube-control"})
	g.Expect(msg).To(Equal("Missing required kube-control relation"))

	// ready relation raises nothing
	r = NewKubeControl(&Databag{Units: map[string]map[string]string{
		"kubernetes-control-plane/0": {
			"cluster-tag":       "kubernetes-abc",
			"registry-location": "rocks.canonical.com/cdk",
		},
	}})
	g.Expect(r.EvaluateRelation(Event{Kind: ConfigChanged})).To(BeEmpty())
}
