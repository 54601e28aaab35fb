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
	"testing"

	. "github.com/onsi/gomega"
)

func kubeControlDatabag() *Databag {
	return &Databag{
		Application: "kubernetes-control-plane",
		Units: map[string]map[string]string{
			"kubernetes-control-plane/0": {
				"cluster-tag":       "kubernetes-abcd1234",
				"registry-location": "rocks.canonical.com/cdk",
				"ca-certificate":    "---BEGIN---",
				"labels":            `{"juju-charm": "kubernetes-control-plane"}`,
				"taints":            `["node-role.kubernetes.io/control-plane:NoSchedule"]`,
				"creds":             `{"azure-cloud-provider/0": {"client_token": "abc"}}`,
			},
			"kubernetes-control-plane/1": {},
		},
	}
}

func TestKubeControlAccessors(t *testing.T) {
	g := NewWithT(t)

	r := NewKubeControl(kubeControlDatabag())
	g.Expect(r.IsReady()).To(BeTrue())
	g.Expect(r.ClusterTag()).To(Equal("kubernetes-abcd1234"))
	g.Expect(r.RegistryLocation()).To(Equal("rocks.canonical.com/cdk"))
	g.Expect(r.CACertificate()).To(Equal("---BEGIN---"))
	g.Expect(r.Application()).To(Equal("kubernetes-control-plane"))
	g.Expect(r.UnitCount()).To(Equal(2))
	g.Expect(r.ControllerLabels()).To(Equal(map[string]string{"juju-charm": "kubernetes-control-plane"}))
	g.Expect(r.ControllerTaints()).To(Equal([]string{"node-role.kubernetes.io/control-plane:NoSchedule"}))
}

func TestKubeControlNotReady(t *testing.T) {
	g := NewWithT(t)

	bag := kubeControlDatabag()
	delete(bag.Units["kubernetes-control-plane/0"], "cluster-tag")

	r := NewKubeControl(bag)
	g.Expect(r.IsReady()).To(BeFalse())
	g.Expect(r.RegistryLocation()).To(BeEmpty())
}

func TestKubeControlMalformedFields(t *testing.T) {
	g := NewWithT(t)

	bag := kubeControlDatabag()
	bag.Units["kubernetes-control-plane/0"]["labels"] = "{not json"
	bag.Units["kubernetes-control-plane/0"]["taints"] = "{not json"
	bag.Units["kubernetes-control-plane/0"]["creds"] = "{not json"

	r := NewKubeControl(bag)
	g.Expect(r.ControllerLabels()).To(BeNil())
	g.Expect(r.ControllerTaints()).To(BeNil())
	g.Expect(r.HasAuthCredentials("azure-cloud-provider/0")).To(BeFalse())
}

func TestKubeControlAuth(t *testing.T) {
	g := NewWithT(t)

	r := NewKubeControl(kubeControlDatabag())
	g.Expect(r.HasAuthCredentials("azure-cloud-provider/0")).To(BeTrue())
	g.Expect(r.HasAuthCredentials("azure-cloud-provider/1")).To(BeFalse())

	g.Expect(r.SetAuthRequest("azure-cloud-provider/0", "system:masters")).To(Succeed())
	g.Expect(r.Published()["auth"]).To(MatchJSON(`{"user": "azure-cloud-provider/0", "group": "system:masters"}`))
}

func TestCertificatesFallback(t *testing.T) {
	g := NewWithT(t)

	r := NewCertificates(&Databag{
		Application: "easyrsa",
		Units: map[string]map[string]string{
			"easyrsa/0": {"ca": "fallback-ca"},
		},
	})
	g.Expect(r.IsReady()).To(BeTrue())
	g.Expect(r.CA()).To(Equal("fallback-ca"))

	r = NewCertificates(nil)
	g.Expect(r.IsReady()).To(BeFalse())
	g.Expect(r.EvaluateRelation(Event{Kind: ConfigChanged})).
		To(Equal("Missing required certificates relation"))
}
