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

package disk

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
)

type fakeIntegrator struct {
	ready bool
}

func (f fakeIntegrator) IsReady() bool                   { return f.ready }
func (f fakeIntegrator) TenantID() string                { return "tenant-1234" }
func (f fakeIntegrator) AADClient() string               { return "client-1234" }
func (f fakeIntegrator) AADClientSecret() string         { return "s3cr3t" }
func (f fakeIntegrator) ResourceGroupLocation() string   { return "eastus" }
func (f fakeIntegrator) VnetName() string                { return "vnet-1" }
func (f fakeIntegrator) VnetResourceGroup() string       { return "vnet-rg-1" }
func (f fakeIntegrator) SubnetName() string              { return "subnet-1" }
func (f fakeIntegrator) SecurityGroupName() string       { return "sg-1" }
func (f fakeIntegrator) ResourceGroup() (string, error)  { return "rg-1", nil }
func (f fakeIntegrator) SubscriptionID() (string, error) { return "sub-1", nil }

type fakeKubeControl struct {
	ready  bool
	labels map[string]string
}

func (f fakeKubeControl) IsReady() bool                       { return f.ready }
func (f fakeKubeControl) RegistryLocation() string            { return "rocks.canonical.com/cdk" }
func (f fakeKubeControl) ClusterTag() string                  { return "kubernetes-abcd1234" }
func (f fakeKubeControl) ControllerLabels() map[string]string { return f.labels }
func (f fakeKubeControl) UnitCount() int                      { return 3 }
func (f fakeKubeControl) Application() string                 { return "kubernetes-control-plane" }

type fakeConfig map[string]interface{}

func (f fakeConfig) AvailableData() map[string]interface{} { return f }

func newTestManifests(t *testing.T, cfg fakeConfig, integratorReady, kubeControlReady bool) *manifests.Manifests {
	g := NewWithT(t)
	m, err := NewManifests("azure-cloud-provider",
		cfg,
		fakeIntegrator{ready: integratorReady},
		fakeKubeControl{ready: kubeControlReady, labels: map[string]string{"gpu": "on"}},
	)
	g.Expect(err).ToNot(HaveOccurred())
	return m
}

func findObject(objects []*unstructured.Unstructured, kind, name string) *unstructured.Unstructured {
	for _, obj := range objects {
		if obj.GetKind() == kind && obj.GetName() == name {
			return obj
		}
	}
	return nil
}

func TestConfig(t *testing.T) {
	g := NewWithT(t)

	m := newTestManifests(t, fakeConfig{"azuredisk-release": "v1.18.0"}, true, true)

	config := m.Config()
	g.Expect(config.GetString("release")).To(Equal("v1.18.0"))
	g.Expect(config).ToNot(HaveKey("azuredisk-release"))

	selector, ok := config.GetStringMap("control-node-selector")
	g.Expect(ok).To(BeTrue())
	g.Expect(selector).To(Equal(map[string]string{"gpu": "on"}))

	current, err := m.CurrentRelease()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(current).To(Equal("v1.18.0"))
}

func TestEvaluate(t *testing.T) {
	g := NewWithT(t)

	m := newTestManifests(t, fakeConfig{}, false, true)
	g.Expect(m.Evaluate()).To(Equal("AzureDisk manifests waiting for definition of aad-client-id"))

	m = newTestManifests(t, fakeConfig{}, true, false)
	g.Expect(m.Evaluate()).To(Equal("AzureDisk manifests waiting for definition of control-node-selector"))

	m = newTestManifests(t, fakeConfig{}, true, true)
	g.Expect(m.Evaluate()).To(BeEmpty())
}

func TestResources_Secret(t *testing.T) {
	g := NewWithT(t)

	m := newTestManifests(t, fakeConfig{}, true, true)
	objects, warnings, err := m.Resources()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(warnings).To(BeEmpty())

	secret := findObject(objects, "Secret", "azure-cloud-provider")
	g.Expect(secret).ToNot(BeNil())
	g.Expect(secret.GetNamespace()).To(Equal("kube-system"))
	// additions run through the patch pipeline too
	g.Expect(secret.GetLabels()).To(HaveKeyWithValue(
		manifests.LabelGroup+"/name", "disk-driver-azure"))

	encoded, _, err := unstructured.NestedString(secret.Object, "data", "cloud-config")
	g.Expect(err).ToNot(HaveOccurred())
	raw, err := base64.StdEncoding.DecodeString(encoded)
	g.Expect(err).ToNot(HaveOccurred())

	payload := map[string]interface{}{}
	g.Expect(json.Unmarshal(raw, &payload)).To(Succeed())
	g.Expect(payload).To(HaveKeyWithValue("cloud", "AzurePublicCloud"))
	g.Expect(payload).To(HaveKeyWithValue("cloudProviderBackoff", true))
	g.Expect(payload).To(HaveKeyWithValue("cloudProviderBackoffRetries", float64(6)))
	g.Expect(payload).To(HaveKeyWithValue("useInstanceMetadata", true))
	g.Expect(payload).To(HaveKeyWithValue("tenantId", "tenant-1234"))
	g.Expect(payload).To(HaveKeyWithValue("resourceGroup", "rg-1"))
	g.Expect(payload).To(HaveKeyWithValue("subscriptionId", "sub-1"))
	g.Expect(payload).ToNot(HaveKey("vmType"))
}

func TestResources_StorageClass(t *testing.T) {
	g := NewWithT(t)

	m := newTestManifests(t, fakeConfig{}, true, true)
	objects, _, err := m.Resources()
	g.Expect(err).ToNot(HaveOccurred())

	sc := findObject(objects, "StorageClass", "csi-azure-default")
	g.Expect(sc).ToNot(BeNil())
	g.Expect(sc.GetAnnotations()).To(HaveKeyWithValue(
		"storageclass.kubernetes.io/is-default-class", "true"))

	provisioner, _, err := unstructured.NestedString(sc.Object, "provisioner")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(provisioner).To(Equal("disk.csi.azure.com"))
}

func TestResources_Controller(t *testing.T) {
	g := NewWithT(t)

	m := newTestManifests(t, fakeConfig{}, true, true)
	objects, warnings, err := m.Resources()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(warnings).To(BeEmpty())

	deploy := findObject(objects, "Deployment", "csi-azuredisk-controller")
	g.Expect(deploy).ToNot(BeNil())

	selector, _, err := unstructured.NestedStringMap(deploy.Object,
		"spec", "template", "spec", "nodeSelector")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(selector).To(Equal(map[string]string{"gpu": "on"}))

	replicas, _, err := unstructured.NestedInt64(deploy.Object, "spec", "replicas")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(replicas).To(Equal(int64(3)))

	tolerations, _, err := unstructured.NestedSlice(deploy.Object,
		"spec", "template", "spec", "tolerations")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(tolerations).To(Equal([]interface{}{
		map[string]interface{}{
			"key":      "gpu",
			"operator": "Equal",
			"value":    "on",
			"effect":   "NoSchedule",
		},
	}))

	constraints, _, err := unstructured.NestedSlice(deploy.Object,
		"spec", "template", "spec", "topologySpreadConstraints")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(constraints).To(Equal([]interface{}{
		map[string]interface{}{
			"maxSkew":           int64(1),
			"topologyKey":       "kubernetes.io/hostname",
			"whenUnsatisfiable": "DoNotSchedule",
			"labelSelector": map[string]interface{}{
				"matchLabels": map[string]interface{}{"app": "csi-azuredisk-controller"},
			},
		},
	}))
}

func TestResources_NodeDriverUntouched(t *testing.T) {
	g := NewWithT(t)

	m := newTestManifests(t, fakeConfig{}, true, true)
	objects, warnings, err := m.Resources()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(warnings).To(BeEmpty())

	ds := findObject(objects, "DaemonSet", "csi-azuredisk-node")
	g.Expect(ds).ToNot(BeNil())

	tolerations, _, err := unstructured.NestedSlice(ds.Object,
		"spec", "template", "spec", "tolerations")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(tolerations).To(Equal([]interface{}{
		map[string]interface{}{"operator": "Exists"},
	}))
}

func TestUpdateControllerDeployment_Idempotent(t *testing.T) {
	g := NewWithT(t)

	m := newTestManifests(t, fakeConfig{}, true, true)
	objects, _, err := m.Resources()
	g.Expect(err).ToNot(HaveOccurred())

	deploy := findObject(objects, "Deployment", "csi-azuredisk-controller")
	before := deploy.DeepCopy()

	patch := UpdateControllerDeployment{}
	g.Expect(patch.Apply(m.Config(), deploy)).To(Succeed())
	g.Expect(deploy.Object).To(Equal(before.Object))
}
