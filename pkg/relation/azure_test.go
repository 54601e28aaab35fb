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
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/gomega"
)

func azureDatabag() *Databag {
	return &Databag{
		Application: "azure-integrator",
		Units: map[string]map[string]string{
			"azure-integrator/0": {
				"tenant-id":                     "tenant-1234",
				"aad-client":                    "client-1234",
				"aad-client-secret":             "s3cr3t",
				"resource-group-location":       "eastus",
				"vnet-name":                     "vnet-1",
				"vnet-resource-group":           "vnet-rg-1",
				"subnet-name":                   "subnet-1",
				"security-group-name":           "sg-1",
				"security-group-resource-group": "sg-rg-1",
				"use-managed-identity":          "false",
			},
		},
	}
}

func TestAzureIsReady(t *testing.T) {
	g := NewWithT(t)

	r := NewAzureIntegration(azureDatabag(), NewInstanceMetadata())
	g.Expect(r.IsReady()).To(BeTrue())
	g.Expect(r.TenantID()).To(Equal("tenant-1234"))
	g.Expect(r.AADClient()).To(Equal("client-1234"))
	g.Expect(r.UseManagedIdentity()).To(BeFalse())

	bag := azureDatabag()
	delete(bag.Units["azure-integrator/0"], "vnet-name")
	r = NewAzureIntegration(bag, NewInstanceMetadata())
	g.Expect(r.IsReady()).To(BeFalse())
	g.Expect(r.TenantID()).To(BeEmpty())

	bag = azureDatabag()
	bag.Units["azure-integrator/0"]["use-managed-identity"] = "maybe"
	r = NewAzureIntegration(bag, NewInstanceMetadata())
	g.Expect(r.IsReady()).To(BeFalse())

	r = NewAzureIntegration(nil, NewInstanceMetadata())
	g.Expect(r.IsReady()).To(BeFalse())
}

func TestInstanceMetadata(t *testing.T) {
	g := NewWithT(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Metadata") != "true" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"compute": {
			"vmId": "vm-1234",
			"name": "machine-0",
			"location": "eastus",
			"resourceGroupName": "rg-1",
			"subscriptionId": "sub-1"
		}}`)
	}))
	defer srv.Close()

	metadata := NewInstanceMetadata()
	metadata.Endpoint = srv.URL

	r := NewAzureIntegration(azureDatabag(), metadata)

	rg, err := r.ResourceGroup()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(rg).To(Equal("rg-1"))

	sub, err := r.SubscriptionID()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(sub).To(Equal("sub-1"))

	vmID, err := r.VMID()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(vmID).To(Equal("vm-1234"))

	name, err := r.VMName()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(name).To(Equal("machine-0"))

	// the document is fetched once and cached
	g.Expect(requests).To(Equal(1))
}

func TestInstanceMetadata_Unavailable(t *testing.T) {
	g := NewWithT(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	metadata := NewInstanceMetadata()
	metadata.Endpoint = srv.URL

	r := NewAzureIntegration(azureDatabag(), metadata)
	_, err := r.ResourceGroup()
	g.Expect(err).To(HaveOccurred())
	g.Expect(r.PublishIdentity("azure-cloud-provider", "model-1")).ToNot(Succeed())
	g.Expect(r.Published()).To(BeEmpty())
}

func TestAzurePublishIdentity(t *testing.T) {
	g := NewWithT(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"compute": {
			"vmId": "vm-1234",
			"name": "machine-0",
			"resourceGroupName": "rg-1",
			"subscriptionId": "sub-1"
		}}`)
	}))
	defer srv.Close()

	metadata := NewInstanceMetadata()
	metadata.Endpoint = srv.URL

	r := NewAzureIntegration(azureDatabag(), metadata)
	g.Expect(r.PublishIdentity("azure-cloud-provider", "6b63e4bd-9067-4a9e-9def-d3c4e2a4e5ad")).To(Succeed())

	g.Expect(r.Published()).To(Equal(map[string]string{
		"charm":      "azure-cloud-provider",
		"vm-id":      "vm-1234",
		"vm-name":    "machine-0",
		"res-group":  "rg-1",
		"model-uuid": "6b63e4bd-9067-4a9e-9def-d3c4e2a4e5ad",
	}))
}

func TestAzureRequests(t *testing.T) {
	g := NewWithT(t)

	r := NewAzureIntegration(azureDatabag(), NewInstanceMetadata())

	g.Expect(r.TagInstance(map[string]string{"k8s-io-cluster-name": "kubernetes-abc"})).To(Succeed())
	g.Expect(r.EnableLoadBalancerManagement()).To(Succeed())
	g.Expect(r.EnableBlockStorageManagement()).To(Succeed())

	published := r.Published()
	g.Expect(published["instance-tags"]).To(MatchJSON(`{"k8s-io-cluster-name": "kubernetes-abc"}`))
	g.Expect(published["enable-loadbalancer-management"]).To(Equal("true"))
	g.Expect(published["enable-block-storage-management"]).To(Equal("true"))
	g.Expect(published["requested"]).To(HaveLen(8))
}
