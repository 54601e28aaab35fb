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
	"encoding/json"
	"log"
	"math/rand"
	"strconv"
)

// AzureEndpoint is the relation endpoint to the azure integrator.
const AzureEndpoint = "azure-integration"

// azureRequiredFields are the databag fields that must be present and
// non-empty before the integration counts as ready.
var azureRequiredFields = []string{
	"resource-group-location",
	"vnet-name",
	"vnet-resource-group",
	"subnet-name",
	"security-group-name",
	"security-group-resource-group",
	"aad-client",
	"aad-client-secret",
	"tenant-id",
	"use-managed-identity",
}

// AzureIntegration is the requires side of the azure-integration
// relation: cloud credentials and network topology from the databag,
// instance identity from the metadata service, and outbound feature
// requests published back to the integrator.
type AzureIntegration struct {
	Endpoint string
	Metadata *InstanceMetadata

	bag       *Databag
	published map[string]string
}

// NewAzureIntegration wraps the given databag snapshot. A nil bag means
// the relation does not exist.
func NewAzureIntegration(bag *Databag, metadata *InstanceMetadata) *AzureIntegration {
	return &AzureIntegration{
		Endpoint:  AzureEndpoint,
		Metadata:  metadata,
		bag:       bag,
		published: map[string]string{},
	}
}

// IsReady reports whether the integrator has published structurally
// valid data for every required field.
func (r *AzureIntegration) IsReady() bool {
	data := r.bag.UnitData()
	if data == nil {
		log.Printf("%s relation data not yet available.", r.Endpoint)
		return false
	}
	for _, field := range azureRequiredFields {
		if data[field] == "" {
			log.Printf("%s relation data not yet valid: missing %s", r.Endpoint, field)
			return false
		}
	}
	if _, err := strconv.ParseBool(data["use-managed-identity"]); err != nil {
		log.Printf("%s relation data not yet valid: %v", r.Endpoint, err)
		return false
	}
	return true
}

// EvaluateRelation reports why the relation blocks reconciliation, or
// "" when it is ready.
func (r *AzureIntegration) EvaluateRelation(ev Event) string {
	return evaluateRelation(r.Endpoint, r.bag, r.IsReady(), ev)
}

func (r *AzureIntegration) field(name string) string {
	if !r.IsReady() {
		return ""
	}
	return r.bag.UnitData()[name]
}

func (r *AzureIntegration) TenantID() string              { return r.field("tenant-id") }
func (r *AzureIntegration) AADClient() string             { return r.field("aad-client") }
func (r *AzureIntegration) AADClientSecret() string       { return r.field("aad-client-secret") }
func (r *AzureIntegration) ResourceGroupLocation() string { return r.field("resource-group-location") }
func (r *AzureIntegration) VnetName() string              { return r.field("vnet-name") }
func (r *AzureIntegration) VnetResourceGroup() string     { return r.field("vnet-resource-group") }
func (r *AzureIntegration) SubnetName() string            { return r.field("subnet-name") }
func (r *AzureIntegration) SecurityGroupName() string     { return r.field("security-group-name") }

func (r *AzureIntegration) UseManagedIdentity() bool {
	v, _ := strconv.ParseBool(r.field("use-managed-identity"))
	return v
}

// ResourceGroup is the resource group of this unit's VM, from the
// metadata service.
func (r *AzureIntegration) ResourceGroup() (string, error) {
	compute, err := r.Metadata.Compute()
	if err != nil {
		return "", err
	}
	return compute.ResourceGroupName, nil
}

// SubscriptionID is the Azure subscription this unit's VM runs in.
func (r *AzureIntegration) SubscriptionID() (string, error) {
	compute, err := r.Metadata.Compute()
	if err != nil {
		return "", err
	}
	return compute.SubscriptionID, nil
}

// VMID is this unit's instance ID.
func (r *AzureIntegration) VMID() (string, error) {
	compute, err := r.Metadata.Compute()
	if err != nil {
		return "", err
	}
	return compute.VMID, nil
}

// VMName is this unit's instance name.
func (r *AzureIntegration) VMName() (string, error) {
	compute, err := r.Metadata.Compute()
	if err != nil {
		return "", err
	}
	return compute.Name, nil
}

// PublishIdentity shares this unit's instance identity with the
// integrator. The instance values come from the metadata service.
func (r *AzureIntegration) PublishIdentity(charm, modelUUID string) error {
	vmID, err := r.VMID()
	if err != nil {
		return err
	}
	vmName, err := r.VMName()
	if err != nil {
		return err
	}
	resourceGroup, err := r.ResourceGroup()
	if err != nil {
		return err
	}
	r.published["charm"] = charm
	r.published["vm-id"] = vmID
	r.published["vm-name"] = vmName
	r.published["res-group"] = resourceGroup
	r.published["model-uuid"] = modelUUID
	return nil
}

func (r *AzureIntegration) request(keyvals map[string]interface{}) error {
	for key, value := range keyvals {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		r.published[key] = string(data)
	}
	r.published["requested"] = nonce(8)
	return nil
}

// TagInstance requests that the given tags be applied to this unit's
// instance by the integrator.
func (r *AzureIntegration) TagInstance(tags map[string]string) error {
	return r.request(map[string]interface{}{"instance-tags": tags})
}

// EnableLoadBalancerManagement requests load balancer permissions.
func (r *AzureIntegration) EnableLoadBalancerManagement() error {
	return r.request(map[string]interface{}{"enable-loadbalancer-management": true})
}

// EnableBlockStorageManagement requests block storage permissions.
func (r *AzureIntegration) EnableBlockStorageManagement() error {
	return r.request(map[string]interface{}{"enable-block-storage-management": true})
}

// Published exposes the pending outbound databag entries.
func (r *AzureIntegration) Published() map[string]string {
	return r.published
}

var nonceRunes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

func nonce(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = nonceRunes[rand.Intn(len(nonceRunes))]
	}
	return string(b)
}
