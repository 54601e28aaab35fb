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
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
)

const (
	controllerName = "csi-azuredisk-controller"
	nodeDriverName = "csi-azuredisk-node"

	// secretName is the credentials secret the driver reads, see
	// https://github.com/kubernetes-sigs/azuredisk-csi-driver/blob/master/docs/read-from-secret.md
	secretName      = "azure-cloud-provider"
	secretNamespace = "kube-system"

	storageClassFmt = "csi-azure-%s"
)

var cloudConfigRequired = []string{
	"aad-client-id",
	"aad-client-secret",
	"resource-group",
	"location",
	"subnet-name",
	"security-group-name",
	"subscription-id",
	"tenant-id",
	"vnet-name",
	"vnet-resource-group",
}

var cloudConfigOptional = []string{
	"load-balancer-sku",
	"primary-availability-set-name",
	"primary-scale-set-name",
	"route-table-name",
	"vm-type",
}

// WriteSecret synthesizes the driver credentials secret from scratch:
// the upstream bundle ships none.
type WriteSecret struct{}

func (t WriteSecret) Required() []string { return cloudConfigRequired }

func (t WriteSecret) Create(config manifests.Snapshot) (*unstructured.Unstructured, error) {
	for _, key := range cloudConfigRequired {
		if config.GetString(key) == "" {
			return nil, fmt.Errorf("secret data item %s unavailable", key)
		}
	}

	payload := map[string]interface{}{
		"cloud":                               "AzurePublicCloud",
		"cloudProviderBackoff":                true,
		"cloudProviderBackoffRetries":         6,
		"cloudProviderBackoffExponent":        1.5,
		"cloudProviderBackoffDuration":        5,
		"cloudProviderBackoffJitter":          1,
		"cloudProviderRatelimit":              true,
		"cloudProviderRateLimitQPS":           6,
		"cloudProviderRateLimitBucket":        20,
		"useManagedIdentityExtension":         false,
		"userAssignedIdentityID":              "",
		"useInstanceMetadata":                 true,
		"excludeMasterFromStandardLB":         false,
		"maximumLoadBalancerRuleCount":        250,
		"enableMultipleStandardLoadBalancers": false,
		"tags":                                "a=b,c=d",
	}
	manifests.MergeCloudConfig(payload, config, cloudConfigRequired, cloudConfigOptional)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Secret",
		"metadata": map[string]interface{}{
			"name":      secretName,
			"namespace": secretNamespace,
		},
		"type": "Opaque",
		"data": map[string]interface{}{
			"cloud-config": base64.StdEncoding.EncodeToString(data),
		},
	}}, nil
}

// UpdateControllerDeployment pins the csi-azuredisk controller onto the
// control-plane nodes and spreads its replicas across them.
type UpdateControllerDeployment struct{}

func (t UpdateControllerDeployment) Required() []string { return []string{"control-node-selector"} }

func (t UpdateControllerDeployment) Apply(config manifests.Snapshot, obj *unstructured.Unstructured) error {
	if obj.GetKind() != "Deployment" || obj.GetName() != controllerName {
		return nil
	}
	selector, ok := config.GetStringMap("control-node-selector")
	if !ok || len(selector) == 0 {
		return fmt.Errorf("control-node-selector was an unexpected type")
	}

	if err := unstructured.SetNestedStringMap(obj.Object, selector, "spec", "template", "spec", "nodeSelector"); err != nil {
		return err
	}

	if replicas, ok := config.GetInt("replicas"); ok && replicas > 0 {
		if err := unstructured.SetNestedField(obj.Object, replicas, "spec", "replicas"); err != nil {
			return err
		}
	}

	if err := manifests.UpdateTolerations(obj, manifests.ControlPlaneTolerations(selector)); err != nil {
		return err
	}

	matchLabels, _, err := unstructured.NestedMap(obj.Object, "spec", "selector", "matchLabels")
	if err != nil {
		return err
	}
	constraint := map[string]interface{}{
		"maxSkew":           int64(1),
		"topologyKey":       "kubernetes.io/hostname",
		"whenUnsatisfiable": "DoNotSchedule",
		"labelSelector": map[string]interface{}{
			"matchLabels": matchLabels,
		},
	}
	return unstructured.SetNestedSlice(obj.Object, []interface{}{constraint},
		"spec", "template", "spec", "topologySpreadConstraints")
}

// UpdateNode validates the scheduling config for the node driver. The
// daemonset itself runs on every node and needs no rewrite.
type UpdateNode struct{}

func (t UpdateNode) Required() []string { return []string{"control-node-selector"} }

func (t UpdateNode) Apply(config manifests.Snapshot, obj *unstructured.Unstructured) error {
	if obj.GetKind() != "DaemonSet" || obj.GetName() != nodeDriverName {
		return nil
	}
	if selector, ok := config.GetStringMap("control-node-selector"); !ok || len(selector) == 0 {
		return fmt.Errorf("control-node-selector was an unexpected type")
	}
	return nil
}

// CreateStorageClass synthesizes the cluster default storage class
// backed by the disk driver.
type CreateStorageClass struct {
	Type string
}

func (t CreateStorageClass) Required() []string { return nil }

func (t CreateStorageClass) Create(_ manifests.Snapshot) (*unstructured.Unstructured, error) {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "storage.k8s.io/v1",
		"kind":       "StorageClass",
		"metadata": map[string]interface{}{
			"name": fmt.Sprintf(storageClassFmt, t.Type),
			"annotations": map[string]interface{}{
				"storageclass.kubernetes.io/is-default-class": "true",
			},
		},
		"provisioner": "disk.csi.azure.com",
		"parameters": map[string]interface{}{
			"skuName": "Standard_LRS",
		},
		"reclaimPolicy":        "Delete",
		"volumeBindingMode":    "WaitForFirstConsumer",
		"allowVolumeExpansion": true,
	}}, nil
}
