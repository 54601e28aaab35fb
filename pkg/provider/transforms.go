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

package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
)

const (
	controllerName  = "cloud-controller-manager"
	nodeManagerName = "cloud-node-manager"
)

// cloudConfigRequired are the azure.json fields that must be sourced
// from the integration before the secret can be rendered.
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

// cloudConfigOptional are azure.json fields the user may set; absent
// values clear a previously rendered field.
var cloudConfigOptional = []string{
	"load-balancer-sku",
	"primary-availability-set-name",
	"primary-scale-set-name",
	"route-table-name",
	"vm-type",
}

// UpdateSecret merges the live cloud credentials into the azure.json
// document of the bundled cloud-config secret.
type UpdateSecret struct{}

func (t UpdateSecret) Required() []string { return cloudConfigRequired }

func (t UpdateSecret) Apply(config manifests.Snapshot, obj *unstructured.Unstructured) error {
	if obj.GetKind() != "Secret" || obj.GetName() != SecretName {
		return nil
	}
	for _, key := range cloudConfigRequired {
		if config.GetString(key) == "" {
			return fmt.Errorf("secret data item %s unavailable", key)
		}
	}

	raw, found, err := unstructured.NestedString(obj.Object, "stringData", "azure.json")
	if err != nil || !found {
		return fmt.Errorf("secret %s has no azure.json payload", SecretName)
	}

	payload := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("secret %s azure.json not parseable: %w", SecretName, err)
	}

	manifests.MergeCloudConfig(payload, config, cloudConfigRequired, cloudConfigOptional)

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return unstructured.SetNestedField(obj.Object, string(data), "stringData", "azure.json")
}

// UpdateControllerDeployment pins the cloud-controller-manager onto the
// control-plane nodes and aligns its arguments with the route handling
// this cluster performs itself.
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

	return updateContainer(obj, controllerName, func(container map[string]interface{}) error {
		rewriteControllerArgs(container, config.GetString("cluster-tag"))
		return nil
	})
}

// rewriteControllerArgs forces off the route controller, drops the
// arguments it owned, and names the cluster after the cluster tag.
// Existing argument order is preserved and arguments without a value
// pass through untouched; new arguments append.
func rewriteControllerArgs(container map[string]interface{}, clusterTag string) {
	raw, _ := container["args"].([]interface{})

	var order []string
	values := map[string]string{}
	bare := map[string]bool{}
	for _, a := range raw {
		arg, ok := a.(string)
		if !ok {
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		key := parts[0]
		if _, seen := values[key]; !seen && !bare[key] {
			order = append(order, key)
		}
		if len(parts) == 2 {
			values[key] = parts[1]
		} else {
			bare[key] = true
		}
	}

	set := func(key, value string) {
		if _, seen := values[key]; !seen && !bare[key] {
			order = append(order, key)
		}
		delete(bare, key)
		values[key] = value
	}
	drop := func(key string) {
		delete(values, key)
		delete(bare, key)
	}
	set("--allocate-node-cidrs", "false")
	set("--configure-cloud-routes", "false")
	drop("--cluster-cidr")
	drop("--route-reconciliation-period")
	if clusterTag != "" {
		set("--cluster-name", clusterTag)
	}

	args := make([]interface{}, 0, len(order))
	for _, key := range order {
		if value, ok := values[key]; ok {
			args = append(args, fmt.Sprintf("%s=%s", key, value))
		} else if bare[key] {
			args = append(args, key)
		}
	}
	container["args"] = args
}

// UpdateNode pins the cloud-node-manager tolerations to the
// control-plane taints and disables route waiting, which this cloud
// provider never configures.
type UpdateNode struct{}

func (t UpdateNode) Required() []string { return []string{"control-node-selector"} }

func (t UpdateNode) Apply(config manifests.Snapshot, obj *unstructured.Unstructured) error {
	if obj.GetKind() != "DaemonSet" || obj.GetName() != nodeManagerName {
		return nil
	}
	selector, ok := config.GetStringMap("control-node-selector")
	if !ok || len(selector) == 0 {
		return fmt.Errorf("control-node-selector was an unexpected type")
	}

	if err := manifests.UpdateTolerations(obj, manifests.ControlPlaneTolerations(selector)); err != nil {
		return err
	}

	return updateContainer(obj, nodeManagerName, func(container map[string]interface{}) error {
		command, _ := container["command"].([]interface{})
		if len(command) == 0 {
			return fmt.Errorf("%s container has no command", nodeManagerName)
		}
		last, _ := command[len(command)-1].(string)
		if !strings.Contains(last, "--wait-routes") {
			return fmt.Errorf("%s command does not end with --wait-routes", nodeManagerName)
		}
		command[len(command)-1] = "--wait-routes=false"
		container["command"] = command
		return nil
	})
}

// updateContainer mutates the named container of obj's pod template in
// place via fn. A missing container is not an error.
func updateContainer(obj *unstructured.Unstructured, name string, fn func(map[string]interface{}) error) error {
	path := []string{"spec", "template", "spec", "containers"}
	if obj.GetKind() == "Pod" {
		path = []string{"spec", "containers"}
	}

	containers, found, err := unstructured.NestedSlice(obj.Object, path...)
	if err != nil || !found {
		return err
	}
	for i, c := range containers {
		container, ok := c.(map[string]interface{})
		if !ok || container["name"] != name {
			continue
		}
		if err := fn(container); err != nil {
			return err
		}
		containers[i] = container
	}
	return unstructured.SetNestedSlice(obj.Object, containers, path...)
}
