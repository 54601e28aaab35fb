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

// Package provider assembles the out-of-tree Azure cloud provider
// manifest set: the cloud-controller-manager deployment, the
// cloud-node-manager daemonset and their cloud-config secret.
package provider

import (
	"embed"
	"io/fs"
	"log"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
)

//go:embed upstream/cloud_provider
var bundle embed.FS

// SecretName is the cloud-config secret shipped with the upstream
// manifests and patched with live credentials.
const SecretName = "azure-cloud-config"

// Integrator supplies the cloud credentials and network topology from
// the azure-integration relation and the instance-metadata service.
type Integrator interface {
	IsReady() bool
	TenantID() string
	AADClient() string
	AADClientSecret() string
	ResourceGroupLocation() string
	VnetName() string
	VnetResourceGroup() string
	SubnetName() string
	SecurityGroupName() string
	ResourceGroup() (string, error)
	SubscriptionID() (string, error)
}

// KubeControl supplies cluster identity and control-plane topology.
type KubeControl interface {
	IsReady() bool
	RegistryLocation() string
	ClusterTag() string
	ControllerLabels() map[string]string
	UnitCount() int
	Application() string
}

// CharmConfig supplies the user overrides, which always win.
type CharmConfig interface {
	AvailableData() map[string]interface{}
}

// NewManifests builds the cloud provider manifest set for the given
// sources. The returned set recomputes its configuration from live
// source state on every call.
func NewManifests(application string, cfg CharmConfig, integrator Integrator, kubeControl KubeControl) (*manifests.Manifests, error) {
	sub, err := fs.Sub(bundle, "upstream/cloud_provider")
	if err != nil {
		return nil, err
	}

	configFn := func() manifests.Snapshot {
		return buildConfig(cfg, integrator, kubeControl)
	}

	return manifests.New(
		"azure-cloud-provider",
		"Provider",
		application,
		sub,
		configFn,
		manifests.ManifestLabel{Name: "azure-cloud-provider", Application: application},
		manifests.ConfigRegistry{},
		UpdateSecret{},
		UpdateControllerDeployment{},
		UpdateNode{},
	), nil
}

func buildConfig(cfg CharmConfig, integrator Integrator, kubeControl KubeControl) manifests.Snapshot {
	config := manifests.Snapshot{}

	if integrator.IsReady() {
		config["tenant-id"] = integrator.TenantID()
		config["aad-client-id"] = integrator.AADClient()
		config["aad-client-secret"] = integrator.AADClientSecret()
		config["location"] = integrator.ResourceGroupLocation()
		config["subnet-name"] = integrator.SubnetName()
		config["security-group-name"] = integrator.SecurityGroupName()
		config["vnet-name"] = integrator.VnetName()
		config["vnet-resource-group"] = integrator.VnetResourceGroup()

		if rg, err := integrator.ResourceGroup(); err == nil {
			config["resource-group"] = rg
		} else {
			log.Printf("provider: resource group unavailable: %v", err)
		}
		if sub, err := integrator.SubscriptionID(); err == nil {
			config["subscription-id"] = sub
		} else {
			log.Printf("provider: subscription id unavailable: %v", err)
		}
	}

	if kubeControl.IsReady() {
		config["image-registry"] = kubeControl.RegistryLocation()
		config["cluster-tag"] = kubeControl.ClusterTag()
		if labels := kubeControl.ControllerLabels(); len(labels) > 0 {
			config["control-node-selector"] = labels
		} else {
			config["control-node-selector"] = map[string]string{
				"juju-application": kubeControl.Application(),
			}
		}
		config["replicas"] = kubeControl.UnitCount()
	}

	for key, value := range cfg.AvailableData() {
		config[key] = value
	}

	config.Prune()
	config.Rename("provider-release", "release")
	return config
}
