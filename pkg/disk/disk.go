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

// Package disk assembles the Azure Disk CSI driver manifest set: the
// csi-azuredisk controller and node driver, their credentials secret
// and a default storage class.
package disk

import (
	"embed"
	"io/fs"
	"log"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/provider"
)

//go:embed upstream/azure_disk
var bundle embed.FS

// NewManifests builds the disk driver manifest set for the given
// sources. The returned set recomputes its configuration from live
// source state on every call.
func NewManifests(application string, cfg provider.CharmConfig, integrator provider.Integrator, kubeControl provider.KubeControl) (*manifests.Manifests, error) {
	sub, err := fs.Sub(bundle, "upstream/azure_disk")
	if err != nil {
		return nil, err
	}

	configFn := func() manifests.Snapshot {
		return buildConfig(cfg, integrator, kubeControl)
	}

	return manifests.New(
		"disk-driver-azure",
		"AzureDisk",
		application,
		sub,
		configFn,
		manifests.ManifestLabel{Name: "disk-driver-azure", Application: application},
		manifests.ConfigRegistry{},
		UpdateControllerDeployment{},
		UpdateNode{},
		WriteSecret{},
		CreateStorageClass{Type: "default"},
	), nil
}

func buildConfig(cfg provider.CharmConfig, integrator provider.Integrator, kubeControl provider.KubeControl) manifests.Snapshot {
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
			log.Printf("azuredisk: resource group unavailable: %v", err)
		}
		if sub, err := integrator.SubscriptionID(); err == nil {
			config["subscription-id"] = sub
		} else {
			log.Printf("azuredisk: subscription id unavailable: %v", err)
		}
	}

	if kubeControl.IsReady() {
		config["image-registry"] = kubeControl.RegistryLocation()
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
	config.Rename("azuredisk-release", "release")
	return config
}
