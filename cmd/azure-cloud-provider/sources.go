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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/config"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/disk"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/operator"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/provider"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/relation"
)

// sources bundles the configuration inputs of one invocation: the user
// overrides, the relation databags and the manifest sets derived from
// them.
type sources struct {
	config       *config.CharmConfig
	integrator   *relation.AzureIntegration
	kubeControl  *relation.KubeControl
	certificates *relation.Certificates
	sets         []*manifests.Manifests
}

func loadSources() (*sources, error) {
	charmConfig, err := config.Read(rootArgs.charmConfig)
	if err != nil {
		return nil, fmt.Errorf("loading the config failed: %w", err)
	}

	azureBag, err := loadDatabag(relation.AzureEndpoint)
	if err != nil {
		return nil, err
	}
	kubeControlBag, err := loadDatabag(relation.KubeControlEndpoint)
	if err != nil {
		return nil, err
	}
	certificatesBag, err := loadDatabag(relation.CertificatesEndpoint)
	if err != nil {
		return nil, err
	}

	metadata := relation.NewInstanceMetadata()
	if rootArgs.metadataEndpoint != "" {
		metadata.Endpoint = rootArgs.metadataEndpoint
	}

	s := &sources{
		config:       charmConfig,
		integrator:   relation.NewAzureIntegration(azureBag, metadata),
		kubeControl:  relation.NewKubeControl(kubeControlBag),
		certificates: relation.NewCertificates(certificatesBag),
	}

	application := applicationName(rootArgs.unitName)
	providerSet, err := provider.NewManifests(application, charmConfig, s.integrator, s.kubeControl)
	if err != nil {
		return nil, err
	}
	diskSet, err := disk.NewManifests(application, charmConfig, s.integrator, s.kubeControl)
	if err != nil {
		return nil, err
	}
	s.sets = []*manifests.Manifests{providerSet, diskSet}

	return s, nil
}

func loadDatabag(endpoint string) (*relation.Databag, error) {
	return relation.LoadDatabag(filepath.Join(rootArgs.relationData, endpoint+".yaml"))
}

// operator wires the sources and the given cluster boundary into one
// reconciliation cycle.
func (s *sources) operator(applier operator.Applier) *operator.Operator {
	return &operator.Operator{
		UnitName:     rootArgs.unitName,
		ModelUUID:    rootArgs.modelUUID,
		CAPath:       rootArgs.caCertPath,
		Integrator:   s.integrator,
		KubeControl:  s.kubeControl,
		Certificates: s.certificates,
		Config:       s.config,
		Collector:    operator.NewCollector(applier, s.sets...),
		Store:        &operator.FileStore{Path: rootArgs.stateFile},
	}
}

// flushPublished writes the pending outbound databag entries next to
// the inbound snapshots, one <endpoint>-publish.yaml per endpoint, for
// the surrounding framework to pick up.
func (s *sources) flushPublished() error {
	pending := map[string]map[string]string{
		relation.AzureEndpoint:       s.integrator.Published(),
		relation.KubeControlEndpoint: s.kubeControl.Published(),
	}
	for endpoint, data := range pending {
		if len(data) == 0 {
			continue
		}
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		path := filepath.Join(rootArgs.relationData, endpoint+"-publish.yaml")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0644); err != nil {
			return err
		}
	}
	return nil
}

func applicationName(unitName string) string {
	return strings.SplitN(unitName, "/", 2)[0]
}
