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
	"os"
	"time"

	"github.com/fluxcd/pkg/ssa"
	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
)

var VERSION = "1.0.0-dev.0"

const PROJECT = "azure-cloud-provider"

var rootCmd = &cobra.Command{
	Use:           PROJECT,
	Version:       VERSION,
	SilenceUsage:  true,
	SilenceErrors: true,
	Short:         "Operator for the out-of-tree Azure cloud provider and AzureDisk CSI driver.",
	Long: `The azure-cloud-provider operator deploys and reconciles the out-of-tree
Azure cloud-controller-manager and the AzureDisk CSI storage driver on a
Charmed Kubernetes cluster.

React to lifecycle events:

- azure-cloud-provider reconcile --event <hook-name>
- azure-cloud-provider status
- azure-cloud-provider cleanup

Inspect and repair the deployed resources:

- azure-cloud-provider list-versions
- azure-cloud-provider list-resources [--controller <name>] [--resources <kinds>]
- azure-cloud-provider scrub-resources [--controller <name>]
- azure-cloud-provider sync-resources [--controller <name>]

Render and distribute manifest releases:

- azure-cloud-provider build [--controller <name>] [-k <overlay path>] [-p <patch path>]
- azure-cloud-provider push-release oci://<image-url>:<tag> --controller <name>
- azure-cloud-provider pull-release oci://<image-url>:<tag>
`,
}

type rootFlags struct {
	timeout          time.Duration
	unitName         string
	modelUUID        string
	stateFile        string
	relationData     string
	charmConfig      string
	caCertPath       string
	metadataEndpoint string
}

var (
	rootArgs   = rootFlags{}
	logger     = stderrLogger{stderr: os.Stderr}
	applyOwner = ssa.Owner{
		Field: PROJECT,
		Group: manifests.LabelGroup,
	}
)

var kubeconfigArgs = genericclioptions.NewConfigFlags(false)

func init() {
	rootCmd.PersistentFlags().DurationVar(&rootArgs.timeout, "timeout", time.Minute,
		"The length of time to wait before giving up on the current operation.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.unitName, "unit-name", defaultUnitName(),
		"The operator unit name, e.g. 'azure-cloud-provider/0'.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.modelUUID, "model-uuid", os.Getenv("JUJU_MODEL_UUID"),
		"The UUID of the Juju model this unit runs in.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.stateFile, "state-file",
		"/var/lib/azure-cloud-provider/state.yaml",
		"Path to the file holding the operator state between invocations.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.relationData, "relation-data",
		"/var/lib/azure-cloud-provider/relations",
		"Path to the directory holding one databag snapshot per relation endpoint.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.charmConfig, "charm-config", "",
		"Path to the YAML file holding the user configuration overrides.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.caCertPath, "ca-cert-path",
		"/srv/kubernetes/ca.crt",
		"Path the cluster CA certificate is written to.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.metadataEndpoint, "imds-endpoint", "",
		"Override for the Azure instance-metadata service URL.")

	kubeconfigArgs.Timeout = nil
	kubeconfigArgs.Namespace = nil
	kubeconfigArgs.AddFlags(rootCmd.PersistentFlags())

	rootCmd.DisableAutoGenTag = true
	rootCmd.SetOut(os.Stdout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Println(`✗`, err)
		os.Exit(1)
	}
}

func defaultUnitName() string {
	if name := os.Getenv("JUJU_UNIT_NAME"); name != "" {
		return name
	}
	return PROJECT + "/0"
}
