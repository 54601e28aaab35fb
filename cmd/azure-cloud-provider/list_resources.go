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
	"context"

	"github.com/spf13/cobra"
)

var listResourcesCmd = &cobra.Command{
	Use:   "list-resources",
	Short: "List-resources compares the deployed resources with the desired manifests.",
	Long: `The list-resources command lists the desired resources present on the
cluster (correct), the owned resources no longer desired (extra) and
the desired resources the cluster lacks (missing).`,
	Example: `  # List every resource of every controller
  azure-cloud-provider list-resources

  # List only the Secrets of the storage driver
  azure-cloud-provider list-resources --controller disk-driver-azure --resources secret
`,
	RunE: runListResourcesCmd,
}

type resourceFlags struct {
	controller string
	resources  string
}

var listResourcesArgs resourceFlags

func init() {
	listResourcesCmd.Flags().StringVar(&listResourcesArgs.controller, "controller", "",
		"Restrict the listing to one controller by manifest set name.")
	listResourcesCmd.Flags().StringVar(&listResourcesArgs.resources, "resources", "",
		"Restrict the listing to a comma-separated list of resource kinds.")

	rootCmd.AddCommand(listResourcesCmd)
}

func runListResourcesCmd(cmd *cobra.Command, args []string) error {
	s, err := loadSources()
	if err != nil {
		return err
	}

	applier, err := newApplier()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	collector := s.operator(applier).Collector
	analyses, err := collector.ListResources(ctx, listResourcesArgs.controller, listResourcesArgs.resources)
	if err != nil {
		return err
	}

	printTable(rootCmd.OutOrStdout(), []string{"controller", "resource", "status"}, analysisRows(analyses))

	return nil
}
