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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manager"
)

var syncResourcesCmd = &cobra.Command{
	Use:   "sync-resources",
	Short: "Sync-resources applies the desired resources the cluster lacks.",
	RunE:  runSyncResourcesCmd,
}

var syncResourcesArgs resourceFlags

func init() {
	syncResourcesCmd.Flags().StringVar(&syncResourcesArgs.controller, "controller", "",
		"Restrict the sync to one controller by manifest set name.")
	syncResourcesCmd.Flags().StringVar(&syncResourcesArgs.resources, "resources", "",
		"Restrict the sync to a comma-separated list of resource kinds.")

	rootCmd.AddCommand(syncResourcesCmd)
}

func runSyncResourcesCmd(cmd *cobra.Command, args []string) error {
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
	analyses, err := collector.ApplyMissing(ctx, syncResourcesArgs.controller, syncResourcesArgs.resources)
	if err != nil {
		// an unreachable API server degrades the result, it does not
		// fail the action
		if manager.IsRetryable(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "Failed to apply missing resources. API Server unavailable.")
			return nil
		}
		return err
	}

	for _, analysis := range analyses {
		for _, meta := range analysis.Missing {
			logger.Println(`✔`, fmt.Sprintf("%s applied", meta.String()))
		}
	}

	return nil
}
