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
)

var scrubResourcesCmd = &cobra.Command{
	Use:   "scrub-resources",
	Short: "Scrub-resources deletes owned resources that are no longer desired.",
	RunE:  runScrubResourcesCmd,
}

var scrubResourcesArgs resourceFlags

func init() {
	scrubResourcesCmd.Flags().StringVar(&scrubResourcesArgs.controller, "controller", "",
		"Restrict the scrub to one controller by manifest set name.")
	scrubResourcesCmd.Flags().StringVar(&scrubResourcesArgs.resources, "resources", "",
		"Restrict the scrub to a comma-separated list of resource kinds.")

	rootCmd.AddCommand(scrubResourcesCmd)
}

func runScrubResourcesCmd(cmd *cobra.Command, args []string) error {
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
	analyses, err := collector.ScrubResources(ctx, scrubResourcesArgs.controller, scrubResourcesArgs.resources)
	if err != nil {
		return err
	}

	for _, analysis := range analyses {
		for _, meta := range analysis.Extra {
			logger.Println(`✔`, fmt.Sprintf("%s deleted", meta.String()))
		}
	}

	return nil
}
