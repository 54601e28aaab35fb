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
	"strings"

	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/operator"
)

var listVersionsCmd = &cobra.Command{
	Use:   "list-versions",
	Short: "List-versions prints the bundled manifest releases of every controller.",
	RunE:  runListVersionsCmd,
}

func init() {
	rootCmd.AddCommand(listVersionsCmd)
}

func runListVersionsCmd(cmd *cobra.Command, args []string) error {
	s, err := loadSources()
	if err != nil {
		return err
	}

	collector := operator.NewCollector(nil, s.sets...)
	versions := collector.Versions()

	var rows [][]string
	for _, set := range collector.Sets() {
		current, err := set.CurrentRelease()
		if err != nil {
			current = "unknown"
		}
		rows = append(rows, []string{
			set.Name,
			current,
			strings.Join(versions[set.Name], " "),
		})
	}

	printTable(rootCmd.OutOrStdout(), []string{"controller", "current", "available"}, rows)

	return nil
}
