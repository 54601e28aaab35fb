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

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Cleanup removes every deployed resource from the cluster.",
	Long: `The cleanup command deletes the resources of every manifest set and
clears the recorded deployment state. Resources the operator is no
longer authorized to delete are skipped.`,
	RunE: runCleanupCmd,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanupCmd(cmd *cobra.Command, args []string) error {
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

	res, err := s.operator(applier).Cleanup(ctx)
	if err != nil {
		return err
	}

	printResult(cmd, res)
	return nil
}
