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

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/operator"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/relation"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile processes one lifecycle event end to end.",
	Long: `The reconcile command merges the relation databags and the user overrides
into the manifest configuration and applies the manifest sets to the
cluster when the configuration changed since the last deployment.`,
	Example: `  # React to a change on the kube-control relation
  azure-cloud-provider reconcile --event kube-control-relation-changed

  # React to a configuration change
  azure-cloud-provider reconcile --event config-changed
`,
	RunE: runReconcileCmd,
}

type reconcileFlags struct {
	event string
}

var reconcileArgs reconcileFlags

func init() {
	reconcileCmd.Flags().StringVar(&reconcileArgs.event, "event", "",
		"The lifecycle event being dispatched, e.g. 'azure-integration-relation-changed'.")

	rootCmd.AddCommand(reconcileCmd)
}

func runReconcileCmd(cmd *cobra.Command, args []string) error {
	if reconcileArgs.event == "" {
		return fmt.Errorf("you must specify an event name with --event")
	}

	ev, err := relation.ParseEvent(reconcileArgs.event)
	if err != nil {
		return err
	}

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

	res, err := s.operator(applier).Reconcile(ctx, ev)
	if err != nil {
		return err
	}

	if err := s.flushPublished(); err != nil {
		return err
	}

	printResult(cmd, res)
	return nil
}

func printResult(cmd *cobra.Command, res operator.Result) {
	if res.Status.Kind != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Status.Kind, res.Status.Message)
	}
	if res.Requeue {
		fmt.Fprintln(cmd.OutOrStdout(), "requeue: true")
	}
}
