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
	"sort"

	"github.com/fluxcd/pkg/ssa"
	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/registry"
)

var pushReleaseCmd = &cobra.Command{
	Use:   "push-release OCIURL",
	Short: "Push-release uploads a bundled manifest release to a container registry.",
	Long: `The push-release command packages the unconfigured manifests of one
bundled release into an OCI artifact and pushes it to the container
registry. The payload can be encrypted with age public keys.
The command uses the credentials from '~/.docker/config.json'.`,
	Example: `  # Push the current cloud-controller release to GitHub Container Registry
  azure-cloud-provider push-release oci://ghcr.io/org/azure-cloud-provider:v1.24.0 --controller azure-cloud-provider

  # Push an encrypted release to a local registry
  azure-cloud-provider push-release oci://localhost:5000/releases:v1.21.0 \
    --controller disk-driver-azure --age-recipients ./recipients.txt
`,
	RunE: runPushReleaseCmd,
}

type pushReleaseFlags struct {
	controller    string
	release       string
	ageRecipients string
}

var pushReleaseArgs pushReleaseFlags

func init() {
	pushReleaseCmd.Flags().StringVar(&pushReleaseArgs.controller, "controller", "",
		"The manifest set to push a release of.")
	pushReleaseCmd.Flags().StringVar(&pushReleaseArgs.release, "release", "",
		"The bundled release to push. Defaults to the current release.")
	pushReleaseCmd.Flags().StringVar(&pushReleaseArgs.ageRecipients, "age-recipients", "",
		"Path to a file containing age public keys to encrypt the payload for.")

	rootCmd.AddCommand(pushReleaseCmd)
}

func runPushReleaseCmd(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("you must specify an artifact name e.g. 'oci://docker.io/org/repo:tag'")
	}
	if pushReleaseArgs.controller == "" {
		return fmt.Errorf("you must specify a controller with --controller")
	}

	url, err := registry.ParseURL(args[0])
	if err != nil {
		return err
	}

	s, err := loadSources()
	if err != nil {
		return err
	}

	sets := selectSets(s.sets, pushReleaseArgs.controller)
	if len(sets) == 0 {
		return fmt.Errorf("unknown controller %q", pushReleaseArgs.controller)
	}
	set := sets[0]

	release := pushReleaseArgs.release
	if release == "" {
		if release, err = set.CurrentRelease(); err != nil {
			return err
		}
	}

	objects, err := set.BaseResources(release)
	if err != nil {
		return err
	}
	sort.Sort(ssa.SortableUnstructureds(objects))

	yml, err := ssa.ObjectsToYAML(objects)
	if err != nil {
		return err
	}

	recipients, err := registry.ParseAgeRecipients(pushReleaseArgs.ageRecipients)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	logger.Println("pushing release", release, "to", url)
	digest, err := registry.PushRelease(ctx, url, set.Name, release, []byte(yml), recipients)
	if err != nil {
		return fmt.Errorf("pushing release failed: %w", err)
	}

	logger.Println("published digest", digest)

	return nil
}
