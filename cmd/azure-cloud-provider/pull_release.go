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
	"os"

	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/registry"
)

var pullReleaseCmd = &cobra.Command{
	Use:   "pull-release OCIURL",
	Short: "Pull-release downloads a manifest release from a container registry.",
	Long: `The pull-release command fetches a release artifact, verifies its
checksum and prints the manifests to stdout or writes them to a file.
Encrypted payloads require a matching age identity.`,
	Example: `  # Print a release to stdout
  azure-cloud-provider pull-release oci://ghcr.io/org/azure-cloud-provider:v1.24.0

  # Decrypt a release and save it
  azure-cloud-provider pull-release oci://localhost:5000/releases:v1.21.0 \
    --age-identities ./identity.txt --output ./release.yaml
`,
	RunE: runPullReleaseCmd,
}

type pullReleaseFlags struct {
	ageIdentities string
	output        string
}

var pullReleaseArgs pullReleaseFlags

func init() {
	pullReleaseCmd.Flags().StringVar(&pullReleaseArgs.ageIdentities, "age-identities", "",
		"Path to a file containing age identities to decrypt the payload with.")
	pullReleaseCmd.Flags().StringVarP(&pullReleaseArgs.output, "output", "o", "",
		"Path to write the manifests to. Prints to stdout when unset.")

	rootCmd.AddCommand(pullReleaseCmd)
}

func runPullReleaseCmd(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("you must specify an artifact name e.g. 'oci://docker.io/org/repo:tag'")
	}

	url, err := registry.ParseURL(args[0])
	if err != nil {
		return err
	}

	identities, err := registry.ParseAgeIdentities(pullReleaseArgs.ageIdentities)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	data, meta, err := registry.PullRelease(ctx, url, identities)
	if err != nil {
		return fmt.Errorf("pulling release failed: %w", err)
	}

	logger.Println("pulled", meta.Controller, meta.Release, "digest", meta.Digest)

	if pullReleaseArgs.output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	return os.WriteFile(pullReleaseArgs.output, data, 0644)
}
