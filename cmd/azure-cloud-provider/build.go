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
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fluxcd/pkg/ssa"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/kustomize/api/krusty"
	kustypes "sigs.k8s.io/kustomize/api/types"
	"sigs.k8s.io/kustomize/kyaml/filesys"
	"sigs.k8s.io/yaml"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build renders the configured manifests and prints the multi-doc to stdout.",
	Long: `The build command runs the transform pipeline over the bundled manifests
using the current relation databags and user overrides, without talking
to the cluster. Kustomize overlays and patch files can be layered on
top of the rendered documents.`,
	Example: `  # Render the manifests of every controller
  azure-cloud-provider build

  # Render the storage driver with a local patch on top
  azure-cloud-provider build --controller disk-driver-azure -p ./patches.yaml
`,
	RunE: runBuildCmd,
}

type buildFlags struct {
	controller string
	kustomize  string
	patch      []string
}

var buildArgs buildFlags

func init() {
	buildCmd.Flags().StringVar(&buildArgs.controller, "controller", "",
		"Restrict the build to one controller by manifest set name.")
	buildCmd.Flags().StringVarP(&buildArgs.kustomize, "kustomize", "k", "",
		"Path to a directory that contains a kustomization.yaml to render alongside the bundled manifests.")
	buildCmd.Flags().StringSliceVarP(&buildArgs.patch, "patch", "p", nil,
		"Path to a kustomization file that contains a list of patches.")

	rootCmd.AddCommand(buildCmd)
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	s, err := loadSources()
	if err != nil {
		return err
	}

	var objects []*unstructured.Unstructured
	for _, set := range selectSets(s.sets, buildArgs.controller) {
		if msg := set.Evaluate(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		objs, warnings, err := set.Resources()
		if err != nil {
			return err
		}
		for _, warning := range warnings {
			logger.Println(`►`, warning)
		}
		objects = append(objects, objs...)
	}

	if buildArgs.kustomize != "" {
		data, err := buildKustomization(buildArgs.kustomize)
		if err != nil {
			return err
		}
		objs, err := ssa.ReadObjects(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", buildArgs.kustomize, err)
		}
		objects = append(objects, objs...)
	}

	for _, patchPath := range buildArgs.patch {
		data, err := applyPatches(patchPath, objects)
		if err != nil {
			return err
		}
		objs, err := ssa.ReadObjects(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", patchPath, err)
		}
		objects = objs
	}

	sort.Sort(ssa.SortableUnstructureds(objects))

	yml, err := ssa.ObjectsToYAML(objects)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), yml)

	return nil
}

func selectSets(sets []*manifests.Manifests, controller string) []*manifests.Manifests {
	if controller == "" {
		return sets
	}
	var out []*manifests.Manifests
	for _, set := range sets {
		if set.Name == controller {
			out = append(out, set)
		}
	}
	return out
}

var kustomizeBuildMutex sync.Mutex

func buildKustomization(base string) ([]byte, error) {
	kustomizeBuildMutex.Lock()
	defer kustomizeBuildMutex.Unlock()

	kfile := path.Join(base, "kustomization.yaml")

	fs := filesys.MakeFsOnDisk()
	if !fs.Exists(kfile) {
		return nil, fmt.Errorf("%s not found", kfile)
	}

	if path.IsAbs(base) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		base, err = filepath.Rel(wd, base)
		if err != nil {
			return nil, err
		}
	}

	buildOptions := &krusty.Options{
		LoadRestrictions: kustypes.LoadRestrictionsNone,
		PluginConfig:     kustypes.DisabledPluginConfig(),
	}

	k := krusty.MakeKustomizer(buildOptions)
	m, err := k.Run(fs, base)
	if err != nil {
		return nil, err
	}

	return m.AsYaml()
}

func applyPatches(kFilePath string, objects []*unstructured.Unstructured) ([]byte, error) {
	kustomizeBuildMutex.Lock()
	defer kustomizeBuildMutex.Unlock()

	data, err := os.ReadFile(kFilePath)
	if err != nil {
		return nil, err
	}

	template := kustypes.Kustomization{
		TypeMeta: kustypes.TypeMeta{
			APIVersion: kustypes.KustomizationVersion,
			Kind:       kustypes.KustomizationKind,
		},
	}

	if err := yaml.Unmarshal(data, &template); err != nil {
		return nil, err
	}

	if len(template.Patches) == 0 {
		return nil, fmt.Errorf("no patches found in %s", kFilePath)
	}

	fs := filesys.MakeFsInMemory()
	kustomization := kustypes.Kustomization{}
	kustomization.APIVersion = kustypes.KustomizationVersion
	kustomization.Kind = kustypes.KustomizationKind

	const input = "resources.yaml"
	kustomization.Resources = append(kustomization.Resources, input)
	yml, err := ssa.ObjectsToYAML(objects)
	if err != nil {
		return nil, err
	}

	if err := fs.WriteFile(input, []byte(yml)); err != nil {
		return nil, err
	}

	kustomization.Patches = template.Patches

	d, err := yaml.Marshal(kustomization)
	if err != nil {
		return nil, err
	}

	if err := fs.WriteFile("kustomization.yaml", d); err != nil {
		return nil, err
	}

	k := krusty.MakeKustomizer(krusty.MakeDefaultOptions())
	m, err := k.Run(fs, ".")
	if err != nil {
		return nil, err
	}

	return m.AsYaml()
}
