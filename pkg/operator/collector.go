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

package operator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/cli-utils/pkg/object"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manifests"
)

// Collector owns the manifest sets and answers questions spanning all
// of them: versions, readiness, and the diff between desired documents
// and what the cluster actually holds.
type Collector struct {
	Applier Applier

	sets []*manifests.Manifests
}

// NewCollector groups the given manifest sets behind one applier.
func NewCollector(applier Applier, sets ...*manifests.Manifests) *Collector {
	return &Collector{Applier: applier, sets: sets}
}

// Sets returns the manifest sets in registration order.
func (c *Collector) Sets() []*manifests.Manifests { return c.sets }

// ShortVersion is the distinct current releases across all sets.
func (c *Collector) ShortVersion() string {
	seen := map[string]bool{}
	var releases []string
	for _, set := range c.sets {
		release, err := set.CurrentRelease()
		if err != nil {
			continue
		}
		if !seen[release] {
			seen[release] = true
			releases = append(releases, release)
		}
	}
	sort.Strings(releases)
	return strings.Join(releases, ",")
}

// LongVersion names the current release of every set.
func (c *Collector) LongVersion() string {
	var parts []string
	for _, set := range c.sets {
		release, err := set.CurrentRelease()
		if err != nil {
			release = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s=%s", set.Name, release))
	}
	return "Versions: " + strings.Join(parts, ", ")
}

// Versions lists every bundled release per set, newest first.
func (c *Collector) Versions() map[string][]string {
	out := map[string][]string{}
	for _, set := range c.sets {
		releases, err := set.Releases()
		if err != nil {
			continue
		}
		out[set.Name] = releases
	}
	return out
}

// Unready aggregates the reasons any set is not fully reconciled:
// unresolvable configuration first, then documents the cluster is
// missing.
func (c *Collector) Unready(ctx context.Context) ([]string, error) {
	var reasons []string
	for _, set := range c.sets {
		if msg := set.Evaluate(); msg != "" {
			reasons = append(reasons, msg)
			continue
		}
		analysis, err := c.analyze(ctx, set)
		if err != nil {
			return nil, err
		}
		if n := len(analysis.Missing); n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s: %d resources missing", set.DisplayName, n))
		}
	}
	return reasons, nil
}

// Analysis is the desired-vs-live diff of one manifest set.
type Analysis struct {
	Set *manifests.Manifests

	// Correct are desired documents present on the cluster, Extra are
	// owned live objects no longer desired, Missing are desired
	// documents the cluster lacks.
	Correct []object.ObjMetadata
	Extra   []object.ObjMetadata
	Missing []object.ObjMetadata

	expected []*unstructured.Unstructured
	live     []*unstructured.Unstructured
}

func (c *Collector) analyze(ctx context.Context, set *manifests.Manifests) (*Analysis, error) {
	expected, warnings, err := set.Resources()
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		log.Printf("%s", warning)
	}

	live, err := c.Applier.ListOwned(ctx,
		manifests.GroupVersionKinds(expected),
		manifests.OwnerLabels(set.Name, set.Application))
	if err != nil {
		return nil, err
	}

	expectedMeta := toObjMetadata(expected)
	liveMeta := toObjMetadata(live)

	missing := object.SetDiff(expectedMeta, liveMeta)
	extra := object.SetDiff(liveMeta, expectedMeta)
	correct := object.SetDiff(expectedMeta, missing)

	sortMeta(missing)
	sortMeta(extra)
	sortMeta(correct)

	return &Analysis{
		Set:      set,
		Correct:  correct,
		Extra:    extra,
		Missing:  missing,
		expected: expected,
		live:     live,
	}, nil
}

// ListResources returns the diff of every selected set. An empty
// controller selects all sets; resources filters by comma-separated
// kind names.
func (c *Collector) ListResources(ctx context.Context, controller, resources string) ([]*Analysis, error) {
	kinds := kindFilter(resources)

	var analyses []*Analysis
	for _, set := range c.selectSets(controller) {
		analysis, err := c.analyze(ctx, set)
		if err != nil {
			return nil, err
		}
		analysis.Correct = filterMeta(analysis.Correct, kinds)
		analysis.Extra = filterMeta(analysis.Extra, kinds)
		analysis.Missing = filterMeta(analysis.Missing, kinds)
		analyses = append(analyses, analysis)
	}
	return analyses, nil
}

// ScrubResources deletes owned live objects no longer part of the
// desired document set.
func (c *Collector) ScrubResources(ctx context.Context, controller, resources string) ([]*Analysis, error) {
	analyses, err := c.ListResources(ctx, controller, resources)
	if err != nil {
		return nil, err
	}
	for _, analysis := range analyses {
		extra := selectObjects(analysis.live, analysis.Extra)
		if len(extra) == 0 {
			continue
		}
		if _, err := c.Applier.DeleteManifests(ctx, extra); err != nil {
			return nil, err
		}
	}
	return analyses, nil
}

// ApplyMissing applies exactly the desired documents the cluster
// lacks.
func (c *Collector) ApplyMissing(ctx context.Context, controller, resources string) ([]*Analysis, error) {
	analyses, err := c.ListResources(ctx, controller, resources)
	if err != nil {
		return nil, err
	}
	for _, analysis := range analyses {
		missing := selectObjects(analysis.expected, analysis.Missing)
		if len(missing) == 0 {
			continue
		}
		if _, err := c.Applier.ApplyManifests(ctx, missing); err != nil {
			return nil, err
		}
	}
	return analyses, nil
}

func (c *Collector) selectSets(controller string) []*manifests.Manifests {
	if controller == "" {
		return c.sets
	}
	var selected []*manifests.Manifests
	for _, set := range c.sets {
		if set.Name == controller {
			selected = append(selected, set)
		}
	}
	return selected
}

func toObjMetadata(objects []*unstructured.Unstructured) []object.ObjMetadata {
	metas := make([]object.ObjMetadata, 0, len(objects))
	for _, obj := range objects {
		metas = append(metas, object.UnstructuredToObjMeta(obj))
	}
	return metas
}

func sortMeta(metas []object.ObjMetadata) {
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].String() < metas[j].String()
	})
}

func kindFilter(resources string) map[string]bool {
	kinds := map[string]bool{}
	for _, kind := range strings.Split(resources, ",") {
		kind = strings.TrimSpace(kind)
		if kind != "" {
			kinds[strings.ToLower(kind)] = true
		}
	}
	return kinds
}

func filterMeta(metas []object.ObjMetadata, kinds map[string]bool) []object.ObjMetadata {
	if len(kinds) == 0 {
		return metas
	}
	var filtered []object.ObjMetadata
	for _, meta := range metas {
		if kinds[strings.ToLower(meta.GroupKind.Kind)] {
			filtered = append(filtered, meta)
		}
	}
	return filtered
}

func selectObjects(objects []*unstructured.Unstructured, metas []object.ObjMetadata) []*unstructured.Unstructured {
	want := map[string]bool{}
	for _, meta := range metas {
		want[meta.String()] = true
	}
	var selected []*unstructured.Unstructured
	for _, obj := range objects {
		if want[object.UnstructuredToObjMeta(obj).String()] {
			selected = append(selected, obj)
		}
	}
	return selected
}
