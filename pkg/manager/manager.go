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

// Package manager applies, lists and deletes manifest documents on the
// cluster with server-side apply, and classifies the transient API
// server failures the reconciliation loop defers on.
package manager

import (
	"context"
	"sort"
	"time"

	"github.com/fluxcd/pkg/ssa"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/cli-utils/pkg/kstatus/polling"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ResourceManager reconciles sets of unstructured documents against the
// cluster using server-side apply with this operator as field manager.
type ResourceManager struct {
	manager *ssa.ResourceManager

	waitInterval time.Duration
	waitTimeout  time.Duration
}

// NewResourceManager returns a resource manager owning its applied
// fields under the given manager name and group.
func NewResourceManager(kubeClient client.Client, poller *polling.StatusPoller, owner ssa.Owner) *ResourceManager {
	return &ResourceManager{
		manager:      ssa.NewResourceManager(kubeClient, poller, owner),
		waitInterval: 2 * time.Second,
		waitTimeout:  time.Minute,
	}
}

// ApplyManifests applies the documents in two stages: cluster
// definitions (namespaces, CRDs) first, waiting for them to register,
// then everything else in kind order. The returned change set entries
// describe every action taken.
func (m *ResourceManager) ApplyManifests(ctx context.Context, objects []*unstructured.Unstructured) (*ssa.ChangeSet, error) {
	sort.Sort(ssa.SortableUnstructureds(objects))

	var stageOne, stageTwo []*unstructured.Unstructured
	for _, obj := range objects {
		if ssa.IsClusterDefinition(obj) {
			stageOne = append(stageOne, obj)
		} else {
			stageTwo = append(stageTwo, obj)
		}
	}

	changeSet := ssa.NewChangeSet()
	if len(stageOne) > 0 {
		cs, err := m.manager.ApplyAll(ctx, stageOne, ssa.DefaultApplyOptions())
		if err != nil {
			return nil, classify(err)
		}
		changeSet.Append(cs.Entries)

		waitOpts := ssa.DefaultWaitOptions()
		waitOpts.Interval = m.waitInterval
		waitOpts.Timeout = m.waitTimeout
		if err := m.manager.Wait(stageOne, waitOpts); err != nil {
			return nil, classify(err)
		}
	}

	if len(stageTwo) > 0 {
		cs, err := m.manager.ApplyAll(ctx, stageTwo, ssa.DefaultApplyOptions())
		if err != nil {
			return nil, classify(err)
		}
		changeSet.Append(cs.Entries)
	}

	return changeSet, nil
}

// DeleteManifests removes the documents from the cluster. Missing
// objects and authorization failures during teardown are ignored; the
// surrounding accounts may already be revoked when the operator stops.
func (m *ResourceManager) DeleteManifests(ctx context.Context, objects []*unstructured.Unstructured) (*ssa.ChangeSet, error) {
	sort.Sort(sort.Reverse(ssa.SortableUnstructureds(objects)))

	changeSet := ssa.NewChangeSet()
	for _, obj := range objects {
		cs, err := m.manager.Delete(ctx, obj, ssa.DefaultDeleteOptions())
		if err != nil {
			if apierrors.IsNotFound(err) || apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err) {
				continue
			}
			return nil, classify(err)
		}
		changeSet.Add(*cs)
	}
	return changeSet, nil
}

// WaitForTermination blocks until the given objects are gone.
func (m *ResourceManager) WaitForTermination(objects []*unstructured.Unstructured) error {
	waitOpts := ssa.DefaultWaitOptions()
	waitOpts.Interval = m.waitInterval
	waitOpts.Timeout = m.waitTimeout
	return m.manager.WaitForTermination(objects, waitOpts)
}

// ListOwned returns the live objects of the given kinds carrying all of
// the given ownership labels.
func (m *ResourceManager) ListOwned(ctx context.Context, gvks []schema.GroupVersionKind, labels map[string]string) ([]*unstructured.Unstructured, error) {
	var owned []*unstructured.Unstructured
	for _, gvk := range gvks {
		list := &unstructured.UnstructuredList{}
		list.SetGroupVersionKind(schema.GroupVersionKind{
			Group:   gvk.Group,
			Version: gvk.Version,
			Kind:    gvk.Kind + "List",
		})
		if err := m.manager.Client().List(ctx, list, client.MatchingLabels(labels)); err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			return nil, classify(err)
		}
		for i := range list.Items {
			item := list.Items[i]
			owned = append(owned, &item)
		}
	}
	return owned, nil
}
