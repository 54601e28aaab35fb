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

// Package operator runs the reconciliation cycle: gate on source
// readiness, fingerprint the aggregated configuration, and apply the
// transformed manifest sets when the fingerprint moves.
package operator

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fluxcd/pkg/ssa"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/manager"
	"github.com/charmed-kubernetes/azure-cloud-provider-operator/pkg/relation"
)

// StatusKind is the coarse operator state reported to the user.
type StatusKind string

const (
	Maintenance StatusKind = "maintenance"
	Blocked     StatusKind = "blocked"
	Waiting     StatusKind = "waiting"
	Active      StatusKind = "active"
)

// Status is the operator state with a human-readable reason.
type Status struct {
	Kind    StatusKind
	Message string
}

// Result is the outcome of one cycle. Requeue asks the caller to run
// the same event again once the cluster settles.
type Result struct {
	Status  Status
	Requeue bool
}

// Applier is the cluster boundary of the cycle, satisfied by
// manager.ResourceManager.
type Applier interface {
	ApplyManifests(ctx context.Context, objects []*unstructured.Unstructured) (*ssa.ChangeSet, error)
	DeleteManifests(ctx context.Context, objects []*unstructured.Unstructured) (*ssa.ChangeSet, error)
	ListOwned(ctx context.Context, gvks []schema.GroupVersionKind, labels map[string]string) ([]*unstructured.Unstructured, error)
}

// Integrator is the azure-integration source from the cycle's view.
type Integrator interface {
	EvaluateRelation(relation.Event) string
	PublishIdentity(charm, modelUUID string) error
	TagInstance(tags map[string]string) error
	EnableLoadBalancerManagement() error
	EnableBlockStorageManagement() error
}

// KubeControl is the kube-control source from the cycle's view.
type KubeControl interface {
	EvaluateRelation(relation.Event) string
	CACertificate() string
	ClusterTag() string
	HasAuthCredentials(user string) bool
	SetAuthRequest(user, group string) error
}

// Certificates is the certificate-authority fallback source.
type Certificates interface {
	EvaluateRelation(relation.Event) string
	CA() string
}

// CharmConfig validates the user overrides.
type CharmConfig interface {
	Evaluate() string
}

// Operator wires the sources, the collector and the cluster boundary
// into the reconciliation cycle. One cycle runs at a time; there is no
// internal concurrency.
type Operator struct {
	UnitName  string
	ModelUUID string
	CAPath    string

	Integrator   Integrator
	KubeControl  KubeControl
	Certificates Certificates
	Config       CharmConfig
	Collector    *Collector
	Store        Store
}

// Reconcile processes one lifecycle event end to end.
func (o *Operator) Reconcile(ctx context.Context, ev relation.Event) (Result, error) {
	if ev.Kind == relation.Stop {
		return o.Cleanup(ctx)
	}
	if err := o.handleSideEffects(ev); err != nil {
		return Result{}, err
	}
	if ev.Kind == relation.UpdateStatus {
		return o.UpdateStatus(ctx)
	}
	return o.mergeConfig(ctx, ev)
}

// handleSideEffects performs the per-event outbound requests before the
// shared merge cycle runs.
func (o *Operator) handleSideEffects(ev relation.Event) error {
	switch {
	case ev.Endpoint == relation.KubeControlEndpoint &&
		(ev.Kind == relation.RelationCreated || ev.Kind == relation.RelationJoined):
		return o.KubeControl.SetAuthRequest(o.UnitName, "system:masters")

	case ev.Endpoint == relation.KubeControlEndpoint && ev.Kind == relation.RelationChanged:
		return o.syncClusterTag()

	case ev.Endpoint == relation.AzureEndpoint && ev.Kind == relation.RelationJoined:
		if err := o.Integrator.PublishIdentity(applicationName(o.UnitName), o.ModelUUID); err != nil {
			return err
		}
		if err := o.Integrator.EnableLoadBalancerManagement(); err != nil {
			return err
		}
		return o.Integrator.EnableBlockStorageManagement()
	}
	return nil
}

// applicationName strips the unit index from a Juju unit name.
func applicationName(unitName string) string {
	return strings.SplitN(unitName, "/", 2)[0]
}

// syncClusterTag propagates a changed cluster tag to the integrator so
// the instance is tagged for this cluster.
func (o *Operator) syncClusterTag() error {
	tag := o.KubeControl.ClusterTag()
	if tag == "" {
		return nil
	}
	state, err := o.Store.Load()
	if err != nil {
		return err
	}
	if state.ClusterTag == tag {
		return nil
	}
	log.Printf("Updating cluster-tag to %s", tag)
	if err := o.Integrator.TagInstance(map[string]string{"k8s-io-cluster-name": tag}); err != nil {
		return err
	}
	state.ClusterTag = tag
	return o.Store.Save(state)
}

func statusFor(evaluation string) Status {
	if strings.Contains(evaluation, "Waiting") {
		return Status{Kind: Waiting, Message: evaluation}
	}
	return Status{Kind: Blocked, Message: evaluation}
}

// mergeConfig is the shared cycle: every check in fixed order, first
// failure wins, then fingerprint gating and apply.
func (o *Operator) mergeConfig(ctx context.Context, ev relation.Event) (Result, error) {
	if msg := o.Integrator.EvaluateRelation(ev); msg != "" {
		return Result{Status: statusFor(msg)}, nil
	}

	if result, ok, err := o.checkCertificates(ev); err != nil || !ok {
		return result, err
	}

	if msg := o.KubeControl.EvaluateRelation(ev); msg != "" {
		return Result{Status: statusFor(msg)}, nil
	}
	if !o.KubeControl.HasAuthCredentials(o.UnitName) {
		return Result{Status: Status{Kind: Waiting, Message: "Waiting for kube-control: unit credentials"}}, nil
	}

	if msg := o.Config.Evaluate(); msg != "" {
		return Result{Status: Status{Kind: Blocked, Message: msg}}, nil
	}

	var hashes []string
	for _, set := range o.Collector.Sets() {
		if msg := set.Evaluate(); msg != "" {
			return Result{Status: Status{Kind: Blocked, Message: msg}}, nil
		}
		hash, err := set.Hash()
		if err != nil {
			return Result{}, err
		}
		hashes = append(hashes, hash)
	}
	newHash := fmt.Sprintf("%x", md5.Sum([]byte(strings.Join(hashes, ""))))

	state, err := o.Store.Load()
	if err != nil {
		return Result{}, err
	}

	if state.ConfigHash == newHash && state.Deployed {
		log.Printf("Skipping deployment, config unchanged.")
		return Result{Status: Status{Kind: Active, Message: "Ready"}}, nil
	}

	state.Deployed = false
	if err := o.Store.Save(state); err != nil {
		return Result{}, err
	}

	for _, set := range o.Collector.Sets() {
		objects, warnings, err := set.Resources()
		if err != nil {
			return Result{}, err
		}
		for _, warning := range warnings {
			log.Printf("%s", warning)
		}
		if _, err := o.Collector.Applier.ApplyManifests(ctx, objects); err != nil {
			if manager.IsRetryable(err) {
				log.Printf("Encountered retryable installation error: %v", err)
				return Result{
					Status:  Status{Kind: Waiting, Message: "Waiting for kube-apiserver"},
					Requeue: true,
				}, nil
			}
			return Result{}, err
		}
	}

	state.ConfigHash = newHash
	state.Deployed = true
	if err := o.Store.Save(state); err != nil {
		return Result{}, err
	}
	return Result{Status: Status{Kind: Active, Message: "Ready"}}, nil
}

// checkCertificates resolves the cluster CA: kube-control carries it
// when available, the certificates relation is the fallback.
func (o *Operator) checkCertificates(ev relation.Event) (Result, bool, error) {
	ca := o.KubeControl.CACertificate()
	if ca == "" {
		if msg := o.Certificates.EvaluateRelation(ev); msg != "" {
			return Result{Status: statusFor(msg)}, false, nil
		}
		ca = o.Certificates.CA()
	}

	if o.CAPath != "" {
		if err := os.MkdirAll(filepath.Dir(o.CAPath), 0755); err != nil {
			return Result{}, false, err
		}
		if err := os.WriteFile(o.CAPath, []byte(ca), 0644); err != nil {
			return Result{}, false, err
		}
	}
	return Result{}, true, nil
}

// Cleanup deletes every deployed document set. Authorization failures
// are ignored; the cluster accounts may already be revoked.
func (o *Operator) Cleanup(ctx context.Context) (Result, error) {
	state, err := o.Store.Load()
	if err != nil {
		return Result{}, err
	}
	if state.ConfigHash == "" {
		return Result{Status: Status{Kind: Maintenance, Message: "Shutting down"}}, nil
	}

	for _, set := range o.Collector.Sets() {
		objects, _, err := set.Resources()
		if err != nil {
			return Result{}, err
		}
		if _, err := o.Collector.Applier.DeleteManifests(ctx, objects); err != nil {
			if manager.IsRetryable(err) {
				return Result{
					Status:  Status{Kind: Waiting, Message: "Waiting for kube-apiserver"},
					Requeue: true,
				}, nil
			}
			return Result{}, err
		}
	}

	state.ConfigHash = ""
	state.Deployed = false
	if err := o.Store.Save(state); err != nil {
		return Result{}, err
	}
	return Result{Status: Status{Kind: Maintenance, Message: "Shutting down"}}, nil
}

// UpdateStatus refreshes the readiness view of an already-deployed
// operator. Before first deployment it reports nothing.
func (o *Operator) UpdateStatus(ctx context.Context) (Result, error) {
	state, err := o.Store.Load()
	if err != nil {
		return Result{}, err
	}
	if !state.Deployed {
		return Result{}, nil
	}

	unready, err := o.Collector.Unready(ctx)
	if err != nil {
		if manager.IsRetryable(err) {
			return Result{Status: Status{Kind: Waiting, Message: "Waiting for kube-apiserver"}}, nil
		}
		return Result{}, err
	}
	if len(unready) > 0 {
		return Result{Status: Status{Kind: Waiting, Message: strings.Join(unready, ", ")}}, nil
	}
	return Result{Status: Status{Kind: Active, Message: "Ready"}}, nil
}
