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

package relation

import (
	"encoding/json"
	"log"
)

// KubeControlEndpoint is the relation endpoint to the cluster control
// plane.
const KubeControlEndpoint = "kube-control"

// KubeControl is the requires side of the kube-control relation:
// cluster authentication data plus the control-plane topology the
// manifest pipeline derives scheduling config from.
type KubeControl struct {
	Endpoint string

	bag       *Databag
	published map[string]string
}

// NewKubeControl wraps the given databag snapshot.
func NewKubeControl(bag *Databag) *KubeControl {
	return &KubeControl{
		Endpoint:  KubeControlEndpoint,
		bag:       bag,
		published: map[string]string{},
	}
}

// SetAuthRequest asks the control plane to issue credentials for the
// given user in the given authorization group.
func (r *KubeControl) SetAuthRequest(user, group string) error {
	request, err := json.Marshal(map[string]string{
		"user":  user,
		"group": group,
	})
	if err != nil {
		return err
	}
	r.published["auth"] = string(request)
	return nil
}

// Published exposes the pending outbound databag entries.
func (r *KubeControl) Published() map[string]string {
	return r.published
}

// IsReady reports whether the control plane has published the fields
// the pipeline requires.
func (r *KubeControl) IsReady() bool {
	data := r.bag.UnitData()
	if data == nil {
		return false
	}
	if data["cluster-tag"] == "" || data["registry-location"] == "" {
		log.Printf("%s relation data not yet complete.", r.Endpoint)
		return false
	}
	return true
}

// EvaluateRelation reports why the relation blocks reconciliation, or
// "" when it is ready.
func (r *KubeControl) EvaluateRelation(ev Event) string {
	return evaluateRelation(r.Endpoint, r.bag, r.IsReady(), ev)
}

func (r *KubeControl) field(name string) string {
	if !r.IsReady() {
		return ""
	}
	return r.bag.UnitData()[name]
}

// ClusterTag is the unique tag identifying this cluster.
func (r *KubeControl) ClusterTag() string { return r.field("cluster-tag") }

// RegistryLocation is the image registry the cluster mirrors from.
func (r *KubeControl) RegistryLocation() string { return r.field("registry-location") }

// CACertificate is the cluster CA bundle, when published.
func (r *KubeControl) CACertificate() string {
	if r.bag.UnitData() == nil {
		return ""
	}
	return r.bag.UnitData()["ca-certificate"]
}

// ControllerLabels returns the node labels of the control-plane units,
// or nil when none were published.
func (r *KubeControl) ControllerLabels() map[string]string {
	raw := r.field("labels")
	if raw == "" {
		return nil
	}
	labels := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		log.Printf("%s labels not parseable: %v", r.Endpoint, err)
		return nil
	}
	return labels
}

// ControllerTaints returns the taints declared on control-plane nodes.
func (r *KubeControl) ControllerTaints() []string {
	raw := r.field("taints")
	if raw == "" {
		return nil
	}
	var taints []string
	if err := json.Unmarshal([]byte(raw), &taints); err != nil {
		log.Printf("%s taints not parseable: %v", r.Endpoint, err)
		return nil
	}
	return taints
}

// UnitCount is the number of control-plane units on the relation.
func (r *KubeControl) UnitCount() int { return r.bag.UnitCount() }

// Application is the remote control-plane application name.
func (r *KubeControl) Application() string {
	if r.bag == nil {
		return ""
	}
	return r.bag.Application
}

// HasAuthCredentials reports whether credentials for the given user
// have been issued on the relation.
func (r *KubeControl) HasAuthCredentials(user string) bool {
	raw := r.field("creds")
	if raw == "" {
		return false
	}
	creds := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		log.Printf("%s creds not parseable: %v", r.Endpoint, err)
		return false
	}
	_, ok := creds[user]
	return ok
}
