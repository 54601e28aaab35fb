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

// CertificatesEndpoint is the relation endpoint to the certificate
// authority.
const CertificatesEndpoint = "certificates"

// Certificates is the requires side of the certificates relation, used
// as the CA trust fallback when kube-control carries no CA bundle.
type Certificates struct {
	Endpoint string

	bag *Databag
}

// NewCertificates wraps the given databag snapshot.
func NewCertificates(bag *Databag) *Certificates {
	return &Certificates{Endpoint: CertificatesEndpoint, bag: bag}
}

// CA returns the published CA bundle, or "".
func (r *Certificates) CA() string {
	data := r.bag.UnitData()
	if data == nil {
		return ""
	}
	return data["ca"]
}

// IsReady reports whether a CA bundle has been published.
func (r *Certificates) IsReady() bool { return r.CA() != "" }

// EvaluateRelation reports why the relation blocks reconciliation, or
// "" when it is ready.
func (r *Certificates) EvaluateRelation(ev Event) string {
	return evaluateRelation(r.Endpoint, r.bag, r.IsReady(), ev)
}
