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
	"fmt"
	"net/http"
	"time"
)

// DefaultMetadataEndpoint is the Azure instance-metadata service URL.
// https://docs.microsoft.com/en-us/azure/virtual-machines/windows/instance-metadata-service
const DefaultMetadataEndpoint = "http://169.254.169.254/metadata/instance?api-version=2017-12-01"

// ComputeMetadata is the subset of the IMDS compute document the
// operator consumes.
type ComputeMetadata struct {
	VMID              string `json:"vmId"`
	Name              string `json:"name"`
	Location          string `json:"location"`
	ResourceGroupName string `json:"resourceGroupName"`
	SubscriptionID    string `json:"subscriptionId"`
}

// InstanceMetadata looks up the identity of the VM this operator runs
// on. The result is cached for the lifetime of the process; identity
// does not change underneath a running instance.
type InstanceMetadata struct {
	Endpoint string
	Client   *http.Client

	cached *ComputeMetadata
}

// NewInstanceMetadata returns a metadata client against the default
// IMDS endpoint.
func NewInstanceMetadata() *InstanceMetadata {
	return &InstanceMetadata{
		Endpoint: DefaultMetadataEndpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Compute fetches (once) and returns the instance compute document.
func (m *InstanceMetadata) Compute() (*ComputeMetadata, error) {
	if m.cached != nil {
		return m.cached, nil
	}

	req, err := http.NewRequest(http.MethodGet, m.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Metadata", "true")

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instance metadata lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instance metadata lookup failed: %s", resp.Status)
	}

	var doc struct {
		Compute ComputeMetadata `json:"compute"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding instance metadata: %w", err)
	}

	m.cached = &doc.Compute
	return m.cached, nil
}
