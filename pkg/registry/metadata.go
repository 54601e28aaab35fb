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

// Package registry distributes manifest release bundles as OCI
// artifacts: one tarred YAML document set per artifact, integrity
// checked and optionally age-encrypted.
package registry

import (
	"crypto/sha256"
	"fmt"
	"time"
)

const (
	ControllerAnnotation = "manifests.charmed-kubernetes.io/controller"
	ReleaseAnnotation    = "manifests.charmed-kubernetes.io/release"
	ChecksumAnnotation   = "manifests.charmed-kubernetes.io/checksum"
	CreatedAnnotation    = "manifests.charmed-kubernetes.io/created"
	EncryptedAnnotation  = "manifests.charmed-kubernetes.io/encrypted"

	AgeEncryptionVersion = "age-encryption.org/v1"
)

// Metadata describes one release artifact. Checksum covers the plain
// YAML payload, before any encryption.
type Metadata struct {
	Controller string `json:"controller"`
	Release    string `json:"release"`
	Checksum   string `json:"checksum"`
	Created    string `json:"created"`
	Encrypted  string `json:"encrypted,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// NewMetadata stamps the artifact metadata for the given payload.
func NewMetadata(controller, release string, data []byte) *Metadata {
	return &Metadata{
		Controller: controller,
		Release:    release,
		Checksum:   fmt.Sprintf("%x", sha256.Sum256(data)),
		Created:    time.Now().UTC().Format(time.RFC3339),
	}
}

// ToAnnotations renders the metadata as OCI manifest annotations.
func (m *Metadata) ToAnnotations() map[string]string {
	annotations := map[string]string{
		ControllerAnnotation: m.Controller,
		ReleaseAnnotation:    m.Release,
		ChecksumAnnotation:   m.Checksum,
		CreatedAnnotation:    m.Created,
	}
	if m.Encrypted != "" {
		annotations[EncryptedAnnotation] = m.Encrypted
	}
	return annotations
}

// GetMetadata reads the artifact metadata back from OCI manifest
// annotations.
func GetMetadata(annotations map[string]string) (*Metadata, error) {
	m := &Metadata{}
	for _, field := range []struct {
		annotation string
		dst        *string
	}{
		{ControllerAnnotation, &m.Controller},
		{ReleaseAnnotation, &m.Release},
		{ChecksumAnnotation, &m.Checksum},
		{CreatedAnnotation, &m.Created},
	} {
		value, ok := annotations[field.annotation]
		if !ok {
			return nil, fmt.Errorf("'%s' annotation not found", field.annotation)
		}
		*field.dst = value
	}
	m.Encrypted = annotations[EncryptedAnnotation]
	return m, nil
}
