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

package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	gcrv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
)

// PushRelease publishes the YAML document set of one controller
// release to an OCI registry. With recipients the payload is
// age-encrypted; the checksum always covers the plain text. Returns
// the pushed artifact digest URL.
func PushRelease(ctx context.Context, url, controller, release string, data []byte, recipients []age.Recipient) (string, error) {
	ref, err := name.ParseReference(url)
	if err != nil {
		return "", fmt.Errorf("parsing reference failed: %w", err)
	}

	meta := NewMetadata(controller, release, data)

	payloadName := "release.yaml"
	if len(recipients) > 0 {
		encrypted, err := encrypt(data, recipients)
		if err != nil {
			return "", fmt.Errorf("encrypting release failed: %w", err)
		}
		meta.Encrypted = AgeEncryptionVersion
		payloadName = "release.yaml.age"
		data = encrypted
	}

	tmpDir, err := os.MkdirTemp("", "release-oci")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	tarPath := filepath.Join(tmpDir, "release.tar")
	if err := tarContent(tarPath, payloadName, data); err != nil {
		return "", err
	}

	img, err := crane.Append(empty.Image, tarPath)
	if err != nil {
		return "", fmt.Errorf("appending release layer failed: %w", err)
	}
	img = mutate.Annotations(img, meta.ToAnnotations()).(gcrv1.Image)

	if err := crane.Push(img, url, craneOptions(ctx)...); err != nil {
		return "", fmt.Errorf("pushing release failed: %w", err)
	}

	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("parsing digest failed: %w", err)
	}
	return ref.Context().Digest(digest.String()).String(), nil
}
