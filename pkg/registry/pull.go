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
	"crypto/sha256"
	"fmt"

	"filippo.io/age"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
)

// PullRelease fetches a release artifact and returns the YAML document
// set after checksum verification. Encrypted payloads require a
// matching identity.
func PullRelease(ctx context.Context, url string, identities []age.Identity) ([]byte, *Metadata, error) {
	ref, err := name.ParseReference(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing reference failed: %w", err)
	}

	img, err := crane.Pull(url, craneOptions(ctx)...)
	if err != nil {
		return nil, nil, err
	}

	manifest, err := img.Manifest()
	if err != nil {
		return nil, nil, err
	}
	meta, err := GetMetadata(manifest.Annotations)
	if err != nil {
		return nil, nil, err
	}

	digest, err := img.Digest()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing digest failed: %w", err)
	}
	meta.Digest = ref.Context().Digest(digest.String()).String()

	if meta.Encrypted != "" && len(identities) == 0 {
		return nil, meta, fmt.Errorf("artifact is encrypted, a private key is required")
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, nil, err
	}
	if len(layers) == 0 {
		return nil, nil, fmt.Errorf("no layers found in artifact")
	}

	blob, err := layers[0].Uncompressed()
	if err != nil {
		return nil, nil, err
	}
	data, err := untarContent(blob)
	if err != nil {
		return nil, nil, err
	}

	if meta.Encrypted == AgeEncryptionVersion {
		data, err = decrypt(data, identities)
		if err != nil {
			return nil, nil, fmt.Errorf("decrypting release failed: %w", err)
		}
	}

	if checksum := fmt.Sprintf("%x", sha256.Sum256(data)); checksum != meta.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: artifact carries %s, payload is %s", meta.Checksum, checksum)
	}

	return data, meta, nil
}
