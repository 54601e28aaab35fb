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
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
)

func TestFileStore(t *testing.T) {
	g := NewWithT(t)

	store := &FileStore{Path: filepath.Join(t.TempDir(), "state", "operator.yaml")}

	state, err := store.Load()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(state).To(Equal(StoredState{}))

	state.ClusterTag = "kubernetes-abcd1234"
	state.ConfigHash = "d41d8cd98f00b204e9800998ecf8427e"
	state.Deployed = true
	g.Expect(store.Save(state)).To(Succeed())

	loaded, err := store.Load()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(loaded).To(Equal(state))
}
