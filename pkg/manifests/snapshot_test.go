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

package manifests

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestSnapshotHash(t *testing.T) {
	g := NewWithT(t)

	a := Snapshot{"tenant-id": "t1", "location": "eastus", "replicas": 2}
	b := Snapshot{"replicas": 2, "tenant-id": "t1", "location": "eastus"}

	hashA, err := a.Hash()
	g.Expect(err).ToNot(HaveOccurred())
	hashB, err := b.Hash()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(hashA).To(Equal(hashB))

	b["location"] = "westus"
	hashC, err := b.Hash()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(hashC).ToNot(Equal(hashA))
}

func TestSnapshotPrune(t *testing.T) {
	g := NewWithT(t)

	s := Snapshot{
		"keep":    "value",
		"zero":    0,
		"nothing": nil,
		"blank":   "",
	}
	s.Prune()

	g.Expect(s).To(HaveKey("keep"))
	g.Expect(s).To(HaveKey("zero"))
	g.Expect(s).ToNot(HaveKey("nothing"))
	g.Expect(s).ToNot(HaveKey("blank"))
}

func TestSnapshotRename(t *testing.T) {
	g := NewWithT(t)

	s := Snapshot{"provider-release": "v1.23.1", "azuredisk-release": ""}
	s.Rename("provider-release", "release")
	g.Expect(s).ToNot(HaveKey("provider-release"))
	g.Expect(s.GetString("release")).To(Equal("v1.23.1"))

	s.Rename("azuredisk-release", "release2")
	g.Expect(s).ToNot(HaveKey("azuredisk-release"))
	g.Expect(s).ToNot(HaveKey("release2"))
}

func TestSnapshotGetStringMap(t *testing.T) {
	g := NewWithT(t)

	s := Snapshot{
		"typed":   map[string]string{"a": "1"},
		"decoded": map[string]interface{}{"b": "2"},
		"broken":  map[string]interface{}{"c": 3},
		"scalar":  "not-a-map",
	}

	m, ok := s.GetStringMap("typed")
	g.Expect(ok).To(BeTrue())
	g.Expect(m).To(Equal(map[string]string{"a": "1"}))

	m, ok = s.GetStringMap("decoded")
	g.Expect(ok).To(BeTrue())
	g.Expect(m).To(Equal(map[string]string{"b": "2"}))

	_, ok = s.GetStringMap("broken")
	g.Expect(ok).To(BeFalse())

	_, ok = s.GetStringMap("scalar")
	g.Expect(ok).To(BeFalse())

	m, ok = s.GetStringMap("absent")
	g.Expect(ok).To(BeTrue())
	g.Expect(m).To(BeNil())
}

func TestSnapshotGetInt(t *testing.T) {
	g := NewWithT(t)

	s := Snapshot{"int": 3, "int64": int64(4), "float": 5.0, "string": "6"}

	v, ok := s.GetInt("int")
	g.Expect(ok).To(BeTrue())
	g.Expect(v).To(Equal(int64(3)))

	v, ok = s.GetInt("int64")
	g.Expect(ok).To(BeTrue())
	g.Expect(v).To(Equal(int64(4)))

	v, ok = s.GetInt("float")
	g.Expect(ok).To(BeTrue())
	g.Expect(v).To(Equal(int64(5)))

	_, ok = s.GetInt("string")
	g.Expect(ok).To(BeFalse())
}
