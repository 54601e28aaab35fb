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
	"net"
	"os"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/distribution/distribution/v3/configuration"
	dockerregistry "github.com/distribution/distribution/v3/registry"
	_ "github.com/distribution/distribution/v3/registry/storage/driver/inmemory"
	. "github.com/onsi/gomega"
)

var registryHost string

const releaseYAML = `---
apiVersion: v1
kind: ConfigMap
metadata:
  name: app-settings
  namespace: kube-system
data:
  mode: cloud
`

func TestMain(m *testing.M) {
	host, err := startTestRegistry()
	if err != nil {
		panic(err)
	}
	registryHost = host
	os.Exit(m.Run())
}

func startTestRegistry() (string, error) {
	port, err := getFreePort()
	if err != nil {
		return "", err
	}

	host := fmt.Sprintf("localhost:%d", port)
	config := &configuration.Configuration{}
	config.Log.Level = configuration.Loglevel("error")
	config.Log.AccessLog.Disabled = true
	config.HTTP.Addr = fmt.Sprintf(":%d", port)
	config.HTTP.DrainTimeout = time.Duration(10) * time.Second
	config.Storage = map[string]configuration.Parameters{"inmemory": map[string]interface{}{}}

	server, err := dockerregistry.NewRegistry(context.Background(), config)
	if err != nil {
		return "", err
	}
	go server.ListenAndServe()

	return host, nil
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func TestPushPullRelease(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	url := fmt.Sprintf("%s/cloud-provider-releases:v1.24.0", registryHost)
	digest, err := PushRelease(ctx, url, "azure-cloud-provider", "v1.24.0", []byte(releaseYAML), nil)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(digest).To(ContainSubstring("@sha256:"))

	data, meta, err := PullRelease(ctx, url, nil)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(data)).To(Equal(releaseYAML))
	g.Expect(meta.Controller).To(Equal("azure-cloud-provider"))
	g.Expect(meta.Release).To(Equal("v1.24.0"))
	g.Expect(meta.Encrypted).To(BeEmpty())
	g.Expect(meta.Digest).To(Equal(digest))
}

func TestPushPullRelease_Encrypted(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	identity, err := age.GenerateX25519Identity()
	g.Expect(err).ToNot(HaveOccurred())

	url := fmt.Sprintf("%s/disk-driver-releases:v1.21.0", registryHost)
	_, err = PushRelease(ctx, url, "disk-driver-azure", "v1.21.0", []byte(releaseYAML),
		[]age.Recipient{identity.Recipient()})
	g.Expect(err).ToNot(HaveOccurred())

	// without an identity the payload stays sealed
	_, _, err = PullRelease(ctx, url, nil)
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("private key"))

	data, meta, err := PullRelease(ctx, url, []age.Identity{identity})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(data)).To(Equal(releaseYAML))
	g.Expect(meta.Encrypted).To(Equal(AgeEncryptionVersion))
}

func TestParseURL(t *testing.T) {
	g := NewWithT(t)

	url, err := ParseURL("oci://localhost:5000/releases:latest")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(url).To(Equal("localhost:5000/releases:latest"))

	_, err = ParseURL("docker://localhost:5000/releases")
	g.Expect(err).To(HaveOccurred())
}
