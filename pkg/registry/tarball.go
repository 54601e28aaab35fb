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
	"archive/tar"
	"bytes"
	"io"
	"os"
)

// tarContent writes a single-entry tar archive holding the payload.
func tarContent(tarPath, name string, data []byte) error {
	tarFile, err := os.Create(tarPath)
	if err != nil {
		return err
	}
	defer tarFile.Close()

	tw := tar.NewWriter(tarFile)
	defer tw.Close()

	if err := tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0600,
		Size: int64(len(data)),
	}); err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}

// untarContent concatenates the regular file entries of the archive.
func untarContent(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		switch {
		case err == io.EOF:
			return buf.Bytes(), nil
		case err != nil:
			return nil, err
		case header == nil:
			continue
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := io.Copy(&buf, tr); err != nil {
				return nil, err
			}
		}
	}
}
