// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"io"
	"os"
	"path"
	"testing"

	"github.com/serpmillers/m4c/config"
	"github.com/stretchr/testify/assert"
)

func TestPOSIX(t *testing.T) {
	// create client
	client := NewPOSIX(path.Join(t.TempDir(), "blob"))

	// write a temp file
	w, done, err := client.Create("models/test")
	assert.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	<-done

	// read the file
	r, err := client.Open("models/test")
	assert.NoError(t, err)
	content, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
	assert.NoError(t, r.Close())

	// no temporary files left
	entries, err := os.ReadDir(path.Join(client.dir, "models"))
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPOSIX_Overwrite(t *testing.T) {
	client := NewPOSIX(t.TempDir())
	for _, text := range []string{"first", "second"} {
		w, done, err := client.Create("test")
		assert.NoError(t, err)
		_, err = w.Write([]byte(text))
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		<-done
	}
	r, err := client.Open("test")
	assert.NoError(t, err)
	content, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "second", string(content))
	assert.NoError(t, r.Close())

	_, err = client.Open("missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(config.BlobConfig{URI: dir})
	assert.NoError(t, err)
	assert.Equal(t, &POSIX{dir: dir}, store)

	store, err = Open(config.BlobConfig{URI: "file://" + dir})
	assert.NoError(t, err)
	assert.Equal(t, &POSIX{dir: dir}, store)

	store, err = Open(config.BlobConfig{URI: "s3://models/m4c", S3: config.S3Config{Endpoint: "localhost:9000"}})
	assert.NoError(t, err)
	s3, ok := store.(*S3)
	assert.True(t, ok)
	assert.Equal(t, "models", s3.bucket)
	assert.Equal(t, "m4c", s3.prefix)

	_, err = Open(config.BlobConfig{})
	assert.Error(t, err)
	_, err = Open(config.BlobConfig{URI: "s3:///prefix"})
	assert.Error(t, err)
}
