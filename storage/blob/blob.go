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
	"net/url"
	"strings"

	"github.com/juju/errors"
	"github.com/serpmillers/m4c/config"
)

const (
	S3Prefix   = "s3://"
	FilePrefix = "file://"
)

// Store is a flat namespace of named blobs.
type Store interface {
	// Open a blob for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a blob for writing. The done channel is closed once the content is durable.
	Create(name string) (io.WriteCloser, chan struct{}, error)
}

// Open creates a blob store from a URI. "s3://bucket/prefix" uses S3 with credentials from cfg.S3,
// "file://dir" or a bare path uses a local directory.
func Open(cfg config.BlobConfig) (Store, error) {
	switch {
	case strings.HasPrefix(cfg.URI, S3Prefix):
		parsed, err := url.Parse(cfg.URI)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if parsed.Host == "" {
			return nil, errors.NotValidf("s3 bucket in %s", cfg.URI)
		}
		s3Config := cfg.S3
		s3Config.Bucket = parsed.Host
		s3Config.Prefix = strings.TrimPrefix(parsed.Path, "/")
		return NewS3(s3Config)
	case strings.HasPrefix(cfg.URI, FilePrefix):
		return NewPOSIX(strings.TrimPrefix(cfg.URI, FilePrefix)), nil
	case cfg.URI == "":
		return nil, errors.NotValidf("empty blob store uri")
	default:
		return NewPOSIX(cfg.URI), nil
	}
}
