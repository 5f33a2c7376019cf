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

package cache

import (
	"context"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/serpmillers/m4c/storage"
)

// Database caches serialized responses.
type Database interface {
	// Get returns the cached value and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value that expires after ttl. A zero ttl uses the default of the database.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open a cache database. Keys are prefixed by tablePrefix. ttl is the default expiration.
func Open(path, tablePrefix string, ttl time.Duration) (Database, error) {
	if strings.HasPrefix(path, storage.RedisPrefix) || strings.HasPrefix(path, storage.RedissPrefix) {
		return NewRedis(path, tablePrefix, ttl)
	} else if strings.HasPrefix(path, storage.LocalPrefix) {
		return NewLocal(tablePrefix, ttl), nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
