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
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/serpmillers/m4c/storage"
)

// Local is an in-process cache. Expired entries are evicted in the background.
type Local struct {
	storage.TablePrefix
	cache *ttlcache.Cache[string, []byte]
}

func NewLocal(tablePrefix string, ttl time.Duration) *Local {
	cache := ttlcache.New(ttlcache.WithTTL[string, []byte](ttl))
	go cache.Start()
	return &Local{
		TablePrefix: storage.TablePrefix(tablePrefix),
		cache:       cache,
	}
}

func (l *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := l.cache.Get(l.Key(key))
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (l *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = ttlcache.DefaultTTL
	}
	l.cache.Set(l.Key(key), value, ttl)
	return nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	l.cache.Delete(l.Key(key))
	return nil
}

func (l *Local) Close() error {
	l.cache.Stop()
	return nil
}
