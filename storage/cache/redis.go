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

	"github.com/juju/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/serpmillers/m4c/storage"
)

type Redis struct {
	storage.TablePrefix
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(path, tablePrefix string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	database := &Redis{
		TablePrefix: storage.TablePrefix(tablePrefix),
		client:      redis.NewClient(opt),
		ttl:         ttl,
	}
	if err = redisotel.InstrumentTracing(database.client); err != nil {
		return nil, errors.Trace(err)
	}
	return database, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Trace(err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.ttl
	}
	return errors.Trace(r.client.Set(ctx, r.Key(key), value, ttl).Err())
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return errors.Trace(r.client.Del(ctx, r.Key(key)).Err())
}

func (r *Redis) Close() error {
	return r.client.Close()
}
