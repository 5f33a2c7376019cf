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

package storage

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestAppendURLParams(t *testing.T) {
	url, err := AppendURLParams("sqlite://data.db", []lo.Tuple2[string, string]{
		{A: "_pragma", B: "busy_timeout(10000)"},
		{A: "_pragma", B: "journal_mode(wal)"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "sqlite://data.db?_pragma=busy_timeout%2810000%29&_pragma=journal_mode%28wal%29", url)
}

func TestAppendMySQLParams(t *testing.T) {
	dsn, err := AppendMySQLParams("m4c:m4c_pass@tcp(localhost:3306)/m4c?foo=bar", map[string]string{
		"foo":       "baz",
		"time_zone": "UTC",
	})
	assert.NoError(t, err)
	assert.Contains(t, dsn, "m4c:m4c_pass@tcp(localhost:3306)/m4c?")
	assert.Contains(t, dsn, "foo=bar")
	assert.NotContains(t, dsn, "foo=baz")
	assert.Contains(t, dsn, "time_zone=UTC")

	_, err = AppendMySQLParams("m4c:m4c_pass@localhost:3306", nil)
	assert.Error(t, err)
}

func TestTablePrefix(t *testing.T) {
	prefix := TablePrefix("m4c_")
	assert.Equal(t, "m4c_users", prefix.UsersTable())
	assert.Equal(t, "m4c_profiles", prefix.ProfilesTable())
	assert.Equal(t, "m4c_watchlist", prefix.WatchlistTable())
	assert.Equal(t, "m4c_recommend", prefix.Key("recommend"))
}
