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

package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarshal(t *testing.T) {
	data, err := Marshal([]string{"Drama", "Sci-Fi"})
	assert.NoError(t, err)
	assert.Equal(t, `["Drama","Sci-Fi"]`, string(data))
	data, err = Marshal([]int64{})
	assert.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestUnmarshal(t *testing.T) {
	var favorites []int64
	assert.NoError(t, Unmarshal([]byte(`[1,2,3]`), &favorites))
	assert.Equal(t, []int64{1, 2, 3}, favorites)
	// empty data clears the value
	assert.NoError(t, Unmarshal(nil, &favorites))
	assert.Nil(t, favorites)
	assert.Error(t, Unmarshal([]byte(`[1,`), &favorites))
}
