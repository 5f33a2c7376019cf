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

package base

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

const randomEpsilon = 0.1

func TestRandomGenerator_NormalMatrix(t *testing.T) {
	rng := NewRandomGenerator(0)
	vec := rng.NormalMatrix(1, 1000, 1, 2)[0]
	mean := lo.Sum(vec) / float32(len(vec))
	variance := lo.SumBy(vec, func(v float32) float32 {
		return (v - mean) * (v - mean)
	}) / float32(len(vec))
	assert.InDelta(t, 1, mean, randomEpsilon)
	assert.InDelta(t, 2, math32.Sqrt(variance), randomEpsilon)
}

func TestRandomGenerator_Seed(t *testing.T) {
	a := NewRandomGenerator(42).NormalMatrix(3, 4, 0, 0.1)
	b := NewRandomGenerator(42).NormalMatrix(3, 4, 0, 0.1)
	assert.Equal(t, a, b)
}

func TestRandomGenerator_PermInt32(t *testing.T) {
	perm := NewRandomGenerator(0).PermInt32(10)
	assert.Len(t, perm, 10)
	assert.ElementsMatch(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, perm)
}
