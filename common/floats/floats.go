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

package floats

func checkLength(a, b []float32) {
	if len(a) != len(b) {
		panic("floats: slice lengths do not match")
	}
}

// MulConstTo multiplies a vector and a const, then saves the result in dst: dst = a * c
func MulConstTo(a []float32, c float32, dst []float32) {
	checkLength(a, dst)
	for i := range a {
		dst[i] = a[i] * c
	}
}

// MulConstAdd multiplies a vector and a const, then adds to dst: dst = dst + a * c. The product is
// rounded before the addition, so results do not depend on fused multiply-add support.
func MulConstAdd(a []float32, c float32, dst []float32) {
	checkLength(a, dst)
	for i := range a {
		dst[i] += float32(a[i] * c)
	}
}

// Dot two vectors.
func Dot(a, b []float32) (ret float32) {
	checkLength(a, b)
	for i := range a {
		ret += a[i] * b[i]
	}
	return
}
