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

package heap

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type Elem[T constraints.Ordered, W constraints.Ordered] struct {
	Value  T
	Weight W
}

type _heap[T constraints.Ordered, W constraints.Ordered] []Elem[T, W]

func (h _heap[T, W]) Len() int {
	return len(h)
}

// Less puts larger weights on top. Equal weights are ordered by ascending value.
func (h _heap[T, W]) Less(i, j int) bool {
	if h[i].Weight != h[j].Weight {
		return h[i].Weight > h[j].Weight
	}
	return h[i].Value < h[j].Value
}

func (h _heap[T, W]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *_heap[T, W]) Push(x any) {
	*h = append(*h, x.(Elem[T, W]))
}

func (h *_heap[T, W]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// MaxHeap yields elements by descending weight, breaking ties by ascending value.
type MaxHeap[T constraints.Ordered, W constraints.Ordered] struct {
	h _heap[T, W]
}

// NewMaxHeap heapifies elems in O(n). The slice is owned by the heap afterwards.
func NewMaxHeap[T constraints.Ordered, W constraints.Ordered](elems []Elem[T, W]) *MaxHeap[T, W] {
	m := &MaxHeap[T, W]{h: elems}
	heap.Init(&m.h)
	return m
}

func (m *MaxHeap[T, W]) Len() int {
	return m.h.Len()
}

// Push pushes an element in O(log n).
func (m *MaxHeap[T, W]) Push(value T, weight W) {
	heap.Push(&m.h, Elem[T, W]{Value: value, Weight: weight})
}

// Next pops the top element in O(log n).
func (m *MaxHeap[T, W]) Next() (Elem[T, W], bool) {
	if m.h.Len() == 0 {
		return Elem[T, W]{}, false
	}
	return heap.Pop(&m.h).(Elem[T, W]), true
}

// PopAll drains the heap in order.
func (m *MaxHeap[T, W]) PopAll() []Elem[T, W] {
	elems := make([]Elem[T, W], 0, m.Len())
	for m.Len() > 0 {
		elem, _ := m.Next()
		elems = append(elems, elem)
	}
	return elems
}
