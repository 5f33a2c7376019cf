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

package mf

import (
	"iter"
	"slices"

	"github.com/juju/errors"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/common/floats"
	"github.com/serpmillers/m4c/common/heap"
	"go.uber.org/zap"
)

// Predict returns the dot product of a user row and an item row.
func (m *Model) Predict(userIndex, itemIndex int32) (float32, error) {
	if err := m.checkUser(userIndex); err != nil {
		return 0, err
	}
	if err := m.checkItem(itemIndex); err != nil {
		return 0, err
	}
	return floats.Dot(m.UserFactor[userIndex], m.ItemFactor[itemIndex]), nil
}

// PredictExternal predicts the rating of external ids. An id unknown to the model is a cold start: its
// factor row is treated as zeros, so the score is 0 and coldStart is true.
func (m *Model) PredictExternal(userId, itemId int64) (score float32, coldStart bool) {
	if m.Invalid() {
		return 0, true
	}
	userIndex, userExist := m.UserIndex.Id(userId)
	itemIndex, itemExist := m.ItemIndex.Id(itemId)
	if !userExist {
		log.Logger().Debug("unknown user", zap.Int64("user_id", userId))
	}
	if !itemExist {
		log.Logger().Debug("unknown item", zap.Int64("item_id", itemId))
	}
	if !userExist || !itemExist {
		return 0, true
	}
	return floats.Dot(m.UserFactor[userIndex], m.ItemFactor[itemIndex]), false
}

// Rank orders items by predicted score for a user, descending, with ties broken by ascending item index.
// A nil candidates slice ranks every item. The returned sequence is lazy: all scores are computed up
// front and heapified, and each step pops the next best item, so stopping after n items costs
// O(m + n log m). userIndex may be ColdStart, which scores every candidate 0.
func (m *Model) Rank(userIndex int32, candidates []int32) (iter.Seq2[int32, float32], error) {
	if userIndex != ColdStart {
		if err := m.checkUser(userIndex); err != nil {
			return nil, err
		}
	}
	if candidates == nil {
		candidates = make([]int32, m.CountItems())
		for i := range candidates {
			candidates[i] = int32(i)
		}
	}
	var userFactor []float32
	if userIndex == ColdStart {
		userFactor = make([]float32, m.nFactors)
	} else {
		userFactor = m.UserFactor[userIndex]
	}
	elems := make([]heap.Elem[int32, float32], len(candidates))
	for i, itemIndex := range candidates {
		if err := m.checkItem(itemIndex); err != nil {
			return nil, err
		}
		elems[i] = heap.Elem[int32, float32]{Value: itemIndex, Weight: floats.Dot(userFactor, m.ItemFactor[itemIndex])}
	}
	return func(yield func(int32, float32) bool) {
		h := heap.NewMaxHeap(slices.Clone(elems))
		for {
			elem, ok := h.Next()
			if !ok || !yield(elem.Value, elem.Weight) {
				return
			}
		}
	}, nil
}

// TopK returns the n best items of Rank. A negative n returns all candidates.
func (m *Model) TopK(userIndex int32, candidates []int32, n int) ([]int32, []float32, error) {
	ranked, err := m.Rank(userIndex, candidates)
	if err != nil {
		return nil, nil, err
	}
	var (
		items  []int32
		scores []float32
	)
	if n == 0 {
		return items, scores, nil
	}
	for itemIndex, score := range ranked {
		items = append(items, itemIndex)
		scores = append(scores, score)
		if len(items) == n {
			break
		}
	}
	return items, scores, nil
}

func (m *Model) checkUser(userIndex int32) error {
	if userIndex < 0 || userIndex >= m.CountUsers() {
		return errors.Annotatef(ErrIndexOutOfRange, "user index %d not in [0, %d)", userIndex, m.CountUsers())
	}
	return nil
}

func (m *Model) checkItem(itemIndex int32) error {
	if itemIndex < 0 || itemIndex >= m.CountItems() {
		return errors.Annotatef(ErrIndexOutOfRange, "item index %d not in [0, %d)", itemIndex, m.CountItems())
	}
	return nil
}
