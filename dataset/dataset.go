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

package dataset

import (
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/serpmillers/m4c/base"
)

// ErrInvalidDataset is returned for malformed or empty rating data.
const ErrInvalidDataset = errors.ConstError("invalid dataset")

// RatingRecord is an observed rating of an item by a user.
type RatingRecord struct {
	UserId int64
	ItemId int64
	Rating float32
}

// Dataset stores ratings as dense index columns. Subsets created by Split share the indices of their parent.
type Dataset struct {
	UserIndex   *IdentifierIndex
	ItemIndex   *IdentifierIndex
	UserIndices []int32
	ItemIndices []int32
	Ratings     []float32
}

// NewDataset builds user and item indices from records in first-seen order.
func NewDataset(records []RatingRecord) (*Dataset, error) {
	if len(records) == 0 {
		return nil, errors.Annotatef(ErrInvalidDataset, "no ratings")
	}
	d := &Dataset{
		UserIndex:   NewIdentifierIndex(),
		ItemIndex:   NewIdentifierIndex(),
		UserIndices: make([]int32, 0, len(records)),
		ItemIndices: make([]int32, 0, len(records)),
		Ratings:     make([]float32, 0, len(records)),
	}
	for i, record := range records {
		if math32.IsNaN(record.Rating) || math32.IsInf(record.Rating, 0) {
			return nil, errors.Annotatef(ErrInvalidDataset, "rating %d is not finite", i)
		}
		d.UserIndices = append(d.UserIndices, d.UserIndex.Add(record.UserId))
		d.ItemIndices = append(d.ItemIndices, d.ItemIndex.Add(record.ItemId))
		d.Ratings = append(d.Ratings, record.Rating)
	}
	return d, nil
}

func (d *Dataset) Count() int {
	return len(d.Ratings)
}

func (d *Dataset) CountUsers() int32 {
	return d.UserIndex.Count()
}

func (d *Dataset) CountItems() int32 {
	return d.ItemIndex.Count()
}

// SubSet creates a dataset with selected records. Indices are shared.
func (d *Dataset) SubSet(indices []int32) *Dataset {
	subset := &Dataset{
		UserIndex:   d.UserIndex,
		ItemIndex:   d.ItemIndex,
		UserIndices: make([]int32, len(indices)),
		ItemIndices: make([]int32, len(indices)),
		Ratings:     make([]float32, len(indices)),
	}
	for i, index := range indices {
		subset.UserIndices[i] = d.UserIndices[index]
		subset.ItemIndices[i] = d.ItemIndices[index]
		subset.Ratings[i] = d.Ratings[index]
	}
	return subset
}

// Split partitions the dataset by a seeded permutation. The first ceil(n*testRatio) permuted records
// form the test set. Both subsets keep the original record order.
func (d *Dataset) Split(testRatio float32, seed int64) (*Dataset, *Dataset, error) {
	if d.Count() == 0 {
		return nil, nil, errors.Annotatef(ErrInvalidDataset, "no ratings to split")
	}
	if testRatio < 0 || testRatio >= 1 {
		return nil, nil, errors.Annotatef(ErrInvalidDataset, "test ratio %v out of [0, 1)", testRatio)
	}
	testSize := int(math32.Ceil(float32(d.Count()) * testRatio))
	if testSize >= d.Count() {
		return nil, nil, errors.Annotatef(ErrInvalidDataset, "no ratings left for training")
	}
	rng := base.NewRandomGenerator(seed)
	perm := rng.PermInt32(d.Count())
	testMask := make([]bool, d.Count())
	for _, i := range perm[:testSize] {
		testMask[i] = true
	}
	trainIndices := make([]int32, 0, d.Count()-testSize)
	testIndices := make([]int32, 0, testSize)
	for i := range testMask {
		if testMask[i] {
			testIndices = append(testIndices, int32(i))
		} else {
			trainIndices = append(trainIndices, int32(i))
		}
	}
	return d.SubSet(trainIndices), d.SubSet(testIndices), nil
}
