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
	"testing"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func newTestRecords(n int) []RatingRecord {
	records := make([]RatingRecord, n)
	for i := range records {
		records[i] = RatingRecord{UserId: int64(i % 7 * 10), ItemId: int64(i), Rating: float32(i%5 + 1)}
	}
	return records
}

func TestNewDataset(t *testing.T) {
	d, err := NewDataset([]RatingRecord{
		{UserId: 42, ItemId: 7, Rating: 4},
		{UserId: 3, ItemId: 7, Rating: 2.5},
		{UserId: 42, ItemId: 1000, Rating: 1},
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, d.Count())
	assert.Equal(t, int32(2), d.CountUsers())
	assert.Equal(t, int32(2), d.CountItems())
	assert.Equal(t, []int32{0, 1, 0}, d.UserIndices)
	assert.Equal(t, []int32{0, 0, 1}, d.ItemIndices)
	assert.Equal(t, []float32{4, 2.5, 1}, d.Ratings)
	assert.Equal(t, int64(2), d.UserIndex.Freq(0))
}

func TestNewDataset_Invalid(t *testing.T) {
	_, err := NewDataset(nil)
	assert.True(t, errors.Is(err, ErrInvalidDataset))
	_, err = NewDataset([]RatingRecord{{UserId: 1, ItemId: 1, Rating: math32.NaN()}})
	assert.True(t, errors.Is(err, ErrInvalidDataset))
	_, err = NewDataset([]RatingRecord{{UserId: 1, ItemId: 1, Rating: math32.Inf(1)}})
	assert.True(t, errors.Is(err, ErrInvalidDataset))
}

func TestDataset_Split(t *testing.T) {
	d, err := NewDataset(newTestRecords(100))
	assert.NoError(t, err)
	train, test, err := d.Split(0.2, 42)
	assert.NoError(t, err)
	assert.Equal(t, 80, train.Count())
	assert.Equal(t, 20, test.Count())
	assert.Same(t, d.UserIndex, train.UserIndex)
	assert.Same(t, d.ItemIndex, test.ItemIndex)

	// same seed, same split
	train2, test2, err := d.Split(0.2, 42)
	assert.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	// different seed, different split
	_, test3, err := d.Split(0.2, 7)
	assert.NoError(t, err)
	assert.NotEqual(t, test.ItemIndices, test3.ItemIndices)

	// every record lands in exactly one subset
	type triple = lo.Tuple3[int32, int32, float32]
	collect := func(s *Dataset) []triple {
		return lo.Times(s.Count(), func(i int) triple {
			return lo.T3(s.UserIndices[i], s.ItemIndices[i], s.Ratings[i])
		})
	}
	assert.ElementsMatch(t, collect(d), append(collect(train), collect(test)...))
}

func TestDataset_SplitInvalid(t *testing.T) {
	d, err := NewDataset(newTestRecords(10))
	assert.NoError(t, err)
	_, _, err = d.Split(1, 0)
	assert.True(t, errors.Is(err, ErrInvalidDataset))
	_, _, err = d.Split(-0.1, 0)
	assert.True(t, errors.Is(err, ErrInvalidDataset))
	_, _, err = (&Dataset{}).Split(0.2, 0)
	assert.True(t, errors.Is(err, ErrInvalidDataset))

	train, test, err := d.Split(0, 0)
	assert.NoError(t, err)
	assert.Equal(t, 10, train.Count())
	assert.Equal(t, 0, test.Count())
}
