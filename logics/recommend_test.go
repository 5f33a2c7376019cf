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

package logics

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/catalog"
	"github.com/serpmillers/m4c/dataset"
	"github.com/serpmillers/m4c/model"
	"github.com/serpmillers/m4c/model/mf"
	"github.com/stretchr/testify/assert"
)

// newTestModel creates a model of one user (id 100) with two factors.
func newTestModel(userFactor []float32, itemFactors map[int64][]float32, itemIds ...int64) *mf.Model {
	m := mf.NewModel(model.Params{model.NFactors: 2})
	m.UserIndex = dataset.NewIdentifierIndex()
	m.UserIndex.Add(100)
	m.UserFactor = [][]float32{userFactor}
	m.ItemIndex = dataset.NewIdentifierIndex()
	for _, itemId := range itemIds {
		m.ItemIndex.Add(itemId)
		m.ItemFactor = append(m.ItemFactor, itemFactors[itemId])
	}
	m.Freeze()
	return m
}

func newTestCatalog(t *testing.T, movies ...catalog.Movie) *catalog.Memory {
	c, err := catalog.NewMemory(movies)
	assert.NoError(t, err)
	return c
}

func ids(recommendations []Recommendation) []int64 {
	return lo.Map(recommendations, func(r Recommendation, _ int) int64 { return r.Id })
}

func TestRecommender_GenreFilter(t *testing.T) {
	m := newTestModel([]float32{1, 1}, map[int64][]float32{
		1: {1, 1},
		2: {0.5, 0.5},
	}, 1, 2)
	movies := newTestCatalog(t,
		catalog.Movie{MovieId: 1, Title: "Drama Movie", Year: 1994, Genres: []string{"Drama"}, Rating: 8},
		catalog.Movie{MovieId: 2, Title: "Action Movie", Year: 2010, Genres: []string{"Action"}, Rating: 7},
	)
	r := NewRecommender(m, movies)
	recommendations, err := r.Recommend(context.Background(), 100, catalog.Filters{Genres: []string{"Action"}}, 10)
	assert.NoError(t, err)
	assert.Equal(t, []Recommendation{{
		Id:              2,
		Title:           "Action Movie",
		Genres:          []string{"Action"},
		PredictedRating: 1,
		Year:            2010,
		Rating:          7,
	}}, recommendations)

	// without filters
	recommendations, err = r.Recommend(context.Background(), 100, catalog.Filters{}, 10)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(recommendations))
	assert.Equal(t, float32(2), recommendations[0].PredictedRating)
}

func TestRecommender_Empty(t *testing.T) {
	m := newTestModel([]float32{1, 1}, map[int64][]float32{1: {1, 1}}, 1)
	movies := newTestCatalog(t, catalog.Movie{MovieId: 1, Title: "Drama Movie", Year: 1994, Genres: []string{"Drama"}})
	r := NewRecommender(m, movies)
	recommendations, err := r.Recommend(context.Background(), 100, catalog.Filters{Genres: []string{"Horror"}}, 10)
	assert.NoError(t, err)
	assert.NotNil(t, recommendations)
	assert.Empty(t, recommendations)

	recommendations, err = r.Recommend(context.Background(), 100, catalog.Filters{}, 0)
	assert.NoError(t, err)
	assert.NotNil(t, recommendations)
	assert.Empty(t, recommendations)
}

func TestRecommender_ColdItems(t *testing.T) {
	m := newTestModel([]float32{1, 0}, map[int64][]float32{
		1: {2, 0},
		2: {-1, 0},
		4: {0, 3},
	}, 2, 4, 1)
	movies := newTestCatalog(t,
		catalog.Movie{MovieId: 1, Title: "One"},
		catalog.Movie{MovieId: 2, Title: "Two"},
		catalog.Movie{MovieId: 3, Title: "Three"},
		catalog.Movie{MovieId: 4, Title: "Four"},
		catalog.Movie{MovieId: 5, Title: "Five"},
	)
	r := NewRecommender(m, movies)
	recommendations, err := r.Recommend(context.Background(), 100, catalog.Filters{}, 10)
	assert.NoError(t, err)
	// 1 scores 2, 4 scores 0 and precedes cold 3 and 5, 2 scores -1
	assert.Equal(t, []int64{1, 4, 3, 5, 2}, ids(recommendations))
	assert.Equal(t, []float32{2, 0, 0, 0, -1}, lo.Map(recommendations, func(r Recommendation, _ int) float32 {
		return r.PredictedRating
	}))

	// truncated
	recommendations, err = r.Recommend(context.Background(), 100, catalog.Filters{}, 3)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 3}, ids(recommendations))

	// unknown user scores everything 0, known items in index order
	recommendations, err = r.Recommend(context.Background(), 200, catalog.Filters{}, 10)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 1, 3, 5}, ids(recommendations))
}

func TestRecommender_Filters(t *testing.T) {
	m := newTestModel([]float32{1, 0}, map[int64][]float32{
		1: {3, 0},
		2: {2, 0},
		3: {1, 0},
	}, 1, 2, 3)
	movies := newTestCatalog(t,
		catalog.Movie{MovieId: 1, Title: "One", Year: 1990},
		catalog.Movie{MovieId: 2, Title: "Two", Year: 2000},
		catalog.Movie{MovieId: 3, Title: "Three", Year: 2010},
	)
	r := NewRecommender(m, movies)
	recommendations, err := r.Recommend(context.Background(), 100, catalog.Filters{Exclude: []int64{1}}, 10)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids(recommendations))
	recommendations, err = r.Recommend(context.Background(), 100, catalog.Filters{MinYear: lo.ToPtr(1995), MaxYear: lo.ToPtr(2005)}, 10)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(recommendations))
}

// missingCatalog finds every movie in search but resolves none of them.
type missingCatalog struct {
	*catalog.Memory
}

func (c missingCatalog) Get(_ context.Context, movieId int64) (*catalog.Movie, error) {
	return nil, errors.NotFoundf("movie %d", movieId)
}

func TestRecommender_Placeholder(t *testing.T) {
	m := newTestModel([]float32{1, 0}, map[int64][]float32{
		10: {1, 0},
		20: {2, 0},
	}, 10, 20)
	movies := missingCatalog{newTestCatalog(t,
		catalog.Movie{MovieId: 10, Title: "Ten"},
		catalog.Movie{MovieId: 20, Title: "Twenty"},
		catalog.Movie{MovieId: 30, Title: "Thirty"},
	)}
	r := NewRecommender(m, movies)
	recommendations, err := r.Recommend(context.Background(), 100, catalog.Filters{}, 10)
	assert.NoError(t, err)
	assert.Equal(t, []Recommendation{
		{Id: 20, Title: "Movie 1", Genres: []string{}, PredictedRating: 2},
		{Id: 10, Title: "Movie 0", Genres: []string{}, PredictedRating: 1},
		{Id: 30, Title: "Movie 30", Genres: []string{}},
	}, recommendations)
}

// brokenCatalog fails every lookup.
type brokenCatalog struct {
	*catalog.Memory
}

func (c brokenCatalog) Get(_ context.Context, _ int64) (*catalog.Movie, error) {
	return nil, errors.New("connection refused")
}

func TestRecommender_Errors(t *testing.T) {
	movies := newTestCatalog(t, catalog.Movie{MovieId: 1, Title: "One"})
	_, err := NewRecommender(mf.NewModel(nil), movies).Recommend(context.Background(), 100, catalog.Filters{}, 10)
	assert.True(t, errors.Is(err, mf.ErrModelNotLoaded))

	m := newTestModel([]float32{1, 0}, map[int64][]float32{1: {1, 0}}, 1)
	_, err = NewRecommender(m, brokenCatalog{movies}).Recommend(context.Background(), 100, catalog.Filters{}, 10)
	assert.Error(t, err)
}
