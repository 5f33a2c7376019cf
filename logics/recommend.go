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
	"fmt"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/catalog"
	"github.com/serpmillers/m4c/model/mf"
	"go.uber.org/zap"
)

// Recommendation is a movie recommended to a user.
type Recommendation struct {
	Id              int64    `json:"id"`
	Title           string   `json:"title"`
	Genres          []string `json:"genres"`
	PredictedRating float32  `json:"predicted_rating"`
	Year            int      `json:"year"`
	Rating          float32  `json:"rating"`
}

type Recommender struct {
	model   *mf.Model
	catalog catalog.Catalog
}

func NewRecommender(model *mf.Model, movies catalog.Catalog) *Recommender {
	return &Recommender{
		model:   model,
		catalog: movies,
	}
}

type candidate struct {
	movieId   int64
	itemIndex int32
	score     float32
	coldStart bool
}

// Recommend returns the n movies matching filters with the highest predicted ratings. Movies unknown to
// the model are scored 0 and follow known movies of equal score in ascending order of id.
func (r *Recommender) Recommend(ctx context.Context, userId int64, filters catalog.Filters, n int) ([]Recommendation, error) {
	if r.model.Invalid() {
		return nil, errors.Trace(mf.ErrModelNotLoaded)
	}
	movieIds, err := r.catalog.Search(ctx, filters)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(movieIds) == 0 || n <= 0 {
		return []Recommendation{}, nil
	}

	// map catalog ids to item indices
	itemIndices := make([]int32, 0, len(movieIds))
	var coldIds []int64
	for _, movieId := range movieIds {
		if itemIndex, ok := r.model.ItemIndex.Id(movieId); ok {
			itemIndices = append(itemIndices, itemIndex)
		} else {
			coldIds = append(coldIds, movieId)
		}
	}
	userIndex, ok := r.model.UserIndex.Id(userId)
	if !ok {
		log.Logger().Debug("recommend for unknown user", zap.Int64("user_id", userId))
		userIndex = mf.ColdStart
	}
	ranked, err := r.model.Rank(userIndex, itemIndices)
	if err != nil {
		return nil, errors.Trace(err)
	}

	// merge cold items at score 0
	selected := make([]candidate, 0, n)
	appendCold := func() {
		for _, movieId := range coldIds {
			if len(selected) >= n {
				break
			}
			selected = append(selected, candidate{movieId: movieId, coldStart: true})
		}
		coldIds = nil
	}
	for itemIndex, score := range ranked {
		if len(selected) >= n {
			break
		}
		if score < 0 {
			appendCold()
			if len(selected) >= n {
				break
			}
		}
		movieId, _ := r.model.ItemIndex.External(itemIndex)
		selected = append(selected, candidate{movieId: movieId, itemIndex: itemIndex, score: score})
	}
	appendCold()

	// resolve metadata
	recommendations := make([]Recommendation, 0, len(selected))
	for _, c := range selected {
		movie, err := r.catalog.Get(ctx, c.movieId)
		if errors.Is(err, errors.NotFound) {
			index := int64(c.itemIndex)
			if c.coldStart {
				index = c.movieId
			}
			log.Logger().Warn("movie not found in catalog", zap.Int64("movie_id", c.movieId))
			recommendations = append(recommendations, Recommendation{
				Id:              c.movieId,
				Title:           fmt.Sprintf("Movie %d", index),
				Genres:          []string{},
				PredictedRating: c.score,
			})
			continue
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		recommendations = append(recommendations, Recommendation{
			Id:              movie.MovieId,
			Title:           movie.Title,
			Genres:          lo.Ternary(movie.Genres == nil, []string{}, movie.Genres),
			PredictedRating: c.score,
			Year:            movie.Year,
			Rating:          movie.Rating,
		})
	}
	return recommendations, nil
}
