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

package catalog

import (
	"bytes"
	"cmp"
	"context"
	_ "embed"
	"io"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/base/json"
)

//go:embed movies.json
var moviesJSON []byte

// Movie is a catalog entry.
type Movie struct {
	MovieId          int64    `json:"movie_id"`
	Title            string   `json:"title"`
	Year             int      `json:"year"`
	Genres           []string `json:"genres"`
	Plot             string   `json:"plot,omitempty"`
	Rating           float32  `json:"rating"`
	Sources          []string `json:"sources,omitempty"`
	PosterPath       string   `json:"poster_path,omitempty"`
	TrailerYoutubeId string   `json:"trailer_youtube_id,omitempty"`
}

// Filters restrict a catalog search. Empty genres and nil year bounds do not restrict.
type Filters struct {
	Genres  []string
	MinYear *int
	MaxYear *int
	Exclude []int64
}

// Match returns true if the movie passes the filters.
func (f Filters) Match(movie *Movie) bool {
	if len(f.Genres) > 0 && !mapset.NewSet(f.Genres...).ContainsAny(movie.Genres...) {
		return false
	}
	if f.MinYear != nil && movie.Year < *f.MinYear {
		return false
	}
	if f.MaxYear != nil && movie.Year > *f.MaxYear {
		return false
	}
	return !slices.Contains(f.Exclude, movie.MovieId)
}

// Catalog resolves movie metadata.
type Catalog interface {
	// Search returns ids of matched movies in ascending order.
	Search(ctx context.Context, filters Filters) ([]int64, error)
	// Get returns a movie. It returns an error satisfying errors.Is(err, errors.NotFound) for unknown ids.
	Get(ctx context.Context, movieId int64) (*Movie, error)
	// List returns all movies in ascending order of id.
	List(ctx context.Context) ([]Movie, error)
}

// Memory is an immutable in-process catalog.
type Memory struct {
	movies []Movie
	index  map[int64]int
}

func NewMemory(movies []Movie) (*Memory, error) {
	c := &Memory{
		movies: slices.Clone(movies),
		index:  make(map[int64]int, len(movies)),
	}
	slices.SortFunc(c.movies, func(a, b Movie) int {
		return cmp.Compare(a.MovieId, b.MovieId)
	})
	for i, movie := range c.movies {
		if _, exist := c.index[movie.MovieId]; exist {
			return nil, errors.NotValidf("duplicate movie %d", movie.MovieId)
		}
		c.index[movie.MovieId] = i
	}
	return c, nil
}

// Load reads a JSON array of movies.
func Load(r io.Reader) (*Memory, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var movies []Movie
	if err = json.Unmarshal(data, &movies); err != nil {
		return nil, errors.Trace(err)
	}
	return NewMemory(movies)
}

// Default returns the built-in catalog.
func Default() *Memory {
	return lo.Must(Load(bytes.NewReader(moviesJSON)))
}

func (c *Memory) Search(_ context.Context, filters Filters) ([]int64, error) {
	ids := make([]int64, 0)
	for i := range c.movies {
		if filters.Match(&c.movies[i]) {
			ids = append(ids, c.movies[i].MovieId)
		}
	}
	return ids, nil
}

func (c *Memory) Get(_ context.Context, movieId int64) (*Movie, error) {
	i, exist := c.index[movieId]
	if !exist {
		return nil, errors.NotFoundf("movie %d", movieId)
	}
	movie := c.movies[i]
	return &movie, nil
}

func (c *Memory) List(_ context.Context) ([]Movie, error) {
	return slices.Clone(c.movies), nil
}

// SurveySchema lists the choices offered to a new user.
type SurveySchema struct {
	Genres []string `json:"genres"`
	Years  []int    `json:"years"`
}

// Schema returns the sorted distinct genres and years of the catalog.
func (c *Memory) Schema() SurveySchema {
	genres := mapset.NewSet[string]()
	years := mapset.NewSet[int]()
	for _, movie := range c.movies {
		for _, genre := range movie.Genres {
			if genre = strings.TrimSpace(genre); genre != "" {
				genres.Add(genre)
			}
		}
		if movie.Year > 0 {
			years.Add(movie.Year)
		}
	}
	schema := SurveySchema{Genres: genres.ToSlice(), Years: years.ToSlice()}
	slices.Sort(schema.Genres)
	slices.Sort(schema.Years)
	return schema
}
