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
	"fmt"
	"strings"
)

const justWatchURL = "https://www.justwatch.com/us/search?q=%s"

var streamingURLs = map[string]string{
	"Netflix":      "https://www.netflix.com/search?q=%s",
	"Amazon Prime": "https://www.amazon.com/s?k=%s&i=prime-instant-video",
	"HBO Max":      "https://www.hbomax.com/search?q=%s",
	"Hulu":         "https://www.hulu.com/search?q=%s",
	"Disney+":      "https://www.disneyplus.com/search?q=%s",
	"Paramount+":   "https://www.paramountplus.com/search?q=%s",
}

// StreamingURL returns the search URL of a movie on a streaming platform. Unknown platforms fall back
// to JustWatch.
func StreamingURL(source, title string, year int) string {
	query := title
	if year > 0 {
		query += fmt.Sprintf(" %d", year)
	}
	query = strings.ReplaceAll(query, " ", "+")
	format, ok := streamingURLs[source]
	if !ok {
		format = justWatchURL
	}
	return fmt.Sprintf(format, query)
}

type SourceURL struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// SourceURLs returns streaming URLs in the order of the movie's sources.
func (m *Movie) SourceURLs() []SourceURL {
	urls := make([]SourceURL, 0, len(m.Sources))
	for _, source := range m.Sources {
		urls = append(urls, SourceURL{Source: source, URL: StreamingURL(source, m.Title, m.Year)})
	}
	return urls
}

const (
	tmdbImageURL   = "https://image.tmdb.org/t/p"
	picsumImageURL = "https://picsum.photos/seed"
)

// ImageURL returns the poster of a movie, or the hero banner if hero is set. Movies without a poster
// path get a placeholder seeded by the title. A nil movie gets a placeholder seeded by its id.
func ImageURL(movie *Movie, movieId int64, hero bool) string {
	size := "400/600"
	if hero {
		size = "1200/600"
	}
	if movie == nil {
		return fmt.Sprintf("%s/movie%d/%s", picsumImageURL, min(max(movieId, 1), 500), size)
	}
	if movie.PosterPath != "" {
		width := "w500"
		if hero {
			width = "w1280"
		}
		return tmdbImageURL + "/" + width + movie.PosterPath
	}
	seed := strings.ToLower(strings.ReplaceAll(movie.Title, " ", ""))
	return fmt.Sprintf("%s/%s/%s", picsumImageURL, seed, size)
}
