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

package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"github.com/juju/ratelimit"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/base/json"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/catalog"
	"github.com/serpmillers/m4c/config"
	"github.com/serpmillers/m4c/dataset"
	"github.com/serpmillers/m4c/logics"
	"github.com/serpmillers/m4c/model"
	"github.com/serpmillers/m4c/model/mf"
	"github.com/serpmillers/m4c/storage/blob"
	"github.com/serpmillers/m4c/storage/cache"
	"github.com/serpmillers/m4c/storage/data"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/suite"
)

const apiKey = "test_api_key"

// newTestModel creates a model of one user (id 100) and three movies scored 2, 1 and 4.
func newTestModel() *mf.Model {
	m := mf.NewModel(model.Params{model.NFactors: 2})
	m.UserIndex = dataset.NewIdentifierIndex()
	m.UserIndex.Add(100)
	m.UserFactor = [][]float32{{1, 1}}
	m.ItemIndex = dataset.NewIdentifierIndex()
	for _, itemId := range []int64{1, 2, 3} {
		m.ItemIndex.Add(itemId)
	}
	m.ItemFactor = [][]float32{{1, 1}, {0.5, 0.5}, {2, 2}}
	m.UserPredictable = bitset.New(1).Set(0)
	m.ItemPredictable = bitset.New(3).Set(0).Set(1).Set(2)
	return m
}

type ServerTestSuite struct {
	suite.Suite
	*Server
	handler http.Handler
}

func (suite *ServerTestSuite) SetupSuite() {
	log.CloseLogger()
}

func (suite *ServerTestSuite) SetupTest() {
	dir := suite.T().TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Server.APIKey = apiKey
	cfg.Blob.URI = dir
	dataClient, err := data.Open("sqlite://"+dir+"/data.db", "")
	suite.NoError(err)
	suite.NoError(dataClient.Init())
	cacheClient, err := cache.Open("local://", "", cfg.Server.CacheTTL)
	suite.NoError(err)
	blobStore := blob.NewPOSIX(dir)
	suite.NoError(newTestModel().Save(blobStore, cfg.Blob.ModelName))
	suite.Server = NewServer(cfg, dataClient, cacheClient, blobStore, catalog.Default())
	_, err = suite.Reload()
	suite.NoError(err)
	suite.handler = suite.Handler()
}

// saveModel writes a modified test model to the blob store.
func (suite *ServerTestSuite) saveModel(modify func(m *mf.Model)) {
	m := newTestModel()
	modify(m)
	suite.NoError(m.Save(suite.BlobStore, suite.Config.Blob.ModelName))
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.NoError(suite.Close())
}

func (suite *ServerTestSuite) recommend(params map[string]string) RecommendResponse {
	var resp RecommendResponse
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/100").
		QueryParams(params).
		Expect(suite.T()).
		Status(http.StatusOK).
		End().
		JSON(&resp)
	return resp
}

func recommendedIds(resp RecommendResponse) []int64 {
	return lo.Map(resp.Recommendations, func(r logics.Recommendation, _ int) int64 { return r.Id })
}

func (suite *ServerTestSuite) TestRecommend() {
	resp := suite.recommend(map[string]string{"genres": "Drama", "n": "3"})
	suite.Equal(int64(100), resp.UserId)
	suite.Equal([]int64{3, 1, 2}, recommendedIds(resp))
	suite.Equal(logics.Recommendation{
		Id:              3,
		Title:           "The Dark Knight",
		Genres:          []string{"Action", "Crime", "Drama"},
		PredictedRating: 4,
		Year:            2008,
		Rating:          resp.Recommendations[0].Rating,
	}, resp.Recommendations[0])

	// movies unknown to the model follow the trained ones
	resp = suite.recommend(map[string]string{"genres": "Drama", "n": "4"})
	suite.Equal([]int64{3, 1, 2, 4}, recommendedIds(resp))

	// year range and exclusion
	resp = suite.recommend(map[string]string{
		"genres":   "Drama",
		"n":        "10",
		"min_year": "1990",
		"max_year": "1999",
		"exclude":  "1",
	})
	for _, r := range resp.Recommendations {
		suite.GreaterOrEqual(r.Year, 1990)
		suite.LessOrEqual(r.Year, 1999)
		suite.NotEqual(int64(1), r.Id)
	}
	suite.NotEmpty(resp.Recommendations)

	// default n
	resp = suite.recommend(nil)
	suite.Len(resp.Recommendations, suite.Config.Server.DefaultN)
}

func (suite *ServerTestSuite) TestRecommend_Cache() {
	suite.recommend(map[string]string{"genres": "Drama", "n": "3"})
	key := recommendCacheKey(suite.ServiceContext().Version, 100, 3, catalog.Filters{Genres: []string{"Drama"}})
	cached, ok, err := suite.CacheClient.Get(context.Background(), key)
	suite.NoError(err)
	suite.True(ok)
	var resp RecommendResponse
	suite.NoError(json.Unmarshal(cached, &resp))
	suite.Equal([]int64{3, 1, 2}, recommendedIds(resp))
	suite.Equal(resp, suite.recommend(map[string]string{"genres": "Drama", "n": "3"}))

	// an unchanged blob keeps cached results
	_, err = suite.Reload()
	suite.NoError(err)
	suite.Equal(key, recommendCacheKey(suite.ServiceContext().Version, 100, 3, catalog.Filters{Genres: []string{"Drama"}}))

	// a new model invalidates cached results
	suite.saveModel(func(m *mf.Model) { m.ItemFactor[1] = []float32{3, 3} })
	_, err = suite.Reload()
	suite.NoError(err)
	suite.NotEqual(key, recommendCacheKey(suite.ServiceContext().Version, 100, 3, catalog.Filters{Genres: []string{"Drama"}}))
	resp = suite.recommend(map[string]string{"genres": "Drama", "n": "3"})
	suite.Equal([]int64{2, 3, 1}, recommendedIds(resp))
}

func (suite *ServerTestSuite) TestRecommend_Profile() {
	ctx := context.Background()
	suite.NoError(suite.DataClient.UpsertProfile(ctx, data.Profile{UserId: 100, Genres: []string{"Sci-Fi"}}))
	resp := suite.recommend(map[string]string{"n": "50"})
	suite.NotEmpty(resp.Recommendations)
	for _, r := range resp.Recommendations {
		suite.Contains(r.Genres, "Sci-Fi")
	}
	// explicit genres take precedence
	resp = suite.recommend(map[string]string{"genres": "Drama", "n": "3"})
	suite.Equal([]int64{3, 1, 2}, recommendedIds(resp))
}

func (suite *ServerTestSuite) TestRecommend_Watchlist() {
	suite.NoError(suite.DataClient.AddToWatchlist(context.Background(), 100, 3))
	resp := suite.recommend(map[string]string{"genres": "Drama", "n": "3"})
	suite.Equal([]int64{1, 2, 4}, recommendedIds(resp))
}

func (suite *ServerTestSuite) TestRecommend_BadRequest() {
	t := suite.T()
	for _, c := range []struct {
		url    string
		params map[string]string
	}{
		{url: "/api/recommend/abc"},
		{url: "/api/recommend/100", params: map[string]string{"n": "abc"}},
		{url: "/api/recommend/100", params: map[string]string{"min_year": "abc"}},
		{url: "/api/recommend/100", params: map[string]string{"exclude": "1,abc"}},
	} {
		apitest.New().
			Handler(suite.handler).
			Get(c.url).
			QueryParams(c.params).
			Expect(t).
			Status(http.StatusBadRequest).
			End()
	}
}

func (suite *ServerTestSuite) TestPredict() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/predict/100/3").
		Expect(t).
		Status(http.StatusOK).
		Body(`{"user_id":100,"item_id":3,"predicted_rating":4,"cold_start":false}`).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/predict/999/3").
		Expect(t).
		Status(http.StatusOK).
		Body(`{"user_id":999,"item_id":3,"predicted_rating":0,"cold_start":true}`).
		End()
}

func (suite *ServerTestSuite) TestModelNotLoaded() {
	t := suite.T()
	suite.serviceContext.Store(nil)
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/100").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/predict/100/3").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		Body(`{"ready":true,"model_loaded":false,"n_users":0,"n_items":0,"n_factors":0,"model_version":""}`).
		End()
}

func (suite *ServerTestSuite) TestMovies() {
	t := suite.T()
	var movies []catalog.Movie
	apitest.New().
		Handler(suite.handler).
		Get("/api/movies").
		Expect(t).
		Status(http.StatusOK).
		End().
		JSON(&movies)
	suite.Len(movies, 50)

	var movie MovieDetail
	apitest.New().
		Handler(suite.handler).
		Get("/api/movie/1").
		Expect(t).
		Status(http.StatusOK).
		End().
		JSON(&movie)
	suite.Equal("The Shawshank Redemption", movie.Title)
	suite.Equal([]catalog.SourceURL{
		{Source: "Netflix", URL: "https://www.netflix.com/search?q=The+Shawshank+Redemption+1994"},
		{Source: "Amazon Prime", URL: "https://www.amazon.com/s?k=The+Shawshank+Redemption+1994&i=prime-instant-video"},
	}, movie.SourceURLs)

	apitest.New().
		Handler(suite.handler).
		Get("/api/movie/999").
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func (suite *ServerTestSuite) TestImage() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/image/1").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "https://image.tmdb.org/t/p/w500/9cqNxx0GxF0bflZmeSMuL5tnGzr.jpg").
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/image/1").
		Query("hero", "true").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "https://image.tmdb.org/t/p/w1280/9cqNxx0GxF0bflZmeSMuL5tnGzr.jpg").
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/image/999").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "https://picsum.photos/seed/movie500/400/600").
		End()
}

func (suite *ServerTestSuite) TestSurvey() {
	t := suite.T()
	var schema catalog.SurveySchema
	apitest.New().
		Handler(suite.handler).
		Get("/api/survey/schema").
		Expect(t).
		Status(http.StatusOK).
		End().
		JSON(&schema)
	suite.Equal(suite.Catalog.Schema(), schema)

	apitest.New().
		Handler(suite.handler).
		Post("/api/survey/submit").
		JSON(`{"user_id":100,"genres":["Drama"],"favorites":[1,2]}`).
		Expect(t).
		Status(http.StatusOK).
		End()
	profile, err := suite.DataClient.GetProfile(context.Background(), 100)
	suite.NoError(err)
	suite.Equal([]string{"Drama"}, profile.Genres)
	suite.Equal([]int64{1, 2}, profile.Favorites)
}

func (suite *ServerTestSuite) createAccount(username string) Session {
	var session Session
	apitest.New().
		Handler(suite.handler).
		Post("/api/auth/signup").
		JSON(fmt.Sprintf(`{"username":"%s","email":"%s@example.com","password":"secret"}`, username, username)).
		Expect(suite.T()).
		Status(http.StatusOK).
		End().
		JSON(&session)
	return session
}

func (suite *ServerTestSuite) TestAuth_RateLimit() {
	t := suite.T()
	suite.authLimiter = ratelimit.NewBucketWithQuantum(time.Minute, 2, 2)
	for i := 0; i < 2; i++ {
		apitest.New().
			Handler(suite.handler).
			Post("/api/auth/login").
			JSON(`{"username_or_email":"nobody","password":"secret"}`).
			Expect(t).
			Status(http.StatusUnauthorized).
			End()
	}
	apitest.New().
		Handler(suite.handler).
		Post("/api/auth/login").
		JSON(`{"username_or_email":"nobody","password":"secret"}`).
		Expect(t).
		Status(http.StatusTooManyRequests).
		End()
	// other routes are not limited
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		End()
}

func (suite *ServerTestSuite) TestAuth() {
	t := suite.T()
	session := suite.createAccount("alice")
	suite.Positive(session.UserId)
	suite.Equal("alice", session.Username)
	suite.NotEmpty(session.Token)

	// duplicate
	apitest.New().
		Handler(suite.handler).
		Post("/api/auth/signup").
		JSON(`{"username":"alice","email":"other@example.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusConflict).
		End()
	// blank fields
	apitest.New().
		Handler(suite.handler).
		Post("/api/auth/signup").
		JSON(`{"username":"bob","email":" ","password":"secret"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()

	// login by username or email
	for _, name := range []string{"alice", "alice@example.com"} {
		var login Session
		apitest.New().
			Handler(suite.handler).
			Post("/api/auth/login").
			JSON(fmt.Sprintf(`{"username_or_email":"%s","password":"secret"}`, name)).
			Expect(t).
			Status(http.StatusOK).
			End().
			JSON(&login)
		suite.Equal(session.UserId, login.UserId)
	}
	apitest.New().
		Handler(suite.handler).
		Post("/api/auth/login").
		JSON(`{"username_or_email":"alice","password":"wrong"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
	apitest.New().
		Handler(suite.handler).
		Post("/api/auth/login").
		JSON(`{"username_or_email":"nobody","password":"secret"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func (suite *ServerTestSuite) TestProfile() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/profile/100").
		Expect(t).
		Status(http.StatusNotFound).
		End()
	apitest.New().
		Handler(suite.handler).
		Put("/api/profile/100").
		JSON(`{"genres":["Crime"],"favorites":[4]}`).
		Expect(t).
		Status(http.StatusOK).
		End()
	var profile data.Profile
	apitest.New().
		Handler(suite.handler).
		Get("/api/profile/100").
		Expect(t).
		Status(http.StatusOK).
		End().
		JSON(&profile)
	suite.Equal(int64(100), profile.UserId)
	suite.Equal([]string{"Crime"}, profile.Genres)
	suite.Equal([]int64{4}, profile.Favorites)
}

func (suite *ServerTestSuite) TestWatchlist() {
	t := suite.T()
	session := suite.createAccount("alice")
	other := suite.createAccount("bob")
	url := fmt.Sprintf("/api/watchlist/%d", session.UserId)

	// add twice
	for i := 0; i < 2; i++ {
		apitest.New().
			Handler(suite.handler).
			Post(url+"/3").
			Header("X-Session-Token", session.Token).
			Expect(t).
			Status(http.StatusOK).
			End()
	}
	apitest.New().
		Handler(suite.handler).
		Post(url+"/1").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(suite.handler).
		Post(url+"/999").
		Expect(t).
		Status(http.StatusNotFound).
		End()
	apitest.New().
		Handler(suite.handler).
		Get(url).
		Expect(t).
		Status(http.StatusOK).
		Body(fmt.Sprintf(`{"user_id":%d,"movie_ids":[1,3]}`, session.UserId)).
		End()

	// tokens of other users are rejected
	apitest.New().
		Handler(suite.handler).
		Delete(url+"/3").
		Header("X-Session-Token", other.Token).
		Expect(t).
		Status(http.StatusForbidden).
		End()
	apitest.New().
		Handler(suite.handler).
		Delete(url+"/3").
		Header("X-Session-Token", "invalid").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(suite.handler).
		Delete(url+"/3").
		Header("X-Session-Token", session.Token).
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(suite.handler).
		Get(url).
		Expect(t).
		Status(http.StatusOK).
		Body(fmt.Sprintf(`{"user_id":%d,"movie_ids":[1]}`, session.UserId)).
		End()
}

func (suite *ServerTestSuite) TestReload() {
	t := suite.T()
	version := suite.ServiceContext().Version
	apitest.New().
		Handler(suite.handler).
		Post("/api/model/reload").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
	var health Health
	apitest.New().
		Handler(suite.handler).
		Post("/api/model/reload").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		End().
		JSON(&health)
	suite.True(health.Ready)
	suite.True(health.ModelLoaded)
	suite.Equal(int32(1), health.NUsers)
	suite.Equal(int32(3), health.NItems)
	suite.Equal(2, health.NFactors)
	// the blob is unchanged
	suite.Equal(version, health.ModelVersion)

	suite.saveModel(func(m *mf.Model) {
		m.ItemIndex.Add(4)
		m.ItemFactor = append(m.ItemFactor, []float32{1, 0})
		m.ItemPredictable = bitset.New(4).Set(0).Set(1).Set(2).Set(3)
	})
	apitest.New().
		Handler(suite.handler).
		Post("/api/model/reload").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		End().
		JSON(&health)
	suite.Equal(int32(4), health.NItems)
	suite.NotEqual(version, health.ModelVersion)

	// a failed reload keeps the current model
	version = health.ModelVersion
	suite.Config.Blob.ModelName = "missing.bin"
	apitest.New().
		Handler(suite.handler).
		Post("/api/model/reload").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusInternalServerError).
		End()
	suite.Equal(version, suite.ServiceContext().Version)
}

func (suite *ServerTestSuite) TestReloadWithRetry() {
	suite.serviceContext.Store(nil)
	suite.Config.Blob.ModelName = "late.bin"
	go func() {
		time.Sleep(100 * time.Millisecond)
		suite.NoError(newTestModel().Save(suite.BlobStore, "late.bin"))
	}()
	serviceContext, err := suite.ReloadWithRetry(context.Background(), 10*time.Second)
	suite.NoError(err)
	suite.Equal(serviceContext, suite.ServiceContext())
	suite.Equal(int32(3), serviceContext.Model.CountItems())
}

func (suite *ServerTestSuite) TestReloadWithRetry_Timeout() {
	suite.serviceContext.Store(nil)
	suite.Config.Blob.ModelName = "missing.bin"
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := suite.ReloadWithRetry(ctx, time.Minute)
	suite.Error(err)
	suite.Nil(suite.ServiceContext())
}

func (suite *ServerTestSuite) TestReloadWithRetry_UnsupportedFormat() {
	w, done, err := suite.BlobStore.Create("broken.bin")
	suite.NoError(err)
	_, err = w.Write([]byte("not a model"))
	suite.NoError(err)
	suite.NoError(w.Close())
	<-done
	suite.Config.Blob.ModelName = "broken.bin"
	start := time.Now()
	_, err = suite.ReloadWithRetry(context.Background(), time.Minute)
	suite.True(errors.Is(err, mf.ErrUnsupportedFormat), err)
	suite.Less(time.Since(start), 10*time.Second)
}

func (suite *ServerTestSuite) TestRequestId() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Header(requestIdKey, "request-1").
		Expect(t).
		Status(http.StatusOK).
		Header(requestIdKey, "request-1").
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/apidocs.json").
		Expect(t).
		Status(http.StatusOK).
		End()
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
