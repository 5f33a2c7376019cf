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
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/base/json"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/catalog"
	"github.com/serpmillers/m4c/logics"
	"github.com/serpmillers/m4c/model/mf"
	"github.com/serpmillers/m4c/storage/data"
	"github.com/swaggest/swgui/v5emb"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const (
	apiDocsPath  = "/apidocs/"
	apiSpecPath  = "/apidocs.json"
	sessionName  = "session"
	requestIdKey = "X-Request-ID"
)

func RequestIdFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter(requestIdKey)
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set(requestIdKey, requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))
}

func NewOpenAPIService(container *restful.Container) *restful.WebService {
	return restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     apiSpecPath,
	})
}

func NewSwaggerUI() http.Handler {
	return v5emb.New("m4c", apiSpecPath, apiDocsPath)
}

// CreateWebService creates web service.
func (s *Server) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("m4c"))
	ws.Filter(LogFilter)

	// Recommendation
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommended movies for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned movies").DataType("integer")).
		Param(ws.QueryParameter("genres", "comma separated genres").DataType("string")).
		Param(ws.QueryParameter("min_year", "earliest release year").DataType("integer")).
		Param(ws.QueryParameter("max_year", "latest release year").DataType("integer")).
		Param(ws.QueryParameter("exclude", "comma separated movie ids").DataType("string")).
		Writes(RecommendResponse{}))
	ws.Route(ws.GET("/predict/{user-id}/{item-id}").To(s.getPredict).
		Doc("Predict the rating of a movie by a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.PathParameter("item-id", "identifier of the movie").DataType("integer")).
		Writes(PredictResponse{}))

	// Catalog
	ws.Route(ws.GET("/movies").To(s.getMovies).
		Doc("Get all movies.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"movie"}).
		Writes([]catalog.Movie{}))
	ws.Route(ws.GET("/movie/{movie-id}").To(s.getMovie).
		Doc("Get a movie with streaming links.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"movie"}).
		Param(ws.PathParameter("movie-id", "identifier of the movie").DataType("integer")).
		Writes(MovieDetail{}))
	ws.Route(ws.GET("/image/{movie-id}").To(s.getImage).
		Doc("Redirect to the poster of a movie.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"movie"}).
		Param(ws.PathParameter("movie-id", "identifier of the movie").DataType("integer")).
		Param(ws.QueryParameter("hero", "return a wide image").DataType("boolean")))

	// Survey
	ws.Route(ws.GET("/survey/schema").To(s.getSurveySchema).
		Doc("Get genres and years for the onboarding survey.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"survey"}).
		Writes(catalog.SurveySchema{}))
	ws.Route(ws.POST("/survey/submit").To(s.submitSurvey).
		Doc("Submit the onboarding survey.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"survey"}).
		Reads(SurveySubmission{}).
		Writes(Success{}))

	// Accounts
	ws.Route(ws.POST("/auth/signup").To(s.signup).
		Filter(s.limitAuth).
		Doc("Create an account.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"auth"}).
		Reads(SignupRequest{}).
		Writes(Session{}))
	ws.Route(ws.POST("/auth/login").To(s.login).
		Filter(s.limitAuth).
		Doc("Log in with username or email.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"auth"}).
		Reads(LoginRequest{}).
		Writes(Session{}))
	ws.Route(ws.GET("/profile/{user-id}").To(s.getProfile).
		Doc("Get the profile of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"profile"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Writes(data.Profile{}))
	ws.Route(ws.PUT("/profile/{user-id}").To(s.putProfile).
		Doc("Replace the genres and favorites of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"profile"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Reads(ProfileUpdate{}).
		Writes(Success{}))

	// Watchlist
	ws.Route(ws.GET("/watchlist/{user-id}").To(s.getWatchlist).
		Doc("Get the watchlist of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"watchlist"}).
		Param(ws.HeaderParameter("X-Session-Token", "session token of the user")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Writes(Watchlist{}))
	ws.Route(ws.POST("/watchlist/{user-id}/{movie-id}").To(s.addToWatchlist).
		Doc("Add a movie to the watchlist of a user.").
		Consumes(restful.MIME_JSON, restful.MIME_OCTET).
		Metadata(restfulspec.KeyOpenAPITags, []string{"watchlist"}).
		Param(ws.HeaderParameter("X-Session-Token", "session token of the user")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.PathParameter("movie-id", "identifier of the movie").DataType("integer")).
		Writes(Success{}))
	ws.Route(ws.DELETE("/watchlist/{user-id}/{movie-id}").To(s.removeFromWatchlist).
		Doc("Remove a movie from the watchlist of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"watchlist"}).
		Param(ws.HeaderParameter("X-Session-Token", "session token of the user")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.PathParameter("movie-id", "identifier of the movie").DataType("integer")).
		Writes(Success{}))

	// Operations
	ws.Route(ws.POST("/model/reload").To(s.reloadModel).
		Doc("Reload the model from the blob store.").
		Consumes(restful.MIME_JSON, restful.MIME_OCTET).
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(Health{}))
	ws.Route(ws.GET("/health").To(s.getHealth).
		Doc("Get the health of the server.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Writes(Health{}))
}

// ParseInt parses an integer query parameter or returns the fallback if it is absent.
func ParseInt(request *restful.Request, name string, fallback int) (int, error) {
	valueString := request.QueryParameter(name)
	if valueString == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueString)
	if err != nil {
		return 0, errors.NotValidf("%s=%s", name, valueString)
	}
	return value, nil
}

func parseOptionalInt(request *restful.Request, name string) (*int, error) {
	if request.QueryParameter(name) == "" {
		return nil, nil
	}
	value, err := ParseInt(request, name, 0)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func parseId(request *restful.Request, name string) (int64, error) {
	valueString := request.PathParameter(name)
	value, err := strconv.ParseInt(valueString, 10, 64)
	if err != nil {
		return 0, errors.NotValidf("%s=%s", name, valueString)
	}
	return value, nil
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}

func parseIds(s string) ([]int64, error) {
	var ids []int64
	for _, v := range splitList(s) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.NotValidf("movie id %s", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RecommendResponse is the result of a recommendation request.
type RecommendResponse struct {
	UserId          int64                   `json:"user_id"`
	Recommendations []logics.Recommendation `json:"recommendations"`
}

func recommendCacheKey(version string, userId int64, n int, filters catalog.Filters) string {
	year := func(v *int) string {
		if v == nil {
			return ""
		}
		return strconv.Itoa(*v)
	}
	return fmt.Sprintf("recommend/%s/%d/%d/%s/%s/%s/%s", version, userId, n,
		strings.Join(filters.Genres, ","), year(filters.MinYear), year(filters.MaxYear),
		strings.Join(lo.Map(filters.Exclude, func(id int64, _ int) string {
			return strconv.FormatInt(id, 10)
		}), ","))
}

func (s *Server) getRecommend(request *restful.Request, response *restful.Response) {
	ctx := request.Request.Context()
	start := time.Now()
	userId, err := parseId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	serviceContext := s.ServiceContext()
	if serviceContext == nil {
		ServiceUnavailable(response, errors.Trace(mf.ErrModelNotLoaded))
		return
	}
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	var filters catalog.Filters
	if filters.MinYear, err = parseOptionalInt(request, "min_year"); err != nil {
		BadRequest(response, err)
		return
	}
	if filters.MaxYear, err = parseOptionalInt(request, "max_year"); err != nil {
		BadRequest(response, err)
		return
	}
	if filters.Exclude, err = parseIds(request.QueryParameter("exclude")); err != nil {
		BadRequest(response, err)
		return
	}
	filters.Genres = splitList(request.QueryParameter("genres"))
	if len(filters.Genres) == 0 {
		// fall back to the genres chosen in the survey
		profile, err := s.DataClient.GetProfile(ctx, userId)
		if err == nil {
			filters.Genres = profile.Genres
		} else if !errors.Is(err, data.ErrUserNotExist) {
			InternalServerError(response, err)
			return
		}
	}
	watchlist, err := s.DataClient.GetWatchlist(ctx, userId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	filters.Exclude = append(filters.Exclude, watchlist...)
	slices.Sort(filters.Exclude)
	filters.Exclude = slices.Compact(filters.Exclude)

	// load from cache
	key := recommendCacheKey(serviceContext.Version, userId, n, filters)
	if cached, ok, err := s.CacheClient.Get(ctx, key); err != nil {
		log.ResponseLogger(response).Warn("failed to read cache", zap.String("key", key), zap.Error(err))
	} else if ok {
		RecommendCacheHitTotal.Inc()
		RecommendSeconds.Observe(time.Since(start).Seconds())
		Raw(response, cached)
		return
	}
	RecommendCacheMissTotal.Inc()

	if _, known := serviceContext.Model.UserIndex.Id(userId); !known {
		ColdStartTotal.Inc()
	}
	recommendations, err := serviceContext.Recommender.Recommend(ctx, userId, filters, n)
	if errors.Is(err, mf.ErrModelNotLoaded) {
		ServiceUnavailable(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	body, err := json.Marshal(RecommendResponse{UserId: userId, Recommendations: recommendations})
	if err != nil {
		InternalServerError(response, err)
		return
	}
	if err = s.CacheClient.Set(ctx, key, body, s.Config.Server.CacheTTL); err != nil {
		log.ResponseLogger(response).Warn("failed to write cache", zap.String("key", key), zap.Error(err))
	}
	RecommendSeconds.Observe(time.Since(start).Seconds())
	Raw(response, body)
}

// PredictResponse is the predicted rating of a movie by a user.
type PredictResponse struct {
	UserId          int64   `json:"user_id"`
	ItemId          int64   `json:"item_id"`
	PredictedRating float32 `json:"predicted_rating"`
	ColdStart       bool    `json:"cold_start"`
}

func (s *Server) getPredict(request *restful.Request, response *restful.Response) {
	start := time.Now()
	userId, err := parseId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	itemId, err := parseId(request, "item-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	serviceContext := s.ServiceContext()
	if serviceContext == nil {
		ServiceUnavailable(response, errors.Trace(mf.ErrModelNotLoaded))
		return
	}
	score, coldStart := serviceContext.Model.PredictExternal(userId, itemId)
	if coldStart {
		ColdStartTotal.Inc()
	}
	PredictSeconds.Observe(time.Since(start).Seconds())
	Ok(response, PredictResponse{
		UserId:          userId,
		ItemId:          itemId,
		PredictedRating: score,
		ColdStart:       coldStart,
	})
}

func (s *Server) getMovies(request *restful.Request, response *restful.Response) {
	movies, err := s.Catalog.List(request.Request.Context())
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, movies)
}

// MovieDetail is a movie with links to streaming services.
type MovieDetail struct {
	catalog.Movie
	SourceURLs []catalog.SourceURL `json:"source_urls"`
}

func (s *Server) getMovie(request *restful.Request, response *restful.Response) {
	movieId, err := parseId(request, "movie-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	movie, err := s.Catalog.Get(request.Request.Context(), movieId)
	if errors.Is(err, errors.NotFound) {
		PageNotFound(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, MovieDetail{Movie: *movie, SourceURLs: movie.SourceURLs()})
}

func (s *Server) getImage(request *restful.Request, response *restful.Response) {
	movieId, err := parseId(request, "movie-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	hero := request.QueryParameter("hero") == "true"
	movie, err := s.Catalog.Get(request.Request.Context(), movieId)
	if errors.Is(err, errors.NotFound) {
		movie = nil
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	response.Header().Set("Access-Control-Allow-Origin", "*")
	http.Redirect(response.ResponseWriter, request.Request, catalog.ImageURL(movie, movieId, hero), http.StatusFound)
}

func (s *Server) getSurveySchema(_ *restful.Request, response *restful.Response) {
	Ok(response, s.Catalog.Schema())
}

// SurveySubmission is the answer to the onboarding survey.
type SurveySubmission struct {
	UserId    int64    `json:"user_id"`
	Genres    []string `json:"genres"`
	Favorites []int64  `json:"favorites"`
}

// Success is the returned data structure for data insert operations.
type Success struct {
	RowAffected int
}

func (s *Server) submitSurvey(request *restful.Request, response *restful.Response) {
	var submission SurveySubmission
	if err := request.ReadEntity(&submission); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.DataClient.UpsertProfile(request.Request.Context(), data.Profile{
		UserId:    submission.UserId,
		Genres:    submission.Genres,
		Favorites: submission.Favorites,
	}); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

// Session identifies a logged in user.
type Session struct {
	UserId   int64  `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (s *Server) newSession(user data.User) (Session, error) {
	token, err := s.cookieHandler.Encode(sessionName, user.UserId)
	if err != nil {
		return Session{}, errors.Trace(err)
	}
	return Session{UserId: user.UserId, Username: user.Username, Token: token}, nil
}

func (s *Server) limitAuth(request *restful.Request, response *restful.Response, chain *restful.FilterChain) {
	if s.authLimiter != nil && s.authLimiter.TakeAvailable(1) == 0 {
		TooManyRequests(response, errors.New("too many authentication requests"))
		return
	}
	chain.ProcessFilter(request, response)
}

func (s *Server) signup(request *restful.Request, response *restful.Response) {
	var req SignupRequest
	if err := request.ReadEntity(&req); err != nil {
		BadRequest(response, err)
		return
	}
	user, err := s.DataClient.CreateUser(request.Request.Context(), req.Username, req.Email, req.Password)
	if errors.Is(err, errors.NotValid) {
		BadRequest(response, err)
		return
	} else if errors.Is(err, data.ErrUserExists) {
		Conflict(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	session, err := s.newSession(user)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, session)
}

func (s *Server) login(request *restful.Request, response *restful.Response) {
	var req LoginRequest
	if err := request.ReadEntity(&req); err != nil {
		BadRequest(response, err)
		return
	}
	user, err := s.DataClient.Authenticate(request.Request.Context(), req.UsernameOrEmail, req.Password)
	if errors.Is(err, data.ErrUserNotExist) || errors.Is(err, data.ErrWrongPassword) {
		Unauthorized(response, errors.New("invalid username or password"))
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	session, err := s.newSession(user)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, session)
}

func (s *Server) getProfile(request *restful.Request, response *restful.Response) {
	userId, err := parseId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	profile, err := s.DataClient.GetProfile(request.Request.Context(), userId)
	if errors.Is(err, data.ErrUserNotExist) {
		PageNotFound(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, profile)
}

type ProfileUpdate struct {
	Genres    []string `json:"genres"`
	Favorites []int64  `json:"favorites"`
}

func (s *Server) putProfile(request *restful.Request, response *restful.Response) {
	userId, err := parseId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	if !s.checkSession(request, response, userId) {
		return
	}
	var update ProfileUpdate
	if err = request.ReadEntity(&update); err != nil {
		BadRequest(response, err)
		return
	}
	if err = s.DataClient.UpsertProfile(request.Request.Context(), data.Profile{
		UserId:    userId,
		Genres:    update.Genres,
		Favorites: update.Favorites,
	}); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

// Watchlist is the movies saved by a user.
type Watchlist struct {
	UserId   int64   `json:"user_id"`
	MovieIds []int64 `json:"movie_ids"`
}

func (s *Server) getWatchlist(request *restful.Request, response *restful.Response) {
	userId, err := parseId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	if !s.checkSession(request, response, userId) {
		return
	}
	movieIds, err := s.DataClient.GetWatchlist(request.Request.Context(), userId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Watchlist{UserId: userId, MovieIds: movieIds})
}

func (s *Server) parseWatchlistEntry(request *restful.Request, response *restful.Response) (int64, int64, bool) {
	userId, err := parseId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return 0, 0, false
	}
	movieId, err := parseId(request, "movie-id")
	if err != nil {
		BadRequest(response, err)
		return 0, 0, false
	}
	if !s.checkSession(request, response, userId) {
		return 0, 0, false
	}
	return userId, movieId, true
}

func (s *Server) addToWatchlist(request *restful.Request, response *restful.Response) {
	userId, movieId, ok := s.parseWatchlistEntry(request, response)
	if !ok {
		return
	}
	ctx := request.Request.Context()
	if _, err := s.Catalog.Get(ctx, movieId); errors.Is(err, errors.NotFound) {
		PageNotFound(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	if err := s.DataClient.AddToWatchlist(ctx, userId, movieId); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

func (s *Server) removeFromWatchlist(request *restful.Request, response *restful.Response) {
	userId, movieId, ok := s.parseWatchlistEntry(request, response)
	if !ok {
		return
	}
	if err := s.DataClient.RemoveFromWatchlist(request.Request.Context(), userId, movieId); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

// Health reports whether the server is able to serve requests.
type Health struct {
	Ready        bool   `json:"ready"`
	ModelLoaded  bool   `json:"model_loaded"`
	NUsers       int32  `json:"n_users"`
	NItems       int32  `json:"n_items"`
	NFactors     int    `json:"n_factors"`
	ModelVersion string `json:"model_version"`
}

func (s *Server) health() Health {
	var h Health
	h.Ready = s.DataClient.Ping() == nil
	if serviceContext := s.ServiceContext(); serviceContext != nil {
		h.ModelLoaded = true
		h.NUsers = serviceContext.Model.CountUsers()
		h.NItems = serviceContext.Model.CountItems()
		h.NFactors = serviceContext.Model.NFactors()
		h.ModelVersion = serviceContext.Version
	}
	return h
}

func (s *Server) getHealth(_ *restful.Request, response *restful.Response) {
	Ok(response, s.health())
}

func (s *Server) reloadModel(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	if _, err := s.Reload(); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, s.health())
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// ServiceUnavailable is returned while no model is loaded.
func ServiceUnavailable(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Warn("service unavailable", zap.Error(err))
	if err = response.WriteError(http.StatusServiceUnavailable, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func Conflict(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusConflict, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func TooManyRequests(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusTooManyRequests, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func Unauthorized(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusUnauthorized, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

// Raw sends encoded JSON to the client.
func Raw(response *restful.Response, content []byte) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	response.Header().Set("Content-Type", restful.MIME_JSON)
	if _, err := response.Write(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

func (s *Server) auth(request *restful.Request, response *restful.Response) bool {
	if s.Config.Server.APIKey == "" {
		return true
	}
	apikey := request.HeaderParameter("X-API-Key")
	if apikey == s.Config.Server.APIKey {
		return true
	}
	log.ResponseLogger(response).Error("unauthorized", zap.String("X-API-Key", apikey))
	Unauthorized(response, errors.New("unauthorized"))
	return false
}

// checkSession rejects requests carrying the session token of another user. Requests without a token pass.
func (s *Server) checkSession(request *restful.Request, response *restful.Response, userId int64) bool {
	token := request.HeaderParameter("X-Session-Token")
	if token == "" {
		return true
	}
	var sessionUserId int64
	if err := s.cookieHandler.Decode(sessionName, token, &sessionUserId); err != nil {
		Unauthorized(response, errors.Annotate(err, "invalid session token"))
		return false
	}
	if sessionUserId != userId {
		response.Header().Set("Access-Control-Allow-Origin", "*")
		if err := response.WriteError(http.StatusForbidden, errors.Errorf("session of user %d", sessionUserId)); err != nil {
			log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
		}
		return false
	}
	return true
}
