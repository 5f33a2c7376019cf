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
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/juju/errors"
	"github.com/juju/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/catalog"
	"github.com/serpmillers/m4c/config"
	"github.com/serpmillers/m4c/logics"
	"github.com/serpmillers/m4c/model/mf"
	"github.com/serpmillers/m4c/storage/blob"
	"github.com/serpmillers/m4c/storage/cache"
	"github.com/serpmillers/m4c/storage/data"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// modelLoadTimeout bounds the retries of a single model load.
const modelLoadTimeout = time.Minute

// ServiceContext is an immutable snapshot of the model served to requests.
type ServiceContext struct {
	Model       *mf.Model
	Recommender *logics.Recommender
	// Version identifies the snapshot. Cached responses are keyed by it. Models read from the blob
	// store are versioned by the digest of the blob.
	Version  string
	LoadedAt time.Time
}

func NewServiceContext(model *mf.Model, movies catalog.Catalog, version string) *ServiceContext {
	model.Freeze()
	return &ServiceContext{
		Model:       model,
		Recommender: logics.NewRecommender(model, movies),
		Version:     version,
		LoadedAt:    time.Now(),
	}
}

// Server serves recommendations over HTTP.
type Server struct {
	Config      *config.Config
	DataClient  data.Database
	CacheClient cache.Database
	BlobStore   blob.Store
	Catalog     *catalog.Memory
	WebService  *restful.WebService

	serviceContext *atomic.Pointer[ServiceContext]
	cookieHandler  *securecookie.SecureCookie
	authLimiter    *ratelimit.Bucket
	httpServer     *http.Server
}

// NewServer creates a server from its clients. The model is not loaded until Reload is called.
func NewServer(cfg *config.Config, dataClient data.Database, cacheClient cache.Database, blobStore blob.Store, movies *catalog.Memory) *Server {
	hashKey := []byte(cfg.Server.CookieHashKey)
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(64)
	}
	var blockKey []byte
	if cfg.Server.CookieBlockKey != "" {
		blockKey = []byte(cfg.Server.CookieBlockKey)
	}
	var authLimiter *ratelimit.Bucket
	if limit := int64(cfg.Server.AuthRateLimit); limit > 0 {
		authLimiter = ratelimit.NewBucketWithQuantum(time.Minute, limit, limit)
	}
	return &Server{
		Config:         cfg,
		DataClient:     dataClient,
		CacheClient:    cacheClient,
		BlobStore:      blobStore,
		Catalog:        movies,
		WebService:     new(restful.WebService),
		serviceContext: atomic.NewPointer[ServiceContext](nil),
		cookieHandler:  securecookie.New(hashKey, blockKey),
		authLimiter:    authLimiter,
	}
}

// Open connects the stores named by the configuration and creates a server.
func Open(cfg *config.Config) (*Server, error) {
	dataClient, err := data.Open(cfg.Database.DataStore, cfg.Database.TablePrefix)
	if err != nil {
		return nil, errors.Annotatef(err, "open data store %s", log.RedactDBURL(cfg.Database.DataStore))
	}
	if err = dataClient.Init(); err != nil {
		return nil, errors.Trace(err)
	}
	cacheClient, err := cache.Open(cfg.Database.CacheStore, cfg.Database.TablePrefix, cfg.Server.CacheTTL)
	if err != nil {
		return nil, errors.Annotatef(err, "open cache store %s", log.RedactDBURL(cfg.Database.CacheStore))
	}
	blobStore, err := blob.Open(cfg.Blob)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewServer(cfg, dataClient, cacheClient, blobStore, catalog.Default()), nil
}

// ServiceContext returns the current snapshot or nil if no model is loaded.
func (s *Server) ServiceContext() *ServiceContext {
	return s.serviceContext.Load()
}

// SetModel serves a trained model.
func (s *Server) SetModel(model *mf.Model) *ServiceContext {
	return s.setModel(model, uuid.New().String())
}

func (s *Server) setModel(model *mf.Model, version string) *ServiceContext {
	serviceContext := NewServiceContext(model, s.Catalog, version)
	s.serviceContext.Store(serviceContext)
	ModelUsers.Set(float64(model.CountUsers()))
	ModelItems.Set(float64(model.CountItems()))
	return serviceContext
}

// Reload reads the model blob and swaps the service context. The previous context is kept on failure
// and when the blob is unchanged.
func (s *Server) Reload() (*ServiceContext, error) {
	model, digest, err := mf.LoadWithDigest(s.BlobStore, s.Config.Blob.ModelName)
	if err != nil {
		ModelReloadTotal.WithLabelValues("failure").Inc()
		return nil, errors.Annotatef(err, "load model %s", s.Config.Blob.ModelName)
	}
	if current := s.ServiceContext(); current != nil && current.Version == digest {
		ModelReloadTotal.WithLabelValues("unchanged").Inc()
		log.Logger().Debug("model unchanged", zap.String("version", digest))
		return current, nil
	}
	ModelReloadTotal.WithLabelValues("success").Inc()
	serviceContext := s.setModel(model, digest)
	log.Logger().Info("reload model",
		zap.String("version", serviceContext.Version),
		zap.Int32("n_users", model.CountUsers()),
		zap.Int32("n_items", model.CountItems()),
		zap.Int("n_factors", model.NFactors()))
	return serviceContext, nil
}

// ReloadWithRetry retries Reload with exponential backoff until it succeeds, ctx is done or
// maxElapsed has passed. A blob in an unknown format is not retried.
func (s *Server) ReloadWithRetry(ctx context.Context, maxElapsed time.Duration) (*ServiceContext, error) {
	return backoff.Retry(ctx, func() (*ServiceContext, error) {
		serviceContext, err := s.Reload()
		if errors.Is(err, mf.ErrUnsupportedFormat) {
			return nil, backoff.Permanent(err)
		}
		return serviceContext, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Logger().Warn("failed to load model", zap.Error(err), zap.Duration("retry_after", next))
		}))
}

// Handler builds the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	s.CreateWebService()
	container := restful.NewContainer()
	container.Filter(RequestIdFilter)
	container.Add(s.WebService)
	container.Add(NewOpenAPIService(container))
	container.Handle(apiDocsPath, NewSwaggerUI())
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// Serve starts the HTTP server and the periodic reload. It blocks until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if _, err := s.ReloadWithRetry(ctx, modelLoadTimeout); err != nil {
		log.Logger().Warn("start without model", zap.Error(err))
	}
	if s.Config.Server.ReloadPeriod > 0 {
		go s.reloadPeriodically(ctx)
	}
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		log.Logger().Info("start http server", zap.String("url", fmt.Sprintf("http://%s", addr)))
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Trace(err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Trace(s.httpServer.Shutdown(shutdownCtx))
	}
}

func (s *Server) reloadPeriodically(ctx context.Context) {
	ticker := time.NewTicker(s.Config.Server.ReloadPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReloadWithRetry(ctx, min(s.Config.Server.ReloadPeriod, modelLoadTimeout)); err != nil {
				log.Logger().Error("failed to reload model", zap.Error(err))
			}
		}
	}
}

// Close releases the stores.
func (s *Server) Close() error {
	if err := s.DataClient.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.CacheClient.Close())
}
