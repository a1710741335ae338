/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package router 提供 HTTP 状态接口路由配置
// Package router provides the HTTP status routes
package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/glidertools/drifterfollow/internal/storage"
)

// ServiceName identifies the status server in traces.
const ServiceName = "drifterd"

// DefaultFixLimit caps /fixes when no limit is given.
const DefaultFixLimit = 100

// maxFixLimit caps /fixes regardless of the request.
const maxFixLimit = 10000

// FixSource lists decoded fixes.
type FixSource interface {
	Recent(ctx context.Context, q storage.FixQuery) ([]storage.Fix, error)
}

// StateSource returns the newest glider state.
type StateSource interface {
	Latest(ctx context.Context, glider string) (*storage.GliderState, error)
}

// PlanSource returns the newest waypoint plan.
type PlanSource interface {
	LatestPlan(ctx context.Context, glider string) ([]storage.PlannedWaypoint, error)
}

// Deps are what the routes read from. Any may be nil, which disables the
// routes depending on it.
type Deps struct {
	Fixes   FixSource
	States  StateSource
	Plans   PlanSource
	Metrics http.Handler
}

// Response is the standard API response.
// Response 是标准 API 响应。
type Response struct {
	Data     interface{} `json:"data,omitempty"`
	ErrorMsg string      `json:"error,omitempty"`
}

// New builds the gin engine.
// New 构建 gin 引擎。
func New(deps Deps, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(ServiceName), loggerMiddleware(logger))

	r.GET("/healthz", health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	apiV1Router := r.Group("/api/v1")
	{
		if deps.Fixes != nil {
			h := &fixHandler{fixes: deps.Fixes}
			apiV1Router.GET("/fixes", h.list)
		}

		gliderRouter := apiV1Router.Group("/gliders/:glider")
		{
			if deps.States != nil {
				h := &stateHandler{states: deps.States}
				gliderRouter.GET("/state", h.latest)
			}
			if deps.Plans != nil {
				h := &planHandler{plans: deps.Plans}
				gliderRouter.GET("/waypoints", h.latest)
			}
		}
	}
	return r
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
// Serve 在 addr 上提供服务，ctx 结束后优雅关闭。
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", zap.Error(err))
			return err
		}
		return nil
	}
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Data: gin.H{"status": "ok", "time": time.Now().UTC()}})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

type fixHandler struct {
	fixes FixSource
}

// list serves GET /api/v1/fixes?imei=&limit=, newest first.
func (h *fixHandler) list(c *gin.Context) {
	limit := DefaultFixLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, Response{ErrorMsg: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxFixLimit)
	}
	fixes, err := h.fixes.Recent(c.Request.Context(), storage.FixQuery{
		IMEI:  c.Query("imei"),
		Limit: limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Data: fixes})
}

type stateHandler struct {
	states StateSource
}

func (h *stateHandler) latest(c *gin.Context) {
	state, err := h.states.Latest(c.Request.Context(), c.Param("glider"))
	if err != nil {
		if errors.Is(err, storage.ErrStateNotFound) {
			c.JSON(http.StatusNotFound, Response{ErrorMsg: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Data: state})
}

type planHandler struct {
	plans PlanSource
}

func (h *planHandler) latest(c *gin.Context) {
	legs, err := h.plans.LatestPlan(c.Request.Context(), c.Param("glider"))
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, Response{ErrorMsg: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Data: legs})
}
