// Package server exposes staged collections over the JSON API the rest
// backend speaks. It exists so the TUI can be pointed at something real
// during development, and to test the client end to end.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/db/memory"
	"github.com/byxorna/stageboard/pkg/db/rest"
	"github.com/byxorna/stageboard/pkg/logger"
	"github.com/byxorna/stageboard/pkg/metrics"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// APIPrefix is where collections are mounted; point rest clients at
	// http://<addr>/api
	APIPrefix = "/api"

	shutdownTimeout = 5 * time.Second
)

type Options struct {
	Addr        string                   `validate:"required"`
	Collections map[string]db.Collection `validate:"required,min=1"`
	Logger      *zap.SugaredLogger       `validate:"-"`
}

type Server struct {
	collections map[string]db.Collection
	router      *gin.Engine
	server      *http.Server
	log         *zap.SugaredLogger
}

type listQuery struct {
	Stage string `form:"stage" binding:"required"`
	Page  int    `form:"page,default=1" binding:"gte=1"`
	Limit int    `form:"limit,default=10" binding:"gte=1,lte=500"`
}

func New(opts Options) (*Server, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid server options: %w", err)
	}

	s := Server{
		collections: opts.Collections,
		log:         opts.Logger,
	}
	if s.log == nil {
		s.log = logger.For(logger.ComponentServer)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.observe)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(APIPrefix)
	api.GET("/:kind", s.list)
	api.GET("/:kind/counts", s.counts)
	api.PATCH("/:kind/:id/status", s.transition)

	s.router = router
	s.server = &http.Server{Addr: opts.Addr, Handler: router}
	return &s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	code := c.Writer.Status()
	metrics.ServerRequest(route, strconv.Itoa(code))
	s.log.Debugw("request", "method", c.Request.Method, "path", c.Request.URL.Path, "code", code, "took", time.Since(start))
}

func (s *Server) collection(c *gin.Context) (db.Collection, bool) {
	kind := c.Param("kind")
	coll, ok := s.collections[kind]
	if !ok {
		s.fail(c, http.StatusNotFound, fmt.Errorf("unknown collection %s", kind))
	}
	return coll, ok
}

func (s *Server) list(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	resp, err := coll.List(c.Request.Context(), db.ListRequest{
		Stage:  v1.Stage(q.Stage),
		Page:   q.Page,
		Limit:  q.Limit,
		Filter: rest.ParseFilter(c.Request.URL.Query()),
	})
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	if resp.Data == nil {
		resp.Data = []*v1.Entity{}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) counts(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	counter, ok := coll.(db.Counter)
	if !ok {
		s.fail(c, http.StatusNotImplemented, fmt.Errorf("collection %s does not report counts", c.Param("kind")))
		return
	}
	counts, err := counter.Counts(c.Request.Context(), rest.ParseFilter(c.Request.URL.Query()))
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (s *Server) transition(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	body := map[string]any{}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	status, _ := body["status"].(string)
	if status == "" {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("status is required"))
		return
	}
	delete(body, "status")

	resp, err := coll.Transition(c.Request.Context(), db.TransitionRequest{
		ID:       v1.ID(c.Param("id")),
		Status:   v1.Stage(status),
		Metadata: body,
	})
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	out := gin.H{"data": resp.Entity}
	if resp.Counts != nil {
		out["counts"] = resp.Counts
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) fail(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error(), "status": code})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, db.ErrNoEntryFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, db.ErrStageNotRecognized), errors.Is(err, memory.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
