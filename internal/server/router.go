package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pollinations/pollenwall/internal/engine"
	"github.com/pollinations/pollenwall/internal/pollen"
)

// StatusSource is the engine surface the API reads from.
type StatusSource interface {
	Status() engine.Status
	Pollens() []pollen.Pollen
	Pollen(id string) (pollen.Pollen, bool)
}

// Router provides embeddable read-only HTTP handlers over a running engine.
// Endpoints:
//
//	GET {basePath}/status       engine snapshot
//	GET {basePath}/pollens      all tracked pollens
//	GET {basePath}/pollens/:id  one pollen
//	GET {basePath}/healthz      liveness
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	src      StatusSource
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/pollens.
func NewRouter(src StatusSource, basePath string) *Router {
	return &Router{src: src, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/pollens", r.handlePollens)
	group.GET("/pollens/:id", r.handlePollen)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The caller shuts it down via http.Server's Close or Shutdown.
func NewServer(addr, basePath string, src StatusSource) (*http.Server, error) {
	r := NewRouter(src, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.src.Status())
}

func (r *Router) handlePollens(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.src.Pollens())
}

func (r *Router) handlePollen(c *gin.Context) {
	id := c.Param("id")
	if !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid pollen id"})
		return
	}
	p, ok := r.src.Pollen(id)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown pollen: " + id})
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
