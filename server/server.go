package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/briefdelights/briefly/pkg/domain"
	"github.com/briefdelights/briefly/pkg/repository"
)

// Server handles click-tracking redirects, subscription management and the
// sponsor admin API
type Server struct {
	config      ConfigProvider
	tracking    TrackingStore
	sponsors    SponsorStore
	subscribers SubscriberStore
	version     string
	debug       bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// TrackingStore records click events
type TrackingStore interface {
	RecordClick(ctx context.Context, click domain.ClickEvent) error
}

// SponsorStore manages sponsor creatives and the placement schedule
type SponsorStore interface {
	CreateContent(ctx context.Context, c domain.SponsorContent) (int64, error)
	ListContent(ctx context.Context, activeOnly bool) ([]domain.SponsorContent, error)
	SetContentActive(ctx context.Context, id int64, active bool) error
	Schedule(ctx context.Context, date, segment string, sponsorID int64) (int64, error)
	CancelSchedule(ctx context.Context, id int64) error
	ListSchedule(ctx context.Context, from, to string) ([]domain.ScheduleEntry, error)
	IncrementClicks(ctx context.Context, scheduleID int64) error
}

// SubscriberStore manages newsletter recipients
type SubscriberStore interface {
	Create(ctx context.Context, email, segment, referralCode, referredBy string) (int64, error)
	Confirm(ctx context.Context, email string) error
	Unsubscribe(ctx context.Context, email string) error
	List(ctx context.Context, filter repository.Filter) ([]domain.Subscriber, error)
	CountBySegment(ctx context.Context) (map[string]int, error)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, tracking TrackingStore, sponsors SponsorStore, subscribers SubscriberStore, version string, debug bool) *Server {
	s := &Server{
		config:      cfg,
		tracking:    tracking,
		sponsors:    sponsors,
		subscribers: subscribers,
		version:     version,
		debug:       debug,
		router:      routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("briefly", "briefdelights", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(64 * 1024)) // 64KB, API bodies are small
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	// click-through redirects, hit from newsletters
	s.router.HandleFunc("GET /api/track", s.trackArticleHandler)
	s.router.HandleFunc("GET /api/track/sponsor", s.trackSponsorHandler)

	// subscription lifecycle
	s.router.HandleFunc("POST /api/subscribe", s.subscribeHandler)
	s.router.HandleFunc("GET /api/confirm", s.confirmHandler)
	s.router.HandleFunc("GET /api/unsubscribe", s.unsubscribeHandler)

	// sponsor admin
	s.router.Mount("/api/admin").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("POST /sponsors", s.createSponsorHandler)
		r.HandleFunc("GET /sponsors", s.listSponsorsHandler)
		r.HandleFunc("POST /sponsors/{id}/active", s.setSponsorActiveHandler)
		r.HandleFunc("POST /schedule", s.scheduleSponsorHandler)
		r.HandleFunc("GET /schedule", s.listScheduleHandler)
		r.HandleFunc("DELETE /schedule/{id}", s.cancelScheduleHandler)
		r.HandleFunc("GET /subscribers", s.listSubscribersHandler)
		r.HandleFunc("GET /subscribers/counts", s.subscriberCountsHandler)
	})

	s.router.HandleFunc("GET /api/v1/status", s.statusHandler)
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}

// errCode maps repository errors to HTTP status codes
func errCode(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrScheduleConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
