package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fightlens/fightlens/internal/job"
	"github.com/fightlens/fightlens/internal/ratelimit"
)

type Config struct {
	Store            *job.Store
	Storage          job.ObjectStorage
	Reporter         job.Reporter
	Assistant        job.Assistant
	BaseURL          string
	MaxUploadBytes   int64
	S3PublicEndpoint string
}

type Server struct {
	router     chi.Router
	jobHandler *job.Handler
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(slogMiddleware)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.S3PublicEndpoint,
	}))

	h := job.NewHandler(cfg.Store, cfg.Storage, cfg.MaxUploadBytes)
	if cfg.Reporter != nil {
		h.SetReporter(cfg.Reporter)
	}
	if cfg.Assistant != nil {
		h.SetAssistant(cfg.Assistant)
	}

	s := &Server{router: r, jobHandler: h}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Get("/", s.jobHandler.IndexPage)
	s.router.Get("/status/{jobID}", s.jobHandler.Status)
	s.router.Get("/results/{jobID}", s.jobHandler.ResultsPage)
	s.router.Get("/api/results/{jobID}", s.jobHandler.ResultsData)

	uploadLimiter := ratelimit.NewLimiter(0.5, 5)
	s.router.With(uploadLimiter.Middleware).Post("/upload", s.jobHandler.Upload)

	// Report and chat calls fan out to the LLM backend; keep them on a
	// shared budget per client.
	assistLimiter := ratelimit.NewLimiter(1, 10)
	s.router.Group(func(r chi.Router) {
		r.Use(assistLimiter.Middleware)
		r.Post("/api/regenerate-report/{jobID}", s.jobHandler.RegenerateReport)
		r.Post("/api/chat/{jobID}", s.jobHandler.Chat)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
