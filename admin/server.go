// CLAUDE:SUMMARY Admin HTTP surface: chi router, sign-on, upload form, upload endpoint, history API.
// Package admin serves the back-office web app through which signed-in
// staff upload spreadsheets into data sets of the metrics store.
//
// Routes:
//
//	GET  /healthz                               liveness, checks the history DB
//	GET  /login, /auth/callback                 OAuth2 sign-on
//	POST /logout
//	GET  /upload-data                           upload form (auth)
//	POST /upload-data/{data_group}/{data_type}  ingest one file (auth)
//	GET  /api/uploads                           upload history JSON (auth)
package admin

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/ppadmin/auth"
	"github.com/hazyhaar/ppadmin/idgen"
	"github.com/hazyhaar/ppadmin/metricstore"
	"github.com/hazyhaar/ppadmin/shield"
	"github.com/hazyhaar/ppadmin/spreadsheet"
	"github.com/hazyhaar/ppadmin/stagecraft"
	"github.com/hazyhaar/ppadmin/store"
	"github.com/hazyhaar/ppadmin/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

// multipartOverhead is the room left for multipart framing above the
// largest accepted file.
const multipartOverhead = 64 * 1024

// DataSets resolves data-set configuration.
type DataSets interface {
	DataSet(ctx context.Context, group, typ string) (*stagecraft.DataSet, error)
	DataSets(ctx context.Context) ([]stagecraft.DataSet, error)
}

// MetricStore receives parsed records.
type MetricStore interface {
	Post(ctx context.Context, group, typ, token string, records []spreadsheet.Record) error
}

// Server wires the admin handlers to their collaborators.
type Server struct {
	cfg      *Config
	secret   []byte
	store    *store.Store
	ingester *upload.Ingester
	datasets DataSets
	metrics  MetricStore
	provider *auth.Provider
	logger   *slog.Logger
	newState idgen.Generator
	tmpl     *template.Template
}

// Option configures a Server.
type Option func(*Server)

// WithDataSets replaces the stagecraft client.
func WithDataSets(d DataSets) Option { return func(s *Server) { s.datasets = d } }

// WithMetricStore replaces the metrics-store client.
func WithMetricStore(m MetricStore) Option { return func(s *Server) { s.metrics = m } }

// WithIngester replaces the ingester built from cfg.Upload.
func WithIngester(ing *upload.Ingester) Option { return func(s *Server) { s.ingester = ing } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer builds a Server. Collaborators not supplied through options
// are built from cfg.
func NewServer(cfg *Config, st *store.Store, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		secret:   []byte(cfg.SessionSecret),
		store:    st,
		provider: auth.NewProvider(cfg.OAuth),
		logger:   slog.Default(),
		newState: idgen.NanoID(32),
	}
	for _, o := range opts {
		o(s)
	}
	if s.datasets == nil {
		s.datasets = stagecraft.New(cfg.Stagecraft.URL, cfg.Stagecraft.Token)
	}
	if s.metrics == nil {
		s.metrics = metricstore.New(cfg.MetricStoreURL)
	}
	if s.ingester == nil {
		ing, err := upload.New(cfg.Upload, upload.WithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("admin: %w", err)
		}
		s.ingester = ing
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"lines": splitLines,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("admin: parse templates: %w", err)
	}
	s.tmpl = tmpl
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultBOStack(shield.StackConfig{
		MaxUploadBody: s.ingester.MaxBytes() + multipartOverhead,
	}) {
		r.Use(mw)
	}
	r.Use(auth.Middleware(s.secret))

	r.Get("/healthz", s.handleHealth)
	r.Get("/login", s.handleLogin)
	r.Get("/auth/callback", s.handleCallback)
	r.Post("/logout", s.handleLogout)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/upload-data", http.StatusSeeOther)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/upload-data", s.handleUploadForm)
		r.Post("/upload-data/{data_group}/{data_type}", s.handleUpload)
		r.Get("/api/uploads", s.handleHistory)
	})
	return r
}
