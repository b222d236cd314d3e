// Package server assembles the HTTP router of the TAXII server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	commonmiddleware "github.com/eclecticiq/OpenTAXII-sub000/internal/common/middleware"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/apis"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/auth"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/config"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db"
)

// ServerVersion is overridden at build time with -ldflags "-X ...server.ServerVersion=<v>".
var ServerVersion = "0.1.0"

type TAXIIServer struct {
	Router   *chi.Mux
	cfg      *config.Config
	db       db.Database
	verifier *auth.Verifier
	gatherer prometheus.Gatherer
}

// CreateNewServer returns a server for database. Metrics are served from gatherer; a nil
// gatherer uses the default registry.
func CreateNewServer(cfg *config.Config, database db.Database, gatherer prometheus.Gatherer) (*TAXIIServer, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &TAXIIServer{
		Router:   chi.NewRouter(),
		cfg:      cfg,
		db:       database,
		verifier: auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer),
		gatherer: gatherer,
	}
	if cfg.Auth.Secret == "" {
		log.Warn().Msg("no auth secret configured, all requests are anonymous")
	}
	return s, nil
}

func (s *TAXIIServer) MountHandlers() {
	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	s.Router.Use(commonmiddleware.SetTimeout(s.cfg.RequestTimeout()))
	if s.cfg.Server.HandleCORS {
		s.Router.Use(s.corsHandler())
	}
	s.mountResourceHandlers(s.Router)
	if zerolog.GlobalLevel() <= zerolog.TraceLevel {
		walkFunc := func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			log.Trace().Str("method", method).Str("route", route).Msg("route")
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("unable to walk routes")
		}
	}
}

func (s *TAXIIServer) mountResourceHandlers(r chi.Router) {
	r.Get("/version", s.getVersion)
	r.Get("/ready", s.getReadiness)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(s.verifier.Middleware)
		apis.New(s.db, apis.Settings{
			Title:              s.cfg.TAXII.Title,
			Description:        s.cfg.TAXII.Description,
			Contact:            s.cfg.TAXII.Contact,
			DefaultPageSize:    s.cfg.TAXII.DefaultPageSize,
			MaxPageSize:        s.cfg.TAXII.MaxPageSize,
			MaxRequestBodySize: s.cfg.Server.MaxRequestBodySize,
		}).Router(r)
	})
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *TAXIIServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "TAXII Server: " + ServerVersion,
		ApiVersion:    httpx.MediaTypeTAXII,
	}
	httpx.SendJsonRsp(w, r, http.StatusOK, httpx.MediaTypeJSON, rsp)
}

func (s *TAXIIServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")

	if err := s.db.Ping(r.Context()); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("database ping failed during readiness check")
		httpx.SendJsonRsp(w, r, http.StatusServiceUnavailable, httpx.MediaTypeJSON, map[string]string{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	httpx.SendJsonRsp(w, r, http.StatusOK, httpx.MediaTypeJSON, map[string]string{
		"status": "ready",
	})
}

func (s *TAXIIServer) corsHandler() func(http.Handler) http.Handler {
	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		ExposedHeaders: []string{
			"X-TAXII-Date-Added-First",
			"X-TAXII-Date-Added-Last",
			commonmiddleware.RequestIDHeader,
		},
		MaxAge: 300,
	})
}
