// Package server publishes an issuer's profile and keys over HTTP and
// exposes the verification pipeline to relying parties.
package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eventbadges/badge-engine/pkg/issuer"
	"github.com/eventbadges/badge-engine/pkg/multikey"
	"github.com/eventbadges/badge-engine/pkg/verify"
)

// Route paths.
const (
	PathIssuer  = issuer.ProfilePath
	PathKey     = "/api/badge/keys/{keyId}"
	PathVerify  = "/api/badge/verify"
	PathMetrics = "/metrics"
	PathHealth  = "/health"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeJSONLD = "application/ld+json"
	maxArtifactSize   = 1 << 20
)

// Options wires a Handler.
type Options struct {
	IssuerURL   string
	IssuerName  string
	IssuerEmail string
	Keys        *issuer.KeySet

	// Pipeline serves the verify endpoint. Defaults to verify.New(nil).
	Pipeline *verify.Pipeline
	Logger   *zap.Logger

	// Registerer receives the HTTP request metrics and Gatherer serves
	// /metrics. Both default to the prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Handler serves the badge HTTP API.
type Handler struct {
	profile  *issuer.Profile
	keyDocs  map[string]*multikey.Document
	pipeline *verify.Pipeline
	logger   *zap.Logger
	metrics  *httpMetrics
	router   *mux.Router
}

// New builds the issuer profile and key documents up front and registers
// every route.
func New(opts Options) (*Handler, error) {
	if opts.Keys == nil {
		return nil, errors.New("server needs an issuer key set")
	}

	profile, err := issuer.BuildProfile(opts.IssuerURL, opts.IssuerName, opts.IssuerEmail, opts.Keys)
	if err != nil {
		return nil, err
	}
	docs, err := opts.Keys.Documents(opts.IssuerURL)
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Pipeline == nil {
		opts.Pipeline = verify.New(nil, verify.WithLogger(opts.Logger))
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	h := &Handler{
		profile:  profile,
		keyDocs:  make(map[string]*multikey.Document, len(docs)),
		pipeline: opts.Pipeline,
		logger:   opts.Logger,
		router:   mux.NewRouter(),
	}
	for i, id := range opts.Keys.IDs() {
		h.keyDocs[id] = docs[i]
	}

	h.metrics, err = newHTTPMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	h.registerRoutes(opts.Gatherer)
	return h, nil
}

// Router returns the configured router.
func (h *Handler) Router() http.Handler {
	return h.router
}

func (h *Handler) registerRoutes(gatherer prometheus.Gatherer) {
	h.router.Use(h.loggingMiddleware, h.recoverMiddleware)

	h.router.HandleFunc(PathHealth, h.health).Methods(http.MethodGet)
	h.router.HandleFunc(PathIssuer, h.getIssuer).Methods(http.MethodGet)
	h.router.HandleFunc(PathKey, h.getKey).Methods(http.MethodGet)
	h.router.HandleFunc(PathVerify, h.postVerify).Methods(http.MethodPost)
	h.router.Handle(PathMetrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
