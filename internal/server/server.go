package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/evaluation"
	"github.com/spigell/search-evaluator/internal/imagesearch"
	"github.com/spigell/search-evaluator/internal/logger"
	"github.com/spigell/search-evaluator/internal/metrics"
	"github.com/spigell/search-evaluator/internal/queryinfo"
)

const (
	EnvironmentProduction = "production"

	rootMessage = "Search Quality Evaluation API is running. Visit /static/index.html for the web interface."

	detailInvalidInput  = "Invalid input data"
	detailInternalError = "Internal server error"
	detailBatchFailed   = "Batch evaluation failed"
	detailQueryRequired = "Query is required"

	generateImagePath = "/generate_image"
)

type Evaluator interface {
	Evaluate(ctx context.Context, item *evaluation.QueryItem) (*evaluation.Result, error)
	EvaluateBatch(ctx context.Context, items []evaluation.QueryItem) ([]*evaluation.Result, error)
}

type ImageResolver interface {
	ImageFor(ctx context.Context, req imagesearch.Request) string
}

type QueryDescriber interface {
	Describe(ctx context.Context, query string) (*queryinfo.Info, error)
}

type Config struct {
	Environment string
	StaticDir   string
	CORSOrigins []string
}

// Dependencies are the collaborators behind the HTTP handlers. Metrics is
// optional.
type Dependencies struct {
	Evaluator Evaluator
	Images    ImageResolver
	Queries   QueryDescriber
	Metrics   *metrics.Metrics
}

type Server struct {
	cfg       Config
	deps      Dependencies
	router    *mux.Router
	validator *requestValidator
	logger    *zap.Logger
}

func New(ctx context.Context, cfg Config, deps Dependencies, log *zap.Logger) (*Server, error) {
	if deps.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if deps.Images == nil {
		return nil, errors.New("image resolver is required")
	}
	if deps.Queries == nil {
		return nil, errors.New("query describer is required")
	}

	log = logger.WithFields(log)
	validator, err := newRequestValidator(ctx, log, generateImagePath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		router:    mux.NewRouter(),
		validator: validator,
		logger:    log,
	}
	s.registerRoutes()

	return s, nil
}

// Handler returns the router wrapped in request id, access log, metrics and
// CORS middleware, outermost first.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
	})

	var h http.Handler = c.Handler(s.router)
	if s.deps.Metrics != nil {
		h = s.deps.Metrics.Middleware(s.routeTemplate, h)
	}
	h = accessLogMiddleware(s.logger, h)
	return requestIDMiddleware(h)
}

func (s *Server) registerRoutes() {
	s.router.Use(s.validator.Middleware)

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	s.router.HandleFunc("/evaluate/batch", s.handleEvaluateBatch).Methods(http.MethodPost)
	s.router.HandleFunc(generateImagePath, s.handleGenerateImage).Methods(http.MethodPost)
	s.router.HandleFunc("/query/info", s.handleQueryInfo).Methods(http.MethodPost)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	if s.docsEnabled() {
		s.router.HandleFunc("/docs", s.handleDocs).Methods(http.MethodGet)
		s.router.HandleFunc("/openapi.yaml", s.handleOpenAPI).Methods(http.MethodGet)
	}

	if dir := strings.TrimSpace(s.cfg.StaticDir); dir != "" {
		s.router.PathPrefix("/static/").Handler(
			http.StripPrefix("/static/", http.FileServer(http.Dir(dir))),
		).Methods(http.MethodGet, http.MethodHead)
	}
}

// routeTemplate returns the path template of the route r matches, or "" when
// no route (or no method) matches.
func (s *Server) routeTemplate(r *http.Request) string {
	var match mux.RouteMatch
	if !s.router.Match(r, &match) || match.Route == nil {
		return ""
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}

func (s *Server) docsEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(s.cfg.Environment), EnvironmentProduction)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var item evaluation.QueryItem
	if err := decodeJSON(r, &item); err != nil {
		s.log(r).Warn("failed to decode evaluation request", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, detailInvalidInput)
		return
	}

	result, err := s.deps.Evaluator.Evaluate(r.Context(), &item)
	if err != nil {
		status, detail := evaluationErrorResponse(err)
		s.log(r).Error("evaluation failed", zap.Int("status", status), zap.Error(err))
		writeError(w, status, detail)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req evaluation.BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.log(r).Warn("failed to decode batch request", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, detailInvalidInput)
		return
	}

	results, err := s.deps.Evaluator.EvaluateBatch(r.Context(), req.Evaluations)
	if err != nil {
		s.log(r).Error("batch evaluation failed", zap.Int("items", len(req.Evaluations)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, detailBatchFailed)
		return
	}
	if results == nil {
		results = []*evaluation.Result{}
	}

	writeJSON(w, http.StatusOK, evaluation.BatchResponse{Results: results})
}

// handleGenerateImage always answers 200. Its body skips schema validation;
// an undecodable body resolves to the placeholder image.
func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imagesearch.Request
	if err := decodeJSON(r, &req); err != nil {
		s.log(r).Warn("failed to decode image request", zap.Error(err))
		req = imagesearch.Request{}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"image_url": s.deps.Images.ImageFor(r.Context(), req),
	})
}

func (s *Server) handleQueryInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.log(r).Warn("failed to decode query info request", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, detailInvalidInput)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, detailQueryRequired)
		return
	}

	info, err := s.deps.Queries.Describe(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, queryinfo.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, detailQueryRequired)
			return
		}
		s.log(r).Error("query info failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, detailInternalError)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docsPage))
}

func (s *Server) log(r *http.Request) *zap.Logger {
	return logger.ForContext(r.Context(), s.logger)
}

// evaluationErrorResponse maps evaluation failures onto status and a caller
// safe detail. Only the invalid score message is passed through verbatim.
func evaluationErrorResponse(err error) (int, string) {
	var invalid *evaluation.InvalidScoreError
	switch {
	case errors.As(err, &invalid):
		return http.StatusInternalServerError, invalid.Error()
	case evaluation.IsKind(err, evaluation.ErrInvalidInput):
		return http.StatusUnprocessableEntity, detailInvalidInput
	default:
		return http.StatusInternalServerError, detailInternalError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
