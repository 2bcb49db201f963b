package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/kloudmate/header-resolver/detector"
	"github.com/kloudmate/header-resolver/pkg/telemetry"
)

// maxBodyBytes bounds a classify request; larger headers should be truncated
// by the caller.
const maxBodyBytes = 8 << 20

// Server exposes a HeaderResolver over HTTP.
type Server struct {
	resolver           *detector.HeaderResolver
	rateLimitPerMinute int
}

// NewServer creates a server; a rateLimitPerMinute of zero disables the per-IP limit on /v1.
func NewServer(resolver *detector.HeaderResolver, rateLimitPerMinute int) *Server {
	return &Server{resolver: resolver, rateLimitPerMinute: rateLimitPerMinute}
}

// Router returns the chi handler serving health, metrics and the /v1 API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware)

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		if s.rateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.rateLimitPerMinute, time.Minute))
		}
		r.Get("/rules", s.handleListRules)
		r.Post("/classify", s.handleClassify)
	})

	return r
}

// ---- handlers ----

type classifyRequest struct {
	Path       string `json:"path"`
	Language   string `json:"language,omitempty"`
	Text       string `json:"text"`
	SkipFilter bool   `json:"skipFilter,omitempty"`
}

type ruleView struct {
	Name      string              `json:"name"`
	Languages []detector.Language `json:"languages"`
	Weight    float64             `json:"weight"`
	Pattern   string              `json:"pattern"`
	Syntax    detector.Syntax     `json:"syntax"`
	Inert     bool                `json:"inert"`
}

type rulesResponse struct {
	Generation  uint64     `json:"generation"`
	Rules       []ruleView `json:"rules"`
	Diagnostics []string   `json:"diagnostics,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if req.Path == "" && !req.SkipFilter {
		writeError(w, r, http.StatusBadRequest, ErrCodeMissingField, "path is required unless skipFilter is set")
		return
	}

	doc := detector.Document{Path: req.Path, Text: req.Text}
	if req.Language != "" {
		lang, err := detector.ParseLanguage(req.Language)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, ErrCodeInvalidLanguage, err.Error())
			return
		}
		doc.Language = lang
	} else {
		doc.Language = detector.DefaultLanguageFor(req.Path)
	}

	var res detector.Resolution
	if req.SkipFilter {
		res = s.resolver.ResolveText(doc)
	} else {
		var ok bool
		res, ok = s.resolver.Resolve(doc)
		if !ok {
			writeError(w, r, http.StatusUnprocessableEntity, ErrCodeNotCandidate, "document is not a header candidate")
			return
		}
	}
	res.Source = "http"
	telemetry.ObserveResolution(res)

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	table := s.resolver.Table
	resp := rulesResponse{Generation: table.Generation()}
	for _, rule := range table.Rules() {
		resp.Rules = append(resp.Rules, ruleView{
			Name:      rule.Name,
			Languages: rule.Languages,
			Weight:    rule.Weight,
			Pattern:   rule.Pattern,
			Syntax:    rule.Syntax,
			Inert:     rule.Inert(),
		})
	}
	for _, d := range table.Diagnostics() {
		resp.Diagnostics = append(resp.Diagnostics, d.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}
