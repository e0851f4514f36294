package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/extractor"
	"github.com/JakeFAU/contactfinder/internal/leadership"
	"github.com/JakeFAU/contactfinder/internal/retryclient"
)

type extractRequest struct {
	URL                 string `json:"url"`
	Mode                string `json:"mode"`
	Sitemap             *bool  `json:"sitemap"`
	EscalationThreshold *int   `json:"escalation_threshold"`
	MaxEmails           *int   `json:"max_emails"`
}

type extractResponse struct {
	Result *extractor.Result `json:"result"`
	RunID  string            `json:"run_id,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extractor not configured")
		return
	}
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	cfg, err := s.requestConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.extractor.Extract(r.Context(), req.URL, cfg)
	switch {
	case errors.Is(err, extractor.ErrInvalidURL),
		errors.Is(err, extractor.ErrDisallowedTarget),
		errors.Is(err, extractor.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, extractor.ErrAllStrategiesFailed):
		resp := extractResponse{Result: res, Error: err.Error()}
		resp.RunID = s.saveRun(r.Context(), res)
		writeJSON(w, http.StatusBadGateway, resp)
		return
	case err != nil:
		s.logger.Error("extraction failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{Result: res, RunID: s.saveRun(r.Context(), res)})
}

// requestConfig overlays the request's overrides on the server defaults.
func (s *Server) requestConfig(req extractRequest) (extractor.Config, error) {
	cfg := s.defaults
	if req.Mode != "" {
		mode, err := extractor.ParseMode(req.Mode)
		if err != nil {
			return extractor.Config{}, err
		}
		cfg.Mode = mode
	}
	cfg.SitemapEnabled = boolOrDefault(req.Sitemap, cfg.SitemapEnabled)
	cfg.EscalationThreshold = valueOrDefault(req.EscalationThreshold, cfg.EscalationThreshold)
	cfg.MaxEmails = valueOrDefault(req.MaxEmails, cfg.MaxEmails)
	return cfg, nil
}

// saveRun records res when a recorder is configured. Failures are logged
// and never fail the request; a run id assigned before the failure is kept.
func (s *Server) saveRun(ctx context.Context, res *extractor.Result) string {
	if s.runs == nil || res == nil {
		return ""
	}
	id, err := s.runs.RecordRun(ctx, res)
	if err != nil {
		s.logger.Warn("record run failed",
			zap.String("request_id", RequestID(ctx)),
			zap.String("url", res.URL()),
			zap.String("run_id", id),
			zap.Error(err),
		)
	}
	return id
}

type lookupRequest struct {
	leadership.Company
	Model string `json:"model"`
}

type lookupResponse struct {
	Model   string              `json:"model"`
	Raw     string              `json:"raw"`
	Table   *leadership.Table   `json:"table,omitempty"`
	Records []map[string]string `json:"records,omitempty"`
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) {
	if s.researcher == nil {
		writeError(w, http.StatusServiceUnavailable, "leadership lookup not configured")
		return
	}
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	answer, err := s.researcher.Lookup(r.Context(), req.Company, req.Model)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	resp := lookupResponse{Model: answer.Model, Raw: answer.Raw, Table: answer.Table}
	if answer.Table != nil {
		resp.Records = answer.Table.Records()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) models(w http.ResponseWriter, r *http.Request) {
	if s.researcher == nil {
		writeError(w, http.StatusServiceUnavailable, "leadership lookup not configured")
		return
	}
	models, err := s.researcher.Models(r.Context())
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, leadership.ErrIncompleteCompany):
		status = http.StatusBadRequest
	case errors.Is(err, leadership.ErrMissingAPIKey):
		status = http.StatusServiceUnavailable
	case errors.Is(err, retryclient.ErrRateLimitExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("upstream request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}
