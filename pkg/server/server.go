// Package server exposes the chat pipeline over HTTP: an SSE chat endpoint
// and read-only record endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
	"github.com/m-mizutani/truthcast/pkg/usecase/generate"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

// Server wires HTTP handlers to the chat service and the record store.
type Server struct {
	chat         *chat.Service
	content      *generate.Service
	repo         repository.Repository
	streamBuffer int
}

type Option func(*Server)

// WithStreamBuffer overrides the per-connection event buffer size.
func WithStreamBuffer(n int) Option {
	return func(s *Server) {
		s.streamBuffer = n
	}
}

// WithContent attaches the content generation service and enables its
// routes.
func WithContent(gen *generate.Service) Option {
	return func(s *Server) {
		s.content = gen
	}
}

func New(chatSvc *chat.Service, repo repository.Repository, opts ...Option) *Server {
	s := &Server{
		chat:         chatSvc,
		repo:         repo,
		streamBuffer: chat.DefaultStreamBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("GET /api/records/{id}", s.handleGetRecord)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.content != nil {
		mux.HandleFunc("POST /api/content/generate", s.handleContentGenerate)
		mux.HandleFunc("POST /api/content/clarification", s.handleContentClarification)
		mux.HandleFunc("POST /api/content/faq", s.handleContentFAQ)
		mux.HandleFunc("POST /api/content/platform-scripts", s.handleContentScripts)
	}
	return mux
}

type chatRequest struct {
	Text            string `json:"text"`
	ContextRecordID string `json:"context_record_id,omitempty"`
}

// handleChatStream runs one chat turn as an SSE stream. All pipeline
// failures after the stream starts are reported in-band; HTTP status codes
// only cover request decoding. A client disconnect stops delivery but the
// in-flight stages run to completion so their results reach the cache and
// the store.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	connCtx := r.Context()
	emitter := chat.NewEmitter(connCtx, s.streamBuffer)
	go s.chat.HandleText(context.WithoutCancel(connCtx), req.Text, req.ContextRecordID, emitter)

	logger := logging.From(connCtx)
	enc := chat.NewEncoder(w)
	writable := true
	for ev := range emitter.Events() {
		if !writable {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			logger.Debug("stopped writing to client", "error", err)
			writable = false
		}
	}
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit := chat.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	rows, err := s.repo.ListRecords(r.Context(), chat.ClampLimit(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		logging.From(r.Context()).Error("failed to list records", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": rows})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.repo.GetRecord(r.Context(), model.RecordID(id))
	if errors.Is(err, repository.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		logging.From(r.Context()).Error("failed to load record", "id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type contentRequest struct {
	RecordID      string               `json:"record_id"`
	Style         string               `json:"style,omitempty"`
	Platforms     []string             `json:"platforms,omitempty"`
	IncludeFAQ    bool                 `json:"include_faq,omitempty"`
	FAQCount      int                  `json:"faq_count,omitempty"`
	Clarification *model.Clarification `json:"clarification,omitempty"`
}

// decodeContentRequest validates the shared content request shape. It
// writes the error response itself and reports ok=false when the request
// is unusable.
func (s *Server) decodeContentRequest(w http.ResponseWriter, r *http.Request) (contentRequest, generate.Request, bool) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, generate.Request{}, false
	}
	if req.RecordID == "" {
		writeError(w, http.StatusBadRequest, "record_id is required")
		return req, generate.Request{}, false
	}

	var platforms []model.Platform
	for _, raw := range req.Platforms {
		p, ok := model.ParsePlatform(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown platform: "+raw)
			return req, generate.Request{}, false
		}
		platforms = append(platforms, p)
	}

	return req, generate.Request{
		Style:      model.NormalizeClarificationStyle(req.Style),
		Platforms:  platforms,
		IncludeFAQ: req.IncludeFAQ,
		FAQCount:   req.FAQCount,
	}, true
}

// writeContentResult maps generation errors to status codes and writes the
// body on success.
func writeContentResult(w http.ResponseWriter, r *http.Request, req contentRequest, body any, err error) {
	if errors.Is(err, repository.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found: "+req.RecordID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "content generation failed")
		logging.From(r.Context()).Error("content generation failed", "record_id", req.RecordID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleContentGenerate(w http.ResponseWriter, r *http.Request) {
	req, genReq, ok := s.decodeContentRequest(w, r)
	if !ok {
		return
	}
	bundle, err := s.content.Full(r.Context(), model.RecordID(req.RecordID), genReq)
	writeContentResult(w, r, req, bundle, err)
}

func (s *Server) handleContentClarification(w http.ResponseWriter, r *http.Request) {
	req, genReq, ok := s.decodeContentRequest(w, r)
	if !ok {
		return
	}
	clarification, err := s.content.Clarification(r.Context(), model.RecordID(req.RecordID), genReq.Style)
	writeContentResult(w, r, req, clarification, err)
}

func (s *Server) handleContentFAQ(w http.ResponseWriter, r *http.Request) {
	req, genReq, ok := s.decodeContentRequest(w, r)
	if !ok {
		return
	}
	faq, err := s.content.FAQ(r.Context(), model.RecordID(req.RecordID), genReq.FAQCount)
	writeContentResult(w, r, req, map[string]any{"faq": faq}, err)
}

func (s *Server) handleContentScripts(w http.ResponseWriter, r *http.Request) {
	req, genReq, ok := s.decodeContentRequest(w, r)
	if !ok {
		return
	}
	scripts, err := s.content.PlatformScripts(r.Context(), model.RecordID(req.RecordID), req.Clarification, genReq.Platforms)
	writeContentResult(w, r, req, map[string]any{"platform_scripts": scripts}, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
