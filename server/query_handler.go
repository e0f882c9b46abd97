package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iamgraph/iamgraph"
)

// QueryHandler exposes the query engine over JSON HTTP. Per-query input
// errors map to 4xx responses; everything else is a 500 with the detail
// kept server-side.
type QueryHandler struct {
	log    *slog.Logger
	graph  *iamgraph.Graph
	engine *iamgraph.Engine
}

func NewQueryHandler(log *slog.Logger, graph *iamgraph.Graph) *QueryHandler {
	return &QueryHandler{log, graph, iamgraph.NewEngine(graph)}
}

func (h *QueryHandler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/check", h.check)
	mux.HandleFunc("POST /v1/who-can", h.whoCan)
	mux.HandleFunc("POST /v1/what-can", h.whatCan)
	mux.HandleFunc("GET /v1/export", h.export)
	return mux
}

type checkRequest struct {
	Identity string `json:"identity"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

type checkResponse struct {
	Decision string                      `json:"decision"`
	Ignored  []iamgraph.ConditionIgnored `json:"ignored,omitempty"`
}

func (h *QueryHandler) check(w http.ResponseWriter, r *http.Request) {
	req := checkRequest{}
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.engine.Check(r.Context(), req.Identity, req.Action, req.Resource)
	if err != nil {
		h.queryError(w, "check", err)
		return
	}
	h.respond(w, checkResponse{Decision: v.Decision.String(), Ignored: v.Ignored})
}

type whoCanRequest struct {
	Action   string `json:"action"`
	Resource string `json:"resource,omitempty"`
}

func (h *QueryHandler) whoCan(w http.ResponseWriter, r *http.Request) {
	req := whoCanRequest{}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Resource == "" {
		req.Resource = "*"
	}
	matches, err := h.engine.WhoCanDo(r.Context(), req.Action, req.Resource)
	if err != nil {
		h.queryError(w, "who-can", err)
		return
	}
	h.respond(w, map[string]any{"matches": matches})
}

type whatCanRequest struct {
	Identity string `json:"identity"`
}

func (h *QueryHandler) whatCan(w http.ResponseWriter, r *http.Request) {
	req := whatCanRequest{}
	if !h.decode(w, r, &req) {
		return
	}
	grants, err := h.engine.WhatCanDo(r.Context(), req.Identity)
	if err != nil {
		h.queryError(w, "what-can", err)
		return
	}
	h.respond(w, map[string]any{"grants": grants})
}

func (h *QueryHandler) export(w http.ResponseWriter, r *http.Request) {
	nodes, edges := h.graph.Export()
	h.respond(w, map[string]any{"nodes": nodes, "edges": edges})
}

func (h *QueryHandler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *QueryHandler) respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

// queryError maps per-query failures to status codes without leaking
// internals: unknown identities are 404, bad patterns 400, the rest 500.
func (h *QueryHandler) queryError(w http.ResponseWriter, op string, err error) {
	unknown := &iamgraph.UnknownIdentityError{}
	invalid := &iamgraph.InvalidPatternError{}
	switch {
	case errors.As(err, &unknown):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("query failed", slog.String("op", op), slog.Any("error", err))
		http.Error(w, "query failed", http.StatusInternalServerError)
	}
}
