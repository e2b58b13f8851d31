package http

import (
	"net/http"

	"github.com/aretw0/flujos/internal/presentation/graph"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// CreateFlow handles POST /flows.
func (s *Server) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var in flows.CreateInput
	if !decode(w, r, &in) {
		return
	}
	f, err := s.flows.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// ListFlows handles GET /flows?marca_id&estado&canal.
func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.flows.List(r.Context(), ports.FlowFilter{
		MarcaID: q.Get("marca_id"),
		Estado:  domain.FlowEstado(q.Get("estado")),
		Canal:   domain.Canal(q.Get("canal")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetFlow handles GET /flows/{id}.
func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// FlowMermaid handles GET /flows/{id}/mermaid.
func (s *Server) FlowMermaid(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(f, nil)))
}

// DeleteFlow handles DELETE /flows/{id}.
func (s *Server) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateGraph handles PUT /flows/{id}/graph.
func (s *Server) UpdateGraph(w http.ResponseWriter, r *http.Request) {
	var upd flows.GraphUpdate
	if !decode(w, r, &upd) {
		return
	}
	f, err := s.flows.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type triggerRequest struct {
	Trigger domain.Trigger `json:"trigger"`
	Canales []domain.Canal `json:"canales"`
}

// UpdateTrigger handles PUT /flows/{id}/trigger.
func (s *Server) UpdateTrigger(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if !decode(w, r, &body) {
		return
	}
	f, err := s.flows.UpdateTrigger(r.Context(), chi.URLParam(r, "id"), body.Trigger, body.Canales)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) writeFlow(w http.ResponseWriter, r *http.Request, status int, f *domain.Flow, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, f)
}

// ActivateFlow handles POST /flows/{id}/activate.
func (s *Server) ActivateFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.Activate(r.Context(), chi.URLParam(r, "id"))
	s.writeFlow(w, r, http.StatusOK, f, err)
}

// PauseFlow handles POST /flows/{id}/pause.
func (s *Server) PauseFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.Pause(r.Context(), chi.URLParam(r, "id"))
	s.writeFlow(w, r, http.StatusOK, f, err)
}

// DuplicateFlow handles POST /flows/{id}/duplicate.
func (s *Server) DuplicateFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.Duplicate(r.Context(), chi.URLParam(r, "id"))
	s.writeFlow(w, r, http.StatusCreated, f, err)
}

// LayoutFlow handles POST /flows/{id}/layout.
func (s *Server) LayoutFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.ApplyLayout(r.Context(), chi.URLParam(r, "id"))
	s.writeFlow(w, r, http.StatusOK, f, err)
}

type validateResponse struct {
	Valid    bool              `json:"valid"`
	Warnings []flows.Violation `json:"warnings,omitempty"`
}

// ValidateFlow handles POST /flows/validate. With ?activation=true the trigger
// requirements for going live are checked too. Nothing is stored.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	var f domain.Flow
	if !decode(w, r, &f) {
		return
	}
	f.Normalize()
	check := flows.Validate
	if r.URL.Query().Get("activation") == "true" {
		check = flows.ValidateActivation
	}
	if err := check(&f); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true, Warnings: flows.Warnings(&f)})
}
