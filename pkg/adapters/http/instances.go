package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// ssePing keeps idle event streams open through proxies.
const ssePing = 30 * time.Second

type inboundRequest struct {
	Canal                domain.Canal `json:"canal"`
	IdentificadorUsuario string       `json:"identificador_usuario"`
	Texto                string       `json:"texto"`
}

// Inbound handles POST /inbound, the entry point for channel adapters.
func (s *Server) Inbound(w http.ResponseWriter, r *http.Request) {
	var body inboundRequest
	if !decode(w, r, &body) {
		return
	}
	out, err := s.engine.HandleInboundMessage(r.Context(), body.Canal, body.IdentificadorUsuario, body.Texto)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.onInbound != nil {
		s.onInbound(out.Decision)
	}
	s.streams.Publish(out.Instance)
	s.streams.Publish(out.Reiniciada)
	writeJSON(w, http.StatusOK, out)
}

// ListInstances handles GET /instances?flow_id&canal&usuario&estado&limit.
// estado accepts a comma separated list.
func (s *Server) ListInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ports.InstanceFilter{
		FlowID:               q.Get("flow_id"),
		Canal:                domain.Canal(q.Get("canal")),
		IdentificadorUsuario: q.Get("usuario"),
		Limit:                queryInt(r, "limit"),
	}
	for _, e := range splitList(q.Get("estado")) {
		filter.Estados = append(filter.Estados, domain.InstanceEstado(e))
	}
	list, err := s.monitor.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetInstance handles GET /instances/{id}.
func (s *Server) GetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.monitor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// InstanceLogs handles GET /instances/{id}/logs.
func (s *Server) InstanceLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.monitor.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// InstanceReplay handles GET /instances/{id}/replay. With ?format=mermaid the
// flow diagram with the visited path highlighted is returned as text.
func (s *Server) InstanceReplay(w http.ResponseWriter, r *http.Request) {
	rep, err := s.monitor.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(rep.Mermaid()))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Detener handles POST /instances/{id}/detener.
func (s *Server) Detener(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.Detener(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streams.Publish(inst)
	writeJSON(w, http.StatusOK, inst)
}

type respondRequest struct {
	Texto string `json:"texto"`
}

// Respond handles POST /instances/{id}/respond: an operator message during a handoff.
func (s *Server) Respond(w http.ResponseWriter, r *http.Request) {
	var body respondRequest
	if !decode(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	msg, err := s.engine.Respond(r.Context(), id, body.Texto)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// CloseHandoff handles POST /instances/{id}/close.
func (s *Server) CloseHandoff(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.CloseHandoff(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streams.Publish(inst)
	writeJSON(w, http.StatusOK, inst)
}

type resumeRequest struct {
	NodoID string `json:"nodo_id"`
}

// ResumeHandoff handles POST /instances/{id}/resume. An empty body continues after the
// transferir node.
func (s *Server) ResumeHandoff(w http.ResponseWriter, r *http.Request) {
	var body resumeRequest
	if r.ContentLength != 0 && !decode(w, r, &body) {
		return
	}
	out, err := s.engine.ResumeHandoff(r.Context(), chi.URLParam(r, "id"), body.NodoID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streams.Publish(out.Instance)
	writeJSON(w, http.StatusOK, out)
}

// SubscribeEvents handles GET /instances/{id}/events (SSE). The first data event is the
// full instance; every later one carries only what changed.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	inst, err := s.monitor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ch, cancel := s.streams.Subscribe(inst)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if initial, err := json.Marshal(domain.Diff(nil, inst)); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", initial)
	}
	flusher.Flush()
	s.logger.Debug("SSE: subscribed", "instance_id", inst.ID)

	ticker := time.NewTicker(ssePing)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
