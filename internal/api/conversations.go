package api

import (
	"net/http"
)

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)

	summaries, err := s.opts.Conversations.List(limit)
	if err != nil {
		s.logger.Error("conversation list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversations": summaries,
		"count":         len(summaries),
	}, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := s.opts.Conversations.Get(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, conv, s.logger)
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.opts.Conversations.Delete(id); err != nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
