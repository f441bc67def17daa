package http

import (
	"context"
	"net/http"

	"leftover/internal/services"
)

type undoEngine interface {
	Undo(ctx context.Context) (*services.Reverted, error)
	UndoDepth() int
}

// handleUndo reverts the most recent mutation. An empty history is a
// defined no-op and answers 204.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	reverted, err := s.session.Undo(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if reverted == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, reverted)
}

func (s *Server) handleUndoDepth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"depth": s.session.UndoDepth()})
}
