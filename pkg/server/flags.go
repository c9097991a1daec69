package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lkarlslund/redflag/pkg/flagstore"
)

func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := s.flags.ReadAll(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if flags == nil {
		flags = map[string]flagstore.Flag{}
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	var f flagstore.Flag
	if err := decodeJSON(r, &f); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.flags.Create(r.Context(), f); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleReadFlag(w http.ResponseWriter, r *http.Request) {
	f, err := s.flags.Read(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleUpdateFlag replaces the stored definition. The uid in the path
// wins over whatever the body carries.
func (s *Server) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	var f flagstore.Flag
	if err := decodeJSON(r, &f); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	f.UID = chi.URLParam(r, "uid")
	if err := s.flags.Update(r.Context(), f); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.Delete(r.Context(), chi.URLParam(r, "uid")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnableFlag(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.Enable(r.Context(), chi.URLParam(r, "uid")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisableFlag(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.Disable(r.Context(), chi.URLParam(r, "uid")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.GrantRole(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "role")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.RemoveRole(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "role")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.flags.ReadAllGroups(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleReadGroup(w http.ResponseWriter, r *http.Request) {
	flags, err := s.flags.ReadGroup(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleEnableGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.EnableGroup(r.Context(), chi.URLParam(r, "group")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisableGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.DisableGroup(r.Context(), chi.URLParam(r, "group")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddToGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.AddToGroup(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "group")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.flags.RemoveFromGroup(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "group")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxIngestBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid json body")
	}
	return nil
}
