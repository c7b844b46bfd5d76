package webserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/httpx"
	"github.com/helpinghand/helpinghand/internal/manager"
)

type requestResponse struct {
	Msg     string               `json:"msg"`
	Request *manager.RequestView `json:"request"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in manager.CreateInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := s.Manager.Create(r.Context(), principal(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, requestResponse{Msg: "Help request created successfully!", Request: req})
}

type listFunc func(context.Context, auth.Principal) ([]manager.RequestView, error)

func (s *Server) list(w http.ResponseWriter, r *http.Request, fn listFunc) {
	reqs, err := fn(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []manager.RequestView{}
	}
	httpx.WriteJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.Manager.ListAll)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.Manager.ListPending)
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.Manager.ListMine)
}

// handleListOwn serves /requests/me, which only help seekers may call.
func (s *Server) handleListOwn(w http.ResponseWriter, r *http.Request) {
	if !principal(r).Is(db.RoleHelpSeeker) {
		s.writeError(w, r, apperr.Forbidden("Access denied. Not a help seeker."))
		return
	}
	s.list(w, r, s.Manager.ListMine)
}

func (s *Server) handleListAssigned(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.Manager.ListAssignedToVolunteer)
}

func (s *Server) handleVolunteerFeed(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.Manager.VolunteerFeed)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	req, err := s.Manager.Get(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

type transitionFunc func(context.Context, string, auth.Principal) (*manager.RequestView, error)

func (s *Server) transition(fn transitionFunc, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := fn(r.Context(), chi.URLParam(r, "id"), principal(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, requestResponse{Msg: msg, Request: req})
	}
}

// handleDelete answers with msg on success. A non-empty notFound replaces
// the manager's message for a missing request.
func (s *Server) handleDelete(msg, notFound string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Manager.Delete(r.Context(), chi.URLParam(r, "id"), principal(r)); err != nil {
			if notFound != "" && apperr.KindOf(err) == apperr.KindNotFound {
				err = apperr.NotFound(notFound)
			}
			s.writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"msg": msg})
	}
}

func (s *Server) handleAdminSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status      db.Status `json:"status"`
		VolunteerID string    `json:"volunteer_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	req, err := s.Manager.AdminSetStatus(r.Context(), principal(r), chi.URLParam(r, "id"), body.Status, body.VolunteerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, requestResponse{Msg: "Request status updated to " + string(req.Status) + ".", Request: req})
}
