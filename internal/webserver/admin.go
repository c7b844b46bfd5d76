package webserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/httpx"
	"github.com/helpinghand/helpinghand/internal/moderation"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := s.Moderation.ListUsers(r.Context(), principal(r), moderation.UserFilter{
		Search:    q.Get("search"),
		Role:      q.Get("role"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []db.User{}
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

func (s *Server) handleUserDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.Moderation.UserDetails(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, details)
}

func (s *Server) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role db.Role `json:"role"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	u, err := s.Moderation.SetUserRole(r.Context(), principal(r), chi.URLParam(r, "id"), body.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"msg": "User role updated to " + string(u.Role) + ".", "user": u})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.Moderation.DeleteUser(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"msg": "User removed successfully!"})
}

func (s *Server) handleListComplaints(w http.ResponseWriter, r *http.Request) {
	complaints, err := s.Moderation.ListComplaints(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if complaints == nil {
		complaints = []moderation.ComplaintView{}
	}
	httpx.WriteJSON(w, http.StatusOK, complaints)
}

func (s *Server) handleSetComplaintStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status db.ComplaintStatus `json:"status"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	c, err := s.Moderation.SetComplaintStatus(r.Context(), principal(r), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"msg": "Complaint status updated to " + string(c.Status) + ".", "complaint": c})
}

func (s *Server) handleRoleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.Moderation.RoleCounts(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, counts)
}

func (s *Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.Moderation.StatusCounts(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, counts)
}
