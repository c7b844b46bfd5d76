package webserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/httpx"
	"github.com/helpinghand/helpinghand/internal/manager"
	"github.com/helpinghand/helpinghand/internal/moderation"
	"github.com/helpinghand/helpinghand/internal/profile"
)

type sessionUser struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Role db.Role `json:"role"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	Msg   string      `json:"msg"`
	User  sessionUser `json:"user"`
}

func writeSession(w http.ResponseWriter, sess *auth.Session, msg string) {
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Token: sess.Token,
		Msg:   msg,
		User:  sessionUser{ID: sess.User.ID, Name: sess.User.Name, Role: sess.User.Role},
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !s.decode(w, r, &in) {
		return
	}
	sess, err := s.Accounts.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSession(w, sess, "User registered successfully!")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	sess, err := s.Accounts.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSession(w, sess, "Logged in successfully!")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	httpx.WriteJSON(w, http.StatusOK, sessionUser{ID: p.ID, Name: p.Name, Role: p.Role})
}

func (s *Server) handleMyProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.Profiles.Mine(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var in profile.Input
	if !s.decode(w, r, &in) {
		return
	}
	p, created, err := s.Profiles.Upsert(r.Context(), principal(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "Volunteer profile updated!"
	if created {
		msg = "Volunteer profile created!"
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"msg": msg, "profile": p})
}

func (s *Server) handleListVolunteers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Profiles.ListVolunteers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []db.User{}
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

func (s *Server) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.Profiles.Public(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleVolunteerReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.Manager.ListVolunteerReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []db.Review{}
	}
	httpx.WriteJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var in manager.ReviewInput
	if !s.decode(w, r, &in) {
		return
	}
	review, err := s.Manager.SubmitReview(r.Context(), principal(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"msg": "Review submitted successfully!", "review": review})
}

func (s *Server) handleFileComplaint(w http.ResponseWriter, r *http.Request) {
	var in moderation.ComplaintInput
	if !s.decode(w, r, &in) {
		return
	}
	c, err := s.Moderation.FileComplaint(r.Context(), principal(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"msg": "Complaint filed successfully!", "complaint": c})
}
