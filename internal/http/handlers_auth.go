package http

import (
	"net/http"
	"time"

	"finboard/internal/log"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "User registered", log.FieldUserID, u.ID)
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
