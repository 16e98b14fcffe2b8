package httpapi

import (
	"errors"
	"net/http"

	"coursehub.org/internal/audit"
	"coursehub.org/internal/auth"
)

type registerResponse struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Role   auth.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}

	u, err := a.auth.Register(r.Context(), req)
	if err != nil {
		// a taken email is reported like any other invalid registration field
		if errors.Is(err, auth.ErrEmailTaken) {
			writeErrorDetails(w, r, http.StatusBadRequest, "email already registered", map[string]string{"email": "email_taken"})
			return
		}
		a.respondErr(w, r, err)
		return
	}

	audit.Record(r.Context(), "auth.registered", map[string]any{"user_id": u.ID, "role": u.Role.String()})
	writeJSON(w, http.StatusOK, registerResponse{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}

	audit.Record(r.Context(), "auth.login", map[string]any{"user_id": res.User.ID, "expires_at": res.ExpiresAt})
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		a.respondErr(w, r, auth.ErrUnauthenticated)
		return
	}
	u, err := a.auth.Me(r.Context(), userID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
