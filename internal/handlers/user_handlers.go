package handlers

import (
	"net/http"
	"time"

	"kick-haven/internal/forum"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/go-chi/chi/v5"
)

// RegisterRequest represents the request body for user registration
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// ProfileRequest replaces the optional profile fields
type ProfileRequest struct {
	Bio       string `json:"bio" validate:"max=1000"`
	Location  string `json:"location" validate:"max=100"`
	Birthdate string `json:"birthdate" validate:"omitempty,datetime=2006-01-02"`
}

type SignatureRequest struct {
	Signature string `json:"signature" validate:"max=500"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// HandleRegisterUser provisions an account. Tokens are issued elsewhere.
func (s *Server) HandleRegisterUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.Service.RegisterUser(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func (s *Server) HandleGetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.Service.GetUser(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// HandleListUserPosts lists a user's root posts, sticky first.
func (s *Server) HandleListUserPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryInt(r, "page")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		p, err := forum.NormalizePage(page, limit, string(models.SortDesc))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.Service.ListUserPosts(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleUpdateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProfileRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		var birthdate *time.Time
		if req.Birthdate != "" {
			t, err := time.Parse("2006-01-02", req.Birthdate)
			if err != nil {
				s.writeError(w, r, utils.NewInvalidArgumentError("Invalid birthdate. Use YYYY-MM-DD."))
				return
			}
			birthdate = &t
		}

		user, err := s.Service.UpdateProfile(r.Context(), caller(r), req.Bio, req.Location, birthdate)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) HandleUpdateSignature() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignatureRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.Service.UpdateSignature(r.Context(), caller(r), req.Signature)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) HandleChangePassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChangePasswordRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.Service.ChangePassword(r.Context(), caller(r), req.CurrentPassword, req.NewPassword); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Password updated successfully.",
		})
	}
}
