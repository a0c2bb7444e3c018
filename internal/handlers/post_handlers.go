package handlers

import (
	"net/http"

	"kick-haven/internal/forum"
	"kick-haven/internal/models"

	"github.com/go-chi/chi/v5"
)

// CreatePostRequest represents a request to create a new root post
type CreatePostRequest struct {
	Title      string `json:"title" validate:"max=300"`
	Text       string `json:"text" validate:"max=20000"`
	CategoryID string `json:"categoryId" validate:"max=64"`
}

// EditPostRequest represents a request to edit a post
type EditPostRequest struct {
	Title string `json:"title" validate:"max=300"`
	Text  string `json:"text" validate:"max=20000"`
}

// LockRequest toggles a post's locked flag
type LockRequest struct {
	Locked *bool `json:"locked" validate:"required"`
}

// StickyRequest toggles a post's sticky flag
type StickyRequest struct {
	Sticky *bool `json:"sticky" validate:"required"`
}

// HandleListPosts lists the root posts of one category, sticky first.
func (s *Server) HandleListPosts() http.HandlerFunc {
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

		result, err := s.Service.ListPostsByCategory(r.Context(), r.URL.Query().Get("categoryId"), p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePostRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		post, err := s.Service.CreatePost(r.Context(), caller(r), req.Title, req.Text, req.CategoryID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Post created successfully.",
			"postId":  post.ID,
		})
	}
}

func (s *Server) HandleGetPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		post, err := s.Service.GetPost(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

func (s *Server) HandleEditPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EditPostRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		post, err := s.Service.EditPost(r.Context(), caller(r), chi.URLParam(r, "id"), req.Title, req.Text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

// HandleDeletePost deletes a root post and everything under it.
func (s *Server) HandleDeletePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := s.Service.DeletePost(r.Context(), caller(r), chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":         true,
			"message":         "Post deleted successfully.",
			"deletedComments": deleted,
		})
	}
}

func (s *Server) HandleLockPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LockRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		post, err := s.Service.SetLocked(r.Context(), caller(r), chi.URLParam(r, "id"), *req.Locked)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

func (s *Server) HandleStickyPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StickyRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		post, err := s.Service.SetSticky(r.Context(), caller(r), chi.URLParam(r, "id"), *req.Sticky)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}
