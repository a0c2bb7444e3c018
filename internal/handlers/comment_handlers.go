package handlers

import (
	"net/http"

	"kick-haven/internal/forum"

	"github.com/go-chi/chi/v5"
)

// CommentRequest carries the text of a new or edited comment
type CommentRequest struct {
	Text string `json:"text" validate:"max=20000"`
}

// HandleListComments returns one page of a post's comments.
func (s *Server) HandleListComments() http.HandlerFunc {
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
		p, err := forum.NormalizePage(page, limit, r.URL.Query().Get("sort"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.Service.ListComments(r.Context(), chi.URLParam(r, "parentId"), p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleCreateComment adds a comment under the addressed post. The body
// cannot choose the parent, title or category.
func (s *Server) HandleCreateComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CommentRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.Service.CreateComment(r.Context(), caller(r), chi.URLParam(r, "parentId"), req.Text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success":      true,
			"message":      "Comment created successfully.",
			"comment":      result.Comment,
			"commentCount": result.CommentCount,
		})
	}
}

func (s *Server) HandleEditComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CommentRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		comment, err := s.Service.EditComment(r.Context(), caller(r), chi.URLParam(r, "parentId"), chi.URLParam(r, "commentId"), req.Text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, comment)
	}
}

func (s *Server) HandleDeleteComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := s.Service.DeleteComment(r.Context(), caller(r), chi.URLParam(r, "parentId"), chi.URLParam(r, "commentId"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"message":      "Comment deleted successfully.",
			"commentCount": count,
		})
	}
}
