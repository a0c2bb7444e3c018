package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// VoteRequest represents a request to toggle a vote
type VoteRequest struct {
	TargetID string `json:"targetId"`
	VoteType string `json:"voteType"`
}

// HandleVote applies an upvote or downvote toggle and returns the new tallies.
func (s *Server) HandleVote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VoteRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.Service.Vote(r.Context(), caller(r), req.TargetID, req.VoteType)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleGetVoteStatus returns a target's tallies and the caller's vote.
func (s *Server) HandleGetVoteStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.Service.VoteStatus(r.Context(), caller(r), chi.URLParam(r, "targetId"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
