package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/types"
)

// DedupeRequest represents the request body for /listings/dedupe
type DedupeRequest struct {
	Listings []types.Listing `json:"listings"`
}

// DedupeResponse represents the response for /listings/dedupe
type DedupeResponse struct {
	Drafts  []types.ListingDraft `json:"drafts"`
	Summary map[string]int       `json:"summary"`
}

// ListingByURLResponse represents the response for /listings/by-url
type ListingByURLResponse struct {
	CanonicalURL string         `json:"canonical_url"`
	Listing      *types.Listing `json:"listing"`
}

// RankRequest represents the request body for /experiences/rank
type RankRequest struct {
	Title        string   `json:"title"`
	Requirements []string `json:"requirements"`
	TopK         int      `json:"top_k,omitempty"`
	MaxBullets   int      `json:"max_bullets,omitempty"`
}

// RankResponse represents the response for /experiences/rank
type RankResponse struct {
	Experiences []types.Experience `json:"experiences"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDedupe classifies a batch of listings against each other and the stored corpus
func (s *Server) handleDedupe(w http.ResponseWriter, r *http.Request) {
	var req DedupeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if len(req.Listings) == 0 {
		s.handleError(w, r, &ErrValidation{Field: "listings", Message: "at least one listing is required"})
		return
	}

	drafts, err := s.deps.Deduplicator.Run(r.Context(), req.Listings)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	summary := make(map[string]int)
	for _, d := range drafts {
		summary[string(d.Status)]++
	}
	s.jsonResponse(w, http.StatusOK, DedupeResponse{Drafts: drafts, Summary: summary})
}

// handleListingByURL returns the stored listing for a URL, or null when none exists
func (s *Server) handleListingByURL(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		s.handleError(w, r, &ErrValidation{Field: "url", Message: "query parameter is required"})
		return
	}

	canonical, listing, err := s.deps.URLChecker.CheckURL(r.Context(), raw)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ListingByURLResponse{CanonicalURL: canonical, Listing: listing})
}

// handleRank returns the experiences most relevant to the given requirements
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		s.handleError(w, r, &ErrValidation{Field: "title", Message: "is required"})
		return
	}
	if req.TopK < 0 || req.MaxBullets < 0 {
		s.handleError(w, r, &ErrValidation{Field: "top_k", Message: "top_k and max_bullets must not be negative"})
		return
	}

	session := embedding.NewSession(s.deps.Provider, s.logger)
	experiences, err := s.deps.Ranker.RankExperiences(r.Context(), session, req.Requirements, req.Title, req.TopK, req.MaxBullets)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, RankResponse{Experiences: experiences})
}

// decodeJSON reads a single JSON value, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}
