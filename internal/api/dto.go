package api

import (
	"github.com/starford/lexicon/internal/index"
	"github.com/starford/lexicon/internal/termservice"
)

// CreateTermRequest is the request body for creating a term.
type CreateTermRequest struct {
	Name         string   `json:"name" example:"Kitten" validate:"required"`
	Description  string   `json:"description" example:"A young cat."`
	RelatedTerms []string `json:"related_terms" example:"Cat"`
}

// UpdateTermRequest is the request body for editing a term. Omitted fields
// are left unchanged; a different name renames the term.
type UpdateTermRequest struct {
	Name        *string `json:"name,omitempty" example:"Kitty"`
	Description *string `json:"description,omitempty" example:"##Kinds##\n\nTabby."`
}

// LinkTermsRequest lists the terms to link with.
type LinkTermsRequest struct {
	Terms []string `json:"terms" example:"Cat,Dog" validate:"required"`
}

// LinkFileRequest names a file on the server to attach.
type LinkFileRequest struct {
	Path string `json:"path" example:"/home/me/cat.png" validate:"required"`
}

// TermDetail is the full term response type (aliased from the domain layer).
type TermDetail = termservice.TermDetail

// TermListItem is a lightweight item in a list response (aliased from the domain layer).
type TermListItem = termservice.TermListItem

// ProjectInfo describes the open project (aliased from the domain layer).
type ProjectInfo = termservice.ProjectInfo

// TermListResponse wraps term listings.
type TermListResponse struct {
	Terms []TermListItem `json:"terms" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
