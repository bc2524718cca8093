package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/termservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *termservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *termservice.Service) *Handler {
	return &Handler{svc: svc}
}

// urlParam returns a decoded path parameter. Clients may percent-encode
// names containing spaces or reserved characters.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListTerms handles GET /api/terms.
//
//	@Summary		List all terms
//	@Tags			terms
//	@Produce		json
//	@Success		200	{object}	TermListResponse
//	@Security		BearerAuth
//	@Router			/terms [get]
func (h *Handler) ListTerms(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list terms", err)
		return
	}
	writeJSON(w, http.StatusOK, TermListResponse{Terms: items, Total: len(items)})
}

// GetTerm handles GET /api/terms/{name}.
//
//	@Summary		Get a single term
//	@Tags			terms
//	@Produce		json
//	@Param			name	path		string	true	"Term name"
//	@Success		200		{object}	TermDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name} [get]
func (h *Handler) GetTerm(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeError(w, "get term", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(d.Checksum))
	writeJSON(w, http.StatusOK, d)
}

// GetTermHTML handles GET /api/terms/{name}/html.
//
//	@Summary		Render a term as an HTML page
//	@Tags			terms
//	@Produce		html
//	@Param			name	path	string	true	"Term name"
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name}/html [get]
func (h *Handler) GetTermHTML(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.HTML(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeError(w, "render term", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}

// CreateTerm handles POST /api/terms.
//
//	@Summary		Create a new term
//	@Tags			terms
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTermRequest	true	"Term to create"
//	@Success		201		{object}	TermDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms [post]
func (h *Handler) CreateTerm(w http.ResponseWriter, r *http.Request) {
	var req CreateTermRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	d, err := h.svc.Create(r.Context(), termservice.CreateInput{
		Name:         req.Name,
		Description:  req.Description,
		RelatedTerms: req.RelatedTerms,
	})
	if err != nil {
		writeError(w, "create term", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// UpdateTerm handles PUT /api/terms/{name}.
//
//	@Summary		Edit or rename a term with optimistic concurrency
//	@Tags			terms
//	@Accept			json
//	@Produce		json
//	@Param			name		path		string				true	"Term name"
//	@Param			If-Match	header		string				false	"Checksum from a previous read"
//	@Param			body		body		UpdateTermRequest	true	"Changes"
//	@Success		200			{object}	TermDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name} [put]
func (h *Handler) UpdateTerm(w http.ResponseWriter, r *http.Request) {
	var req UpdateTermRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.Description == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("name or description is required"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	if u, err := strconv.Unquote(ifMatch); err == nil {
		ifMatch = u
	}

	d, err := h.svc.Update(r.Context(), urlParam(r, "name"), termservice.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		IfMatch:     ifMatch,
	})
	if err != nil {
		writeError(w, "update term", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(d.Checksum))
	writeJSON(w, http.StatusOK, d)
}

// DeleteTerm handles DELETE /api/terms/{name}.
//
//	@Summary		Delete a term
//	@Tags			terms
//	@Param			name	path	string	true	"Term name"
//	@Success		204		"Term deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name} [delete]
func (h *Handler) DeleteTerm(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), urlParam(r, "name")); err != nil {
		writeError(w, "delete term", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkTerms handles POST /api/terms/{name}/links.
//
//	@Summary		Link a term with other terms
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string				true	"Term name"
//	@Param			body	body		LinkTermsRequest	true	"Terms to link"
//	@Success		200		{object}	TermDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name}/links [post]
func (h *Handler) LinkTerms(w http.ResponseWriter, r *http.Request) {
	var req LinkTermsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Terms) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("terms is required"))
		return
	}
	d, err := h.svc.LinkTerms(r.Context(), urlParam(r, "name"), req.Terms)
	if err != nil {
		writeError(w, "link terms", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UnlinkTerms handles DELETE /api/terms/{name}/links?term=A&term=B.
//
//	@Summary		Remove links between terms
//	@Tags			links
//	@Produce		json
//	@Param			name	path		string		true	"Term name"
//	@Param			term	query		[]string	true	"Terms to unlink"
//	@Success		200		{object}	TermDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name}/links [delete]
func (h *Handler) UnlinkTerms(w http.ResponseWriter, r *http.Request) {
	others := r.URL.Query()["term"]
	if len(others) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'term' is required"))
		return
	}
	d, err := h.svc.UnlinkTerms(r.Context(), urlParam(r, "name"), others)
	if err != nil {
		writeError(w, "unlink terms", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// LinkFile handles POST /api/terms/{name}/files.
//
//	@Summary		Attach a file already present on the server
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Term name"
//	@Param			body	body		LinkFileRequest	true	"File location"
//	@Success		200		{object}	TermDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name}/files [post]
func (h *Handler) LinkFile(w http.ResponseWriter, r *http.Request) {
	var req LinkFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	d, err := h.svc.LinkFile(r.Context(), urlParam(r, "name"), req.Path)
	if err != nil {
		writeError(w, "link file", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UnlinkFile handles DELETE /api/terms/{name}/files/{file}. The name is
// looked up among linked files first, then among linked images.
//
//	@Summary		Detach a file or image
//	@Tags			files
//	@Produce		json
//	@Param			name	path		string	true	"Term name"
//	@Param			file	path		string	true	"File name"
//	@Success		200		{object}	TermDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name}/files/{file} [delete]
func (h *Handler) UnlinkFile(w http.ResponseWriter, r *http.Request) {
	name, file := urlParam(r, "name"), urlParam(r, "file")
	d, err := h.svc.UnlinkFile(r.Context(), name, file)
	if errors.Is(err, apperr.ErrNotFound) && h.termExists(r, name) {
		d, err = h.svc.UnlinkImage(r.Context(), name, file)
	}
	if err != nil {
		writeError(w, "unlink file", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) termExists(r *http.Request, name string) bool {
	_, err := h.svc.Get(r.Context(), name)
	return err == nil
}

// Undo handles POST /api/terms/{name}/undo.
//
//	@Summary		Undo the last edit of a term
//	@Tags			history
//	@Produce		json
//	@Param			name	path		string	true	"Term name"
//	@Success		200		{object}	TermDetail
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name}/undo [post]
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Undo(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeError(w, "undo", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Redo handles POST /api/terms/{name}/redo.
//
//	@Summary		Redo the last undone edit of a term
//	@Tags			history
//	@Produce		json
//	@Param			name	path		string	true	"Term name"
//	@Success		200		{object}	TermDetail
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/terms/{name}/redo [post]
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Redo(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeError(w, "redo", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across saved terms
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// GetProject handles GET /api/project.
//
//	@Summary		Describe the open project
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	ProjectInfo
//	@Security		BearerAuth
//	@Router			/project [get]
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Project(r.Context()))
}

// SaveProject handles POST /api/project/save.
//
//	@Summary		Write pending changes to disk
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	ProjectInfo
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/project/save [post]
func (h *Handler) SaveProject(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Save(r.Context())
	if err != nil {
		writeError(w, "save project", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
