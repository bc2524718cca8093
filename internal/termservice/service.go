// Package termservice coordinates the project controller, the term index
// and the per-term undo sessions behind one lock, for the HTTP and MCP
// surfaces.
package termservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/checksum"
	"github.com/starford/lexicon/internal/index"
	"github.com/starford/lexicon/internal/project"
	"github.com/starford/lexicon/internal/sse"
	"github.com/starford/lexicon/internal/term"
)

// Notifier receives change announcements. *sse.Broker implements it.
type Notifier interface {
	Publish(event sse.Event)
	PublishTermEvent(kind, name, from string)
}

// TermDetail is the full representation of a term.
type TermDetail struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Checksum     string   `json:"checksum"`
	RelatedTerms []string `json:"related_terms"`
	Files        []string `json:"files"`
	Images       []string `json:"images"`
	Backlinks    []string `json:"backlinks"`
	Saved        bool     `json:"saved"`
	CanUndo      bool     `json:"can_undo"`
	CanRedo      bool     `json:"can_redo"`
	Warnings     []string `json:"warnings,omitempty"`
}

// TermListItem is a lightweight item in a list response.
type TermListItem struct {
	Name         string   `json:"name"`
	Checksum     string   `json:"checksum"`
	RelatedTerms []string `json:"related_terms"`
}

// ProjectInfo describes the open project.
type ProjectInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Terms   int    `json:"terms"`
	Unsaved bool   `json:"unsaved"`
}

// CreateInput holds the fields of a new term.
type CreateInput struct {
	Name         string
	Description  string
	RelatedTerms []string
}

// UpdateInput holds a partial edit. Nil fields are left alone. A non-empty
// IfMatch must equal the current checksum of the term.
type UpdateInput struct {
	Name        *string
	Description *string
	IfMatch     string
}

// Service is safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	ctrl     *project.Controller
	db       *index.DB
	logger   *slog.Logger
	notifier Notifier
	staging  string

	sessions map[uuid.UUID]*term.History
	staged   []string
}

// New creates a service over ctrl. db may be nil, in which case search and
// backlinks return nothing.
func New(ctrl *project.Controller, db *index.DB, opts ...Option) *Service {
	s := &Service{
		ctrl:     ctrl,
		db:       db,
		logger:   slog.Default(),
		staging:  filepath.Join(os.TempDir(), "lexicon-staging"),
		sessions: make(map[uuid.UUID]*term.History),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Project returns information about the open project.
func (s *Service) Project(_ context.Context) ProjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectInfo()
}

func (s *Service) projectInfo() ProjectInfo {
	return ProjectInfo{
		Name:    s.ctrl.ProjectName(),
		Path:    s.ctrl.ProjectPath(),
		Terms:   s.ctrl.Count(),
		Unsaved: s.ctrl.UnsavedChanges(),
	}
}

// List returns every term in name order.
func (s *Service) List(_ context.Context) ([]TermListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.ctrl.Terms()
	items := make([]TermListItem, 0, len(names))
	for _, name := range names {
		t, err := s.ctrl.GetTerm(name)
		if err != nil {
			return nil, err
		}
		items = append(items, TermListItem{
			Name:         name,
			Checksum:     digest(t),
			RelatedTerms: nonNilSlice(t.RelatedTerms()),
		})
	}
	return items, nil
}

// Get returns the named term.
func (s *Service) Get(_ context.Context, name string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ctrl.GetTerm(name)
	if err != nil {
		return nil, err
	}
	return s.detail(t, nil)
}

// HTML renders the named term as a standalone page.
func (s *Service) HTML(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ctrl.GetTerm(name)
	if err != nil {
		return "", err
	}
	return t.HTML(), nil
}

// FilePath returns the absolute path of a file or image attached to the
// named term.
func (s *Service) FilePath(_ context.Context, name, file string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ctrl.GetTerm(name)
	if err != nil {
		return "", err
	}
	return t.FilePath(file)
}

// Create registers a new term and links it with its related terms.
func (s *Service) Create(_ context.Context, in CreateInput) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := term.New(in.Name)
	if err != nil {
		return nil, err
	}
	skipped, err := t.SetDescriptionText(in.Description)
	if err != nil {
		return nil, err
	}
	for _, r := range in.RelatedTerms {
		if _, err := t.LinkTerm(r); err != nil {
			return nil, err
		}
	}
	if err := s.ctrl.AddTerm(t); err != nil {
		return nil, err
	}

	fresh, err := s.ctrl.GetTerm(t.Name())
	if err != nil {
		return nil, err
	}
	s.sessions[fresh.ID()] = term.NewHistory(fresh.Clone())
	s.touch(fresh.Name(), fresh.RelatedTerms())
	s.announce(sse.KindCreated, fresh.Name(), "")
	return s.detail(fresh, skipped)
}

// Update applies a description change and/or a rename.
func (s *Service) Update(_ context.Context, name string, in UpdateInput) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skipped []error
	return s.apply(name, in.IfMatch, func(t *term.Term) error {
		if in.Description != nil {
			sk, err := t.SetDescriptionText(*in.Description)
			if err != nil {
				return err
			}
			skipped = sk
		}
		if in.Name != nil && *in.Name != t.Name() {
			return t.SetName(*in.Name)
		}
		return nil
	}, &skipped)
}

// Delete removes the named term. Its directory goes on the next save.
func (s *Service) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ctrl.GetTerm(name)
	if err != nil {
		return err
	}
	if err := s.ctrl.RemoveTerm(name); err != nil {
		return err
	}
	delete(s.sessions, t.ID())
	s.touch(name, t.RelatedTerms())
	s.announce(sse.KindDeleted, name, "")
	return nil
}

// LinkTerms links name with each of others, both ways.
func (s *Service) LinkTerms(_ context.Context, name string, others []string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(name, "", func(t *term.Term) error {
		for _, o := range others {
			if _, err := t.LinkTerm(o); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// UnlinkTerms removes the links between name and each of others.
func (s *Service) UnlinkTerms(_ context.Context, name string, others []string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(name, "", func(t *term.Term) error {
		for _, o := range others {
			if err := t.UnlinkTerm(o); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// LinkFile attaches the file at path to the named term. The file is copied
// into the term directory on the next save. Linking a file whose name is
// already attached fails with ErrAlreadyExists.
func (s *Service) LinkFile(_ context.Context, name, path string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(name, "", func(t *term.Term) error {
		return linkFile(t, path)
	}, nil)
}

// Attach parks the content of r in the staging directory under filename
// and links it to the named term.
func (s *Service) Attach(_ context.Context, name, filename string, r io.Reader) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ctrl.HasTerm(name) {
		return nil, fmt.Errorf("%w: term %q", apperr.ErrNotFound, name)
	}
	base := filepath.Base(filepath.Clean("/" + filename))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return nil, fmt.Errorf("%w: file name %q", apperr.ErrIllegalName, filename)
	}

	dir := filepath.Join(s.staging, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("termservice: create staging dir: %w", err)
	}
	path := filepath.Join(dir, base)
	if err := writeStaged(path, r); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	d, err := s.apply(name, "", func(t *term.Term) error {
		return linkFile(t, path)
	}, nil)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	s.staged = append(s.staged, dir)
	return d, nil
}

func writeStaged(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("termservice: stage file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("termservice: stage file: %w", err)
	}
	return f.Close()
}

func linkFile(t *term.Term, path string) error {
	ok, err := t.LinkFile(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: file %q", apperr.ErrAlreadyExists, filepath.Base(path))
	}
	return nil
}

// UnlinkFile detaches a linked file from the named term.
func (s *Service) UnlinkFile(_ context.Context, name, file string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(name, "", func(t *term.Term) error {
		return t.UnlinkFile(file)
	}, nil)
}

// UnlinkImage detaches a linked image from the named term.
func (s *Service) UnlinkImage(_ context.Context, name, file string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(name, "", func(t *term.Term) error {
		return t.UnlinkImage(file)
	}, nil)
}

// Undo restores the previous snapshot of the named term.
func (s *Service) Undo(_ context.Context, name string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(name, (*term.History).Undo, (*term.History).Redo)
}

// Redo restores the snapshot undone last.
func (s *Service) Redo(_ context.Context, name string) (*TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(name, (*term.History).Redo, (*term.History).Undo)
}

func (s *Service) step(name string, move, back func(*term.History) (*term.Term, error)) (*TermDetail, error) {
	cur, err := s.ctrl.GetTerm(name)
	if err != nil {
		return nil, err
	}
	h := s.session(cur)
	snap, err := move(h)
	if err != nil {
		return nil, err
	}
	if _, err := s.ctrl.UpdateTerm(snap); err != nil {
		_, _ = back(h)
		return nil, err
	}

	s.touch(snap.Name(), union(cur.RelatedTerms(), snap.RelatedTerms()))
	s.announceChange(cur.Name(), snap.Name())
	fresh, err := s.ctrl.GetTerm(snap.Name())
	if err != nil {
		return nil, err
	}
	return s.detail(fresh, nil)
}

// Search runs a full-text query against the saved terms.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return []index.SearchResult{}, nil
	}
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Save writes pending changes to the project directory, resets the undo
// sessions and refreshes the index.
func (s *Service) Save(_ context.Context) (ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctrl.SaveProject(); err != nil {
		return ProjectInfo{}, err
	}
	s.afterSave()
	return s.projectInfo(), nil
}

// Export writes the whole project to root and continues working there.
func (s *Service) Export(_ context.Context, root string) (ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctrl.SaveProjectAs(root); err != nil {
		return ProjectInfo{}, err
	}
	s.afterSave()
	return s.projectInfo(), nil
}

func (s *Service) afterSave() {
	for id, h := range s.sessions {
		saved, err := s.ctrl.GetTerm(h.Current().Name())
		if err != nil || saved.ID() != id {
			delete(s.sessions, id)
			continue
		}
		h.Commit(saved)
	}
	for _, dir := range s.staged {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("staging cleanup failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
	s.staged = nil

	if s.db != nil {
		if err := index.Sync(s.db, s.ctrl.Store(), s.logger); err != nil {
			s.logger.Error("index sync after save failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		s.notifier.Publish(sse.Event{Type: "project.saved", Data: s.projectInfo()})
	}
}

// apply edits a copy of the named term with fn and stores it. The result
// becomes a new snapshot of the term's undo session. skipped, when set,
// collects description tags that could not be resolved.
func (s *Service) apply(name, ifMatch string, fn func(*term.Term) error, skipped *[]error) (*TermDetail, error) {
	work, err := s.ctrl.GetTerm(name)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != digest(work) {
		return nil, fmt.Errorf("%w: term %q changed", apperr.ErrConflict, name)
	}
	before := work.RelatedTerms()
	h := s.session(work)

	if err := fn(work); err != nil {
		return nil, err
	}
	if _, err := s.ctrl.UpdateTerm(work); err != nil {
		return nil, err
	}

	fresh, err := s.ctrl.GetTerm(work.Name())
	if err != nil {
		return nil, err
	}
	if digest(fresh) != digest(h.Current()) {
		h.Push(fresh.Clone())
	}
	s.touch(fresh.Name(), union(before, fresh.RelatedTerms()))
	s.announceChange(name, fresh.Name())

	var sk []error
	if skipped != nil {
		sk = *skipped
	}
	return s.detail(fresh, sk)
}

// session returns the undo session of t, starting one at its current state.
func (s *Service) session(t *term.Term) *term.History {
	h, ok := s.sessions[t.ID()]
	if !ok {
		h = term.NewHistory(t.Clone())
		s.sessions[t.ID()] = h
	}
	return h
}

// touch records the new state of related terms that have an undo session,
// after an edit of self changed their links.
func (s *Service) touch(self string, related []string) {
	for _, name := range related {
		if name == self || !s.ctrl.HasTerm(name) {
			continue
		}
		t, err := s.ctrl.GetTerm(name)
		if err != nil {
			continue
		}
		h, ok := s.sessions[t.ID()]
		if !ok || digest(h.Current()) == digest(t) {
			continue
		}
		h.Push(t)
		s.announce(sse.KindUpdated, name, "")
	}
}

func (s *Service) announceChange(from, to string) {
	if from != to {
		s.announce(sse.KindRenamed, to, from)
		return
	}
	s.announce(sse.KindUpdated, to, "")
}

func (s *Service) announce(kind, name, from string) {
	if s.notifier != nil {
		s.notifier.PublishTermEvent(kind, name, from)
	}
}

func (s *Service) detail(t *term.Term, skipped []error) (*TermDetail, error) {
	d := &TermDetail{
		Name:         t.Name(),
		Description:  t.DescriptionText(),
		Checksum:     digest(t),
		RelatedTerms: nonNilSlice(t.RelatedTerms()),
		Files:        nonNilSlice(t.LinkedFiles()),
		Images:       nonNilSlice(t.LinkedImages()),
		Backlinks:    []string{},
		Saved:        t.StoredName() == t.Name(),
	}
	if h, ok := s.sessions[t.ID()]; ok {
		d.CanUndo, d.CanRedo = h.CanUndo(), h.CanRedo()
	}
	for _, err := range skipped {
		d.Warnings = append(d.Warnings, err.Error())
	}
	if s.db != nil && t.StoredName() != "" {
		bl, err := s.db.Backlinks(t.StoredName())
		if err != nil {
			return nil, err
		}
		d.Backlinks = nonNilSlice(bl)
	}
	return d, nil
}

// digest identifies the editable state of a term; it backs If-Match.
func digest(t *term.Term) string {
	return checksum.Sum(
		[]byte(t.Name()),
		[]byte(t.DescriptionText()),
		[]byte(strings.Join(t.RelatedTerms(), "\x00")),
		[]byte(strings.Join(t.LinkedFiles(), "\x00")),
		[]byte(strings.Join(t.LinkedImages(), "\x00")),
	)
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, n := range b {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
