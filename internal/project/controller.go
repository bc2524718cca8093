// Package project keeps the registry of the terms of one glossary project
// and persists it to disk.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/storage"
	"github.com/starford/lexicon/internal/term"
)

// untitled is the project name reported before the first save.
const untitled = "Untitled"

// Controller owns the terms of a project. Terms are loaded lazily and handed
// out as private copies; edits come back through UpdateTerm and reach the
// disk on SaveProject.
//
// A Controller is not safe for concurrent use.
type Controller struct {
	logger *slog.Logger
	store  storage.Provider

	names     []string // sorted; persisted as terms.json
	ids       map[string]uuid.UUID
	residents map[uuid.UUID]*term.Term
	changed   map[uuid.UUID]struct{}
	// deleted maps a term directory to the snapshots stored there that are
	// waiting to be removed.
	deleted map[string][]*term.Term
}

// New returns an empty controller without a project path.
func New(opts ...Option) *Controller {
	c := &Controller{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c
}

func (c *Controller) reset() {
	c.names = []string{}
	c.ids = make(map[string]uuid.UUID)
	c.residents = make(map[uuid.UUID]*term.Term)
	c.changed = make(map[uuid.UUID]struct{})
	c.deleted = make(map[string][]*term.Term)
}

// LoadProject replaces the controller state with the project at root.
// Terms are read on first access.
func (c *Controller) LoadProject(root string) error {
	store, err := storage.NewFS(root)
	if err != nil {
		return fmt.Errorf("%w: project %s: %v", apperr.ErrNotFound, root, err)
	}
	data, err := store.Read(term.IndexFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s in %s", apperr.ErrNotFound, term.IndexFile, root)
		}
		return err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("project: decode %s: %w", term.IndexFile, err)
	}

	c.reset()
	c.store = store
	for _, name := range names {
		if !c.HasTerm(name) {
			c.insertName(name)
		}
	}
	c.logger.Info("project loaded", slog.String("path", store.Root()), slog.Int("terms", len(c.names)))
	return nil
}

// Clear drops every term and forgets the project path.
func (c *Controller) Clear() {
	c.reset()
	c.store = nil
}

// Terms returns the sorted term names.
func (c *Controller) Terms() []string { return slices.Clone(c.names) }

// Count returns the number of terms.
func (c *Controller) Count() int { return len(c.names) }

// HasTerm reports whether name is a registered term.
func (c *Controller) HasTerm(name string) bool {
	_, ok := slices.BinarySearch(c.names, name)
	return ok
}

// UnsavedChanges reports whether anything is pending a save.
func (c *Controller) UnsavedChanges() bool {
	return len(c.changed) > 0 || len(c.deleted) > 0
}

// ProjectPath returns the project root, or "" before the first save.
func (c *Controller) ProjectPath() string {
	if c.store == nil {
		return ""
	}
	return c.store.Root()
}

// ProjectName returns the base name of the project root.
func (c *Controller) ProjectName() string {
	if c.store == nil {
		return untitled
	}
	return filepath.Base(c.store.Root())
}

// Store returns the storage of the current project, or nil.
func (c *Controller) Store() storage.Provider { return c.store }

// GetTerm returns a private, editable copy of the named term.
func (c *Controller) GetTerm(name string) (*term.Term, error) {
	t, err := c.resident(name)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (c *Controller) resident(name string) (*term.Term, error) {
	if !c.HasTerm(name) {
		return nil, fmt.Errorf("%w: term %q", apperr.ErrNotFound, name)
	}
	if id, ok := c.ids[name]; ok {
		return c.residents[id], nil
	}
	if c.store == nil {
		return nil, fmt.Errorf("%w: term %q", apperr.ErrNoProject, name)
	}
	t, err := term.Load(c.store, name)
	if err != nil {
		return nil, err
	}
	c.ids[name] = t.ID()
	c.residents[t.ID()] = t
	c.logger.Debug("term loaded", slog.String("term", name))
	return t, nil
}

// AddTerm registers a new term. Its related terms are linked back.
func (c *Controller) AddTerm(t *term.Term) error {
	name := t.Name()
	if c.HasTerm(name) {
		return fmt.Errorf("%w: term %q", apperr.ErrAlreadyExists, name)
	}
	if _, ok := c.residents[t.ID()]; ok {
		return fmt.Errorf("%w: term %q is already registered", apperr.ErrAlreadyExists, name)
	}

	link, err := c.partners(name, t.RelatedTerms(), true)
	if err != nil {
		return err
	}

	c.insertName(name)
	c.ids[name] = t.ID()
	c.residents[t.ID()] = t.Clone()
	c.markChanged(t.ID())
	if t.StoredName() == name {
		c.unretire(name, t.ID())
	}
	for _, p := range link {
		_, _ = p.LinkTerm(name)
		c.markChanged(p.ID())
	}
	return nil
}

// RemoveTerm unregisters the named term and unlinks it from its related
// terms. Its directory is removed on the next save.
func (c *Controller) RemoveTerm(name string) error {
	t, err := c.resident(name)
	if err != nil {
		return err
	}
	partners, err := c.partners(name, t.RelatedTerms(), false)
	if err != nil {
		return err
	}

	for _, p := range partners {
		if err := p.UnlinkTerm(name); err == nil {
			c.markChanged(p.ID())
		}
	}
	c.removeName(name)
	delete(c.ids, name)
	delete(c.residents, t.ID())
	delete(c.changed, t.ID())
	c.retire(t)
	c.logger.Debug("term removed", slog.String("term", name))
	return nil
}

// UpdateTerm stores an edited copy obtained from GetTerm. When the name
// changed, the old name is retired and every related term is re-pointed to
// the new one; the returned flag reports the rename.
//
// Related terms are kept symmetric: names added to the copy's related terms
// get a link back, names dropped from it lose theirs.
func (c *Controller) UpdateTerm(t *term.Term) (bool, error) {
	cur, ok := c.residents[t.ID()]
	if !ok {
		return false, fmt.Errorf("%w: term %q is not registered", apperr.ErrNotFound, t.Name())
	}
	if t.StoredName() != cur.StoredName() {
		return false, fmt.Errorf("%w: term %q was saved since this copy was taken", apperr.ErrConflict, t.Name())
	}

	oldName, newName := cur.Name(), t.Name()
	renamed := oldName != newName
	if renamed && c.HasTerm(newName) {
		return false, fmt.Errorf("%w: term %q", apperr.ErrAlreadyExists, newName)
	}

	before, after := cur.RelatedTerms(), t.RelatedTerms()
	var dropped, added, kept []string
	for _, n := range before {
		if slices.Contains(after, n) {
			kept = append(kept, n)
		} else {
			dropped = append(dropped, n)
		}
	}
	for _, n := range after {
		if !slices.Contains(before, n) {
			added = append(added, n)
		}
	}

	unlinkNames, linkNames := dropped, added
	if renamed {
		unlinkNames = append(slices.Clone(dropped), kept...)
		linkNames = append(slices.Clone(kept), added...)
	}
	unlink, err := c.partners(oldName, unlinkNames, false)
	if err != nil {
		return false, err
	}
	if _, err := c.partners(newName, added, true); err != nil {
		return false, err
	}
	link, err := c.partners(newName, linkNames, false)
	if err != nil {
		return false, err
	}

	for _, p := range unlink {
		if err := p.UnlinkTerm(oldName); err == nil {
			c.markChanged(p.ID())
		}
	}
	for _, p := range link {
		if ok, _ := p.LinkTerm(newName); ok {
			c.markChanged(p.ID())
		}
	}

	if renamed {
		c.removeName(oldName)
		delete(c.ids, oldName)
		c.insertName(newName)
		c.ids[newName] = t.ID()
		if stored := cur.StoredName(); stored == newName {
			c.unretire(stored, t.ID())
		} else {
			c.retire(cur)
		}
		c.logger.Debug("term renamed", slog.String("from", oldName), slog.String("to", newName))
	}

	c.residents[t.ID()] = t.Clone()
	c.markChanged(t.ID())
	return renamed, nil
}

// LinkTerms links name with each of others, in both directions.
func (c *Controller) LinkTerms(name string, others ...string) error {
	t, err := c.GetTerm(name)
	if err != nil {
		return err
	}
	for _, o := range others {
		if _, err := t.LinkTerm(o); err != nil {
			return err
		}
	}
	_, err = c.UpdateTerm(t)
	return err
}

// UnlinkTerms removes the links between name and each of others. Names that
// are not linked are ignored.
func (c *Controller) UnlinkTerms(name string, others ...string) error {
	t, err := c.GetTerm(name)
	if err != nil {
		return err
	}
	for _, o := range others {
		if err := t.UnlinkTerm(o); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	_, err = c.UpdateTerm(t)
	return err
}

// SaveProject writes every pending change to the project directory:
// retired directories are removed first, carrying their files over to the
// renamed term, then changed terms are written, then terms.json. A retired
// directory that a live term now uses keeps the files that term references. On error
// the pending changes are kept so the save can be retried.
func (c *Controller) SaveProject() error {
	if c.store == nil {
		return apperr.ErrNoProject
	}

	for _, dir := range sortedKeys(c.deleted) {
		for _, old := range c.deleted[dir] {
			if next, ok := c.residents[old.ID()]; ok && next.Name() != dir {
				if err := next.StageFiles(c.store); err != nil {
					return fmt.Errorf("project: move files of %q to %q: %w", dir, next.Name(), err)
				}
			}
			var keep map[string]bool
			if id, ok := c.ids[dir]; ok && id != old.ID() {
				keep = c.residents[id].FileNames()
			}
			if err := old.DeleteExcept(c.store, keep); err != nil {
				return fmt.Errorf("project: delete %q: %w", dir, err)
			}
		}
	}

	for _, t := range c.changedTerms() {
		if err := t.Save(c.store); err != nil {
			return fmt.Errorf("project: save %q: %w", t.Name(), err)
		}
	}
	if err := c.writeIndex(c.store); err != nil {
		return err
	}

	c.logger.Info("project saved",
		slog.String("path", c.store.Root()),
		slog.Int("changed", len(c.changed)),
		slog.Int("deleted", len(c.deleted)))
	c.changed = make(map[uuid.UUID]struct{})
	c.deleted = make(map[string][]*term.Term)
	return nil
}

// SaveProjectAs writes every term to root and makes it the project path.
// The previous project directory is left as it was.
func (c *Controller) SaveProjectAs(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("project: create %s: %w", root, err)
	}
	store, err := storage.NewFS(root)
	if err != nil {
		return err
	}
	if c.store != nil && c.store.Root() == store.Root() {
		return c.SaveProject()
	}

	for _, name := range c.names {
		if _, err := c.resident(name); err != nil {
			return err
		}
	}
	for _, name := range c.names {
		t := c.residents[c.ids[name]]
		if err := t.Save(store); err != nil {
			return fmt.Errorf("project: save %q: %w", name, err)
		}
	}
	if err := c.writeIndex(store); err != nil {
		return err
	}

	c.store = store
	c.changed = make(map[uuid.UUID]struct{})
	c.deleted = make(map[string][]*term.Term)
	c.logger.Info("project saved", slog.String("path", store.Root()), slog.Int("terms", len(c.names)))
	return nil
}

func (c *Controller) writeIndex(store storage.Provider) error {
	data, err := json.MarshalIndent(c.names, "", "  ")
	if err != nil {
		return fmt.Errorf("project: encode %s: %w", term.IndexFile, err)
	}
	return store.Write(term.IndexFile, data)
}

// partners resolves related term names to resident terms. A name that is
// not registered fails with ErrNotFound when strict is set and is skipped
// otherwise. Linking a term to itself is rejected.
func (c *Controller) partners(self string, names []string, strict bool) ([]*term.Term, error) {
	out := make([]*term.Term, 0, len(names))
	for _, n := range names {
		if n == self {
			return nil, fmt.Errorf("%w: term %q cannot link to itself", apperr.ErrConflict, n)
		}
		if !c.HasTerm(n) {
			if strict {
				return nil, fmt.Errorf("%w: related term %q", apperr.ErrNotFound, n)
			}
			continue
		}
		p, err := c.resident(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Controller) markChanged(id uuid.UUID) {
	c.changed[id] = struct{}{}
}

// retire queues a stored snapshot for deletion, once per term identity.
func (c *Controller) retire(t *term.Term) {
	dir := t.StoredName()
	if dir == "" {
		return
	}
	for _, old := range c.deleted[dir] {
		if old.ID() == t.ID() {
			return
		}
	}
	c.deleted[dir] = append(c.deleted[dir], t)
}

// unretire cancels the pending deletion of dir for the term id.
func (c *Controller) unretire(dir string, id uuid.UUID) {
	left := slices.DeleteFunc(c.deleted[dir], func(t *term.Term) bool { return t.ID() == id })
	if len(left) == 0 {
		delete(c.deleted, dir)
		return
	}
	c.deleted[dir] = left
}

func (c *Controller) changedTerms() []*term.Term {
	out := make([]*term.Term, 0, len(c.changed))
	for id := range c.changed {
		if t, ok := c.residents[id]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (c *Controller) insertName(name string) {
	i, _ := slices.BinarySearch(c.names, name)
	c.names = slices.Insert(c.names, i, name)
}

func (c *Controller) removeName(name string) {
	if i, ok := slices.BinarySearch(c.names, name); ok {
		c.names = slices.Delete(c.names, i, i+1)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
