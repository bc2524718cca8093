package term

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/storage"
)

// Links holds the references of a term: related terms, linked files and
// linked images. Files and images are keyed by file name and map to an
// absolute path, which points into the term directory once saved.
type Links struct {
	terms    []string
	files    map[string]string
	images   map[string]string
	toDelete []string
}

type linksDoc struct {
	Terms  []string `json:"terms"`
	Files  []string `json:"files"`
	Images []string `json:"images"`
}

// NewLinks returns an empty Links.
func NewLinks() *Links {
	return &Links{
		terms:  []string{},
		files:  make(map[string]string),
		images: make(map[string]string),
	}
}

// LinkTerm adds name to the related terms. It reports false when name was
// already linked.
func (l *Links) LinkTerm(name string) bool {
	if slices.Contains(l.terms, name) {
		return false
	}
	l.terms = append(l.terms, name)
	return true
}

// UnlinkTerm removes name from the related terms.
func (l *Links) UnlinkTerm(name string) error {
	i := slices.Index(l.terms, name)
	if i < 0 {
		return fmt.Errorf("%w: linked term %q", apperr.ErrNotFound, name)
	}
	l.terms = slices.Delete(l.terms, i, i+1)
	return nil
}

// LinkFile links the file at path, classifying it as an image or a plain
// file by MIME type. Nothing is copied until Save. It reports false when a
// file of the same name is already linked.
func (l *Links) LinkFile(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("term: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, fmt.Errorf("%w: file %s", apperr.ErrNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("term: link %s: not a regular file", path)
	}

	name := filepath.Base(abs)
	if _, ok := l.files[name]; ok {
		return false, nil
	}
	if _, ok := l.images[name]; ok {
		return false, nil
	}
	if isImage(abs) {
		l.images[name] = abs
	} else {
		l.files[name] = abs
	}
	l.toDelete = slices.DeleteFunc(l.toDelete, func(n string) bool { return n == name })
	return true, nil
}

// UnlinkFile drops the linked file name. The file itself is removed on the
// next Save unless something still references it.
func (l *Links) UnlinkFile(name string) error {
	return l.unlink(l.files, "file", name)
}

// UnlinkImage drops the linked image name, like UnlinkFile.
func (l *Links) UnlinkImage(name string) error {
	return l.unlink(l.images, "image", name)
}

func (l *Links) unlink(table map[string]string, kind, name string) error {
	if _, ok := table[name]; !ok {
		return fmt.Errorf("%w: linked %s %q", apperr.ErrNotFound, kind, name)
	}
	delete(table, name)
	l.toDelete = append(l.toDelete, name)
	return nil
}

// Terms returns the related term names in link order.
func (l *Links) Terms() []string {
	return slices.Clone(l.terms)
}

// Files returns the linked file names, sorted.
func (l *Links) Files() []string {
	return sortedKeys(l.files)
}

// Images returns the linked image names, sorted.
func (l *Links) Images() []string {
	return sortedKeys(l.images)
}

// Path returns the absolute path of a linked file or image.
func (l *Links) Path(name string) (string, bool) {
	if p, ok := l.files[name]; ok {
		return p, true
	}
	p, ok := l.images[name]
	return p, ok
}

// stage copies every linked file and every path in added that lives outside
// dir into it, and re-points the entries at the copies.
func (l *Links) stage(store storage.Provider, dir string, added []string) error {
	abs, err := store.Abs(dir)
	if err != nil {
		return err
	}
	for _, table := range []map[string]string{l.files, l.images} {
		for _, name := range sortedKeys(table) {
			if err := importInto(store, dir, abs, table[name]); err != nil {
				return err
			}
			table[name] = filepath.Join(abs, name)
		}
	}
	for _, p := range added {
		if err := importInto(store, dir, abs, p); err != nil {
			return err
		}
	}
	return nil
}

func importInto(store storage.Provider, dir, abs, src string) error {
	if filepath.Dir(src) == abs {
		return nil
	}
	return store.Import(src, filepath.Join(dir, filepath.Base(src)))
}

// Save copies external files into dir, removes files that were unlinked and
// are no longer referenced by the links or by added (the description's
// image paths), and writes dir/links.json.
func (l *Links) Save(store storage.Provider, dir string, added []string) error {
	if err := l.stage(store, dir, added); err != nil {
		return err
	}

	keep := make(map[string]bool)
	for name := range l.files {
		keep[name] = true
	}
	for name := range l.images {
		keep[name] = true
	}
	for _, p := range added {
		keep[filepath.Base(p)] = true
	}
	for _, name := range l.toDelete {
		rel := filepath.Join(dir, name)
		if keep[name] || !store.Exists(rel) {
			continue
		}
		if err := store.Delete(rel); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(linksDoc{
		Terms:  l.sortedTerms(),
		Files:  l.Files(),
		Images: l.Images(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("term: encode %s: %w", LinksFile, err)
	}
	if err := store.Write(filepath.Join(dir, LinksFile), data); err != nil {
		return err
	}
	l.toDelete = nil
	return nil
}

// LoadLinks reads dir/links.json and reconciles it with the files actually
// present in dir. A missing links.json yields empty term links.
func LoadLinks(store storage.Provider, dir string) (*Links, error) {
	abs, err := store.Abs(dir)
	if err != nil {
		return nil, err
	}
	l := NewLinks()

	var doc linksDoc
	data, err := store.Read(filepath.Join(dir, LinksFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("term: links file missing", slog.String("dir", dir))
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("term: decode %s: %w", LinksFile, err)
		}
		if doc.Terms != nil {
			l.terms = doc.Terms
		}
	}

	entries, err := store.List(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == LinksFile || e.Name == DescriptionFile {
			continue
		}
		p := filepath.Join(abs, e.Name)
		if isImage(p) {
			l.images[e.Name] = p
		} else {
			l.files[e.Name] = p
		}
	}

	for _, name := range append(doc.Files, doc.Images...) {
		if _, ok := l.Path(name); !ok {
			slog.Warn("term: linked file missing on disk", slog.String("dir", dir), slog.String("file", name))
		}
	}
	return l, nil
}

// Delete removes dir/links.json and the linked files stored in dir.
func (l *Links) Delete(store storage.Provider, dir string) error {
	return l.deleteExcept(store, dir, nil)
}

// deleteExcept is Delete leaving alone the files named in keep.
func (l *Links) deleteExcept(store storage.Provider, dir string, keep map[string]bool) error {
	abs, err := store.Abs(dir)
	if err != nil {
		return err
	}
	names := []string{LinksFile}
	for _, table := range []map[string]string{l.files, l.images} {
		for name, p := range table {
			if filepath.Dir(p) == abs && !keep[name] {
				names = append(names, name)
			}
		}
	}
	for _, name := range names {
		if err := store.Delete(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (l *Links) clone() *Links {
	c := &Links{
		terms:    slices.Clone(l.terms),
		files:    make(map[string]string, len(l.files)),
		images:   make(map[string]string, len(l.images)),
		toDelete: slices.Clone(l.toDelete),
	}
	for k, v := range l.files {
		c.files[k] = v
	}
	for k, v := range l.images {
		c.images[k] = v
	}
	return c
}

func (l *Links) sortedTerms() []string {
	out := slices.Clone(l.terms)
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
