// Package term implements a glossary term: its name, its description and
// its links, together with the undo history of an editing session.
package term

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/markup"
	"github.com/starford/lexicon/internal/storage"
)

// Term is one snapshot of a glossary entry. A frozen snapshot belongs to an
// editing history and rejects every mutation.
type Term struct {
	id          uuid.UUID
	name        string
	storedName  string
	description *Description
	links       *Links
	frozen      bool
}

// New returns an unsaved term with a fresh identity.
func New(name string) (*Term, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Term{
		id:          uuid.New(),
		name:        name,
		description: NewDescription(""),
		links:       NewLinks(),
	}, nil
}

// Load reads the term stored in the directory name.
func Load(store storage.Provider, name string) (*Term, error) {
	if !store.Exists(name) {
		return nil, fmt.Errorf("%w: term %q", apperr.ErrNotFound, name)
	}
	abs, err := store.Abs(name)
	if err != nil {
		return nil, err
	}
	desc, err := LoadDescription(store, name)
	if errors.Is(err, apperr.ErrNotFound) {
		slog.Warn("term: description missing", slog.String("term", name))
		desc = NewDescription(abs)
	} else if err != nil {
		return nil, err
	}
	links, err := LoadLinks(store, name)
	if err != nil {
		return nil, err
	}
	return &Term{
		id:          uuid.New(),
		name:        name,
		storedName:  name,
		description: desc,
		links:       links,
	}, nil
}

// ID returns the identity shared by every snapshot of the term.
func (t *Term) ID() uuid.UUID { return t.id }

// Name returns the current term name.
func (t *Term) Name() string { return t.name }

// StoredName returns the name the term was last loaded or saved under, or
// "" if it was never saved.
func (t *Term) StoredName() string { return t.storedName }

// Frozen reports whether the snapshot is read-only.
func (t *Term) Frozen() bool { return t.frozen }

// Clone returns an editable deep copy with the same identity.
func (t *Term) Clone() *Term {
	return &Term{
		id:          t.id,
		name:        t.name,
		storedName:  t.storedName,
		description: t.description.clone(),
		links:       t.links.clone(),
	}
}

func (t *Term) freeze() { t.frozen = true }

func (t *Term) mutable() error {
	if t.frozen {
		return fmt.Errorf("%w: term %q", apperr.ErrImmutable, t.name)
	}
	return nil
}

// SetName renames the snapshot. Other terms are not touched.
func (t *Term) SetName(name string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	t.name = name
	return nil
}

// DescriptionText returns the description as tag text.
func (t *Term) DescriptionText() string { return t.description.Text() }

// SetDescriptionText replaces the description. Bare image names resolve
// against the term directory and the linked images. The returned slice
// lists the image tags that were skipped.
func (t *Term) SetDescriptionText(text string) ([]error, error) {
	if err := t.mutable(); err != nil {
		return nil, err
	}
	return t.description.setText(text, t.links.images), nil
}

// Description returns a copy of the description.
func (t *Term) Description() *Description { return t.description.clone() }

// LinkTerm adds a related term name.
func (t *Term) LinkTerm(name string) (bool, error) {
	if err := t.mutable(); err != nil {
		return false, err
	}
	return t.links.LinkTerm(name), nil
}

// UnlinkTerm removes a related term name.
func (t *Term) UnlinkTerm(name string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	return t.links.UnlinkTerm(name)
}

// LinkFile links an external file or image.
func (t *Term) LinkFile(path string) (bool, error) {
	if err := t.mutable(); err != nil {
		return false, err
	}
	return t.links.LinkFile(path)
}

// UnlinkFile unlinks a linked file by name.
func (t *Term) UnlinkFile(name string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	return t.links.UnlinkFile(name)
}

// UnlinkImage unlinks a linked image by name.
func (t *Term) UnlinkImage(name string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	return t.links.UnlinkImage(name)
}

// RelatedTerms returns the names of the linked terms.
func (t *Term) RelatedTerms() []string { return t.links.Terms() }

// LinkedFiles returns the names of the linked non-image files.
func (t *Term) LinkedFiles() []string { return t.links.Files() }

// LinkedImages returns the names of the linked images.
func (t *Term) LinkedImages() []string { return t.links.Images() }

// FilePath returns the absolute path of a linked file, linked image or
// description image.
func (t *Term) FilePath(name string) (string, error) {
	if p, ok := t.links.Path(name); ok {
		return p, nil
	}
	if img, ok := t.description.images[name]; ok {
		return img.Path, nil
	}
	return "", fmt.Errorf("%w: file %q of term %q", apperr.ErrNotFound, name, t.name)
}

// StageFiles copies every file the term references into its current
// directory without writing the term itself. It is used to carry files
// forward before an older directory of the same term is deleted.
func (t *Term) StageFiles(store storage.Provider) error {
	if err := t.links.stage(store, t.name, t.description.AddedImagePaths()); err != nil {
		return err
	}
	abs, err := store.Abs(t.name)
	if err != nil {
		return err
	}
	t.description.rebase(abs)
	return nil
}

// Save writes the term below store's root in a directory named after it.
func (t *Term) Save(store storage.Provider) error {
	abs, err := store.Abs(t.name)
	if err != nil {
		return err
	}
	if err := t.links.Save(store, t.name, t.description.AddedImagePaths()); err != nil {
		return fmt.Errorf("term: save %q links: %w", t.name, err)
	}
	t.description.rebase(abs)
	if err := t.description.Save(store, t.name); err != nil {
		return fmt.Errorf("term: save %q description: %w", t.name, err)
	}
	t.storedName = t.name
	return nil
}

// Delete removes the stored copy of the term together with the files it
// owns in its directory. Failing to remove the directory itself is only
// logged.
func (t *Term) Delete(store storage.Provider) error {
	return t.DeleteExcept(store, nil)
}

// DeleteExcept is Delete for a directory another term now occupies: files
// named in keep stay, and so does the directory.
func (t *Term) DeleteExcept(store storage.Provider, keep map[string]bool) error {
	dir := t.storedName
	if dir == "" {
		return nil
	}
	if err := t.links.deleteExcept(store, dir, keep); err != nil {
		return fmt.Errorf("term: delete %q links: %w", dir, err)
	}
	if err := t.description.Delete(store, dir); err != nil {
		return fmt.Errorf("term: delete %q description: %w", dir, err)
	}
	abs, err := store.Abs(dir)
	if err != nil {
		return err
	}
	for _, p := range t.description.AddedImagePaths() {
		name := filepath.Base(p)
		if filepath.Dir(p) != abs || keep[name] {
			continue
		}
		if err := store.Delete(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("term: delete %q image: %w", dir, err)
		}
	}
	if keep != nil {
		return nil
	}
	if err := store.RemoveDir(dir); err != nil {
		slog.Warn("term: directory not removed", slog.String("term", dir), slog.String("error", err.Error()))
	}
	return nil
}

// FileNames returns the names of every file the term keeps in its
// directory: linked files, linked images and description images.
func (t *Term) FileNames() map[string]bool {
	out := make(map[string]bool)
	for _, n := range t.links.Files() {
		out[n] = true
	}
	for _, n := range t.links.Images() {
		out[n] = true
	}
	for n := range t.description.AttachedImages() {
		out[n] = true
	}
	return out
}

// HTML renders the term as a standalone HTML document.
func (t *Term) HTML() string {
	name := html.EscapeString(t.name)
	return "<html><head>" +
		`<meta charset="UTF-8">` +
		"<title>" + name + "</title>" +
		"</head>" +
		"<body>" +
		"<h1>" + name + "</h1>" +
		t.description.HTML() +
		"</body>" +
		"</html>"
}

// RelatedTermsHTML renders the related terms as a list of term: links.
func (t *Term) RelatedTermsHTML() string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, name := range t.links.sortedTerms() {
		esc := html.EscapeString(name)
		fmt.Fprintf(&b, `<li><a href="term:%s">%s</a></li>`, esc, esc)
	}
	b.WriteString("</ul>")
	return b.String()
}

// AttachedImagesHTML renders links to the images shown in the description.
func (t *Term) AttachedImagesHTML() string {
	return markup.ImageIndexHTML(t.description.blocks)
}

// Less orders terms by case-folded name, falling back to the raw name so
// that the order is total.
func (t *Term) Less(other *Term) bool {
	fold := cases.Fold()
	a, b := fold.String(t.name), fold.String(other.name)
	if a == b {
		return t.name < other.name
	}
	return a < b
}
