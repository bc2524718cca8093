package project

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/term"
)

func newTerm(t *testing.T, name string) *term.Term {
	t.Helper()
	tm, err := term.New(name)
	require.NoError(t, err)
	return tm
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// savedProject returns a controller whose project at a temp dir holds the
// given terms.
func savedProject(t *testing.T, names ...string) (*Controller, string) {
	t.Helper()
	root := t.TempDir()
	c := New()
	for _, n := range names {
		require.NoError(t, c.AddTerm(newTerm(t, n)))
	}
	require.NoError(t, c.SaveProjectAs(root))
	return c, root
}

func reload(t *testing.T, root string) *Controller {
	t.Helper()
	c := New()
	require.NoError(t, c.LoadProject(root))
	return c
}

func readIndex(t *testing.T, root string) []string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, term.IndexFile))
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal(raw, &names))
	return names
}

func TestAddTermTwice(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "X")))

	err := c.AddTerm(newTerm(t, "X"))
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists))
	assert.Equal(t, []string{"X"}, c.Terms())
	assert.Equal(t, 1, c.Count())
}

func TestContentHTMLOfNewTerm(t *testing.T) {
	c := New()
	cat := newTerm(t, "Cat")
	_, err := cat.SetDescriptionText("A cat is a cat animal.\n\n##LIST##\nrun\nsit\n##END##")
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(cat))

	got, err := c.GetTerm("Cat")
	require.NoError(t, err)
	assert.Equal(t, "<p>A cat is a cat animal.</p><ul><li>run</li><li>sit</li></ul>", got.Description().HTML())
}

func TestLinkedFileCopiedOnSave(t *testing.T) {
	src := t.TempDir()
	doc := writeFile(t, src, "doc.txt", "hello")

	c := New()
	a := newTerm(t, "A")
	_, err := a.LinkFile(doc)
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(a))

	root := t.TempDir()
	require.NoError(t, c.SaveProjectAs(root))

	assert.FileExists(t, filepath.Join(root, "A", "doc.txt"))
	raw, err := os.ReadFile(filepath.Join(root, "A", term.LinksFile))
	require.NoError(t, err)
	var links struct {
		Files []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(raw, &links))
	assert.Equal(t, []string{"doc.txt"}, links.Files)
	assert.FileExists(t, doc, "the source file is left in place")
}

func TestRenameThroughHistorySurvivesReload(t *testing.T) {
	_, root := savedProject(t, "Old")
	c := reload(t, root)

	cur, err := c.GetTerm("Old")
	require.NoError(t, err)
	h := term.NewHistory(cur)
	next := h.Next()
	require.NoError(t, next.SetName("New"))

	renamed, err := c.UpdateTerm(next)
	require.NoError(t, err)
	assert.True(t, renamed)
	require.NoError(t, c.SaveProject())

	c = reload(t, root)
	_, err = c.GetTerm("New")
	assert.NoError(t, err)
	_, err = c.GetTerm("Old")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.NoDirExists(t, filepath.Join(root, "Old"))
	assert.Equal(t, []string{"New"}, readIndex(t, root))
}

func TestRenamePreservesLinks(t *testing.T) {
	c, root := savedProject(t, "A", "B")
	require.NoError(t, c.LinkTerms("A", "B"))

	a, err := c.GetTerm("A")
	require.NoError(t, err)
	require.NoError(t, a.SetName("A2"))
	renamed, err := c.UpdateTerm(a)
	require.NoError(t, err)
	require.True(t, renamed)

	b, err := c.GetTerm("B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, b.RelatedTerms())
	a2, err := c.GetTerm("A2")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, a2.RelatedTerms())

	require.NoError(t, c.SaveProject())
	c = reload(t, root)
	b, err = c.GetTerm("B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, b.RelatedTerms())
}

func TestLinkTermsIsSymmetric(t *testing.T) {
	c := New()
	for _, n := range []string{"A", "B", "C"} {
		require.NoError(t, c.AddTerm(newTerm(t, n)))
	}

	require.NoError(t, c.LinkTerms("A", "B", "C"))
	for _, n := range []string{"B", "C"} {
		tm, err := c.GetTerm(n)
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, tm.RelatedTerms(), n)
	}

	require.NoError(t, c.UnlinkTerms("B", "A", "C"))
	a, err := c.GetTerm("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, a.RelatedTerms())
}

func TestLinkTermsRejectsUnknownAndSelf(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "A")))

	assert.True(t, errors.Is(c.LinkTerms("A", "Ghost"), apperr.ErrNotFound))
	assert.True(t, errors.Is(c.LinkTerms("A", "A"), apperr.ErrConflict))
	a, err := c.GetTerm("A")
	require.NoError(t, err)
	assert.Empty(t, a.RelatedTerms())
}

func TestAddTermLinksBack(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "A")))

	b := newTerm(t, "B")
	_, err := b.LinkTerm("A")
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(b))

	a, err := c.GetTerm("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, a.RelatedTerms())
}

func TestGetTermReturnsPrivateCopy(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "A")))

	one, err := c.GetTerm("A")
	require.NoError(t, err)
	_, err = one.SetDescriptionText("edited")
	require.NoError(t, err)

	two, err := c.GetTerm("A")
	require.NoError(t, err)
	assert.Equal(t, "", two.DescriptionText())
	assert.Equal(t, one.ID(), two.ID())
}

func TestGetTermUnknown(t *testing.T) {
	_, err := New().GetTerm("nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRenameToTakenName(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "A")))
	require.NoError(t, c.AddTerm(newTerm(t, "B")))

	a, err := c.GetTerm("A")
	require.NoError(t, err)
	require.NoError(t, a.SetName("B"))

	renamed, err := c.UpdateTerm(a)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists))
	assert.False(t, renamed)
	assert.Equal(t, []string{"A", "B"}, c.Terms())
}

func TestUpdateUnchangedName(t *testing.T) {
	c, root := savedProject(t, "A")
	a, err := c.GetTerm("A")
	require.NoError(t, err)
	_, err = a.SetDescriptionText("new text")
	require.NoError(t, err)

	renamed, err := c.UpdateTerm(a)
	require.NoError(t, err)
	assert.False(t, renamed)
	assert.True(t, c.UnsavedChanges())

	require.NoError(t, c.SaveProject())
	assert.False(t, c.UnsavedChanges())
	got, err := reload(t, root).GetTerm("A")
	require.NoError(t, err)
	assert.Equal(t, "new text", got.DescriptionText())
}

func TestUpdateStaleCopy(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "A")))
	stale, err := c.GetTerm("A")
	require.NoError(t, err)
	require.NoError(t, c.SaveProjectAs(t.TempDir()))

	_, err = c.UpdateTerm(stale)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestRenameBackCancelsDeletion(t *testing.T) {
	c, root := savedProject(t, "A")

	a, err := c.GetTerm("A")
	require.NoError(t, err)
	require.NoError(t, a.SetName("B"))
	_, err = c.UpdateTerm(a)
	require.NoError(t, err)

	b, err := c.GetTerm("B")
	require.NoError(t, err)
	require.NoError(t, b.SetName("A"))
	_, err = c.UpdateTerm(b)
	require.NoError(t, err)

	require.NoError(t, c.SaveProject())
	assert.DirExists(t, filepath.Join(root, "A"))
	assert.NoDirExists(t, filepath.Join(root, "B"))
	assert.Equal(t, []string{"A"}, readIndex(t, root))
}

func TestRenameMovesFiles(t *testing.T) {
	src := t.TempDir()
	c := New()
	a := newTerm(t, "Old")
	_, err := a.LinkFile(writeFile(t, src, "doc.txt", "hello"))
	require.NoError(t, err)
	img := writeFile(t, src, "pic.png", "\x89PNG\r\n\x1a\n")
	_, err = a.SetDescriptionText(`#img("` + img + `","Pic")`)
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(a))
	root := t.TempDir()
	require.NoError(t, c.SaveProjectAs(root))

	a, err = c.GetTerm("Old")
	require.NoError(t, err)
	require.NoError(t, a.SetName("New"))
	_, err = c.UpdateTerm(a)
	require.NoError(t, err)
	require.NoError(t, c.SaveProject())

	assert.NoDirExists(t, filepath.Join(root, "Old"))
	assert.FileExists(t, filepath.Join(root, "New", "doc.txt"))
	assert.FileExists(t, filepath.Join(root, "New", "pic.png"))

	got, err := reload(t, root).GetTerm("New")
	require.NoError(t, err)
	assert.Equal(t, `#img("pic.png","Pic")`, got.DescriptionText())
	assert.Equal(t, []string{"doc.txt"}, got.LinkedFiles())
}

func TestRenameOntoRemovedTermKeepsFiles(t *testing.T) {
	c := New()
	a := newTerm(t, "A")
	_, err := a.LinkFile(writeFile(t, t.TempDir(), "doc.txt", "from A"))
	require.NoError(t, err)
	b := newTerm(t, "B")
	_, err = b.LinkFile(writeFile(t, t.TempDir(), "doc.txt", "from B"))
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(a))
	require.NoError(t, c.AddTerm(b))
	root := t.TempDir()
	require.NoError(t, c.SaveProjectAs(root))

	require.NoError(t, c.RemoveTerm("B"))
	a, err = c.GetTerm("A")
	require.NoError(t, err)
	require.NoError(t, a.SetName("B"))
	_, err = c.UpdateTerm(a)
	require.NoError(t, err)
	require.NoError(t, c.SaveProject())

	assert.NoDirExists(t, filepath.Join(root, "A"))
	raw, err := os.ReadFile(filepath.Join(root, "B", "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "from A", string(raw))

	got, err := reload(t, root).GetTerm("B")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.txt"}, got.LinkedFiles())
}

func TestReAddRemovedTermKeepsFiles(t *testing.T) {
	c := New()
	b := newTerm(t, "B")
	_, err := b.LinkFile(writeFile(t, t.TempDir(), "doc.txt", "hello"))
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(b))
	root := t.TempDir()
	require.NoError(t, c.SaveProjectAs(root))

	kept, err := c.GetTerm("B")
	require.NoError(t, err)
	require.NoError(t, c.RemoveTerm("B"))
	require.NoError(t, c.AddTerm(kept))
	require.NoError(t, c.SaveProject())

	assert.FileExists(t, filepath.Join(root, "B", "doc.txt"))
	assert.FileExists(t, filepath.Join(root, "B", term.LinksFile))
	assert.Equal(t, []string{"B"}, readIndex(t, root))
}

func TestReAddFreshTermOverRemovedOne(t *testing.T) {
	c := New()
	b := newTerm(t, "B")
	_, err := b.LinkFile(writeFile(t, t.TempDir(), "doc.txt", "hello"))
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(b))
	root := t.TempDir()
	require.NoError(t, c.SaveProjectAs(root))

	require.NoError(t, c.RemoveTerm("B"))
	require.NoError(t, c.AddTerm(newTerm(t, "B")))
	require.NoError(t, c.SaveProject())

	assert.NoFileExists(t, filepath.Join(root, "B", "doc.txt"))
	got, err := reload(t, root).GetTerm("B")
	require.NoError(t, err)
	assert.Empty(t, got.LinkedFiles())
}

func TestRemoveTermCascades(t *testing.T) {
	c, root := savedProject(t, "A", "B")
	require.NoError(t, c.LinkTerms("A", "B"))
	require.NoError(t, c.SaveProject())

	c = reload(t, root)
	require.NoError(t, c.RemoveTerm("A"))
	assert.False(t, c.HasTerm("A"))
	b, err := c.GetTerm("B")
	require.NoError(t, err)
	assert.Empty(t, b.RelatedTerms())

	require.NoError(t, c.SaveProject())
	assert.NoDirExists(t, filepath.Join(root, "A"))

	b, err = reload(t, root).GetTerm("B")
	require.NoError(t, err)
	assert.Empty(t, b.RelatedTerms())
}

func TestRemoveUnknownTerm(t *testing.T) {
	assert.True(t, errors.Is(New().RemoveTerm("nope"), apperr.ErrNotFound))
}

func TestRemoveUnsavedTermLeavesNothingPending(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "A")))
	require.NoError(t, c.RemoveTerm("A"))
	assert.False(t, c.UnsavedChanges())
}

func TestStaleFileRemovedOnSave(t *testing.T) {
	src := t.TempDir()
	c := New()
	a := newTerm(t, "A")
	_, err := a.LinkFile(writeFile(t, src, "doc.txt", "x"))
	require.NoError(t, err)
	_, err = a.LinkFile(writeFile(t, src, "keep.txt", "x"))
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(a))
	root := t.TempDir()
	require.NoError(t, c.SaveProjectAs(root))

	a, err = c.GetTerm("A")
	require.NoError(t, err)
	require.NoError(t, a.UnlinkFile("doc.txt"))
	_, err = c.UpdateTerm(a)
	require.NoError(t, err)
	require.NoError(t, c.SaveProject())

	assert.NoFileExists(t, filepath.Join(root, "A", "doc.txt"))
	assert.FileExists(t, filepath.Join(root, "A", "keep.txt"))
}

func TestSaveWithoutProject(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTerm(newTerm(t, "A")))
	assert.True(t, errors.Is(c.SaveProject(), apperr.ErrNoProject))
	assert.Equal(t, "Untitled", c.ProjectName())
	assert.Equal(t, "", c.ProjectPath())
}

func TestSaveFailureKeepsPendingChanges(t *testing.T) {
	c, root := savedProject(t)
	require.NoError(t, c.AddTerm(newTerm(t, "B")))
	blocker := filepath.Join(root, "B")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	assert.Error(t, c.SaveProject())
	assert.True(t, c.UnsavedChanges())

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, c.SaveProject())
	assert.False(t, c.UnsavedChanges())
	assert.Equal(t, []string{"B"}, readIndex(t, root))
}

func TestLoadProjectMissingIndex(t *testing.T) {
	err := New().LoadProject(t.TempDir())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestLoadProjectIsLazy(t *testing.T) {
	_, root := savedProject(t, "B", "A")
	assert.Equal(t, []string{"A", "B"}, readIndex(t, root))

	require.NoError(t, os.RemoveAll(filepath.Join(root, "B")))
	c := reload(t, root)
	assert.Equal(t, []string{"A", "B"}, c.Terms())
	_, err := c.GetTerm("A")
	assert.NoError(t, err)
	_, err = c.GetTerm("B")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, filepath.Base(root), c.ProjectName())
}

func TestSaveProjectAsCopiesEverything(t *testing.T) {
	src := t.TempDir()
	c := New()
	a := newTerm(t, "A")
	_, err := a.LinkFile(writeFile(t, src, "doc.txt", "x"))
	require.NoError(t, err)
	require.NoError(t, c.AddTerm(a))
	require.NoError(t, c.AddTerm(newTerm(t, "B")))
	first := t.TempDir()
	require.NoError(t, c.SaveProjectAs(first))

	c = reload(t, first)
	second := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, c.SaveProjectAs(second))

	assert.Equal(t, []string{"A", "B"}, readIndex(t, second))
	assert.FileExists(t, filepath.Join(second, "A", "doc.txt"))
	assert.FileExists(t, filepath.Join(second, "B", term.DescriptionFile))
	assert.FileExists(t, filepath.Join(first, "A", "doc.txt"))
	assert.Equal(t, "copy", c.ProjectName())
}

func TestClear(t *testing.T) {
	c, _ := savedProject(t, "A")
	c.Clear()
	assert.Zero(t, c.Count())
	assert.Equal(t, "Untitled", c.ProjectName())
	assert.False(t, c.UnsavedChanges())
}
