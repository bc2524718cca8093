package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempProject(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempProject(t)
	content := []byte(`["Paragraph:hello"]`)
	if err := s.Write("Cat/description.json", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Cat/description.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempProject(t)
	_ = s.Write("Cat/links.json", []byte("{}"))
	if err := s.Delete("Cat/links.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists("Cat/links.json") {
		t.Error("deleted file still exists")
	}
	if err := s.Delete("Cat/links.json"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("second delete err = %v, want not-exist", err)
	}
}

func TestListSkipsDirsAndTempFiles(t *testing.T) {
	s := tempProject(t)
	_ = s.Write("Cat/a.txt", []byte("a"))
	_ = s.Write("Cat/b.png", []byte("b"))
	_ = s.Write("Cat/sub/c.txt", []byte("c"))
	if err := os.WriteFile(filepath.Join(s.Root(), "Cat", tmpPrefix+"x"), []byte("tmp"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := s.List("Cat")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2 (%v)", len(items), items)
	}
	if items[0].Name != "a.txt" || items[1].Name != "b.png" {
		t.Errorf("names = %q, %q", items[0].Name, items[1].Name)
	}
	if items[0].Path != filepath.Join("Cat", "a.txt") {
		t.Errorf("path = %q", items[0].Path)
	}
}

func TestImport(t *testing.T) {
	s := tempProject(t)
	src := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(src, []byte("external"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Import(src, "A/doc.txt"); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, err := s.Read("A/doc.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "external" {
		t.Errorf("content = %q", got)
	}
	// The source is left in place.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source removed: %v", err)
	}
}

func TestImportOntoItself(t *testing.T) {
	s := tempProject(t)
	_ = s.Write("A/doc.txt", []byte("same"))
	abs, _ := s.Abs("A/doc.txt")
	if err := s.Import(abs, "A/doc.txt"); err != nil {
		t.Fatalf("Import onto itself: %v", err)
	}
	got, _ := s.Read("A/doc.txt")
	if string(got) != "same" {
		t.Errorf("content = %q", got)
	}
}

func TestImportMissingSource(t *testing.T) {
	s := tempProject(t)
	if err := s.Import(filepath.Join(t.TempDir(), "missing.txt"), "A/missing.txt"); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestRemoveDir(t *testing.T) {
	s := tempProject(t)
	_ = s.Write("A/x.txt", []byte("x"))
	if err := s.RemoveDir("A"); err == nil {
		t.Error("expected error removing non-empty dir")
	}
	_ = s.Delete("A/x.txt")
	if err := s.RemoveDir("A"); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}
	if s.Exists("A") {
		t.Error("dir still exists")
	}
	if err := s.RemoveDir(""); err == nil {
		t.Error("expected error removing root")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempProject(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if s.Exists(p) {
			t.Errorf("Exists(%q) = true", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempProject(t)
	_ = s.Write("terms.json", []byte(`["a"]`))
	if err := s.Write("terms.json", []byte(`["a","b"]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("terms.json")
	if string(got) != `["a","b"]` {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "lexicon-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
