package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/starford/lexicon/internal/termservice"
	"github.com/starford/lexicon/internal/testutil"
)

// testEnv sets up a temp project, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode; otherwise token mode.
func testEnv(t *testing.T, authToken string) (*termservice.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithProject(t, authToken != "", authToken, nil)
	return svc, router
}

func testEnvWithProject(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*termservice.Service, http.Handler, string) {
	t.Helper()
	root, ctrl := testutil.TestProject(t)
	svc := termservice.New(ctrl, testutil.TestDB(t),
		termservice.WithLogger(testutil.QuietLogger()),
		termservice.WithStagingDir(t.TempDir()))
	router := NewRouter(svc, authEnabled, authToken, sseHandler)
	return svc, router, root
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createTerm(t *testing.T, router http.Handler, name, desc string, related ...string) TermDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/terms", map[string]any{
		"name": name, "description": desc, "related_terms": related,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %q status = %d, body = %s", name, w.Code, w.Body.String())
	}
	var d TermDetail
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestCreateAndGetTerm(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "A small feline.")
	createTerm(t, router, "Big Cat", "Lions and tigers.", "Cat")

	w := do(t, router, http.MethodGet, "/terms/Cat", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var d TermDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Description != "A small feline." {
		t.Errorf("description = %q", d.Description)
	}
	if len(d.RelatedTerms) != 1 || d.RelatedTerms[0] != "Big Cat" {
		t.Errorf("related = %v", d.RelatedTerms)
	}
	if w.Header().Get("ETag") != strconv.Quote(d.Checksum) {
		t.Errorf("etag = %q", w.Header().Get("ETag"))
	}

	w = do(t, router, http.MethodGet, "/terms/Big%20Cat", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get escaped name = %d", w.Code)
	}
}

func TestCreateTermErrors(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")

	if w := do(t, router, http.MethodPost, "/terms", map[string]any{"name": "Cat"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/terms", map[string]any{"name": " Cat"}); w.Code != http.StatusBadRequest {
		t.Errorf("illegal name = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/terms", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing name = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/terms", map[string]any{"name": "Dog", "related_terms": []string{"Ghost"}}); w.Code != http.StatusNotFound {
		t.Errorf("unknown related = %d, want 404", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/terms", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	d := createTerm(t, router, "Cat", "v1")

	body, _ := json.Marshal(map[string]string{"description": "v2"})
	req := httptest.NewRequest(http.MethodPut, "/terms/Cat", bytes.NewReader(body))
	req.Header.Set("If-Match", `"wrong"`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", w.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/terms/Cat", bytes.NewReader(body))
	req.Header.Set("If-Match", strconv.Quote(d.Checksum))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestUpdateValidation(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")

	if w := do(t, router, http.MethodPut, "/terms/Cat", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/terms/Ghost", map[string]any{"description": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestRenameTerm(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")
	createTerm(t, router, "Dog", "", "Cat")

	w := do(t, router, http.MethodPut, "/terms/Cat", map[string]any{"name": "Feline"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodGet, "/terms/Cat", nil); w.Code != http.StatusNotFound {
		t.Errorf("old name still reachable: %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/terms/Dog", nil)
	var dog TermDetail
	_ = json.Unmarshal(w.Body.Bytes(), &dog)
	if len(dog.RelatedTerms) != 1 || dog.RelatedTerms[0] != "Feline" {
		t.Errorf("dog related = %v", dog.RelatedTerms)
	}
}

func TestDeleteTerm(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")

	if w := do(t, router, http.MethodDelete, "/terms/Cat", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/terms/Cat", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListTerms(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "b", "")
	createTerm(t, router, "a", "")

	w := do(t, router, http.MethodGet, "/terms", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp TermListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Terms[0].Name != "a" {
		t.Errorf("list = %+v", resp)
	}
}

func TestLinkAndUnlinkEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")
	createTerm(t, router, "Dog", "")
	createTerm(t, router, "Cow", "")

	w := do(t, router, http.MethodPost, "/terms/Cat/links", map[string]any{"terms": []string{"Dog", "Cow"}})
	if w.Code != http.StatusOK {
		t.Fatalf("link = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/terms/Cat/links", map[string]any{"terms": []string{"Cat"}}); w.Code != http.StatusConflict {
		t.Errorf("self link = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/terms/Cat/links?term=Dog", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unlink = %d, body = %s", w.Code, w.Body.String())
	}
	var d TermDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if len(d.RelatedTerms) != 1 || d.RelatedTerms[0] != "Cow" {
		t.Errorf("related = %v", d.RelatedTerms)
	}
	if w := do(t, router, http.MethodDelete, "/terms/Cat/links", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unlink without term = %d, want 400", w.Code)
	}
}

func TestUndoRedoEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "one")

	if w := do(t, router, http.MethodPost, "/terms/Cat/undo", nil); w.Code != http.StatusConflict {
		t.Errorf("undo with no history = %d, want 409", w.Code)
	}
	do(t, router, http.MethodPut, "/terms/Cat", map[string]any{"description": "two"})

	w := do(t, router, http.MethodPost, "/terms/Cat/undo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("undo = %d, body = %s", w.Code, w.Body.String())
	}
	var d TermDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Description != "one" || !d.CanRedo {
		t.Errorf("after undo = %+v", d)
	}

	w = do(t, router, http.MethodPost, "/terms/Cat/redo", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Description != "two" {
		t.Errorf("after redo = %q", d.Description)
	}
}

func TestTermHTML(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "Purrs <loudly>.")

	w := do(t, router, http.MethodGet, "/terms/Cat/html", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("html = %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "<p>Purrs &lt;loudly&gt;.</p>") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSaveAndSearch(t *testing.T) {
	_, router, root := testEnvWithProject(t, false, "", nil)
	createTerm(t, router, "Cat", "Cats purr when content.")

	w := do(t, router, http.MethodGet, "/project", nil)
	var info ProjectInfo
	_ = json.Unmarshal(w.Body.Bytes(), &info)
	if !info.Unsaved {
		t.Errorf("project = %+v", info)
	}

	w = do(t, router, http.MethodPost, "/project/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(root, "Cat", "description.json")); err != nil {
		t.Errorf("term not on disk: %v", err)
	}

	w = do(t, router, http.MethodGet, "/search?q=purr", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Name != "Cat" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(map[string]string{"name": "Cat"})
	req := httptest.NewRequest(http.MethodPost, "/terms", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/terms", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/terms", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/terms", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithProject(t, true, "secret", sseStub())
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithProject(t, true, "tok", sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// Attachment tests.

func uploadFile(t *testing.T, router http.Handler, term, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/terms/"+term+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServeAttachment(t *testing.T) {
	_, router, root := testEnvWithProject(t, false, "", nil)
	createTerm(t, router, "Cat", "")

	w := uploadFile(t, router, "Cat", "notes.txt", []byte("whiskers"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var d TermDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if len(d.Files) != 1 || d.Files[0] != "notes.txt" {
		t.Errorf("files = %v", d.Files)
	}

	w = do(t, router, http.MethodGet, "/terms/Cat/files/notes.txt", nil)
	if w.Code != http.StatusOK || w.Body.String() != "whiskers" {
		t.Fatalf("serve staged = %d %q", w.Code, w.Body.String())
	}

	do(t, router, http.MethodPost, "/project/save", nil)
	data, err := os.ReadFile(filepath.Join(root, "Cat", "notes.txt"))
	if err != nil {
		t.Fatalf("file not in term dir: %v", err)
	}
	if string(data) != "whiskers" {
		t.Errorf("content mismatch")
	}

	w = do(t, router, http.MethodDelete, "/terms/Cat/files/notes.txt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unlink = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodGet, "/terms/Cat/files/notes.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("serve unlinked = %d, want 404", w.Code)
	}
}

func TestUnlinkImageThroughFilesRoute(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if w := uploadFile(t, router, "Cat", "cat.png", png); w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	w := do(t, router, http.MethodDelete, "/terms/Cat/files/cat.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unlink image = %d, body = %s", w.Code, w.Body.String())
	}
	var d TermDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if len(d.Images) != 0 {
		t.Errorf("images = %v", d.Images)
	}
	if w := do(t, router, http.MethodDelete, "/terms/Cat/files/cat.png", nil); w.Code != http.StatusNotFound {
		t.Errorf("second unlink = %d, want 404", w.Code)
	}
}

func TestLinkServerFile(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")
	src := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	if w := do(t, router, http.MethodPost, "/terms/Cat/files", map[string]string{"path": src}); w.Code != http.StatusOK {
		t.Fatalf("link file = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/terms/Cat/files", map[string]string{"path": src}); w.Code != http.StatusConflict {
		t.Errorf("relink = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/terms/Cat/files", map[string]string{"path": src + ".missing"}); w.Code != http.StatusNotFound {
		t.Errorf("missing file = %d, want 404", w.Code)
	}
}

func TestUploadAttachment_InvalidFilename(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")
	if w := uploadFile(t, router, "Cat", ".hidden", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("hidden file = %d, want 400", w.Code)
	}
}

func TestUploadAttachment_UnknownTerm(t *testing.T) {
	_, router := testEnv(t, "")
	if w := uploadFile(t, router, "Ghost", "a.txt", []byte("x")); w.Code != http.StatusNotFound {
		t.Errorf("unknown term = %d, want 404", w.Code)
	}
}

func TestUploadAttachment_MissingFileField(t *testing.T) {
	_, router := testEnv(t, "")
	createTerm(t, router, "Cat", "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/terms/Cat/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file field = %d, want 400", w.Code)
	}
}
