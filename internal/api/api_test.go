package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/editor-server/internal/connector"
	"github.com/starford/editor-server/internal/connector/grow"
	"github.com/starford/editor-server/internal/events"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/testutil"
	"github.com/starford/editor-server/internal/workspace"
)

type spyReporter struct {
	mu   sync.Mutex
	errs []error
}

func (s *spyReporter) Report(_ context.Context, err error, _ ...slog.Attr) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *spyReporter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

// testEnv sets up a temp Grow project on disk and a router over it.
func testEnv(t *testing.T) (http.Handler, string, *spyReporter) {
	t.Helper()
	root, store := testutil.TestProject(t, map[string]string{
		"podspec.yaml":                  "title: \"My Site\"\n",
		"content/pages/about.md":        "---\ntitle: About\n---\nHello\n",
		"content/pages/_blueprint.yaml": "editor:\n  fields:\n    - key: title\n",
		"views/partials/hero.html":      "---\neditor:\n  fields:\n    - key: title\n---\n<h1></h1>\n",
		"views/partials/footer.html":    "<footer></footer>\n",
		"views/partials/zz.html":        "",
	})
	conn, _, err := connector.Select(context.Background(), connector.Env{Store: store}, grow.NewFactory())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	rep := &spyReporter{}
	router := NewRouter(Deps{
		Connector:  conn,
		Workspaces: workspace.NewService("main", []string{"workspace/blog", "feature/x"}),
		Devices:    []models.DeviceData{{Label: "Mobile", Width: 411, Height: 731, CanRotate: true}},
		Reporter:   rep,
	})
	return router, root, rep
}

func post(t *testing.T, router http.Handler, route string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(http.MethodPost, route, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestProjectGet(t *testing.T) {
	router, _, _ := testEnv(t)
	w := post(t, router, "/project.get", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[models.ProjectData](t, w); got.Title != "My Site" {
		t.Errorf("title = %q, want %q", got.Title, "My Site")
	}
}

func TestProjectGet_EmptyBody(t *testing.T) {
	router, _, _ := testEnv(t)
	if w := post(t, router, "/project.get", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestFileGet(t *testing.T) {
	router, _, _ := testEnv(t)
	w := post(t, router, "/file.get", models.GetFileRequest{File: models.FileData{Path: "/content/pages/about.md"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["content"] != "Hello\n" || got["dataRaw"] != "title: About" {
		t.Errorf("file = %v", got)
	}
	if _, ok := got["editor"]; !ok {
		t.Error("editor missing from response")
	}
}

func TestFileGet_NotFound(t *testing.T) {
	router, _, rep := testEnv(t)
	w := post(t, router, "/file.get", models.GetFileRequest{File: models.FileData{Path: "/content/missing.md"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	got := decode[map[string]any](t, w)
	if msg, _ := got["message"].(string); !strings.Contains(msg, "not found") {
		t.Errorf("message = %q", msg)
	}
	if rep.count() != 1 {
		t.Errorf("reported %d errors, want 1", rep.count())
	}
}

func TestInvalidJSON(t *testing.T) {
	router, _, _ := testEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/file.get", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	got := decode[map[string]string](t, w)
	if got["message"] != "Invalid request body" || got["description"] == "" {
		t.Errorf("error = %v", got)
	}
}

func TestFileSaveAndHistory(t *testing.T) {
	router, root, _ := testEnv(t)
	body := `{"isRawEdit":false,"file":{"file":{"path":"/content/pages/about.md"},"content":"New\n","data":{"title":"About","subtitle":"Us"}}}`
	req := httptest.NewRequest(http.MethodPost, "/file.save", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	raw, err := os.ReadFile(filepath.Join(root, "content", "pages", "about.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "---\ntitle: About\nsubtitle: Us\n---\nNew\n" {
		t.Errorf("saved = %q", raw)
	}
}

func TestFileCreateDuplicate(t *testing.T) {
	router, _, _ := testEnv(t)
	w := post(t, router, "/file.create", models.CreateFileRequest{Path: "/content/pages/about.md"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestFileCopyAndDelete(t *testing.T) {
	router, root, _ := testEnv(t)
	w := post(t, router, "/file.copy", models.CopyFileRequest{OriginalPath: "/content/pages/about.md", Path: "/content/pages/about-2.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("copy status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[models.FileData](t, w); got.Path != "/content/pages/about-2.md" {
		t.Errorf("path = %q", got.Path)
	}

	w = post(t, router, "/file.delete", models.DeleteFileRequest{File: models.FileData{Path: "/content/pages/about-2.md"}})
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "{}" {
		t.Errorf("delete body = %q", w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(root, "content", "pages", "about-2.md")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still on disk: %v", err)
	}
}

func TestFilesGet(t *testing.T) {
	router, _, _ := testEnv(t)
	w := post(t, router, "/files.get", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[[]models.FileData](t, w)
	if len(got) != 1 || got[0].Path != "/content/pages/about.md" || got[0].URL != "/pages/about/" {
		t.Errorf("files = %+v", got)
	}
}

func TestDevicesGet(t *testing.T) {
	router, _, _ := testEnv(t)
	got := decode[[]models.DeviceData](t, post(t, router, "/devices.get", nil))
	if len(got) != 1 || got[0].Label != "Mobile" || !got[0].CanRotate {
		t.Errorf("devices = %+v", got)
	}
}

func TestWorkspaces(t *testing.T) {
	router, _, _ := testEnv(t)

	current := decode[models.WorkspaceData](t, post(t, router, "/workspace.get", nil))
	if current.Name != "main" {
		t.Errorf("current = %+v", current)
	}

	list := decode[[]models.WorkspaceData](t, post(t, router, "/workspaces.get", nil))
	if len(list) != 2 || list[1].Name != "blog" || list[1].Branch.Name != "workspace/blog" {
		t.Errorf("workspaces = %+v", list)
	}

	w := post(t, router, "/workspace.create", models.CreateWorkspaceRequest{Workspace: "new"})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("create status = %d, want 501", w.Code)
	}
	w = post(t, router, "/publish.start", models.PublishRequest{Workspace: models.WorkspaceData{Name: "blog"}})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("publish status = %d, want 501", w.Code)
	}
	if got := decode[map[string]string](t, w); got["message"] != "Publishing is not supported" {
		t.Errorf("publish error = %v", got)
	}
}

func TestGrowPartials(t *testing.T) {
	router, _, _ := testEnv(t)
	w := post(t, router, "/grow/partials.get", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	want := `{"footer":{"partial":"footer"},"hero":{"partial":"hero","editor":{"fields":[{"key":"title"}]}},"zz":{"partial":"zz"}}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("partials = %s, want %s", got, want)
	}
}

func TestGrowPartials_MalformedFails(t *testing.T) {
	router, root, rep := testEnv(t)
	_ = os.WriteFile(filepath.Join(root, "views", "partials", "bad.html"), []byte("---\neditor: [\n---\n"), 0o644)
	w := post(t, router, "/grow/partials.get", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if rep.count() != 1 {
		t.Errorf("reported %d errors, want 1", rep.count())
	}
}

func TestRoutesArePostOnly(t *testing.T) {
	router, _, _ := testEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/project.get", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

// Upload tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte, meta string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.Copy(part, bytes.NewReader(content))
	}
	if meta != "" {
		_ = mw.WriteField("meta", meta)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/file.upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUpload(t *testing.T) {
	router, root, _ := testEnv(t)
	w := uploadFile(t, router, "test.png", []byte("fake-png-data"), `{"alt":"x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[models.FileData](t, w)
	if got.Path != "/static/uploads/test.png" || got.URL != "/static/uploads/test.png" {
		t.Errorf("file = %+v", got)
	}
	data, err := os.ReadFile(filepath.Join(root, "static", "uploads", "test.png"))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if string(data) != "fake-png-data" {
		t.Errorf("content mismatch")
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	router, _, _ := testEnv(t)
	w := uploadFile(t, router, "", nil, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpload_BadMeta(t *testing.T) {
	router, _, _ := testEnv(t)
	w := uploadFile(t, router, "a.png", []byte("x"), `{broken`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestEventsMounted(t *testing.T) {
	_, store := testutil.TestProject(t, map[string]string{"podspec.yaml": "title: x\n"})
	broker := events.NewBroker(time.Second)
	defer broker.Close()
	router := NewRouter(Deps{Connector: grow.New(connector.Env{Store: store}), Events: broker})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	broker.PublishFileEvent(events.KindUpdated, "/content/a.md")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), "event: file.updated") {
		t.Errorf("events body = %q", w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(errors.New("x")); got != http.StatusInternalServerError {
		t.Errorf("status = %d", got)
	}
}
