package partials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/storage"
	"github.com/starford/editor-server/internal/yamlschema"
)

func list(t *testing.T, files map[string]string, opts ...Option) (string, error) {
	t.Helper()
	store := storage.NewMemory(files)
	got, err := List(context.Background(), store, yamlschema.New(store), opts...)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(out), nil
}

func TestList_HeroAndFooter(t *testing.T) {
	got, err := list(t, map[string]string{
		"/views/partials/footer.html": "<footer>bye</footer>\n",
		"/views/partials/hero.html":   "---\neditor:\n  fields:\n    - key: title\n---\n<h1>{{title}}</h1>\n",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := `{"footer":{"partial":"footer"},"hero":{"partial":"hero","editor":{"fields":[{"key":"title"}]}}}`
	if got != want {
		t.Errorf("partials = %s, want %s", got, want)
	}
}

func TestList_NoEditorKey(t *testing.T) {
	got, err := list(t, map[string]string{
		"/views/partials/card.html": "---\ntitle: Card\n---\n<div></div>\n",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got != `{"card":{"partial":"card"}}` {
		t.Errorf("partials = %s", got)
	}
}

func TestList_EditorFromImport(t *testing.T) {
	got, err := list(t, map[string]string{
		"/views/partials/hero.html": "---\neditor: !import /views/editors/hero.yaml\n---\n",
		"/views/editors/hero.yaml":  "fields:\n  - key: image\n",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got != `{"hero":{"partial":"hero","editor":{"fields":[{"key":"image"}]}}}` {
		t.Errorf("partials = %s", got)
	}
}

func TestList_MalformedAbortsAll(t *testing.T) {
	_, err := list(t, map[string]string{
		"/views/partials/good.html":   "---\neditor: {fields: []}\n---\n",
		"/views/partials/broken.html": "---\neditor: [unclosed\n---\n",
	})
	if !errors.Is(err, apperr.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestList_NameCollisionLastWins(t *testing.T) {
	got, err := list(t, map[string]string{
		"/views/partials/hero.html":      "---\neditor: first\n---\n",
		"/views/partials/hero.tmpl.html": "---\neditor: second\n---\n",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got != `{"hero":{"partial":"hero","editor":"second"}}` {
		t.Errorf("partials = %s", got)
	}
}

func TestList_MissingDir(t *testing.T) {
	_, err := list(t, map[string]string{"/podspec.yaml": "title: x"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList_SkipsNestedDirs(t *testing.T) {
	got, err := list(t, map[string]string{
		"/views/partials/a.html":        "",
		"/views/partials/nested/b.html": "",
	}, WithConcurrency(1))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got != `{"a":{"partial":"a"}}` {
		t.Errorf("partials = %s", got)
	}
}

func TestList_NonMappingFrontMatter(t *testing.T) {
	got, err := list(t, map[string]string{
		"/views/partials/a.html": "---\nhello\n---\n<p></p>\n",
		"/views/partials/b.html": "---\n- one\n- two\n---\n",
		"/views/partials/c.html": "---\n# nothing here\n---\n",
		"/views/partials/d.html": "---\n---\n",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := `{"a":{"partial":"a"},"b":{"partial":"b"},"c":{"partial":"c"},"d":{"partial":"d"}}`
	if got != want {
		t.Errorf("partials = %s, want %s", got, want)
	}
}

func TestList_UnsetEditorValues(t *testing.T) {
	got, err := list(t, map[string]string{
		"/views/partials/a.html": "---\neditor: ~\n---\n",
		"/views/partials/b.html": "---\neditor: false\n---\n",
		"/views/partials/c.html": "---\neditor: ''\n---\n",
		"/views/partials/d.html": "---\neditor: 0\n---\n",
		"/views/partials/e.html": "---\neditor: []\n---\n",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := `{"a":{"partial":"a"},"b":{"partial":"b"},"c":{"partial":"c"},"d":{"partial":"d"},"e":{"partial":"e","editor":[]}}`
	if got != want {
		t.Errorf("partials = %s, want %s", got, want)
	}
}

func TestList_SelfReferencingAliasFails(t *testing.T) {
	_, err := list(t, map[string]string{
		"/views/partials/hero.html": "---\neditor: {fields: []}\n---\n",
		"/views/partials/loop.html": "---\na: &a [*a]\n---\n",
	})
	if !errors.Is(err, apperr.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

// slowStore delays reads so that earlier files finish last.
type slowStore struct {
	*storage.Memory
	delay map[string]time.Duration
}

func (s *slowStore) ReadFile(ctx context.Context, p string) ([]byte, error) {
	time.Sleep(s.delay[p])
	return s.Memory.ReadFile(ctx, p)
}

func TestList_ConcurrentReadsKeepListingOrder(t *testing.T) {
	const n = 20
	files := make(map[string]string, n)
	delay := make(map[string]time.Duration, n)
	var want []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("p%02d", i)
		p := "/views/partials/" + name + ".html"
		files[p] = fmt.Sprintf("---\neditor: {id: %d}\n---\n", i)
		delay[p] = time.Duration(n-i) * time.Millisecond
		want = append(want, name)
	}
	store := &slowStore{Memory: storage.NewMemory(files), delay: delay}

	got, err := List(context.Background(), store, yamlschema.New(store))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for pair := got.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
		var desc models.GrowPartialData = pair.Value
		if desc.Partial != pair.Key || desc.Editor == nil {
			t.Errorf("partial %s = %+v", pair.Key, desc)
		}
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", names, want)
	}
}

func TestName(t *testing.T) {
	cases := map[string]string{
		"/views/partials/hero.html":      "hero",
		"/views/partials/hero.tmpl.html": "hero",
		"/views/partials/.hidden":        "",
		"/views/partials/plain":          "plain",
	}
	for in, want := range cases {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}
