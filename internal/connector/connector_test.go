package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/storage"
)

type stub struct {
	Connector
	name string
}

func markerFactory(name, marker string) Factory {
	return Factory{
		Name: name,
		CanApply: func(ctx context.Context, store storage.Provider) (bool, error) {
			return store.ExistsFile(ctx, marker)
		},
		New: func(Env) Connector { return stub{name: name} },
	}
}

func TestSelect_FirstAffirmativeWins(t *testing.T) {
	store := storage.NewMemory(map[string]string{
		"/podspec.yaml": "title: x",
		"/hugo.toml":    "",
	})
	c, name, err := Select(context.Background(), Env{Store: store},
		markerFactory("jekyll", "/_config.yml"),
		markerFactory("grow", "/podspec.yaml"),
		markerFactory("hugo", "/hugo.toml"),
	)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != "grow" {
		t.Errorf("name = %q, want %q", name, "grow")
	}
	if c.(stub).name != "grow" {
		t.Errorf("connector = %+v", c)
	}
}

func TestSelect_NoneApplies(t *testing.T) {
	store := storage.NewMemory(nil)
	_, _, err := Select(context.Background(), Env{Store: store}, markerFactory("grow", "/podspec.yaml"))
	if !errors.Is(err, apperr.ErrNoConnector) {
		t.Errorf("err = %v, want ErrNoConnector", err)
	}
}

func TestSelect_CanApplyError(t *testing.T) {
	boom := errors.New("boom")
	f := Factory{
		Name:     "broken",
		CanApply: func(context.Context, storage.Provider) (bool, error) { return false, boom },
		New:      func(Env) Connector { return nil },
	}
	_, _, err := Select(context.Background(), Env{Store: storage.NewMemory(nil)}, f)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
