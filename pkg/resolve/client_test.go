package resolve

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/jmarlow/cookery/pkg/cache"
	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
)

// scriptedResolver returns canned results and counts invocations.
type scriptedResolver struct {
	graph *Graph
	err   error
	calls int
}

func (s *scriptedResolver) Name() string { return "scripted" }

func (s *scriptedResolver) Resolve(ctx context.Context, req Request, cat *recipe.Catalog) (*Graph, error) {
	s.calls++
	return s.graph, s.err
}

func closedGraph() *Graph {
	root := ident("a", "1.0.0", "")
	return &Graph{Root: root, Nodes: map[recipe.Identity]*Node{
		root: {ID: root, Build: recipe.BuildSpec{Kind: recipe.KindNoop}},
	}}
}

func emptyCatalog(t *testing.T) *recipe.Catalog {
	t.Helper()
	return loadCatalog(t, t.TempDir())
}

func TestClientCachesResolutions(t *testing.T) {
	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	resolver := &scriptedResolver{graph: closedGraph()}
	client := NewClient(resolver, fc, nil)
	cat := emptyCatalog(t)
	req := mustRequest(t, "a")

	g, info, err := client.ResolveWithInfo(ctx, req, cat, false)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if info.CacheHit {
		t.Error("first resolution should not be a cache hit")
	}
	if g.Root != closedGraph().Root {
		t.Errorf("root = %s", g.Root)
	}

	g2, info2, err := client.ResolveWithInfo(ctx, req, cat, false)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !info2.CacheHit {
		t.Error("second resolution should hit the cache")
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.calls)
	}
	if g2.Root != g.Root || g2.Len() != g.Len() {
		t.Error("cached graph differs from original")
	}
}

func TestClientRefreshBypassesCache(t *testing.T) {
	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	resolver := &scriptedResolver{graph: closedGraph()}
	client := NewClient(resolver, fc, nil)
	cat := emptyCatalog(t)
	req := mustRequest(t, "a")

	if _, _, err := client.ResolveWithInfo(ctx, req, cat, false); err != nil {
		t.Fatal(err)
	}
	_, info, err := client.ResolveWithInfo(ctx, req, cat, true)
	if err != nil {
		t.Fatal(err)
	}
	if info.CacheHit {
		t.Error("refresh should bypass the cache")
	}
	if resolver.calls != 2 {
		t.Errorf("resolver called %d times, want 2", resolver.calls)
	}
}

func TestClientRejectsOpenGraph(t *testing.T) {
	root := ident("a", "1.0.0", "")
	open := &Graph{Root: root, Nodes: map[recipe.Identity]*Node{
		root: {ID: root, Requires: []recipe.Identity{ident("ghost", "1.0.0", "")}},
	}}
	client := NewClient(&scriptedResolver{graph: open}, nil, nil)

	_, err := client.Resolve(context.Background(), mustRequest(t, "a"), emptyCatalog(t))
	if code := errors.GetCode(err); code != errors.ErrCodeClosure {
		t.Fatalf("error code = %s, want %s", code, errors.ErrCodeClosure)
	}
}

func TestClientWrapsUncodedErrors(t *testing.T) {
	client := NewClient(&scriptedResolver{err: stderrors.New("boom")}, nil, nil)

	_, err := client.Resolve(context.Background(), mustRequest(t, "a"), emptyCatalog(t))
	if code := errors.GetCode(err); code != errors.ErrCodeResolverUnavailable {
		t.Fatalf("error code = %s, want %s", code, errors.ErrCodeResolverUnavailable)
	}
}

func TestClientPassesWrappedCancellationThrough(t *testing.T) {
	wrapped := fmt.Errorf("solver interrupted: %w", context.Canceled)
	client := NewClient(&scriptedResolver{err: wrapped}, nil, nil)

	_, err := client.Resolve(context.Background(), mustRequest(t, "a"), emptyCatalog(t))
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("cancellation should pass through, got %v", err)
	}
	if code := errors.GetCode(err); code != "" {
		t.Errorf("cancellation should not be classified, got code %s", code)
	}
}

func TestClientPassesConflictsThrough(t *testing.T) {
	conflict := &Conflict{Entries: []ConflictEntry{{Package: "imath", Wanted: "imath@1.0", Clashing: "imath@2.0", Origin: "request"}}}
	client := NewClient(&scriptedResolver{err: WrapConflict(conflict)}, nil, nil)

	_, err := client.Resolve(context.Background(), mustRequest(t, "a"), emptyCatalog(t))
	if code := errors.GetCode(err); code != errors.ErrCodeConflict {
		t.Fatalf("error code = %s, want %s", code, errors.ErrCodeConflict)
	}
	if _, ok := AsConflict(err); !ok {
		t.Error("conflict details should survive the client")
	}
}
