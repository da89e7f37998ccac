package resolve

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jmarlow/cookery/pkg/cache"
	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
)

// Client wraps a Resolver with the surrounding pipeline concerns:
// request validation, graph caching keyed on request and catalog state,
// error classification, and the closure check on every graph before it
// reaches planning.
type Client struct {
	resolver Resolver
	cache    cache.Cache
	logger   *log.Logger
}

// NewClient builds a resolution client. A nil cache disables caching and
// a nil logger discards logs.
func NewClient(resolver Resolver, c cache.Cache, logger *log.Logger) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{resolver: resolver, cache: c, logger: logger}
}

// ResolveInfo reports how a resolution was served.
type ResolveInfo struct {
	CacheHit bool
	Duration time.Duration
}

// Resolve returns the closed dependency graph for the request.
func (c *Client) Resolve(ctx context.Context, req Request, cat *recipe.Catalog) (*Graph, error) {
	g, _, err := c.ResolveWithInfo(ctx, req, cat, false)
	return g, err
}

// ResolveWithInfo is Resolve plus cache provenance. refresh bypasses the
// cache lookup but still stores the fresh result.
func (c *Client) ResolveWithInfo(ctx context.Context, req Request, cat *recipe.Catalog, refresh bool) (*Graph, ResolveInfo, error) {
	start := time.Now()
	key := cache.GraphKey(c.resolver.Name()+":"+req.Hash(), cat.Fingerprint())

	if !refresh {
		if g, ok := c.lookup(ctx, key); ok {
			c.logger.Debug("resolution served from cache", "request", req.String(), "nodes", g.Len())
			return g, ResolveInfo{CacheHit: true, Duration: time.Since(start)}, nil
		}
	}

	g, err := c.resolver.Resolve(ctx, req, cat)
	if err != nil {
		return nil, ResolveInfo{Duration: time.Since(start)}, classify(err, c.resolver)
	}

	// The closure invariant is what lets planning and execution treat
	// dependency edges as always-resolvable. Check it on every graph, no
	// matter which resolver produced it.
	if err := g.Validate(); err != nil {
		return nil, ResolveInfo{Duration: time.Since(start)}, err
	}

	c.store(ctx, key, g)
	info := ResolveInfo{Duration: time.Since(start)}
	c.logger.Debug("resolution complete", "request", req.String(), "nodes", g.Len(), "duration", info.Duration)
	return g, info, nil
}

// lookup returns a cached, closure-valid graph. Undecodable or invalid
// entries are dropped and treated as misses.
func (c *Client) lookup(ctx context.Context, key string) (*Graph, bool) {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed, resolving fresh", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	g, err := DecodeGraph(data)
	if err == nil {
		err = g.Validate()
	}
	if err != nil {
		c.logger.Warn("dropping corrupt cache entry", "key", key, "err", err)
		_ = c.cache.Delete(ctx, key)
		return nil, false
	}
	return g, true
}

func (c *Client) store(ctx context.Context, key string, g *Graph) {
	data, err := EncodeGraph(g)
	if err != nil {
		c.logger.Warn("graph not cacheable", "err", err)
		return
	}
	if err := c.cache.Set(ctx, key, data, cache.TTLGraph); err != nil {
		c.logger.Warn("cache write failed", "err", err)
	}
}

// classify maps resolver failures into the error taxonomy. Already-coded
// errors (conflicts, recipe-not-found, validation) pass through; anything
// uncoded means the resolver itself broke.
func classify(err error, r Resolver) error {
	if errors.GetCode(err) != "" {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Wrap(errors.ErrCodeResolverUnavailable, err, "resolver %s failed", r.Name())
}
