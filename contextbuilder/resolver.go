package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/c360studio/aof/store"
)

// ErrNotFound is returned by a Resolver when it cannot serve path, letting
// the chain fall through to the next resolver.
var ErrNotFound = errors.New("contextbuilder: ref not found")

// FSResolver resolves refs as glob patterns under a task's inputs/ folder
// (the default and first resolver in the chain, per §4.9).
type FSResolver struct {
	store *store.Store
	cache *lru.Cache[string, string]
}

// NewFSResolver builds a filesystem resolver with an LRU cache of resolved
// section text, keyed by "taskID:path".
func NewFSResolver(s *store.Store, cacheSize int) (*FSResolver, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create resolver cache: %w", err)
	}
	return &FSResolver{store: s, cache: c}, nil
}

// Resolve expands path as a doublestar glob rooted at the task's inputs/
// directory and concatenates every matching file's contents, each preceded
// by a "### <relative path>" heading.
func (r *FSResolver) Resolve(ctx context.Context, taskID, path string) (string, error) {
	key := taskID + ":" + path
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	dir, err := r.store.SideChannelPath(taskID, store.InputsDir)
	if err != nil {
		return "", fmt.Errorf("resolve inputs dir for %s: %w", taskID, err)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), path)
	if err != nil {
		return "", fmt.Errorf("glob %q: %w", path, err)
	}
	if len(matches) == 0 {
		return "", ErrNotFound
	}

	var out string
	for _, m := range matches {
		data, err := os.ReadFile(filepath.Join(dir, m))
		if err != nil {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += fmt.Sprintf("### %s\n\n%s", m, string(data))
	}
	if out == "" {
		return "", ErrNotFound
	}

	r.cache.Add(key, out)
	return out, nil
}

// Chain tries each Resolver in order, returning the first non-ErrNotFound
// result. Additional resolvers (network fetchers, graph lookups) can be
// appended without changing FSResolver.
type Chain struct {
	resolvers []Resolver
}

// NewChain builds a resolver chain, filesystem-first by convention.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

func (c *Chain) Resolve(ctx context.Context, taskID, path string) (string, error) {
	var lastErr error = ErrNotFound
	for _, r := range c.resolvers {
		text, err := r.Resolve(ctx, taskID, path)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
