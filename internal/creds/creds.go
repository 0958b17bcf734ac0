// Package creds implements the engine's credential-prompt contract and the
// process-wide default-password cache of spec.md §4.B/§4.H: prompting is
// injected by the caller, and a successful credential becomes the new
// per-kind default before any backend is asked for one again.
package creds

import (
	"context"
	"sync"

	"github.com/rtanaka/barchive/internal/crypto"
)

// Cache holds the most recently successful passphrase per PromptKind (spec
// §4.B: "a process-wide default password cache per kind holds the most
// recently successful passphrase, tried before prompting again"). Keys are
// additionally qualified by name so a per-server default (spec §4.H) can
// share the same interface as the coarser per-kind default.
type Cache interface {
	// Get returns the cached password for kind+name, falling back to the
	// kind-wide default (name == "") if no name-specific entry exists.
	Get(ctx context.Context, kind crypto.PromptKind, name string) (string, bool)
	// Put records password as the new default for kind+name (when name is
	// non-empty) and always also updates the kind-wide default.
	Put(ctx context.Context, kind crypto.PromptKind, name, password string) error
}

func cacheKey(kind crypto.PromptKind, name string) string {
	return kind.String() + "\x00" + name
}

func kindKey(kind crypto.PromptKind) string {
	return cacheKey(kind, "")
}

// memoryCache is the spec-mandated default: an in-process, mutex-guarded
// map, scoped to the lifetime of one engine process.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache returns the default in-memory Cache.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]string)}
}

func (c *memoryCache) Get(_ context.Context, kind crypto.PromptKind, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name != "" {
		if p, ok := c.entries[cacheKey(kind, name)]; ok {
			return p, true
		}
	}
	p, ok := c.entries[kindKey(kind)]
	return p, ok
}

func (c *memoryCache) Put(_ context.Context, kind crypto.PromptKind, name, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name != "" {
		c.entries[cacheKey(kind, name)] = password
	}
	c.entries[kindKey(kind)] = password
	return nil
}

// Resolver implements spec §4.H's per-backend login ordering: credentials
// from the storage URI, then job options, then the per-server default
// cache entry, then the kind-wide default cache entry, then a prompt. On
// success the resolved password is written back as the new default for
// both name and kind, per spec §4.H ("on success, the used credential
// becomes the new default for that kind").
type Resolver struct {
	Cache  Cache
	Prompt crypto.PasswordPrompt // nil disables prompting (batch mode)
}

// NewResolver builds a Resolver over cache, prompting via prompt when every
// other source is exhausted. prompt may be nil to disable prompting.
func NewResolver(cache Cache, prompt crypto.PasswordPrompt) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{Cache: cache, Prompt: prompt}
}

// ErrPromptRefused is returned when every credential source is exhausted
// and no prompt callback is configured (spec §4.H: "a prompt attempt may be
// refused by policy (batch mode without TTY)").
type ErrPromptRefused struct {
	Kind crypto.PromptKind
	Name string
}

func (e *ErrPromptRefused) Error() string {
	return "creds: no credential available and prompting is disabled for " + e.Kind.String() + " " + e.Name
}

// Resolve implements the ordered lookup. uriPassword and optionPassword are
// the credential already known from the storage URI and from job options
// respectively (empty string means "not supplied"); name identifies the
// specific server/archive this credential is for.
func (r *Resolver) Resolve(ctx context.Context, kind crypto.PromptKind, name, uriPassword, optionPassword string) (string, error) {
	if uriPassword != "" {
		return uriPassword, nil
	}
	if optionPassword != "" {
		return optionPassword, nil
	}
	if p, ok := r.Cache.Get(ctx, kind, name); ok {
		return p, nil
	}
	if r.Prompt == nil {
		return "", &ErrPromptRefused{Kind: kind, Name: name}
	}
	password, err := r.Prompt(ctx, kind, name)
	if err != nil {
		return "", err
	}
	if err := r.Cache.Put(ctx, kind, name, password); err != nil {
		return "", err
	}
	return password, nil
}

// Accept records password as the new per-kind/per-name default after a
// credential supplied from outside Resolve (e.g. the archive URI) succeeds,
// so later backends of the same kind try it before prompting (spec §4.H).
func (r *Resolver) Accept(ctx context.Context, kind crypto.PromptKind, name, password string) error {
	return r.Cache.Put(ctx, kind, name, password)
}
