package capability

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// cacheTTL bounds how stale a cached key row may be. Revocation and
// rotation invalidate eagerly; the TTL only covers out-of-band changes.
const cacheTTL = 30 * time.Second

type cacheEntry struct {
	key      *models.CapabilityKey
	cachedAt time.Time
}

// Resolver maps plaintext credentials to Credential values. It is safe
// for concurrent use.
type Resolver struct {
	store store.Store
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{
		store: st,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

// ResolveCapability runs the capability-key validation pipeline through
// the active check: syntax, hash lookup, revocation, expiry. Permission,
// scope and bound-author gates run later, against the request, in
// pipeline order.
//
// Failure classification (the HTTP layer renders all of these as 404):
//   - models.ErrKeyNotFound: bad syntax or no matching hash
//   - models.ErrKeyRevoked:  key was revoked
//   - models.ErrKeyExpired:  key expiry has passed
func (r *Resolver) ResolveCapability(ctx context.Context, plaintext string) (*Credential, error) {
	if !IsCapabilityKeySyntax(plaintext) {
		return nil, models.ErrKeyNotFound
	}

	hash := HashKey(plaintext)
	key, err := r.lookupCapability(ctx, hash)
	if err != nil {
		return nil, err
	}

	// Constant-time recheck of the stored hash. The index lookup already
	// matched, so this keeps the comparison cost flat rather than adding
	// security, but it means no code path compares secrets byte-by-byte.
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, models.ErrKeyNotFound
	}

	now := r.now()
	if key.IsRevoked() {
		return nil, models.ErrKeyRevoked
	}
	if key.IsExpired(now) {
		return nil, models.ErrKeyExpired
	}

	r.touchCapabilityAsync(key.ID)

	wip := 0
	if key.WIPLimit != nil {
		wip = *key.WIPLimit
	}
	return &Credential{
		Kind:        KindCapability,
		WorkspaceID: key.WorkspaceID,
		KeyID:       key.ID,
		Permission:  key.GetPermission(),
		Scope:       key.GetScope(),
		BoundAuthor: key.BoundAuthor,
		WIPLimit:    wip,
	}, nil
}

// ResolveAPIKey validates an sk_live_/sk_test_ bearer token.
//
// Failure classification (the HTTP layer renders these as 401):
//   - models.ErrKeyNotFound, models.ErrKeyRevoked, models.ErrKeyExpired
func (r *Resolver) ResolveAPIKey(ctx context.Context, plaintext string) (*Credential, error) {
	if !IsAPIKeySyntax(plaintext) {
		return nil, models.ErrKeyNotFound
	}

	hash := HashKey(plaintext)
	key, err := r.store.GetApiKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, models.ErrKeyNotFound
	}

	now := r.now()
	if key.IsRevoked() {
		return nil, models.ErrKeyRevoked
	}
	if key.IsExpired(now) {
		return nil, models.ErrKeyExpired
	}

	scopes, err := key.GetScopes()
	if err != nil {
		return nil, err
	}

	r.touchAPIKeyAsync(key.ID)

	return &Credential{
		Kind:        KindAPIKey,
		WorkspaceID: key.WorkspaceID,
		KeyID:       key.ID,
		Scopes:      scopes,
		Mode:        key.Mode,
	}, nil
}

// lookupCapability consults the read-mostly cache before the store.
func (r *Resolver) lookupCapability(ctx context.Context, hash string) (*models.CapabilityKey, error) {
	now := r.now()

	r.mu.RLock()
	entry, ok := r.cache[hash]
	r.mu.RUnlock()
	if ok && now.Sub(entry.cachedAt) < cacheTTL {
		return entry.key, nil
	}

	key, err := r.store.GetCapabilityKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[hash] = cacheEntry{key: key, cachedAt: now}
	r.mu.Unlock()
	return key, nil
}

// Invalidate drops a cached key by hash. Called on revoke.
func (r *Resolver) Invalidate(hash string) {
	r.mu.Lock()
	delete(r.cache, hash)
	r.mu.Unlock()
}

// InvalidateWorkspace drops all cached keys for a workspace. Called on
// rotate-all so old keys fail on their next use.
func (r *Resolver) InvalidateWorkspace(workspaceID string) {
	r.mu.Lock()
	for hash, entry := range r.cache {
		if entry.key.WorkspaceID == workspaceID {
			delete(r.cache, hash)
		}
	}
	r.mu.Unlock()
}

// touchCapabilityAsync records key usage without blocking the request.
func (r *Resolver) touchCapabilityAsync(id string) {
	now := r.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.TouchCapabilityKeyUsed(ctx, id, now); err != nil {
			logger.Debug("failed to update capability key last_used_at", "key_id", id, "error", err)
		}
	}()
}

func (r *Resolver) touchAPIKeyAsync(id string) {
	now := r.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.TouchApiKeyUsed(ctx, id, now); err != nil {
			logger.Debug("failed to update api key last_used_at", "key_id", id, "error", err)
		}
	}()
}
