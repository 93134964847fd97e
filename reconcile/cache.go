package reconcile

import (
	"context"
	"encoding/json"

	"github.com/rw-r-r-0644/chall-sync/challenge"
)

// Only the roster and challenge records go through the cache. Sub-resource
// listings are always fetched fresh since Sync deletes from them.

// Invalidate drops every memoized response.
func (r *Reconciler) Invalidate() {
	r.cache.Purge()
}

// cachedGet memoizes read-only lookups until the next mutation.
func (r *Reconciler) cachedGet(ctx context.Context, doc *challenge.Document, path string) (json.RawMessage, error) {
	if data, ok := r.cache.Get(path); ok {
		return data, nil
	}
	data, err := r.get(ctx, doc, path)
	if err != nil {
		return nil, err
	}
	r.cache.Add(path, data)
	return data, nil
}
