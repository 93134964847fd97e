package reconcile

import (
	"context"
	"time"

	"github.com/rw-r-r-0644/chall-sync/challenge"
)

// fields kept at their remote value when ignored during Sync.
var preservedOnSync = []string{"value", "category", "type", "description"}

// Sync updates the remote challenge matching doc by name so it reflects the
// document. Every non-ignored sub-resource is deleted and recreated.
func (r *Reconciler) Sync(ctx context.Context, doc *challenge.Document, ignore Ignore) (err error) {
	defer r.observe("sync", time.Now(), &err)

	if ignore.Has("name") {
		r.warn("Attribute cannot be ignored when syncing a challenge", "challenge", doc.Name(), "attribute", "name")
	}
	if doc.Name() == "" {
		return challenge.Errorf(challenge.KindInvalidDefinition, doc.Path(), "challenge does not provide a name")
	}

	pl, err := prepare(doc, ignore)
	if err != nil {
		return err
	}
	if err := r.ResolveID(ctx, doc); err != nil {
		return err
	}
	rec, err := r.record(ctx, doc)
	if err != nil {
		return err
	}

	body := payload(doc, ignore)
	for _, attr := range preservedOnSync {
		if !ignore.Has(attr) {
			continue
		}
		if v, ok := rec[attr]; ok && v != nil {
			body[attr] = v
		} else {
			delete(body, attr)
		}
	}
	if err := r.patch(ctx, doc, challengePath(doc.ID), body); err != nil {
		return err
	}

	if !ignore.Has("flags") {
		if err := r.deleteOwned(ctx, doc, "flags"); err != nil {
			return err
		}
		if doc.Provides("flags") {
			if err := r.createFlags(ctx, doc, pl.flags); err != nil {
				return err
			}
		}
	}
	if !ignore.Has("topics") {
		if err := r.deleteTopics(ctx, doc); err != nil {
			return err
		}
		if doc.Provides("topics") {
			if err := r.createTopics(ctx, doc); err != nil {
				return err
			}
		}
	}
	if !ignore.Has("tags") {
		if err := r.deleteOwned(ctx, doc, "tags"); err != nil {
			return err
		}
		if doc.Provides("tags") {
			if err := r.createTags(ctx, doc); err != nil {
				return err
			}
		}
	}
	if !ignore.Has("files") {
		if err := r.deleteFiles(ctx, doc, rec); err != nil {
			return err
		}
		if doc.Provides("files") {
			if err := r.createFiles(ctx, doc); err != nil {
				return err
			}
		}
	}
	if !ignore.Has("hints") {
		if err := r.deleteOwned(ctx, doc, "hints"); err != nil {
			return err
		}
		if doc.Provides("hints") {
			if err := r.createHints(ctx, doc, pl.hints); err != nil {
				return err
			}
		}
	}
	// An empty list still clears the remote prerequisites.
	if doc.Has("requirements") && !ignore.Has("requirements") {
		if err := r.setRequirements(ctx, doc, pl.reqs); err != nil {
			return err
		}
	}

	if revealed(doc, ignore, rec.State()) {
		return r.setState(ctx, doc, challenge.DefaultState)
	}
	return nil
}
