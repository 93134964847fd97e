package reconcile

import (
	"context"
	"time"

	"github.com/rw-r-r-0644/chall-sync/challenge"
)

// Create registers doc as a new remote challenge and attaches its
// sub-resources. On success doc.ID holds the new remote id.
func (r *Reconciler) Create(ctx context.Context, doc *challenge.Document, ignore Ignore) (err error) {
	defer r.observe("create", time.Now(), &err)

	for _, attr := range []string{"name", "value", "type"} {
		if ignore.Has(attr) {
			r.warn("Attribute cannot be ignored when creating a challenge", "challenge", doc.Name(), "attribute", attr)
		}
	}

	if doc.Name() == "" {
		return challenge.Errorf(challenge.KindInvalidDefinition, doc.Path(), "challenge does not provide a name")
	}
	if !challenge.IsDynamicType(doc.Type()) {
		if _, ok := doc.Value(); !ok {
			return challenge.Errorf(challenge.KindInvalidDefinition, doc.Name(), "challenge does not provide a value")
		}
	}

	pl, err := prepare(doc, ignore)
	if err != nil {
		return err
	}

	body := payload(doc, ignore)
	for _, attr := range []string{"category", "description"} {
		if ignore.Has(attr) {
			body[attr] = ""
		}
	}

	data, err := r.post(ctx, doc, apiPrefix+"/challenges", body)
	if err != nil {
		return err
	}
	var created struct {
		ID int `json:"id"`
	}
	if err := decodeInto(doc, data, &created); err != nil {
		return err
	}
	doc.ID = created.ID
	r.log.V(1).Info("created challenge", "challenge", doc.Name(), "id", doc.ID)

	if doc.Provides("flags") && !ignore.Has("flags") {
		if err := r.createFlags(ctx, doc, pl.flags); err != nil {
			return err
		}
	}
	if doc.Provides("topics") && !ignore.Has("topics") {
		if err := r.createTopics(ctx, doc); err != nil {
			return err
		}
	}
	if doc.Provides("tags") && !ignore.Has("tags") {
		if err := r.createTags(ctx, doc); err != nil {
			return err
		}
	}
	if doc.Provides("files") && !ignore.Has("files") {
		if err := r.createFiles(ctx, doc); err != nil {
			return err
		}
	}
	if doc.Provides("hints") && !ignore.Has("hints") {
		if err := r.createHints(ctx, doc, pl.hints); err != nil {
			return err
		}
	}
	if doc.Provides("requirements") && !ignore.Has("requirements") {
		if err := r.setRequirements(ctx, doc, pl.reqs); err != nil {
			return err
		}
	}

	if revealed(doc, ignore, challenge.DefaultState) {
		return r.setState(ctx, doc, challenge.DefaultState)
	}
	return nil
}
