package reconcile

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/remote"
)

// Mirror overwrites doc with the remote state of the challenge and saves it.
// Remote files are downloaded next to their local counterpart, or into the
// files directory when the document does not reference them yet.
func (r *Reconciler) Mirror(ctx context.Context, doc *challenge.Document, ignore Ignore) (err error) {
	defer r.observe("mirror", time.Now(), &err)

	normalized, err := r.Normalize(ctx, doc)
	if err != nil {
		return err
	}

	if !ignore.Has("files") {
		rec, err := r.record(ctx, doc)
		if err != nil {
			return err
		}
		files, err := r.mirrorFiles(ctx, doc, rec)
		if err != nil {
			return err
		}
		doc.Set("files", files)
	}

	for _, key := range normalized.Keys() {
		if key == "files" || ignore.Has(key) {
			continue
		}
		v, _ := normalized.Get(key)
		doc.Set(key, v)
	}
	return doc.Save()
}

func (r *Reconciler) mirrorFiles(ctx context.Context, doc *challenge.Document, rec Record) ([]any, error) {
	localPaths := map[string]string{}
	order := make([]string, 0)
	for _, p := range doc.Files() {
		name := filepath.Base(filepath.FromSlash(p))
		localPaths[name] = p
		order = append(order, name)
	}

	onRemote := map[string]bool{}
	for _, ref := range rec.Files() {
		name := remote.Filename(ref)
		onRemote[name] = true

		data, err := r.client.Download(ctx, ref)
		if err != nil {
			return nil, challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
		}

		rel, ok := localPaths[name]
		if !ok {
			rel = path.Join(r.opts.FilesDirectory, name)
			localPaths[name] = rel
			order = append(order, name)
		}
		target := filepath.Join(doc.Dir(), filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return nil, err
		}
		r.log.V(2).Info("mirrored file", "challenge", doc.Name(), "file", rel)
	}

	files := make([]any, 0, len(order))
	for _, name := range order {
		if onRemote[name] {
			files = append(files, localPaths[name])
		}
	}
	return files, nil
}
