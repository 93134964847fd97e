package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/remote"
)

// owned is the part of a flag, tag or hint listing needed to find the
// entries belonging to a challenge.
type owned struct {
	ID          int `json:"id"`
	ChallengeID int `json:"challenge_id"`
}

type remoteFile struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Location string `json:"location"`
}

// deleteOwned removes every entry of collection (flags, tags, hints)
// attached to doc.
func (r *Reconciler) deleteOwned(ctx context.Context, doc *challenge.Document, collection string) error {
	data, err := r.get(ctx, doc, fmt.Sprintf("%s/%s", apiPrefix, collection))
	if err != nil {
		return err
	}
	var items []owned
	if err := decodeInto(doc, data, &items); err != nil {
		return err
	}
	for _, item := range items {
		if item.ChallengeID != doc.ID {
			continue
		}
		if err := r.delete(ctx, doc, fmt.Sprintf("%s/%s/%d", apiPrefix, collection, item.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) createFlags(ctx context.Context, doc *challenge.Document, flags []challenge.FlagSpec) error {
	for _, f := range flags {
		if _, err := r.post(ctx, doc, apiPrefix+"/flags", f.Payload(doc.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) createTags(ctx context.Context, doc *challenge.Document) error {
	for _, tag := range doc.Tags() {
		body := map[string]any{"challenge_id": doc.ID, "value": tag}
		if _, err := r.post(ctx, doc, apiPrefix+"/tags", body); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) createHints(ctx context.Context, doc *challenge.Document, hints []challenge.HintSpec) error {
	for _, h := range hints {
		if _, err := r.post(ctx, doc, apiPrefix+"/hints", h.Payload(doc.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) deleteTopics(ctx context.Context, doc *challenge.Document) error {
	data, err := r.get(ctx, doc, challengePath(doc.ID)+"/topics")
	if err != nil {
		return err
	}
	var items []owned
	if err := decodeInto(doc, data, &items); err != nil {
		return err
	}
	for _, item := range items {
		path := fmt.Sprintf("%s/topics?type=challenge&target_id=%d", apiPrefix, item.ID)
		if err := r.delete(ctx, doc, path); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) createTopics(ctx context.Context, doc *challenge.Document) error {
	for _, topic := range doc.Topics() {
		body := map[string]any{"value": topic, "type": "challenge", "challenge_id": doc.ID}
		if _, err := r.post(ctx, doc, apiPrefix+"/topics", body); err != nil {
			return err
		}
	}
	return nil
}

// deleteFiles removes the remote files attached to rec. Files are matched by
// their storage location appearing in one of the record's file URLs.
func (r *Reconciler) deleteFiles(ctx context.Context, doc *challenge.Document, rec Record) error {
	attached := rec.Files()
	if len(attached) == 0 {
		return nil
	}
	data, err := r.get(ctx, doc, apiPrefix+"/files?type=challenge")
	if err != nil {
		return err
	}
	var files []remoteFile
	if err := decodeInto(doc, data, &files); err != nil {
		return err
	}
	for _, f := range files {
		if f.Location == "" {
			continue
		}
		for _, ref := range attached {
			if !strings.Contains(ref, f.Location) {
				continue
			}
			if err := r.delete(ctx, doc, fmt.Sprintf("%s/files/%d", apiPrefix, f.ID)); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// createFiles uploads every local file in a single multipart request.
func (r *Reconciler) createFiles(ctx context.Context, doc *challenge.Document) error {
	paths := doc.Files()
	if len(paths) == 0 {
		return nil
	}

	files := make([]remote.File, 0, len(paths))
	defer func() {
		for _, f := range files {
			_ = f.Reader.(*os.File).Close()
		}
	}()
	for _, p := range paths {
		fh, err := os.Open(filepath.Join(doc.Dir(), p))
		if err != nil {
			return challenge.Errorf(challenge.KindInvalidDocument, doc.Name(), "file %s could not be loaded: %w", p, err)
		}
		files = append(files, remote.File{Name: filepath.Base(p), Reader: fh})
	}

	fields := map[string]string{"challenge_id": strconv.Itoa(doc.ID), "type": "challenge"}
	return r.upload(ctx, doc, apiPrefix+"/files", fields, files)
}

func (r *Reconciler) setState(ctx context.Context, doc *challenge.Document, state string) error {
	return r.patch(ctx, doc, challengePath(doc.ID), map[string]any{"state": state})
}
