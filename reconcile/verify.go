package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/remote"
)

// Verify reports whether the remote challenge matches doc on every field
// not in ignore. Fields absent from doc match when the remote holds their
// default value.
func (r *Reconciler) Verify(ctx context.Context, doc *challenge.Document, ignore Ignore) (ok bool, err error) {
	defer r.observe("verify", time.Now(), &err)

	normalized, err := r.Normalize(ctx, doc)
	if err != nil {
		return false, err
	}

	for _, key := range normalized.Keys() {
		if ignore.Has(key) {
			continue
		}
		remoteValue, _ := normalized.Get(key)

		if key == "files" {
			rec, err := r.record(ctx, doc)
			if err != nil {
				return false, err
			}
			match, err := r.filesMatch(ctx, doc, rec)
			if err != nil {
				return false, err
			}
			if !match {
				return false, nil
			}
			continue
		}

		local, present := doc.Get(key)
		if !present {
			if challenge.IsDefault(key, remoteValue) {
				continue
			}
			r.log.V(1).Info("field missing locally", "challenge", doc.Name(), "field", key, "remote", remoteValue)
			return false, nil
		}

		equal, err := r.fieldEqual(ctx, doc, key, local, remoteValue)
		if err != nil {
			return false, err
		}
		if !equal {
			r.log.V(1).Info("field differs", "challenge", doc.Name(), "field", key, "local", local, "remote", remoteValue)
			return false, nil
		}
	}
	return true, nil
}

func (r *Reconciler) fieldEqual(ctx context.Context, doc *challenge.Document, key string, local, remoteValue any) (bool, error) {
	switch key {
	case "description":
		s, _ := local.(string)
		return NormalizeDescription(s) == remoteValue, nil

	case "flags":
		flags, err := doc.Flags()
		if err != nil {
			return false, err
		}
		compact := make([]any, 0, len(flags))
		for _, f := range flags {
			compact = append(compact, f.Compact())
		}
		return challenge.Equal(compact, remoteValue), nil

	case "hints":
		hints, err := doc.Hints()
		if err != nil {
			return false, err
		}
		compact := make([]any, 0, len(hints))
		for _, h := range hints {
			compact = append(compact, h.Compact())
		}
		return challenge.Equal(compact, remoteValue), nil

	case "requirements":
		return r.requirementsEqual(ctx, doc, remoteValue)
	}
	return challenge.Equal(local, remoteValue), nil
}

// requirementsEqual compares prerequisites as sets of names, translating
// local numeric references through the roster.
func (r *Reconciler) requirementsEqual(ctx context.Context, doc *challenge.Document, remoteValue any) (bool, error) {
	reqs, err := doc.Requirements()
	if err != nil {
		return false, err
	}

	var roster []RosterEntry
	for _, req := range reqs {
		if req.ByID() {
			if roster, err = r.roster(ctx, doc); err != nil {
				return false, err
			}
			break
		}
	}
	names := make(map[int]string, len(roster))
	for _, e := range roster {
		names[e.ID] = e.Name
	}

	local := map[string]bool{}
	for _, req := range reqs {
		if name, ok := names[req.ID]; req.ByID() && ok {
			local[name] = true
		} else if req.ByID() {
			local[fmt.Sprint(req.ID)] = true
		} else {
			local[req.Name] = true
		}
	}

	remoteSet := map[string]bool{}
	items, _ := remoteValue.([]any)
	for _, item := range items {
		remoteSet[fmt.Sprint(item)] = true
	}

	if len(local) != len(remoteSet) {
		return false, nil
	}
	for name := range local {
		if !remoteSet[name] {
			return false, nil
		}
	}
	return true, nil
}

// filesMatch compares local file names with the remote attachments and,
// with VerifyFileContents, their contents.
func (r *Reconciler) filesMatch(ctx context.Context, doc *challenge.Document, rec Record) (bool, error) {
	localPaths := map[string]string{}
	for _, p := range doc.Files() {
		localPaths[filepath.Base(filepath.FromSlash(p))] = p
	}

	refs := rec.Files()
	remoteNames := make([]string, 0, len(refs))
	for _, ref := range refs {
		remoteNames = append(remoteNames, remote.Filename(ref))
	}
	localNames := make([]string, 0, len(localPaths))
	for name := range localPaths {
		localNames = append(localNames, name)
	}
	sort.Strings(remoteNames)
	sort.Strings(localNames)
	if !challenge.Equal(remoteNames, localNames) {
		r.log.V(1).Info("files differ", "challenge", doc.Name(), "local", localNames, "remote", remoteNames)
		return false, nil
	}

	if !r.opts.VerifyFileContents {
		return true, nil
	}
	for _, ref := range refs {
		name := remote.Filename(ref)
		want, err := os.ReadFile(filepath.Join(doc.Dir(), localPaths[name]))
		if err != nil {
			return false, challenge.Errorf(challenge.KindInvalidDocument, doc.Name(), "file %s could not be loaded: %w", localPaths[name], err)
		}
		got, err := r.client.Download(ctx, ref)
		if err != nil {
			return false, challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
		}
		if !bytes.Equal(want, got) {
			r.log.V(1).Info("file contents differ", "challenge", doc.Name(), "file", name)
			return false, nil
		}
	}
	return true, nil
}
