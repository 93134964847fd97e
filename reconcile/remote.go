package reconcile

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rw-r-r-0644/chall-sync/challenge"
)

// RosterEntry is one challenge of the remote roster.
type RosterEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Record is a remote challenge as returned by GET /challenges/{id}, with
// numbers canonicalized to int where integral.
type Record map[string]any

// Files returns the file URLs attached to the challenge.
func (rec Record) Files() []string {
	return challenge.StringList(rec["files"])
}

// State returns the remote visibility.
func (rec Record) State() string {
	s, _ := rec["state"].(string)
	return s
}

// Roster returns the admin view of every remote challenge.
func (r *Reconciler) Roster(ctx context.Context) ([]RosterEntry, error) {
	return r.roster(ctx, nil)
}

func (r *Reconciler) roster(ctx context.Context, doc *challenge.Document) ([]RosterEntry, error) {
	if doc == nil {
		doc = challenge.New("", nil)
	}
	data, err := r.cachedGet(ctx, doc, apiPrefix+"/challenges?view=admin")
	if err != nil {
		return nil, err
	}
	var entries []RosterEntry
	if err := decodeInto(doc, data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Exists reports whether a challenge named name is on the remote.
func (r *Reconciler) Exists(ctx context.Context, name string) (bool, error) {
	entries, err := r.Roster(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ResolveID sets doc.ID from the remote roster by exact name match.
func (r *Reconciler) ResolveID(ctx context.Context, doc *challenge.Document) error {
	entries, err := r.roster(ctx, doc)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return challenge.Errorf(challenge.KindRemoteNotFound, doc.Name(), "could not load any remote challenges")
	}
	for _, e := range entries {
		if e.Name == doc.Name() {
			doc.ID = e.ID
			return nil
		}
	}
	return challenge.Errorf(challenge.KindRemoteNotFound, doc.Name(), "could not load remote challenge with name '%s'", doc.Name())
}

// Fetch resolves doc against the roster and returns its remote record.
func (r *Reconciler) Fetch(ctx context.Context, doc *challenge.Document) (Record, error) {
	if err := r.ResolveID(ctx, doc); err != nil {
		return nil, err
	}
	return r.record(ctx, doc)
}

func (r *Reconciler) record(ctx context.Context, doc *challenge.Document) (Record, error) {
	data, err := r.cachedGet(ctx, doc, challengePath(doc.ID))
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
	}
	if m == nil {
		return nil, challenge.Errorf(challenge.KindRemoteNotFound, doc.Name(), "remote challenge %d returned no data", doc.ID)
	}
	return Record(challenge.Canonical(m).(map[string]any)), nil
}
