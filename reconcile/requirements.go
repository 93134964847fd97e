package reconcile

import (
	"context"
	"sort"

	"github.com/rw-r-r-0644/chall-sync/challenge"
)

// Resolution is the outcome of mapping requirement references to remote ids.
type Resolution struct {
	// IDs are the distinct prerequisite ids in ascending order.
	IDs []int
	// SelfReference is set when a requirement named or numbered the
	// challenge itself; such entries are dropped.
	SelfReference bool
	// Unknown lists names that matched no remote challenge.
	Unknown []string
}

// ResolveRequirements maps references to remote challenge ids using roster.
// Names match exactly; numeric references pass through unchanged. Entries
// pointing at ownID are skipped.
func ResolveRequirements(reqs []challenge.Requirement, roster []RosterEntry, ownID int) Resolution {
	res := Resolution{IDs: []int{}}
	seen := map[int]bool{}
	add := func(id int) {
		if id == ownID {
			res.SelfReference = true
			return
		}
		if !seen[id] {
			seen[id] = true
			res.IDs = append(res.IDs, id)
		}
	}

	for _, req := range reqs {
		if req.ByID() {
			add(req.ID)
			continue
		}
		found := false
		for _, e := range roster {
			if e.Name == req.Name {
				found = true
				add(e.ID)
			}
		}
		if !found {
			res.Unknown = append(res.Unknown, req.Name)
		}
	}
	sort.Ints(res.IDs)
	return res
}

// setRequirements replaces the prerequisites of doc with reqs.
func (r *Reconciler) setRequirements(ctx context.Context, doc *challenge.Document, reqs []challenge.Requirement) error {
	roster, err := r.roster(ctx, doc)
	if err != nil {
		return err
	}

	res := ResolveRequirements(reqs, roster, doc.ID)
	if res.SelfReference {
		r.warn("Challenge cannot require itself. Skipping invalid requirement.", "challenge", doc.Name())
	}
	for _, name := range res.Unknown {
		r.warn("Requirement does not match any remote challenge. Skipping.", "challenge", doc.Name(), "requirement", name)
	}

	body := map[string]any{"requirements": map[string]any{"prerequisites": res.IDs}}
	return r.patch(ctx, doc, challengePath(doc.ID), body)
}
