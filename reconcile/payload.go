package reconcile

import (
	"github.com/rw-r-r-0644/chall-sync/challenge"
)

// payload builds the challenge body shared by Create and Sync. Extra fields
// go in first so the named fields always win on collision.
func payload(doc *challenge.Document, ignore Ignore) map[string]any {
	p := map[string]any{}
	if !ignore.Has("extra") {
		for k, v := range doc.Extra() {
			p[k] = v
		}
	}

	p["name"] = doc.Name()
	p["category"] = doc.Category()
	p["description"] = doc.Description()
	p["type"] = doc.Type()
	// Challenges start hidden and are revealed once fully configured.
	p["state"] = challenge.StateHidden

	if v, ok := doc.Get("value"); ok && v != nil {
		if n, ok := challenge.AsInt(v); ok {
			p["value"] = n
		} else {
			p["value"] = v
		}
	}

	if !ignore.Has("attempts") {
		p["max_attempts"] = doc.Attempts()
	}
	if !ignore.Has("connection_info") {
		if ci, ok := doc.ConnectionInfo(); ok {
			p["connection_info"] = ci
		} else {
			p["connection_info"] = nil
		}
	}
	return p
}

// plan holds the sub-resources parsed up front so malformed entries fail
// before the first request.
type plan struct {
	flags []challenge.FlagSpec
	hints []challenge.HintSpec
	reqs  []challenge.Requirement
}

func prepare(doc *challenge.Document, ignore Ignore) (plan, error) {
	var (
		p   plan
		err error
	)
	if !ignore.Has("flags") {
		if p.flags, err = doc.Flags(); err != nil {
			return p, err
		}
	}
	if !ignore.Has("hints") {
		if p.hints, err = doc.Hints(); err != nil {
			return p, err
		}
	}
	if !ignore.Has("requirements") {
		if p.reqs, err = doc.Requirements(); err != nil {
			return p, err
		}
	}
	if doc.Provides("files") && !ignore.Has("files") {
		if err := doc.ValidateFiles(); err != nil {
			return p, err
		}
	}
	return p, nil
}

// revealed reports whether the challenge should be made visible once it is
// configured. With state ignored the remote keeps its prior state.
func revealed(doc *challenge.Document, ignore Ignore, prior string) bool {
	if ignore.Has("state") {
		return prior == challenge.DefaultState
	}
	return doc.State() == challenge.DefaultState
}
