package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/remote"
)

// copied verbatim from the remote record when present
var recordFields = []string{"name", "category", "value", "type", "state", "connection_info"}

// dynamic scoring parameters collected under extra
var extraFields = []string{"initial", "decay", "minimum"}

// NormalizeDescription trims the text, converts CRLF to LF and drops tabs.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\t", "")
}

// normalize projects the remote challenge onto the document shape.
func (r *Reconciler) normalize(ctx context.Context, doc *challenge.Document, rec Record) (*challenge.Fields, error) {
	out := challenge.NewFields()
	for _, key := range recordFields {
		if v, ok := rec[key]; ok {
			out.Set(key, v)
		}
	}

	desc, _ := rec["description"].(string)
	out.Set("description", NormalizeDescription(desc))

	attempts := 0
	if n, ok := challenge.AsInt(rec["max_attempts"]); ok {
		attempts = n
	}
	out.Set("attempts", attempts)

	extra := map[string]any{}
	for _, key := range extraFields {
		if v, ok := rec[key]; ok {
			extra[key] = v
		}
	}
	if len(extra) > 0 {
		out.Set("extra", extra)
	}

	var flags []struct {
		Type    string `json:"type"`
		Content string `json:"content"`
		Data    any    `json:"data"`
	}
	if err := r.subresource(ctx, doc, "flags", &flags); err != nil {
		return nil, err
	}
	compactFlags := make([]any, 0, len(flags))
	for _, f := range flags {
		compactFlags = append(compactFlags, challenge.FlagSpec{Type: f.Type, Content: f.Content, Data: f.Data}.Compact())
	}
	out.Set("flags", compactFlags)

	var tags []struct {
		Value string `json:"value"`
	}
	if err := r.subresource(ctx, doc, "tags", &tags); err != nil {
		return nil, err
	}
	tagValues := make([]any, 0, len(tags))
	for _, t := range tags {
		tagValues = append(tagValues, t.Value)
	}
	out.Set("tags", tagValues)

	var hints []struct {
		Content string `json:"content"`
		Cost    int    `json:"cost"`
	}
	if err := r.subresource(ctx, doc, "hints", &hints); err != nil {
		return nil, err
	}
	compactHints := make([]any, 0, len(hints))
	for _, h := range hints {
		compactHints = append(compactHints, challenge.HintSpec{Content: h.Content, Cost: h.Cost}.Compact())
	}
	out.Set("hints", compactHints)

	var topics []struct {
		Value string `json:"value"`
	}
	if err := r.subresource(ctx, doc, "topics", &topics); err != nil {
		return nil, err
	}
	topicValues := make([]any, 0, len(topics))
	for _, t := range topics {
		topicValues = append(topicValues, t.Value)
	}
	out.Set("topics", topicValues)

	reqs, err := r.remoteRequirements(ctx, doc)
	if err != nil {
		return nil, err
	}
	out.Set("requirements", reqs)

	files := make([]any, 0, len(rec.Files()))
	for _, ref := range rec.Files() {
		files = append(files, remote.Filename(ref))
	}
	out.Set("files", files)

	return out, nil
}

func (r *Reconciler) subresource(ctx context.Context, doc *challenge.Document, name string, out any) error {
	data, err := r.get(ctx, doc, challengePath(doc.ID)+"/"+name)
	if err != nil {
		return err
	}
	return decodeInto(doc, data, out)
}

// remoteRequirements returns the prerequisites of doc as challenge names,
// keeping the numeric id of any prerequisite missing from the roster.
func (r *Reconciler) remoteRequirements(ctx context.Context, doc *challenge.Document) ([]any, error) {
	data, err := r.get(ctx, doc, challengePath(doc.ID)+"/requirements")
	if err != nil {
		return nil, err
	}
	var reqs struct {
		Prerequisites []int `json:"prerequisites"`
	}
	if len(bytes.TrimSpace(data)) > 0 && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
		}
	}

	out := make([]any, 0, len(reqs.Prerequisites))
	if len(reqs.Prerequisites) == 0 {
		return out, nil
	}
	roster, err := r.roster(ctx, doc)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(roster))
	for _, e := range roster {
		names[e.ID] = e.Name
	}
	for _, id := range reqs.Prerequisites {
		if name, ok := names[id]; ok {
			out = append(out, name)
		} else {
			out = append(out, id)
		}
	}
	return out, nil
}

// Normalize returns the remote counterpart of doc in document form. The
// record it is built from stays cached for the rest of the operation.
func (r *Reconciler) Normalize(ctx context.Context, doc *challenge.Document) (*challenge.Fields, error) {
	if err := r.ResolveID(ctx, doc); err != nil {
		return nil, err
	}
	rec, err := r.record(ctx, doc)
	if err != nil {
		return nil, err
	}
	return r.normalize(ctx, doc, rec)
}
