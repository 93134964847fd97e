package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/remote"
)

type call struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeFile struct {
	challengeID int
	location    string
	content     []byte
}

// fakeCTFd is an in-memory stand-in for the CTFd admin API that records
// every request it serves.
type fakeCTFd struct {
	nextID     int
	challenges map[int]map[string]any
	flags      map[int]map[string]any
	tags       map[int]map[string]any
	hints      map[int]map[string]any
	topics     map[int]map[string]any
	files      map[int]*fakeFile
	prereqs    map[int][]int

	calls []call
	fail  map[string]error
}

var _ remote.Client = (*fakeCTFd)(nil)

func newFakeCTFd() *fakeCTFd {
	return &fakeCTFd{
		nextID:     1,
		challenges: map[int]map[string]any{},
		flags:      map[int]map[string]any{},
		tags:       map[int]map[string]any{},
		hints:      map[int]map[string]any{},
		topics:     map[int]map[string]any{},
		files:      map[int]*fakeFile{},
		prereqs:    map[int][]int{},
		fail:       map[string]error{},
	}
}

func (f *fakeCTFd) id() int {
	id := f.nextID
	f.nextID++
	return id
}

// add registers a challenge directly, bypassing the request log.
func (f *fakeCTFd) add(fields map[string]any) int {
	id := f.id()
	rec := map[string]any{"state": "visible", "type": "standard", "max_attempts": 0}
	for k, v := range fields {
		rec[k] = v
	}
	f.challenges[id] = rec
	return id
}

func (f *fakeCTFd) reset() { f.calls = nil }

func (f *fakeCTFd) count(method, prefix string) int {
	n := 0
	for _, c := range f.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeCTFd) find(method, path string) []call {
	var out []call
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCTFd) record(method, path string, body any) (map[string]any, error) {
	var m map[string]any
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		m = challenge.Canonical(m).(map[string]any)
	}
	f.calls = append(f.calls, call{Method: method, Path: path, Body: m})
	if err := f.fail[method+" "+path]; err != nil {
		return nil, err
	}
	return m, nil
}

func notFound(method, path string) error {
	return &remote.StatusError{Method: method, Path: path, StatusCode: http.StatusNotFound}
}

func segments(path string) ([]string, url.Values) {
	u, _ := url.Parse(path)
	p := strings.TrimPrefix(u.Path, "/api/v1/")
	return strings.Split(p, "/"), u.Query()
}

func encode(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	return json.RawMessage(raw), err
}

func (f *fakeCTFd) challengeRecord(id int) map[string]any {
	rec := map[string]any{"id": id}
	for k, v := range f.challenges[id] {
		rec[k] = v
	}
	var refs []string
	for _, fid := range sortedIDs(f.files) {
		if file := f.files[fid]; file.challengeID == id {
			refs = append(refs, "/files/"+file.location+"?token=t0k3n")
		}
	}
	if refs == nil {
		refs = []string{}
	}
	rec["files"] = refs
	return rec
}

func sortedIDs[T any](m map[int]T) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func listOf(m map[int]map[string]any, challengeID int) []map[string]any {
	out := []map[string]any{}
	for _, id := range sortedIDs(m) {
		item := m[id]
		if challengeID != 0 && item["challenge_id"] != challengeID {
			continue
		}
		entry := map[string]any{"id": id}
		for k, v := range item {
			entry[k] = v
		}
		out = append(out, entry)
	}
	return out
}

func (f *fakeCTFd) Get(_ context.Context, path string) (json.RawMessage, error) {
	if _, err := f.record(http.MethodGet, path, nil); err != nil {
		return nil, err
	}
	seg, _ := segments(path)

	switch {
	case seg[0] == "challenges" && len(seg) == 1:
		roster := []map[string]any{}
		for _, id := range sortedIDs(f.challenges) {
			roster = append(roster, map[string]any{"id": id, "name": f.challenges[id]["name"]})
		}
		return encode(roster)

	case seg[0] == "challenges":
		id, _ := strconv.Atoi(seg[1])
		if _, ok := f.challenges[id]; !ok {
			return nil, notFound(http.MethodGet, path)
		}
		if len(seg) == 2 {
			return encode(f.challengeRecord(id))
		}
		switch seg[2] {
		case "flags":
			return encode(listOf(f.flags, id))
		case "tags":
			return encode(listOf(f.tags, id))
		case "hints":
			return encode(listOf(f.hints, id))
		case "topics":
			return encode(listOf(f.topics, id))
		case "requirements":
			if _, ok := f.prereqs[id]; !ok {
				return encode(nil)
			}
			return encode(map[string]any{"prerequisites": f.prereqs[id]})
		}

	case seg[0] == "flags":
		return encode(listOf(f.flags, 0))
	case seg[0] == "tags":
		return encode(listOf(f.tags, 0))
	case seg[0] == "hints":
		return encode(listOf(f.hints, 0))
	case seg[0] == "files":
		out := []map[string]any{}
		for _, id := range sortedIDs(f.files) {
			out = append(out, map[string]any{"id": id, "type": "challenge", "location": f.files[id].location})
		}
		return encode(out)
	}
	return nil, notFound(http.MethodGet, path)
}

func (f *fakeCTFd) Post(_ context.Context, path string, body any) (json.RawMessage, error) {
	m, err := f.record(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	seg, _ := segments(path)

	switch seg[0] {
	case "challenges":
		id := f.id()
		rec := map[string]any{"max_attempts": 0}
		for k, v := range m {
			rec[k] = v
		}
		f.challenges[id] = rec
		return encode(f.challengeRecord(id))
	case "flags":
		f.flags[f.id()] = m
	case "tags":
		f.tags[f.id()] = m
	case "hints":
		f.hints[f.id()] = m
	case "topics":
		f.topics[f.id()] = map[string]any{"challenge_id": m["challenge_id"], "value": m["value"]}
	default:
		return nil, notFound(http.MethodPost, path)
	}
	return encode(m)
}

func (f *fakeCTFd) Patch(_ context.Context, path string, body any) (json.RawMessage, error) {
	m, err := f.record(http.MethodPatch, path, body)
	if err != nil {
		return nil, err
	}
	seg, _ := segments(path)
	id, _ := strconv.Atoi(seg[len(seg)-1])
	rec, ok := f.challenges[id]
	if seg[0] != "challenges" || !ok {
		return nil, notFound(http.MethodPatch, path)
	}
	for k, v := range m {
		if k == "requirements" {
			reqs, _ := v.(map[string]any)
			ids := []int{}
			for _, p := range reqs["prerequisites"].([]any) {
				ids = append(ids, p.(int))
			}
			f.prereqs[id] = ids
			continue
		}
		rec[k] = v
	}
	return encode(f.challengeRecord(id))
}

func (f *fakeCTFd) Delete(_ context.Context, path string) error {
	if _, err := f.record(http.MethodDelete, path, nil); err != nil {
		return err
	}
	seg, query := segments(path)

	var (
		store map[int]map[string]any
		key   string
	)
	switch seg[0] {
	case "flags":
		store, key = f.flags, seg[1]
	case "tags":
		store, key = f.tags, seg[1]
	case "hints":
		store, key = f.hints, seg[1]
	case "topics":
		store, key = f.topics, query.Get("target_id")
	case "files":
		id, _ := strconv.Atoi(seg[1])
		if _, ok := f.files[id]; !ok {
			return notFound(http.MethodDelete, path)
		}
		delete(f.files, id)
		return nil
	}
	id, _ := strconv.Atoi(key)
	if _, ok := store[id]; !ok {
		return notFound(http.MethodDelete, path)
	}
	delete(store, id)
	return nil
}

func (f *fakeCTFd) Upload(_ context.Context, path string, fields map[string]string, files []remote.File) (json.RawMessage, error) {
	names := make([]any, 0, len(files))
	for _, file := range files {
		names = append(names, file.Name)
	}
	body := map[string]any{"files": names}
	for k, v := range fields {
		body[k] = v
	}
	if _, err := f.record("UPLOAD", path, body); err != nil {
		return nil, err
	}

	challengeID, _ := strconv.Atoi(fields["challenge_id"])
	for _, file := range files {
		content, err := io.ReadAll(file.Reader)
		if err != nil {
			return nil, err
		}
		id := f.id()
		f.files[id] = &fakeFile{
			challengeID: challengeID,
			location:    fmt.Sprintf("%08x/%s", id, file.Name),
			content:     content,
		}
	}
	return encode([]any{})
}

func (f *fakeCTFd) Download(_ context.Context, ref string) ([]byte, error) {
	if _, err := f.record("DOWNLOAD", ref, nil); err != nil {
		return nil, err
	}
	u, _ := url.Parse(ref)
	location := strings.TrimPrefix(u.Path, "/files/")
	for _, file := range f.files {
		if file.location == location {
			return file.content, nil
		}
	}
	return nil, notFound(http.MethodGet, ref)
}
