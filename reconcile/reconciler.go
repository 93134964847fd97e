// Package reconcile maps local challenge documents onto a CTFd instance:
// creating, updating, verifying and mirroring challenges together with their
// flags, tags, topics, hints, files and requirements.
//
// Operations are strictly sequential. A failed request aborts the operation
// and leaves the remote partially updated; running Sync again converges
// because every sub-resource is fully replaced.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/remote"
)

const apiPrefix = "/api/v1"

// Observer receives the outcome of every top-level operation.
type Observer interface {
	Observe(op string, elapsed time.Duration, err error)
}

// Options configures a Reconciler.
type Options struct {
	// VerifyFileContents makes Verify download every remote file and compare
	// it byte for byte with the local copy.
	VerifyFileContents bool

	// FilesDirectory is where Mirror stores files that exist only on the
	// remote, relative to the challenge directory. Defaults to "dist".
	FilesDirectory string

	// CacheSize bounds the number of memoized roster and record responses.
	CacheSize int

	Observer Observer
}

// Reconciler issues the remote calls needed to bring a challenge in sync.
// It is not safe for concurrent use.
type Reconciler struct {
	client remote.Client
	log    logr.Logger
	opts   Options
	cache  *lru.Cache[string, json.RawMessage]
}

// New returns a Reconciler talking to client.
func New(client remote.Client, log logr.Logger, opts Options) (*Reconciler, error) {
	if opts.FilesDirectory == "" {
		opts.FilesDirectory = "dist"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, json.RawMessage](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Reconciler{client: client, log: log, opts: opts, cache: cache}, nil
}

// Ignore is a set of document fields an operation leaves untouched.
type Ignore map[string]bool

// NewIgnore builds an Ignore from field names. Empty names are skipped.
func NewIgnore(fields ...string) Ignore {
	ig := make(Ignore, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			ig[f] = true
		}
	}
	return ig
}

func (ig Ignore) Has(field string) bool { return ig[field] }

func (ig Ignore) String() string {
	fields := make([]string, 0, len(ig))
	for f := range ig {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

func (r *Reconciler) observe(op string, start time.Time, err *error) {
	if r.opts.Observer != nil {
		r.opts.Observer.Observe(op, time.Since(start), *err)
	}
}

func (r *Reconciler) warn(msg string, kv ...any) {
	r.log.Info(msg, append([]any{"warning", true}, kv...)...)
}

func (r *Reconciler) get(ctx context.Context, doc *challenge.Document, path string) (json.RawMessage, error) {
	data, err := r.client.Get(ctx, path)
	if err != nil {
		return nil, challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
	}
	return data, nil
}

func (r *Reconciler) post(ctx context.Context, doc *challenge.Document, path string, body any) (json.RawMessage, error) {
	r.cache.Purge()
	data, err := r.client.Post(ctx, path, body)
	if err != nil {
		return nil, challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
	}
	return data, nil
}

func (r *Reconciler) patch(ctx context.Context, doc *challenge.Document, path string, body any) error {
	r.cache.Purge()
	if _, err := r.client.Patch(ctx, path, body); err != nil {
		return challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
	}
	return nil
}

func (r *Reconciler) delete(ctx context.Context, doc *challenge.Document, path string) error {
	r.cache.Purge()
	if err := r.client.Delete(ctx, path); err != nil {
		return challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
	}
	return nil
}

func (r *Reconciler) upload(ctx context.Context, doc *challenge.Document, path string, fields map[string]string, files []remote.File) error {
	r.cache.Purge()
	if _, err := r.client.Upload(ctx, path, fields, files); err != nil {
		return challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), err)
	}
	return nil
}

func decodeInto(doc *challenge.Document, data json.RawMessage, out any) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return challenge.Wrap(challenge.KindRemoteOperation, doc.Name(), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func challengePath(id int) string {
	return fmt.Sprintf("%s/challenges/%d", apiPrefix, id)
}
