package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/rw-r-r-0644/chall-sync/challenge"
)

// Failure records why one challenge of a batch failed.
type Failure struct {
	Challenge string
	Err       error
}

// Report summarizes a batch run.
type Report struct {
	Succeeded []string
	Failed    []Failure
}

// Err returns nil when every challenge succeeded, otherwise an error naming
// the failed challenges.
func (rep Report) Err() error {
	if len(rep.Failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(rep.Failed))
	for _, f := range rep.Failed {
		names = append(names, f.Challenge)
	}
	return fmt.Errorf("%d challenge(s) failed: %s", len(rep.Failed), strings.Join(names, ", "))
}

// RunBatch applies fn to each document in order. A failure is recorded and
// does not stop the remaining documents.
func RunBatch(ctx context.Context, docs []*challenge.Document, fn func(context.Context, *challenge.Document) error) Report {
	var rep Report
	for _, doc := range docs {
		name := doc.Name()
		if name == "" {
			name = doc.Path()
		}
		if err := fn(ctx, doc); err != nil {
			rep.Failed = append(rep.Failed, Failure{Challenge: name, Err: err})
			continue
		}
		rep.Succeeded = append(rep.Succeeded, name)
	}
	return rep
}
