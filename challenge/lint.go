package challenge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Lint issue categories.
const (
	IssueFields     = "fields"
	IssueDockerfile = "dockerfile"
	IssueHadolint   = "hadolint"
	IssueFiles      = "files"
)

// LintError lists the problems found by Lint, grouped by category.
type LintError struct {
	Issues map[string][]string
}

func (e *LintError) Error() string {
	var b strings.Builder
	cats := make([]string, 0, len(e.Issues))
	for c := range e.Issues {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		for _, issue := range e.Issues[c] {
			fmt.Fprintf(&b, "%s: %s\n", c, issue)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// LintOptions tunes Lint.
type LintOptions struct {
	// FlagFormat is the flag prefix searched for in distributed files.
	FlagFormat string
	// Hadolint, when set, checks the Dockerfile source and returns the
	// linter's findings. Empty output means no findings.
	Hadolint func(ctx context.Context, dockerfile string) (string, error)
}

// Lint checks a challenge for common authoring mistakes.
func Lint(ctx context.Context, d *Document, opts LintOptions) error {
	if opts.FlagFormat == "" {
		opts.FlagFormat = "flag{"
	}
	issues := map[string][]string{}
	add := func(cat, format string, args ...any) {
		issues[cat] = append(issues[cat], fmt.Sprintf(format, args...))
	}

	for _, field := range []string{"name", "author", "category", "description", "value"} {
		if field == "value" && IsDynamicType(d.Type()) {
			continue
		}
		if v, ok := d.Get(field); !ok || v == nil {
			add(IssueFields, "challenge.yml is missing required field: %s", field)
		}
	}

	dockerfile := filepath.Join(d.Dir(), "Dockerfile")
	hasDockerfile := isFile(dockerfile)
	if hasDockerfile && d.Image() != "." {
		add(IssueDockerfile, "Dockerfile exists but image field does not point to it")
	}
	if d.Image() == "." {
		if !hasDockerfile {
			add(IssueDockerfile, "Dockerfile specified in 'image' field but no Dockerfile found")
		} else {
			src, err := os.ReadFile(dockerfile)
			if err != nil {
				return Errorf(KindInvalidDocument, d.Name(), "read Dockerfile: %w", err)
			}
			if !strings.Contains(string(src), "EXPOSE") {
				add(IssueDockerfile, "Dockerfile is missing EXPOSE")
			}
			if opts.Hadolint != nil {
				out, err := opts.Hadolint(ctx, string(src))
				switch out = strings.TrimSpace(out); {
				case out != "":
					add(IssueHadolint, "%s", out)
				case err != nil:
					add(IssueHadolint, "hadolint failed: %v", err)
				}
			}
		}
	}

	for _, f := range d.Files() {
		path := filepath.Join(d.Dir(), f)
		if !isFile(path) {
			add(IssueFiles, "Challenge file '%s' specified, but not found at %s", f, path)
			continue
		}
		found, err := scanStrings(path, 4, opts.FlagFormat)
		if err != nil {
			return Errorf(KindInvalidDocument, d.Name(), "scan %s: %w", f, err)
		}
		for _, s := range found {
			add(IssueFiles, "Potential flag found in distributed file '%s':\n %s", f, strings.TrimSpace(s))
		}
	}

	if len(issues) > 0 {
		return &LintError{Issues: issues}
	}
	return nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// scanStrings returns the runs of printable characters at least min long that
// contain needle, like strings(1).
func scanStrings(path string, min int, needle string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		found []string
		run   []byte
	)
	flush := func() {
		if len(run) >= min && strings.Contains(string(run), needle) {
			found = append(found, string(run))
		}
		run = run[:0]
	}

	r := bufio.NewReader(f)
	for {
		c, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isPrintable(c) {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	return found, nil
}

func isPrintable(c byte) bool {
	return (c >= 0x20 && c < 0x7f) || c == '\t' || c == '\n' || c == '\r' || c == '\x0b' || c == '\x0c'
}
