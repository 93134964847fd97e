package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/logging"
	"github.com/rw-r-r-0644/chall-sync/metrics"
	"github.com/rw-r-r-0644/chall-sync/project"
	"github.com/rw-r-r-0644/chall-sync/reconcile"
	"github.com/rw-r-r-0644/chall-sync/remote"
	"github.com/rw-r-r-0644/chall-sync/runner"
)

type globalOptions struct {
	backend        string
	settings       map[string]string
	dir            string
	verbosity      int
	jsonLogs       bool
	errorFile      string
	metricsFile    string
	commandTimeout time.Duration
}

// app is the state shared by every command of one invocation.
type app struct {
	opts    globalOptions
	log     *logging.Logger
	out     io.Writer
	cwd     string
	project *project.Project
	metrics *metrics.Recorder
	runner  runner.Runner
}

func newApp(opts globalOptions, log *logging.Logger, out io.Writer) (*app, error) {
	cwd := opts.dir
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cwd = wd
	}
	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, err
	}

	proj, err := project.Load(cwd)
	if err != nil && !errors.Is(err, project.ErrNotInitialized) {
		return nil, err
	}

	return &app{
		opts:    opts,
		log:     log,
		out:     out,
		cwd:     cwd,
		project: proj,
		metrics: metrics.New(),
		runner:  runner.New(log.WithName("runner"), opts.commandTimeout),
	}, nil
}

// settings merges the project [config] with -S flags, flags winning.
func (a *app) settings() map[string]string {
	merged := map[string]string{}
	if a.project != nil {
		for k, v := range a.project.Settings() {
			merged[k] = v
		}
	}
	for k, v := range a.opts.settings {
		merged[k] = v
	}
	return merged
}

func (a *app) backendID(settings map[string]string) string {
	if a.opts.backend != "" {
		return a.opts.backend
	}
	if id := settings["backend"]; id != "" {
		return id
	}
	return remote.DefaultBackend(settings)
}

func (a *app) reconciler(opts reconcile.Options) (*reconcile.Reconciler, error) {
	settings := a.settings()
	id := a.backendID(settings)
	client, err := remote.Build(id, settings, a.log.Logger)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", id, err)
	}
	opts.Observer = a.metrics
	r, err := reconcile.New(client, a.log.WithName("reconcile"), opts)
	if err != nil {
		return nil, err
	}
	r.Invalidate()
	return r, nil
}

// challenges loads the definitions named by refs. Without refs it loads the
// challenge in the working directory, or every configured challenge when the
// working directory holds none.
func (a *app) challenges(refs []string) ([]*challenge.Document, error) {
	return a.challengesWithOverrides(refs, nil)
}

// challengesWithOverrides is challenges with fields replaced after loading.
func (a *app) challengesWithOverrides(refs []string, overrides map[string]any) ([]*challenge.Document, error) {
	var paths []string
	switch {
	case len(refs) > 0:
		for _, ref := range refs {
			paths = append(paths, project.ResolveChallenge(a.project, a.cwd, ref))
		}
	case fileExists(filepath.Join(a.cwd, project.ChallengeFile)):
		paths = []string{filepath.Join(a.cwd, project.ChallengeFile)}
	case a.project != nil:
		paths = a.project.ChallengePaths()
	default:
		return nil, project.ErrNotInitialized
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no challenges configured in %s", project.ConfigPath(a.project.Root))
	}

	docs := make([]*challenge.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := challenge.LoadWithOverrides(p, overrides)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// report prints a batch summary and returns its error.
func (a *app) report(verb string, rep reconcile.Report) error {
	for _, f := range rep.Failed {
		fmt.Fprintf(a.out, "Failed to %s %s: %v\n", verb, f.Challenge, f.Err)
	}
	if len(rep.Succeeded)+len(rep.Failed) > 1 {
		fmt.Fprintf(a.out, "%d succeeded, %d failed\n", len(rep.Succeeded), len(rep.Failed))
	}
	return rep.Err()
}

func (a *app) writeMetrics() error {
	if a.opts.metricsFile == "" {
		return nil
	}
	return a.metrics.WriteTextfile(a.opts.metricsFile)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
