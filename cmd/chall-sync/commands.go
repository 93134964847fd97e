package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/deploy"
	"github.com/rw-r-r-0644/chall-sync/project"
	"github.com/rw-r-r-0644/chall-sync/reconcile"
	"github.com/rw-r-r-0644/chall-sync/remote"
)

// deploySkips are left alone when a deployment updates an existing
// challenge.
var deploySkips = []string{"flags", "topics", "tags", "files", "hints", "requirements", "state"}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func ignoreFlag(fs *pflag.FlagSet) *[]string {
	return fs.StringSlice("ignore", nil, "fields to leave untouched, comma separated or repeated")
}

func runInit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("init")
	url := fs.String("url", "", "CTFd instance URL")
	token := fs.String("access-token", "", "CTFd admin access token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.project != nil && a.project.Root == a.cwd {
		return fmt.Errorf("%s already exists", project.ConfigPath(a.cwd))
	}

	settings := map[string]string{}
	if *url != "" {
		settings["url"] = strings.TrimRight(*url, "/")
	}
	if *token != "" {
		settings["access_token"] = *token
	}
	for k, v := range a.opts.settings {
		settings[k] = v
	}
	if _, err := project.Init(a.cwd, settings); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created %s\n", project.ConfigPath(a.cwd))
	return nil
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("add")
	source := fs.String("source", "", "repository the challenge comes from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.project == nil {
		return project.ErrNotInitialized
	}
	if fs.NArg() != 1 {
		return errors.New("usage: add [--source repo] <challenge directory>")
	}

	path := project.ResolveChallenge(nil, a.cwd, fs.Arg(0))
	doc, err := challenge.Load(path)
	if err != nil {
		return err
	}
	key, err := filepath.Rel(a.project.Root, doc.Dir())
	if err != nil || key == ".." || strings.HasPrefix(key, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is outside the project at %s", doc.Dir(), a.project.Root)
	}
	if err := a.project.AddChallenge(key, *source); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s (%s)\n", doc.Name(), filepath.ToSlash(key))
	return nil
}

func runInstall(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("install")
	force := fs.Bool("force", false, "sync challenges that already exist instead of failing")
	hidden := fs.Bool("hidden", false, "install challenges as hidden")
	ignore := ignoreFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	var overrides map[string]any
	if *hidden {
		overrides = map[string]any{"state": challenge.StateHidden}
	}
	docs, err := a.challengesWithOverrides(fs.Args(), overrides)
	if err != nil {
		return err
	}
	r, err := a.reconciler(reconcile.Options{})
	if err != nil {
		return err
	}
	ig := reconcile.NewIgnore(*ignore...)

	rep := reconcile.RunBatch(ctx, docs, func(ctx context.Context, doc *challenge.Document) error {
		exists, err := r.Exists(ctx, doc.Name())
		if err != nil {
			return err
		}
		if exists {
			if !*force {
				return fmt.Errorf("challenge already exists on the remote, use --force to sync it")
			}
			fmt.Fprintf(a.out, "Syncing existing challenge %s\n", doc.Name())
			return r.Sync(ctx, doc, ig)
		}
		fmt.Fprintf(a.out, "Installing %s\n", doc.Name())
		return r.Create(ctx, doc, ig)
	})
	return a.report("install", rep)
}

func runSync(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("sync")
	ignore := ignoreFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := a.challenges(fs.Args())
	if err != nil {
		return err
	}
	r, err := a.reconciler(reconcile.Options{})
	if err != nil {
		return err
	}
	ig := reconcile.NewIgnore(*ignore...)

	rep := reconcile.RunBatch(ctx, docs, func(ctx context.Context, doc *challenge.Document) error {
		fmt.Fprintf(a.out, "Syncing %s\n", doc.Name())
		err := r.Sync(ctx, doc, ig)
		if challenge.KindOf(err) == challenge.KindRemoteNotFound {
			return fmt.Errorf("%w, perhaps you meant install", err)
		}
		return err
	})
	return a.report("sync", rep)
}

func runVerify(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("verify")
	ignore := ignoreFlag(fs)
	contents := fs.Bool("file-contents", false, "download remote files and compare their contents")
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := a.challenges(fs.Args())
	if err != nil {
		return err
	}
	r, err := a.reconciler(reconcile.Options{VerifyFileContents: *contents})
	if err != nil {
		return err
	}
	ig := reconcile.NewIgnore(*ignore...)

	var drifted []string
	rep := reconcile.RunBatch(ctx, docs, func(ctx context.Context, doc *challenge.Document) error {
		ok, err := r.Verify(ctx, doc, ig)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(a.out, "%s is in sync\n", doc.Name())
		} else {
			fmt.Fprintf(a.out, "%s is out of sync\n", doc.Name())
			drifted = append(drifted, doc.Name())
		}
		return nil
	})
	if err := a.report("verify", rep); err != nil {
		return err
	}
	if len(drifted) > 0 {
		return fmt.Errorf("%d challenge(s) out of sync: %s", len(drifted), strings.Join(drifted, ", "))
	}
	return nil
}

func runMirror(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("mirror")
	ignore := ignoreFlag(fs)
	skipVerify := fs.Bool("skip-verify", false, "mirror even when the challenge is already in sync")
	filesDir := fs.String("files-directory", "dist", "directory for files that only exist on the remote, relative to the challenge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := a.challenges(fs.Args())
	if err != nil {
		return err
	}
	r, err := a.reconciler(mirrorOptions(*filesDir))
	if err != nil {
		return err
	}
	ig := reconcile.NewIgnore(*ignore...)

	if len(docs) > 1 {
		if err := warnUnmanaged(ctx, a, r, docs); err != nil {
			return err
		}
	}

	rep := reconcile.RunBatch(ctx, docs, func(ctx context.Context, doc *challenge.Document) error {
		if !*skipVerify {
			ok, err := r.Verify(ctx, doc, ig)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(a.out, "%s is already in sync, skipping\n", doc.Name())
				return nil
			}
		}
		fmt.Fprintf(a.out, "Mirroring %s\n", doc.Name())
		return r.Mirror(ctx, doc, ig)
	})
	return a.report("mirror", rep)
}

// mirrorOptions compares file contents so a remote file replaced under the
// same name is not mistaken for an in-sync challenge.
func mirrorOptions(filesDir string) reconcile.Options {
	return reconcile.Options{FilesDirectory: filesDir, VerifyFileContents: true}
}

// warnUnmanaged reports remote challenges with no local definition.
func warnUnmanaged(ctx context.Context, a *app, r *reconcile.Reconciler, docs []*challenge.Document) error {
	roster, err := r.Roster(ctx)
	if err != nil {
		return err
	}
	local := make(map[string]bool, len(docs))
	for _, doc := range docs {
		local[doc.Name()] = true
	}
	for _, e := range roster {
		if !local[e.Name] {
			a.log.Info("remote challenge has no local definition, it will not be mirrored", "warning", true, "challenge", e.Name)
		}
	}
	return nil
}

func runFormat(ctx context.Context, a *app, args []string) error {
	docs, err := a.challenges(args)
	if err != nil {
		return err
	}
	rep := reconcile.RunBatch(ctx, docs, func(ctx context.Context, doc *challenge.Document) error {
		return doc.Save()
	})
	return a.report("format", rep)
}

func runLint(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("lint")
	skipHadolint := fs.Bool("skip-hadolint", false, "do not run hadolint on Dockerfiles")
	flagFormat := fs.String("flag-format", "flag{", "flag prefix to look for in distributed files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := a.challenges(fs.Args())
	if err != nil {
		return err
	}

	opts := challenge.LintOptions{FlagFormat: *flagFormat}
	if !*skipHadolint {
		if !a.runner.Available("hadolint") {
			return errors.New("hadolint is not installed, install it or use --skip-hadolint")
		}
		opts.Hadolint = func(ctx context.Context, dockerfile string) (string, error) {
			stdout, _, err := a.runner.RunWithStdin(ctx, "", strings.NewReader(dockerfile), "hadolint", "-")
			return stdout, err
		}
	}

	rep := reconcile.RunBatch(ctx, docs, func(ctx context.Context, doc *challenge.Document) error {
		if err := challenge.Lint(ctx, doc, opts); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s passed lint\n", doc.Name())
		return nil
	})
	return a.report("lint", rep)
}

func runDeploy(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("deploy")
	host := fs.String("host", "", "deployment target URL, overrides host in challenge.yml")
	skipLogin := fs.Bool("skip-login", false, "assume docker is already logged in to the registry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := a.challenges(fs.Args())
	if err != nil {
		return err
	}
	r, err := a.reconciler(reconcile.Options{})
	if err != nil {
		return err
	}

	dopts := deploy.Options{Runner: a.runner, Log: a.log.WithName("deploy"), SkipLogin: *skipLogin}
	if a.project != nil {
		dopts.RegistryUsername, dopts.RegistryPassword = a.project.Registry()
	}

	rep := reconcile.RunBatch(ctx, docs, func(ctx context.Context, doc *challenge.Document) error {
		target, err := deploy.NewTarget(doc, *host, a.runner)
		if err != nil {
			return err
		}
		handler, err := deploy.New(target.Host.Scheme, dopts)
		if err != nil {
			return challenge.Wrap(challenge.KindInvalidDefinition, doc.Name(), err)
		}
		fmt.Fprintf(a.out, "Deploying %s to %s\n", doc.Name(), target.Host.Redacted())
		res, err := handler.Deploy(ctx, target)
		if err != nil {
			return err
		}

		if _, ok := doc.ConnectionInfo(); !ok {
			if res.ConnectionInfo != "" {
				doc.Set("connection_info", res.ConnectionInfo)
			} else {
				doc.Set("connection_info", nil)
			}
		}
		if ci, ok := doc.ConnectionInfo(); ok && ci != "" {
			if err := doc.Save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s is reachable at %s\n", doc.Name(), ci)
		}

		exists, err := r.Exists(ctx, doc.Name())
		if err != nil {
			return err
		}
		if exists {
			return r.Sync(ctx, doc, reconcile.NewIgnore(deploySkips...))
		}
		return r.Create(ctx, doc, reconcile.Ignore{})
	})
	return a.report("deploy", rep)
}

func runHealthcheck(ctx context.Context, a *app, args []string) error {
	if len(args) > 1 {
		return errors.New("usage: healthcheck [challenge]")
	}
	docs, err := a.challenges(args)
	if err != nil {
		return err
	}
	if len(docs) != 1 {
		return errors.New("healthcheck runs on a single challenge, name one")
	}
	doc := docs[0]

	script, _ := doc.GetOr("healthcheck", "").(string)
	if script == "" {
		return challenge.Errorf(challenge.KindInvalidDefinition, doc.Name(), "challenge does not define a healthcheck")
	}

	r, err := a.reconciler(reconcile.Options{})
	if err != nil {
		return err
	}
	rec, err := r.Fetch(ctx, doc)
	if err != nil {
		return err
	}
	ci, _ := rec["connection_info"].(string)
	if ci == "" {
		return challenge.Errorf(challenge.KindInvalidDefinition, doc.Name(), "remote challenge has no connection_info to check")
	}

	stdout, _, err := a.runner.Run(ctx, doc.Dir(), filepath.Join(doc.Dir(), filepath.FromSlash(script)), "--connection-info", ci)
	if stdout != "" {
		fmt.Fprintln(a.out, stdout)
	}
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	fmt.Fprintf(a.out, "%s is healthy\n", doc.Name())
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	if a.project == nil {
		return project.ErrNotInitialized
	}
	r, err := a.reconciler(reconcile.Options{})
	if err != nil {
		return err
	}
	roster, err := r.Roster(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]int, len(roster))
	for _, e := range roster {
		ids[e.Name] = e.ID
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Path\tName\tRemote ID")
	for i, path := range a.project.ChallengePaths() {
		key := a.project.ChallengeKeys()[i]
		doc, err := challenge.Load(path)
		if err != nil {
			fmt.Fprintf(w, "%s\t(%v)\t-\n", key, err)
			continue
		}
		remoteID := "-"
		if id, ok := ids[doc.Name()]; ok {
			remoteID = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", key, doc.Name(), remoteID)
	}
	return w.Flush()
}

func runBackends(ctx context.Context, a *app, args []string) error {
	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tName\tSettings")
	for _, b := range remote.Backends() {
		var settings []string
		for _, s := range b.Settings {
			if s.Required {
				settings = append(settings, s.ID)
			} else {
				settings = append(settings, "["+s.ID+"]")
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Name, strings.Join(settings, " "))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Scheme\tDeployment")
	for _, h := range deploy.Handlers() {
		fmt.Fprintf(w, "%s://\t%s\n", h.Scheme, h.Name)
	}
	return w.Flush()
}
