package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rw-r-r-0644/chall-sync/logging"
)

type kvFlag map[string]string

func (k kvFlag) String() string {
	keys := make([]string, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(k))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, k[key]))
	}
	return strings.Join(parts, ",")
}

func (k kvFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return fmt.Errorf("must be key=value")
	}
	k[parts[0]] = parts[1]
	return nil
}

func (k kvFlag) Type() string { return "key=value" }

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"init":        {"init [--url U] [--access-token T]", "Create .ctf/config in the working directory", runInit},
	"add":         {"add [--source R] <dir>", "Record an existing challenge directory in .ctf/config", runAdd},
	"install":     {"install [flags] [challenge...]", "Create challenges on the remote", runInstall},
	"sync":        {"sync [flags] [challenge...]", "Update remote challenges from their definitions", runSync},
	"verify":      {"verify [flags] [challenge...]", "Check that remote challenges match their definitions", runVerify},
	"mirror":      {"mirror [flags] [challenge...]", "Update definitions from the remote", runMirror},
	"format":      {"format [challenge...]", "Rewrite definitions in canonical form", runFormat},
	"lint":        {"lint [flags] [challenge...]", "Check definitions for common mistakes", runLint},
	"deploy":      {"deploy [flags] [challenge...]", "Deploy service images and register the challenges", runDeploy},
	"healthcheck": {"healthcheck [challenge]", "Run the challenge healthcheck against its deployment", runHealthcheck},
	"list":        {"list", "List configured challenges and their remote IDs", runList},
	"backends":    {"backends", "List remote backends and their settings", runBackends},
}

func main() {
	var (
		globals  globalOptions
		settings = make(kvFlag)
	)

	fs := pflag.NewFlagSet("chall-sync", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVar(&globals.backend, "backend", "", "remote backend ID (see the backends command)")
	fs.VarP(settings, "setting", "S", "backend setting as key=value, overrides .ctf/config; can be repeated")
	fs.StringVarP(&globals.dir, "dir", "C", "", "run as if started in this directory")
	fs.IntVarP(&globals.verbosity, "verbose", "v", 0, "logging verbosity level")
	fs.BoolVar(&globals.jsonLogs, "json-logs", false, "log JSON objects instead of text")
	fs.StringVar(&globals.errorFile, "error-file", "", "write the last error to this file")
	fs.StringVar(&globals.metricsFile, "metrics-textfile", "", "write operation metrics to this file in Prometheus text format")
	fs.DurationVar(&globals.commandTimeout, "command-timeout", 10*time.Minute, "time limit for each external command (docker, ssh, scp)")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	globals.settings = settings

	cmdName := fs.Arg(0)
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", cmdName)
		fs.Usage()
		os.Exit(2)
	}

	log := logging.New(os.Stderr, logging.Options{
		Verbosity: globals.verbosity,
		JSON:      globals.jsonLogs,
		ErrorFile: globals.errorFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(globals, log, os.Stdout)
	if err == nil {
		err = cmd.run(ctx, a, fs.Args()[1:])
		if werr := a.writeMetrics(); werr != nil {
			log.Error(werr, "can't write metrics", "path", globals.metricsFile)
		}
	}
	if err != nil {
		log.Error(err, "command failed", "command", cmdName)
		stop()
		os.Exit(1)
	}
	log.DeleteErrorFile()
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: %s [global options] <command> [args...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nGlobal Options:\n")
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-40s %s\n", commands[name].usage, commands[name].help)
	}
}
