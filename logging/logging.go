// Package logging builds the structured logger shared by every command.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Logger is a logr.Logger that can also record the last error to a file, so
// wrappers (CI jobs, pre-commit hooks) can surface it without parsing logs.
type Logger struct {
	logr.Logger
	errorFile string
}

// Options controls logger construction.
type Options struct {
	Verbosity int
	// JSON selects one JSON object per line instead of key=value text.
	JSON bool
	// ErrorFile, when set, receives the last error logged through Error.
	ErrorFile string
}

// New returns a Logger writing to w.
func New(w io.Writer, opts Options) *Logger {
	fopts := funcr.Options{
		LogTimestamp: opts.JSON,
		Verbosity:    opts.Verbosity,
	}
	if opts.Verbosity >= 4 {
		fopts.LogCaller = funcr.All
	}

	var inner logr.Logger
	if opts.JSON {
		inner = funcr.NewJSON(func(obj string) { fmt.Fprintln(w, obj) }, fopts)
	} else {
		inner = funcr.New(func(prefix, args string) {
			if prefix != "" {
				fmt.Fprintf(w, "%s: %s\n", prefix, args)
				return
			}
			fmt.Fprintln(w, args)
		}, fopts)
	}
	return &Logger{Logger: inner, errorFile: opts.ErrorFile}
}

// Error implements logr.Logger.Error.
func (l *Logger) Error(err error, msg string, kvList ...any) {
	l.Logger.WithCallDepth(1).Error(err, msg, kvList...)
	if l.errorFile == "" {
		return
	}

	payload := struct {
		Msg  string
		Err  string
		Args map[string]any
	}{
		Msg:  msg,
		Err:  err.Error(),
		Args: map[string]any{},
	}
	if len(kvList)%2 != 0 {
		kvList = append(kvList, "<no-value>")
	}
	for i := 0; i < len(kvList); i += 2 {
		k, ok := kvList[i].(string)
		if !ok {
			k = fmt.Sprintf("%v", kvList[i])
		}
		payload.Args[k] = kvList[i+1]
	}

	jb, err := json.Marshal(payload)
	if err != nil {
		l.Logger.Error(err, "can't encode error payload")
		jb = []byte(fmt.Sprintf("%v", err))
	}
	l.writeErrorFile(jb)
}

// DeleteErrorFile removes a stale error file left by a previous run.
func (l *Logger) DeleteErrorFile() {
	if l.errorFile == "" {
		return
	}
	if err := os.Remove(l.errorFile); err != nil && !os.IsNotExist(err) {
		l.Logger.Error(err, "can't delete the error-file", "filename", l.errorFile)
	}
}

func (l *Logger) writeErrorFile(content []byte) {
	dir := filepath.Dir(l.errorFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Logger.Error(err, "can't create the error-file directory", "directory", dir)
		return
	}

	tmp, err := os.CreateTemp(dir, "tmp-err-")
	if err != nil {
		l.Logger.Error(err, "can't create temporary error-file", "directory", dir)
		return
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		l.Logger.Error(err, "can't write to temporary error-file", "filename", tmp.Name())
		return
	}
	if err := tmp.Close(); err != nil {
		l.Logger.Error(err, "can't close temporary error-file", "filename", tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), l.errorFile); err != nil {
		l.Logger.Error(err, "can't rename to error-file", "temp-file", tmp.Name(), "error-file", l.errorFile)
		return
	}
	if err := os.Chmod(l.errorFile, 0o644); err != nil {
		l.Logger.Error(err, "can't change permissions on the error-file", "error-file", l.errorFile)
	}
}
