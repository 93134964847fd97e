package deploy

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

func init() {
	Register(HandlerDef{
		Scheme: "ssh",
		Name:   "Docker over SSH",
		Build:  func(opts Options) Handler { return &sshHandler{opts: opts} },
	})
}

// sshHandler copies the image tarball to the host, loads it and replaces
// the running container.
type sshHandler struct {
	opts Options
}

func (h *sshHandler) Deploy(ctx context.Context, t Target) (Result, error) {
	if err := t.Image.Prepare(ctx); err != nil {
		return Result{}, err
	}
	tarball, err := t.Image.Export(ctx)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(tarball)

	port, err := t.Image.ExposedPort(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve a port to expose, make sure the Dockerfile EXPOSEs one: %w", err)
	}

	remoteDir := t.Host.Path
	if remoteDir == "" {
		remoteDir = "/tmp"
	}
	remoteFile := path.Join(remoteDir, filepath.Base(tarball))
	login := t.Host.Host
	if t.Host.User != nil {
		login = t.Host.User.String() + "@" + t.Host.Host
	}
	name := t.Image.Basename

	steps := [][]string{
		{"scp", tarball, login + ":" + remoteFile},
		{"ssh", login, fmt.Sprintf("docker load -i %s && rm %s", remoteFile, remoteFile)},
		{"ssh", login, fmt.Sprintf("docker stop %s 2>/dev/null; docker rm %s 2>/dev/null; true", name, name)},
		{"ssh", login, fmt.Sprintf("docker run -d -p%s:%s --name %s --restart always %s", port, port, name, t.Image.Name)},
	}
	for _, step := range steps {
		if _, _, err := h.opts.Runner.Run(ctx, "", step[0], step[1:]...); err != nil {
			return Result{}, fmt.Errorf("deploy %s to %s: %w", name, t.Host.Host, err)
		}
	}

	hostname := t.Host.Hostname()
	return Result{
		Domain:         hostname,
		Port:           port,
		ConnectionInfo: ConnectionInfo(t.Protocol, hostname, port),
	}, nil
}
