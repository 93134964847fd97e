package deploy

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	Register(HandlerDef{
		Scheme: "registry",
		Name:   "Docker registry",
		Build:  func(opts Options) Handler { return &registryHandler{opts: opts} },
	})
}

// registryHandler pushes the image to host/path/<image basename>. Where the
// service then runs is outside its knowledge, so it reports no connection
// info.
type registryHandler struct {
	opts Options
}

func (h *registryHandler) Deploy(ctx context.Context, t Target) (Result, error) {
	location := t.Host.Host + strings.TrimRight(t.Host.Path, "/") + "/" + t.Image.Basename

	if h.opts.SkipLogin {
		h.opts.Log.Info("skipping registry login, docker must already be logged in", "registry", t.Host.Host)
	} else {
		if h.opts.RegistryUsername == "" || h.opts.RegistryPassword == "" {
			return Result{}, fmt.Errorf("config is missing credentials for the registry")
		}
		_, _, err := h.opts.Runner.RunWithStdin(ctx, "", strings.NewReader(h.opts.RegistryPassword),
			"docker", "login", "-u", h.opts.RegistryUsername, "--password-stdin", t.Host.Host)
		if err != nil {
			return Result{}, fmt.Errorf("log in to registry %s: %w", t.Host.Host, err)
		}
	}

	if err := t.Image.Prepare(ctx); err != nil {
		return Result{}, err
	}
	if err := t.Image.Push(ctx, location); err != nil {
		return Result{}, err
	}
	h.opts.Log.V(1).Info("pushed image", "challenge", t.Doc.Name(), "location", location)
	return Result{}, nil
}
