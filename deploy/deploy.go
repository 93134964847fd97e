// Package deploy ships challenge service images to where they will run.
// Handlers are chosen by the scheme of the challenge host URL.
package deploy

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/image"
	"github.com/rw-r-r-0644/chall-sync/runner"
)

// Result describes a deployed service.
type Result struct {
	Domain         string
	Port           string
	ConnectionInfo string
}

// Target is one challenge to deploy.
type Target struct {
	Doc   *challenge.Document
	Image *image.Image
	Host  *url.URL
	// Protocol selects the connection info format: http, https or tcp.
	Protocol string
}

// Options are shared by every handler.
type Options struct {
	Runner runner.Runner
	Log    logr.Logger

	RegistryUsername string
	RegistryPassword string
	// SkipLogin assumes docker is already logged in to the registry.
	SkipLogin bool
}

// Handler deploys a target.
type Handler interface {
	Deploy(ctx context.Context, t Target) (Result, error)
}

// HandlerDef describes a deployment handler.
type HandlerDef struct {
	Scheme string
	Name   string
	Build  func(opts Options) Handler
}

var handlers = map[string]HandlerDef{}

// Register adds a handler definition. Called from init() in handler files.
func Register(h HandlerDef) {
	handlers[h.Scheme] = h
}

// Handlers returns the registered definitions sorted by scheme.
func Handlers() []HandlerDef {
	out := make([]HandlerDef, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scheme < out[j].Scheme })
	return out
}

// New builds the handler registered for scheme.
func New(scheme string, opts Options) (Handler, error) {
	h, ok := handlers[scheme]
	if !ok {
		return nil, fmt.Errorf("no deployment handler for scheme %q", scheme)
	}
	return h.Build(opts), nil
}

// NewTarget assembles the deployment target of doc. override replaces the
// host declared by the document.
func NewTarget(doc *challenge.Document, override string, run runner.Runner) (Target, error) {
	img := image.ForChallenge(doc, run)
	if img == nil {
		return Target{}, challenge.Errorf(challenge.KindInvalidDefinition, doc.Name(), "challenge does not define an image to deploy")
	}

	host := override
	if host == "" {
		host = doc.Host()
	}
	if host == "" {
		return Target{}, challenge.Errorf(challenge.KindInvalidDefinition, doc.Name(), "no host provided for the deployment, use --host or define host in challenge.yml")
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return Target{}, challenge.Errorf(challenge.KindInvalidDefinition, doc.Name(),
			"host %s has no URI scheme, provide one like ssh:// or registry://", host)
	}
	return Target{Doc: doc, Image: img, Host: u, Protocol: doc.Protocol()}, nil
}

// ConnectionInfo formats how players reach a service on hostname:port.
func ConnectionInfo(protocol, hostname, port string) string {
	switch {
	case strings.HasPrefix(protocol, "http"):
		if (protocol == "http" && port == "80") || (protocol == "https" && port == "443") {
			return protocol + "://" + hostname
		}
		return fmt.Sprintf("%s://%s:%s", protocol, hostname, port)
	case protocol == "tcp":
		return fmt.Sprintf("nc %s %s", hostname, port)
	}
	return hostname
}
