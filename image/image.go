// Package image drives docker for challenges that ship a service container.
package image

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rw-r-r-0644/chall-sync/challenge"
	"github.com/rw-r-r-0644/chall-sync/runner"
)

// Image is a docker image, either built from a local context or referenced
// by name.
type Image struct {
	Name string
	// Basename is Name without registry, path or tag.
	Basename string
	// BuildPath is the docker build context, empty for prebuilt images.
	BuildPath string
	Built     bool

	run runner.Runner
}

// New returns an image called name. With a non-empty buildPath the image is
// built from it on first use.
func New(name, buildPath string, run runner.Runner) *Image {
	base := strings.SplitN(name, ":", 2)[0]
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return &Image{
		Name:      name,
		Basename:  base,
		BuildPath: buildPath,
		Built:     buildPath == "",
		run:       run,
	}
}

// PrebuiltScheme marks an image field that references an existing image
// instead of a build context.
const PrebuiltScheme = "registry://"

// ForChallenge returns the image declared by doc, or nil when it declares
// none. The image is named after the challenge and built from the image
// directory relative to the challenge, unless the field references a
// prebuilt image with PrebuiltScheme.
func ForChallenge(doc *challenge.Document, run runner.Runner) *Image {
	if doc.Image() == "" {
		return nil
	}
	if ref, ok := strings.CutPrefix(doc.Image(), PrebuiltScheme); ok {
		return New(ref, "", run)
	}
	return New(Slug(doc.Name()), filepath.Join(doc.Dir(), filepath.FromSlash(doc.Image())), run)
}

// Build runs docker build in the build context.
func (i *Image) Build(ctx context.Context) error {
	if i.BuildPath == "" {
		return fmt.Errorf("image %s has no build context", i.Name)
	}
	if _, _, err := i.run.Run(ctx, i.BuildPath, "docker", "build", "-t", i.Name, "."); err != nil {
		return fmt.Errorf("build image %s: %w", i.Name, err)
	}
	i.Built = true
	return nil
}

func (i *Image) ensureBuilt(ctx context.Context) error {
	if i.Built {
		return nil
	}
	return i.Build(ctx)
}

// Prepare makes the image available locally: prebuilt images are pulled,
// the others built.
func (i *Image) Prepare(ctx context.Context) error {
	if i.BuildPath == "" {
		return i.Pull(ctx)
	}
	return i.Build(ctx)
}

// Pull fetches the image from its registry.
func (i *Image) Pull(ctx context.Context) error {
	if _, _, err := i.run.Run(ctx, "", "docker", "pull", i.Name); err != nil {
		return fmt.Errorf("pull image %s: %w", i.Name, err)
	}
	return nil
}

// Push tags the image as location and pushes it.
func (i *Image) Push(ctx context.Context, location string) error {
	if err := i.ensureBuilt(ctx); err != nil {
		return err
	}
	if _, _, err := i.run.Run(ctx, "", "docker", "tag", i.Name, location); err != nil {
		return fmt.Errorf("tag image %s: %w", i.Name, err)
	}
	if _, _, err := i.run.Run(ctx, "", "docker", "push", location); err != nil {
		return fmt.Errorf("push image %s: %w", location, err)
	}
	return nil
}

// Export saves the image to a temporary tarball and returns its path. The
// caller removes the file.
func (i *Image) Export(ctx context.Context) (string, error) {
	if err := i.ensureBuilt(ctx); err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "*_"+i.Basename+".docker.tar")
	if err != nil {
		return "", err
	}
	path := f.Name()
	_ = f.Close()

	if _, _, err := i.run.Run(ctx, "", "docker", "save", "--output", path, i.Name); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("export image %s: %w", i.Name, err)
	}
	return path, nil
}

// ExposedPort returns the first port the image exposes, without protocol.
func (i *Image) ExposedPort(ctx context.Context) (string, error) {
	if err := i.ensureBuilt(ctx); err != nil {
		return "", err
	}
	out, _, err := i.run.Run(ctx, "", "docker", "inspect", "--format={{json .Config.ExposedPorts}}", i.Name)
	if err != nil {
		return "", fmt.Errorf("inspect image %s: %w", i.Name, err)
	}

	var ports map[string]any
	if err := json.Unmarshal([]byte(out), &ports); err != nil {
		return "", fmt.Errorf("inspect image %s: %w", i.Name, err)
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("image %s does not expose a port", i.Name)
	}
	keys := make([]string, 0, len(ports))
	for k := range ports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.SplitN(keys[0], "/", 2)[0], nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug lowercases s, drops diacritics and apostrophes and joins the
// remaining alphanumeric runs with dashes.
func Slug(s string) string {
	if t, _, err := transform.String(stripMarks, s); err == nil {
		s = t
	}
	s = strings.ToLower(s)
	s = strings.NewReplacer("'", "", "’", "").Replace(s)
	return strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
}
