// Package project locates and loads the .ctf/config file describing a
// challenge repository and the instance it is published to.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-ini/ini"
	"github.com/joho/godotenv"
)

const (
	configDir  = ".ctf"
	configName = "config"

	// ChallengeFile is the definition file looked up inside a challenge
	// directory.
	ChallengeFile = "challenge.yml"
)

// ErrNotInitialized is returned when no .ctf/config exists in the directory
// or any of its parents.
var ErrNotInitialized = errors.New("no .ctf/config found in this directory or any parent, run init first")

// environment variables overriding [config] entries
var envOverrides = map[string]string{
	"CTFCLI_URL":          "url",
	"CTFCLI_ACCESS_TOKEN": "access_token",
}

// Project is a loaded .ctf/config.
type Project struct {
	// Root is the directory holding .ctf.
	Root string
	file *ini.File
}

// ConfigPath returns the path of the config file under root.
func ConfigPath(root string) string {
	return filepath.Join(root, configDir, configName)
}

// Find walks up from dir to the first directory holding .ctf/config.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(ConfigPath(dir)); err == nil && fi.Mode().IsRegular() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialized
		}
		dir = parent
	}
}

// Load finds the project containing dir and reads its config. A .env file
// next to .ctf is loaded into the environment first; CTFCLI_URL and
// CTFCLI_ACCESS_TOKEN then override the [config] section.
func Load(dir string) (*Project, error) {
	root, err := Find(dir)
	if err != nil {
		return nil, err
	}

	envFile := filepath.Join(root, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	file, err := ini.LoadSources(loadOptions(), ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigPath(root), err)
	}

	p := &Project{Root: root, file: file}
	p.applyEnv()
	return p, nil
}

func loadOptions() ini.LoadOptions {
	return ini.LoadOptions{
		IgnoreInlineComment: true,
		AllowBooleanKeys:    true,
	}
}

func (p *Project) applyEnv() {
	for env, key := range envOverrides {
		if v := os.Getenv(env); v != "" {
			p.file.Section("config").Key(key).SetValue(v)
		}
	}
}

// Init writes a new .ctf/config under root. It fails if one already exists.
func Init(root string, settings map[string]string) (*Project, error) {
	path := ConfigPath(root)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	file := ini.Empty(loadOptions())
	cfg := file.Section("config")
	for _, k := range sortedKeys(settings) {
		cfg.Key(k).SetValue(settings[k])
	}
	file.Section("challenges")
	if err := file.SaveTo(path); err != nil {
		return nil, err
	}
	return &Project{Root: root, file: file}, nil
}

// Section returns the entries of a config section.
func (p *Project) Section(name string) map[string]string {
	if !p.file.HasSection(name) {
		return map[string]string{}
	}
	return p.file.Section(name).KeysHash()
}

// Settings returns the remote backend settings: the [config] entries plus a
// cookie header assembled from [cookies].
func (p *Project) Settings() map[string]string {
	settings := p.Section("config")
	cookies := p.Section("cookies")
	if len(cookies) > 0 {
		parts := make([]string, 0, len(cookies))
		for _, k := range sortedKeys(cookies) {
			parts = append(parts, k+"="+cookies[k])
		}
		settings["cookie"] = strings.Join(parts, "; ")
	}
	return settings
}

// Registry returns the [registry] credentials used for docker login.
func (p *Project) Registry() (username, password string) {
	reg := p.Section("registry")
	return reg["username"], reg["password"]
}

// ChallengeKeys returns the [challenges] keys in file order.
func (p *Project) ChallengeKeys() []string {
	if !p.file.HasSection("challenges") {
		return nil
	}
	return p.file.Section("challenges").KeyStrings()
}

// ChallengePaths returns the definition file of every configured challenge.
func (p *Project) ChallengePaths() []string {
	keys := p.ChallengeKeys()
	paths := make([]string, 0, len(keys))
	for _, k := range keys {
		paths = append(paths, definitionPath(filepath.Join(p.Root, filepath.FromSlash(k))))
	}
	return paths
}

// AddChallenge records a challenge directory (relative to Root) and the
// repository it comes from, then saves the config.
func (p *Project) AddChallenge(key, source string) error {
	p.file.Section("challenges").Key(filepath.ToSlash(key)).SetValue(source)
	return p.file.SaveTo(ConfigPath(p.Root))
}

// ResolveChallenge maps a command-line reference to a definition file. A
// path ending in .yml/.yaml or "." is taken relative to the working
// directory, anything else relative to the project root; absolute paths are
// kept and an empty reference means the working directory.
func ResolveChallenge(p *Project, cwd, ref string) string {
	var path string
	switch {
	case ref == "":
		path = cwd
	case filepath.IsAbs(ref):
		path = ref
	case ref == "." || isYAML(ref):
		path = ref
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
	case p != nil:
		path = filepath.Join(p.Root, filepath.FromSlash(ref))
	default:
		path = filepath.Join(cwd, filepath.FromSlash(ref))
	}
	return definitionPath(path)
}

func definitionPath(path string) string {
	if isYAML(path) {
		return path
	}
	return filepath.Join(path, ChallengeFile)
}

func isYAML(path string) bool {
	return strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
