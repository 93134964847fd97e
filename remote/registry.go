package remote

import (
	"fmt"
	"sort"

	"github.com/go-logr/logr"
)

// SettingDef describes a connection setting a backend reads.
type SettingDef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// BackendDef describes a way of talking to a CTFd instance.
type BackendDef struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Settings []SettingDef `json:"settings"`

	// Build receives settings already checked for required entries.
	Build func(settings map[string]string, log logr.Logger) (Client, error) `json:"-"`
}

var backends = map[string]BackendDef{}

// Register adds a backend definition. Called from init() in backend files.
func Register(b BackendDef) {
	backends[b.ID] = b
}

// Backends returns the registered definitions sorted by ID.
func Backends() []BackendDef {
	out := make([]BackendDef, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Build creates a Client from a backend ID and its settings.
func Build(id string, settings map[string]string, log logr.Logger) (Client, error) {
	b, ok := backends[id]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", id)
	}
	var missing []string
	for _, s := range b.Settings {
		if s.Required && settings[s.ID] == "" {
			missing = append(missing, s.Name)
		}
	}
	if len(missing) == 1 {
		return nil, fmt.Errorf("%s is required", missing[0])
	}
	if len(missing) > 1 {
		return nil, fmt.Errorf("%v are required", missing)
	}
	return b.Build(settings, log.WithName(id))
}

// DefaultBackend picks a backend for settings that did not name one: cookie
// auth when only a cookie is configured, token auth otherwise.
func DefaultBackend(settings map[string]string) string {
	if settings["access_token"] == "" && settings["cookie"] != "" {
		return "ctfd_cookie"
	}
	return "ctfd_token"
}
