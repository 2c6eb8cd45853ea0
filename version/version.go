// Package version keeps the dependency versions shown in adapter display
// names. It is filled from the binary's build info at startup and can be
// overridden from configuration.
package version

import (
	"path"
	"regexp"
	"runtime/debug"
	"sync"
)

// Registry maps module paths to version strings.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{versions: make(map[string]string)}
}

// FromBuildInfo returns a Registry holding every dependency recorded in
// the running binary. Replaced modules report the replacement's version.
func FromBuildInfo() *Registry {
	r := NewRegistry()

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return r
	}

	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		r.Set(dep.Path, mod.Version)
	}

	return r
}

// Set records version for module, replacing any earlier value.
func (r *Registry) Set(module, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.versions[module] = version
}

// Merge records every entry of overrides.
func (r *Registry) Merge(overrides map[string]string) {
	for module, v := range overrides {
		r.Set(module, v)
	}
}

// Lookup returns the version recorded for module.
func (r *Registry) Lookup(module string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.versions[module]

	return v, ok && v != ""
}

// Label builds a display name such as "xsync@v3.5.1 - MapOf" for module.
// The version part is omitted when unknown and the variant part when empty.
func (r *Registry) Label(module, variant string) string {
	name := ShortName(module)

	if v, ok := r.Lookup(module); ok {
		name += "@" + v
	}

	if variant != "" {
		name += " - " + variant
	}

	return name
}

var majorSuffix = regexp.MustCompile(`^v[0-9]+$`)

// ShortName returns the last meaningful element of a module path,
// dropping a major version suffix.
func ShortName(module string) string {
	base := path.Base(module)
	if majorSuffix.MatchString(base) {
		base = path.Base(path.Dir(module))
	}

	return base
}
