package hostapi

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// Resolver maps a requested path to the path that will actually be opened
type Resolver interface {
	Resolve(path string) (string, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(path string) (string, error)

func (f ResolverFunc) Resolve(path string) (string, error) {
	return f(path)
}

// CleanResolver resolves lexically: absolute, cleaned, no filesystem access
type CleanResolver struct{}

func (CleanResolver) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// SymlinkResolver follows symlinks on the longest existing prefix of the
// path and appends the remaining components unchanged, so paths that do
// not exist yet (a file about to be created) still resolve.
type SymlinkResolver struct{}

func (SymlinkResolver) Resolve(path string) (string, error) {
	abs, err := CleanResolver{}.Resolve(path)
	if err != nil {
		return "", err
	}

	existing := abs
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

// resolveNoFollow resolves everything but the final component
func resolveNoFollow(r Resolver, path string) (string, error) {
	clean, err := CleanResolver{}.Resolve(path)
	if err != nil {
		return "", err
	}
	dir, base := filepath.Split(clean)
	if base == "" {
		return r.Resolve(clean)
	}
	parent, err := r.Resolve(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}
