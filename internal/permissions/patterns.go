package permissions

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
)

// Patterns is an immutable backend that matches resources against glob
// patterns instead of exact strings, e.g. "/srv/data/**" or "*.example.com".
// It is built once from a Manifest and needs no locking.
type Patterns struct {
	hrtime   bool
	exec     bool
	readAll  bool
	writeAll bool

	urls      []string
	hosts     []string
	envs      []string
	read      []string
	write     []string
	openRead  []string
	openWrite []string
	sys       map[SystemKind]struct{}
}

var _ WebPermissions = (*Patterns)(nil)

// NewPatterns compiles a manifest into a pattern backend
func NewPatterns(m *Manifest) (*Patterns, error) {
	p := &Patterns{
		hrtime:   m.HRTime,
		exec:     m.Exec,
		readAll:  m.ReadAll,
		writeAll: m.WriteAll,
		sys:      make(map[SystemKind]struct{}, len(m.Sys)),
	}

	lists := []struct {
		dst      *[]string
		src      []string
		category Category
	}{
		{&p.urls, m.URLs, CategoryURL},
		{&p.hosts, m.Hosts, CategoryHost},
		{&p.envs, m.Env, CategoryEnv},
		{&p.read, m.Read, CategoryRead},
		{&p.write, m.Write, CategoryWrite},
		{&p.openRead, m.Open.Read, CategoryOpen},
		{&p.openWrite, m.Open.Write, CategoryOpen},
	}
	for _, l := range lists {
		for _, pattern := range l.src {
			pattern, err := NormalizeEntry(l.category, pattern)
			if err != nil {
				return nil, err
			}
			if l.category == CategoryRead || l.category == CategoryWrite || l.category == CategoryOpen {
				pattern = filepath.ToSlash(pattern)
			}
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("invalid pattern %q", pattern)
			}
			*l.dst = append(*l.dst, pattern)
		}
	}
	for _, s := range m.Sys {
		p.sys[NewSystemKind(s)] = struct{}{}
	}
	return p, nil
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

func matchPath(patterns []string, path string) bool {
	return matchAny(patterns, filepath.ToSlash(path))
}

func (p *Patterns) AllowHRTime() bool { return p.hrtime }

func (p *Patterns) CheckURL(u *url.URL, api string) error {
	key := URLKey(u)
	if matchAny(p.urls, key) {
		return nil
	}
	return deny(CategoryURL, key, api)
}

func (p *Patterns) CheckHost(host string, port int, api string) error {
	if matchAny(p.hosts, host) {
		return nil
	}
	access := host
	if port > 0 {
		access = net.JoinHostPort(host, strconv.Itoa(port))
		if matchAny(p.hosts, access) {
			return nil
		}
	}
	return deny(CategoryHost, access, api)
}

func (p *Patterns) checkOpen(path string, kind AccessKind, display, api string) (CheckedPath, error) {
	if kind.Reads() && !matchPath(p.openRead, path) {
		return CheckedPath{}, deny(CategoryOpen, display, api)
	}
	if kind.Writes() && !matchPath(p.openWrite, path) {
		return CheckedPath{}, deny(CategoryOpen, display, api)
	}
	return CheckedPath{Path: path, Kind: kind}, nil
}

func (p *Patterns) CheckOpen(path string, kind AccessKind, api string) (CheckedPath, error) {
	return p.checkOpen(path, kind, path, api)
}

func (p *Patterns) CheckOpenBlind(path string, kind AccessKind, display, api string) (CheckedPath, error) {
	return p.checkOpen(path, kind, display, api)
}

func (p *Patterns) readable(path, display, api string) error {
	if p.readAll && matchPath(p.read, path) {
		return nil
	}
	return deny(CategoryRead, display, api)
}

func (p *Patterns) writable(path, display, api string) error {
	if p.writeAll && matchPath(p.write, path) {
		return nil
	}
	return deny(CategoryWrite, display, api)
}

func (p *Patterns) CheckRead(path, api string) (string, error) {
	if err := p.readable(path, path, api); err != nil {
		return "", err
	}
	return path, nil
}

func (p *Patterns) CheckReadPath(path, api string) (CheckedPath, error) {
	if err := p.readable(path, path, api); err != nil {
		return CheckedPath{}, err
	}
	return CheckedPath{Path: path, Kind: Read}, nil
}

func (p *Patterns) CheckReadAll(api string) error {
	if p.readAll {
		return nil
	}
	return deny(CategoryRead, "<all>", api)
}

func (p *Patterns) CheckReadBlind(path, display, api string) error {
	return p.readable(path, display, api)
}

func (p *Patterns) CheckWrite(path, api string) (string, error) {
	if err := p.writable(path, path, api); err != nil {
		return "", err
	}
	return path, nil
}

func (p *Patterns) CheckWriteAll(api string) error {
	if p.writeAll {
		return nil
	}
	return deny(CategoryWrite, "<all>", api)
}

func (p *Patterns) CheckWritePartial(path, api string) (CheckedPath, error) {
	if err := p.writable(path, path, api); err != nil {
		return CheckedPath{}, err
	}
	return CheckedPath{Path: path, Kind: Write}, nil
}

func (p *Patterns) CheckWriteBlind(path, display, api string) error {
	return p.writable(path, display, api)
}

func (p *Patterns) CheckEnv(name string) error {
	if matchAny(p.envs, name) {
		return nil
	}
	return deny(CategoryEnv, name, "")
}

func (p *Patterns) CheckSys(kind SystemKind, api string) error {
	if _, ok := p.sys[kind]; ok {
		return nil
	}
	return deny(CategorySys, kind.String(), api)
}

func (p *Patterns) CheckExec() error {
	if p.exec {
		return nil
	}
	return deny(CategoryExec, "exec", "")
}
