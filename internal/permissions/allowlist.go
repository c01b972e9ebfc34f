package permissions

import (
	"net"
	"net/url"
	"sort"
	"strconv"
	"sync"
)

type stringSet map[string]struct{}

func (s stringSet) add(v string)    { s[v] = struct{}{} }
func (s stringSet) remove(v string) { delete(s, v) }

func (s stringSet) has(v string) bool {
	if _, ok := s[v]; ok {
		return true
	}
	_, ok := s[Wildcard]
	return ok
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// allowlistState is the record guarded by Allowlist.mu
type allowlistState struct {
	hrtime   bool
	exec     bool
	readAll  bool
	writeAll bool

	urls       stringSet
	hosts      stringSet
	envs       stringSet
	openRead   stringSet
	openWrite  stringSet
	readPaths  stringSet
	writePaths stringSet
	sys        map[SystemKind]struct{}
}

// Allowlist denies everything that was not explicitly enabled.
//
// It is a shared handle: copies of the pointer observe the same state, so
// the embedding host can reconfigure a live runtime. Mutators take the
// write lock, checks take the read lock.
type Allowlist struct {
	mu    sync.RWMutex
	state allowlistState
}

var _ WebPermissions = (*Allowlist)(nil)

// NewAllowlist creates an allowlist with nothing allowed
func NewAllowlist() *Allowlist {
	return &Allowlist{
		state: allowlistState{
			urls:       stringSet{},
			hosts:      stringSet{},
			envs:       stringSet{},
			openRead:   stringSet{},
			openWrite:  stringSet{},
			readPaths:  stringSet{},
			writePaths: stringSet{},
			sys:        map[SystemKind]struct{}{},
		},
	}
}

func (a *Allowlist) update(fn func(s *allowlistState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.state)
}

func (a *Allowlist) view(fn func(s *allowlistState) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fn(&a.state)
}

// SetHRTime allows timers to use high resolution time
func (a *Allowlist) SetHRTime(v bool) { a.update(func(s *allowlistState) { s.hrtime = v }) }

// SetExec allows process spawning and native code execution
func (a *Allowlist) SetExec(v bool) { a.update(func(s *allowlistState) { s.exec = v }) }

// SetReadAll is the master switch for path reads; when false every read is denied
func (a *Allowlist) SetReadAll(v bool) { a.update(func(s *allowlistState) { s.readAll = v }) }

// SetWriteAll is the master switch for path writes; when false every write is denied
func (a *Allowlist) SetWriteAll(v bool) { a.update(func(s *allowlistState) { s.writeAll = v }) }

// AllowOpen allows opening path for reading and/or writing
func (a *Allowlist) AllowOpen(path string, read, write bool) {
	a.update(func(s *allowlistState) {
		if read {
			s.openRead.add(path)
		}
		if write {
			s.openWrite.add(path)
		}
	})
}

// DenyOpen removes path from the open sets selected by read and write
func (a *Allowlist) DenyOpen(path string, read, write bool) {
	a.update(func(s *allowlistState) {
		if read {
			s.openRead.remove(path)
		}
		if write {
			s.openWrite.remove(path)
		}
	})
}

// AllowURL allows fetching u. URLs are compared by URLKey, so pass the
// key form (NormalizeEntry produces it).
func (a *Allowlist) AllowURL(u string) { a.update(func(s *allowlistState) { s.urls.add(u) }) }

// DenyURL removes u, which must be spelled as it was allowed
func (a *Allowlist) DenyURL(u string) { a.update(func(s *allowlistState) { s.urls.remove(u) }) }

// AllowHost allows connecting to h, either a bare host or host:port
func (a *Allowlist) AllowHost(h string) { a.update(func(s *allowlistState) { s.hosts.add(h) }) }

// DenyHost removes h
func (a *Allowlist) DenyHost(h string) { a.update(func(s *allowlistState) { s.hosts.remove(h) }) }

// AllowRead adds p to the read set. Reads also need SetReadAll(true).
func (a *Allowlist) AllowRead(p string) { a.update(func(s *allowlistState) { s.readPaths.add(p) }) }

// DenyRead removes p from the read set
func (a *Allowlist) DenyRead(p string) { a.update(func(s *allowlistState) { s.readPaths.remove(p) }) }

// AllowWrite adds p to the write set. Writes also need SetWriteAll(true).
func (a *Allowlist) AllowWrite(p string) { a.update(func(s *allowlistState) { s.writePaths.add(p) }) }

// DenyWrite removes p from the write set
func (a *Allowlist) DenyWrite(p string) { a.update(func(s *allowlistState) { s.writePaths.remove(p) }) }

// AllowEnv allows reading the environment variable v
func (a *Allowlist) AllowEnv(v string) { a.update(func(s *allowlistState) { s.envs.add(v) }) }

// DenyEnv removes v
func (a *Allowlist) DenyEnv(v string) { a.update(func(s *allowlistState) { s.envs.remove(v) }) }

// AllowSys allows the system query k
func (a *Allowlist) AllowSys(k SystemKind) {
	a.update(func(s *allowlistState) { s.sys[k] = struct{}{} })
}

// DenySys removes k
func (a *Allowlist) DenySys(k SystemKind) {
	a.update(func(s *allowlistState) { delete(s.sys, k) })
}

// AllowHRTime reports the hrtime flag
func (a *Allowlist) AllowHRTime() bool {
	var v bool
	_ = a.view(func(s *allowlistState) error {
		v = s.hrtime
		return nil
	})
	return v
}

// CheckURL allows u only if its URLKey was allowed
func (a *Allowlist) CheckURL(u *url.URL, api string) error {
	key := URLKey(u)
	return a.view(func(s *allowlistState) error {
		if s.urls.has(key) {
			return nil
		}
		return deny(CategoryURL, key, api)
	})
}

// CheckHost matches either the bare host or host:port entries.
func (a *Allowlist) CheckHost(host string, port int, api string) error {
	access := host
	if port > 0 {
		access = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return a.view(func(s *allowlistState) error {
		if s.hosts.has(host) || (port > 0 && s.hosts.has(access)) {
			return nil
		}
		return deny(CategoryHost, access, api)
	})
}

// CheckOpen checks path against the open sets selected by kind
func (a *Allowlist) CheckOpen(path string, kind AccessKind, api string) (CheckedPath, error) {
	return a.checkOpen(path, kind, path, api)
}

// CheckOpenBlind is CheckOpen reporting display instead of path
func (a *Allowlist) CheckOpenBlind(path string, kind AccessKind, display, api string) (CheckedPath, error) {
	return a.checkOpen(path, kind, display, api)
}

// checkOpen tests read and write capability independently; ReadWrite needs both.
func (a *Allowlist) checkOpen(path string, kind AccessKind, display, api string) (CheckedPath, error) {
	if path == "" {
		return CheckedPath{}, deny(CategoryOpen, "invalid filename", api)
	}
	err := a.view(func(s *allowlistState) error {
		if kind.Reads() && !s.openRead.has(path) {
			return deny(CategoryOpen, display, api)
		}
		if kind.Writes() && !s.openWrite.has(path) {
			return deny(CategoryOpen, display, api)
		}
		return nil
	})
	if err != nil {
		return CheckedPath{}, err
	}
	return CheckedPath{Path: path, Kind: kind}, nil
}

func (a *Allowlist) readable(path, display, api string) error {
	return a.view(func(s *allowlistState) error {
		if !s.readAll {
			return deny(CategoryRead, display, api)
		}
		if !s.readPaths.has(path) {
			return deny(CategoryRead, display, api)
		}
		return nil
	})
}

func (a *Allowlist) writable(path, display, api string) error {
	return a.view(func(s *allowlistState) error {
		if !s.writeAll {
			return deny(CategoryWrite, display, api)
		}
		if !s.writePaths.has(path) {
			return deny(CategoryWrite, display, api)
		}
		return nil
	})
}

// CheckRead needs the read flag and path in the read set
func (a *Allowlist) CheckRead(path, api string) (string, error) {
	if err := a.readable(path, path, api); err != nil {
		return "", err
	}
	return path, nil
}

// CheckReadPath is CheckRead returning a CheckedPath
func (a *Allowlist) CheckReadPath(path, api string) (CheckedPath, error) {
	if err := a.readable(path, path, api); err != nil {
		return CheckedPath{}, err
	}
	return CheckedPath{Path: path, Kind: Read}, nil
}

// CheckReadAll checks the read flag alone
func (a *Allowlist) CheckReadAll(api string) error {
	return a.view(func(s *allowlistState) error {
		if s.readAll {
			return nil
		}
		return deny(CategoryRead, "<all>", api)
	})
}

// CheckReadBlind is CheckRead reporting display instead of path
func (a *Allowlist) CheckReadBlind(path, display, api string) error {
	return a.readable(path, display, api)
}

// CheckWrite needs the write flag and path in the write set
func (a *Allowlist) CheckWrite(path, api string) (string, error) {
	if err := a.writable(path, path, api); err != nil {
		return "", err
	}
	return path, nil
}

// CheckWriteAll checks the write flag alone
func (a *Allowlist) CheckWriteAll(api string) error {
	return a.view(func(s *allowlistState) error {
		if s.writeAll {
			return nil
		}
		return deny(CategoryWrite, "<all>", api)
	})
}

// CheckWritePartial checks a write to path itself, such as removing a link
func (a *Allowlist) CheckWritePartial(path, api string) (CheckedPath, error) {
	if err := a.writable(path, path, api); err != nil {
		return CheckedPath{}, err
	}
	return CheckedPath{Path: path, Kind: Write}, nil
}

// CheckWriteBlind is CheckWrite reporting display instead of path
func (a *Allowlist) CheckWriteBlind(path, display, api string) error {
	return a.writable(path, display, api)
}

// CheckEnv allows listed variable names
func (a *Allowlist) CheckEnv(name string) error {
	return a.view(func(s *allowlistState) error {
		if s.envs.has(name) {
			return nil
		}
		return deny(CategoryEnv, name, "")
	})
}

// CheckSys allows listed system kinds
func (a *Allowlist) CheckSys(kind SystemKind, api string) error {
	return a.view(func(s *allowlistState) error {
		if _, ok := s.sys[kind]; ok {
			return nil
		}
		return deny(CategorySys, kind.String(), api)
	})
}

// CheckExec checks the exec flag
func (a *Allowlist) CheckExec() error {
	return a.view(func(s *allowlistState) error {
		if s.exec {
			return nil
		}
		return deny(CategoryExec, "exec", "")
	})
}

// AllowlistSnapshot is a point-in-time copy of an allowlist
type AllowlistSnapshot struct {
	HRTime     bool     `json:"hrtime"`
	Exec       bool     `json:"exec"`
	ReadAll    bool     `json:"read_all"`
	WriteAll   bool     `json:"write_all"`
	URLs       []string `json:"urls"`
	Hosts      []string `json:"hosts"`
	Envs       []string `json:"envs"`
	OpenRead   []string `json:"open_read"`
	OpenWrite  []string `json:"open_write"`
	ReadPaths  []string `json:"read_paths"`
	WritePaths []string `json:"write_paths"`
	Sys        []string `json:"sys"`
}

// Snapshot copies the current state under the read lock
func (a *Allowlist) Snapshot() AllowlistSnapshot {
	var snap AllowlistSnapshot
	_ = a.view(func(s *allowlistState) error {
		sys := make([]string, 0, len(s.sys))
		for k := range s.sys {
			sys = append(sys, k.String())
		}
		sort.Strings(sys)
		snap = AllowlistSnapshot{
			HRTime:     s.hrtime,
			Exec:       s.exec,
			ReadAll:    s.readAll,
			WriteAll:   s.writeAll,
			URLs:       s.urls.sorted(),
			Hosts:      s.hosts.sorted(),
			Envs:       s.envs.sorted(),
			OpenRead:   s.openRead.sorted(),
			OpenWrite:  s.openWrite.sorted(),
			ReadPaths:  s.readPaths.sorted(),
			WritePaths: s.writePaths.sorted(),
			Sys:        sys,
		}
		return nil
	})
	return snap
}
